// Package period defines the play-gating period boundary. The boundary is a
// product decision, so it is a policy value rather than a hardcoded rule; the
// shipped default matches the original product behavior (Monday 00:00 UTC).
package period

import (
	"time"

	"cloud.google.com/go/civil"
)

// Policy anchors the weekly period at a weekday midnight in a location.
type Policy struct {
	Anchor   time.Weekday
	Location *time.Location
}

// Default returns the Monday 00:00 UTC policy.
func Default() Policy {
	return Policy{Anchor: time.Monday, Location: time.UTC}
}

// Start returns the most recent anchor midnight at or before t.
func (p Policy) Start(t time.Time) time.Time {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	days := int(t.Weekday() - p.Anchor)
	if days < 0 {
		days += 7
	}
	day := t.AddDate(0, 0, -days)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
}

// Key returns the period identity for t, the YYYY-MM-DD of the period start.
// Equal keys mean the same gating period.
func (p Policy) Key(t time.Time) string {
	return civil.DateOf(p.Start(t)).String()
}

// Next returns the start of the period after the one containing t.
func (p Policy) Next(t time.Time) time.Time {
	return p.Start(t).AddDate(0, 0, 7)
}
