// Package analytics is the read side of the transaction feed: spending
// rollups for the current play period, used by the mobile dashboard. It never
// writes game or progression state.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/centsible/backend/internal/game"
	"github.com/centsible/backend/internal/period"
	"github.com/centsible/backend/internal/store"
)

// CategorySpend is one category's share of the period's spending.
type CategorySpend struct {
	Name       string  `json:"name"`
	Label      string  `json:"label"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// Summary is the per-period rollup: spend by category plus totals.
type Summary struct {
	PeriodStart      string          `json:"period_start"`
	Categories       []CategorySpend `json:"categories"`
	Total            float64         `json:"total"`
	TransactionCount int             `json:"transaction_count"`
	TopCategory      *CategorySpend  `json:"top_category,omitempty"`
}

// Service computes rollups over the transaction feed.
type Service struct {
	txns    store.TransactionReader
	periods period.Policy
	now     func() time.Time
	log     zerolog.Logger
}

// New returns an analytics service over the given feed.
func New(txns store.TransactionReader, log zerolog.Logger) *Service {
	return &Service{
		txns:    txns,
		periods: period.Default(),
		now:     time.Now,
		log:     log.With().Str("component", "analytics").Logger(),
	}
}

// UsePeriod overrides the rollup period boundary.
func (s *Service) UsePeriod(p period.Policy) { s.periods = p }

// Summary rolls up the current period's spending by category. Only positive
// amounts count as spend; unmatched transactions contribute to the total and
// the count but not to any category row.
func (s *Service) Summary(ctx context.Context, uid string) (Summary, error) {
	now := s.now()
	start := civil.DateOf(s.periods.Start(now))
	end := civil.DateOf(now).AddDays(1)

	txns, err := s.txns.Fetch(ctx, uid, start, end)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch period transactions: %w", err)
	}

	total := decimal.Zero
	count := 0
	for _, t := range txns {
		if !t.IsSpend() {
			continue
		}
		total = total.Add(decimal.NewFromFloat(t.Amount))
		count++
	}
	totalF, _ := total.Round(2).Float64()

	spend := game.SpendByCategory(txns)
	rows := make([]CategorySpend, 0, len(spend))
	for cat, amount := range spend {
		pct := 0.0
		if totalF > 0 {
			pct = round1(amount / totalF * 100)
		}
		rows = append(rows, CategorySpend{
			Name:       string(cat),
			Label:      cat.Label(),
			Amount:     amount,
			Percentage: pct,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Amount != rows[j].Amount {
			return rows[i].Amount > rows[j].Amount
		}
		return rows[i].Name < rows[j].Name
	})

	out := Summary{
		PeriodStart:      s.periods.Key(now),
		Categories:       rows,
		Total:            totalF,
		TransactionCount: count,
	}
	if len(rows) > 0 {
		top := rows[0]
		out.TopCategory = &top
	}

	s.log.Debug().
		Str("user_id", uid).
		Str("period", out.PeriodStart).
		Int("transactions", count).
		Float64("total", totalF).
		Msg("period rollup computed")
	return out, nil
}

func round1(v float64) float64 {
	d, _ := decimal.NewFromFloat(v).Round(1).Float64()
	return d
}
