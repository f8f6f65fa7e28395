// Package messages produces the encouragement copy shown for
// insufficient-signal outcomes. Low spending is rewarded, and the wording
// should make that feel intentional rather than like an error.
package messages

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Generator produces a short encouraging message for a low-spend period.
type Generator interface {
	LowSpend(ctx context.Context) string
}

var lowSpendPool = []string{
	"You haven't spent much recently — very responsible!",
	"Great job keeping your spending in check this week!",
	"Impressive restraint! Your wallet thanks you.",
	"Low spending week detected — financial discipline at its finest!",
	"Your wallet is looking healthy! Not much to analyze this week.",
}

// StaticPool picks from a fixed pool of messages.
type StaticPool struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewStaticPool returns the default generator.
func NewStaticPool() *StaticPool {
	return &StaticPool{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// LowSpend returns a random message from the pool.
func (p *StaticPool) LowSpend(_ context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lowSpendPool[p.rng.Intn(len(lowSpendPool))]
}
