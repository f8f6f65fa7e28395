// Package inmemory provides a mutex-guarded Store used by unit tests and
// local development. Transactions are serialized by a single lock, which
// trivially satisfies the no-lost-update guarantee the games rely on.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"cloud.google.com/go/civil"

	"github.com/centsible/backend/internal/domain"
	"github.com/centsible/backend/internal/store"
)

type gameKey struct {
	uid  string
	game string
}

// Store implements store.Store and store.TransactionReader in memory.
type Store struct {
	mu       sync.Mutex
	games    map[gameKey]store.GameState
	profiles map[string]store.Profile
	txns     map[string][]domain.Transaction

	// failNext, when set, makes the next RunUpdate return the error once.
	failNext error
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		games:    make(map[gameKey]store.GameState),
		profiles: make(map[string]store.Profile),
		txns:     make(map[string][]domain.Transaction),
	}
}

// FailNextUpdate injects a one-shot failure into the next RunUpdate call.
func (s *Store) FailNextUpdate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// SeedTransactions replaces the stored transactions for uid.
func (s *Store) SeedTransactions(uid string, txns []domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns[uid] = append([]domain.Transaction(nil), txns...)
}

// Fetch implements store.TransactionReader: half-open range [start, end),
// most recent first.
func (s *Store) Fetch(_ context.Context, uid string, start, end civil.Date) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Transaction
	for _, t := range s.txns[uid] {
		if t.Date.Before(start) || !t.Date.Before(end) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[j].Date.Before(out[i].Date) })
	return out, nil
}

type memTx struct {
	s *Store
	// staged writes, applied on commit
	games    map[gameKey]store.GameState
	profiles map[string]store.Profile
}

func (t *memTx) GameState(uid, game string) (store.GameState, error) {
	k := gameKey{uid, game}
	if st, ok := t.games[k]; ok {
		return cloneGameState(st), nil
	}
	return cloneGameState(t.s.games[k]), nil
}

func (t *memTx) SetGameState(uid, game string, st store.GameState) error {
	t.games[gameKey{uid, game}] = cloneGameState(st)
	return nil
}

func (t *memTx) Profile(uid string) (store.Profile, bool, error) {
	if p, ok := t.profiles[uid]; ok {
		return p, true, nil
	}
	p, ok := t.s.profiles[uid]
	return p, ok, nil
}

func (t *memTx) SetProfile(uid string, p store.Profile) error {
	t.profiles[uid] = p
	return nil
}

// RunUpdate runs fn under the store lock and applies staged writes only when
// fn succeeds.
func (s *Store) RunUpdate(_ context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}

	tx := &memTx{
		s:        s,
		games:    make(map[gameKey]store.GameState),
		profiles: make(map[string]store.Profile),
	}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.games {
		s.games[k] = v
	}
	for k, v := range tx.profiles {
		s.profiles[k] = v
	}
	return nil
}

func (s *Store) GameState(_ context.Context, uid, game string) (store.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneGameState(s.games[gameKey{uid, game}]), nil
}

func (s *Store) Profile(_ context.Context, uid string) (store.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	return p, ok, nil
}

func (s *Store) TopProfiles(_ context.Context, limit int) ([]store.RankedProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.RankedProfile, 0, len(s.profiles))
	for uid, p := range s.profiles {
		out = append(out, store.RankedProfile{UserID: uid, Profile: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalXP != out[j].TotalXP {
			return out[i].TotalXP > out[j].TotalXP
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// cloneGameState deep-copies a state document so callers never alias stored
// slices or maps.
func cloneGameState(st store.GameState) store.GameState {
	out := st
	out.History = append([]store.RoundSummary(nil), st.History...)
	if st.LastSummary != nil {
		ls := *st.LastSummary
		out.LastSummary = &ls
	}
	if st.Round != nil {
		r := *st.Round
		if st.Round.Categories != nil {
			c := *st.Round.Categories
			c.CategoryTiles = append([]store.CategoryTile(nil), c.CategoryTiles...)
			c.AmountTiles = append([]store.AmountTile(nil), c.AmountTiles...)
			c.Matched = append([]store.MatchPair(nil), c.Matched...)
			c.Amounts = cloneFloatMap(c.Amounts)
			c.TruthMap = cloneStringMap(c.TruthMap)
			r.Categories = &c
		}
		if st.Round.Detective != nil {
			d := *st.Round.Detective
			d.Transactions = append([]store.DetectiveTxn(nil), d.Transactions...)
			d.AnomalyIDs = append([]string(nil), d.AnomalyIDs...)
			d.Simulated = append([]string(nil), d.Simulated...)
			d.Found = append([]string(nil), d.Found...)
			d.FalsePositives = append([]string(nil), d.FalsePositives...)
			if d.Reasons != nil {
				reasons := make(map[string][]string, len(d.Reasons))
				for k, v := range d.Reasons {
					reasons[k] = append([]string(nil), v...)
				}
				d.Reasons = reasons
			}
			r.Detective = &d
		}
		if st.Round.Quiz != nil {
			q := *st.Round.Quiz
			q.Questions = append([]store.QuizQuestion(nil), q.Questions...)
			q.Answers = append([]store.QuizAnswer(nil), q.Answers...)
			r.Quiz = &q
		}
		out.Round = &r
	}
	return out
}

func cloneFloatMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
