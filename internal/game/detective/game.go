// Package detective implements the Spend Detective minigame: spot the
// statistically unusual transactions in a lineup of recent spending.
package detective

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/centsible/backend/internal/category"
	"github.com/centsible/backend/internal/domain"
	"github.com/centsible/backend/internal/game"
	"github.com/centsible/backend/internal/period"
	"github.com/centsible/backend/internal/progression"
	"github.com/centsible/backend/internal/store"
)

const (
	txnsPerRound = 6
	minAnomalies = 1
	maxAnomalies = 3

	triesPerRound = 3
	xpPerCorrect  = 20

	// streakAccuracy is the minimum accuracy that keeps a streak alive.
	streakAccuracy = 0.60

	minHistoryTxns = 15
	historyDays    = 90
	recentDays     = 7
	historyLimit   = 200
	recentLimit    = 50
	candidateLimit = 20

	source = "detective"

	insufficientMessage = "Not enough transaction history yet. Keep spending and come back next week!"
)

// fakeMerchants seed simulated anomalies when the detector finds no real
// ones, so a round is always playable.
var fakeMerchants = []struct {
	name     string
	category string
}{
	{"UltraCar Rentals", "travel"},
	{"CryptoBlast", "investment"},
	{"Emerald Casino", "entertainment"},
	{"Luxury Wine Co.", "dining"},
	{"Gold Rush Antiques", "shopping"},
}

var fakeAmounts = []float64{499.99, 777.00, 3.14, 999.99, 250.00}

// Game is the Spend Detective engine.
type Game struct {
	store   store.Store
	txns    store.TransactionReader
	prog    *progression.Engine
	periods period.Policy
	now     func() time.Time
	rng     *rand.Rand
	log     zerolog.Logger
}

// New creates the game on top of the shared store and progression engine.
func New(st store.Store, txns store.TransactionReader, prog *progression.Engine, log zerolog.Logger) *Game {
	return &Game{
		store:   st,
		txns:    txns,
		prog:    prog,
		periods: period.Default(),
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     log,
	}
}

// UsePeriod overrides the weekly gate boundary.
func (g *Game) UsePeriod(p period.Policy) { g.periods = p }

// StartResult is the outcome of Start: a playable round (anomaly ids and
// reasons stay server-side), or the insufficient-signal reward.
type StartResult struct {
	CanPlay        bool                 `json:"can_play"`
	RoundID        string               `json:"round_id,omitempty"`
	Transactions   []store.DetectiveTxn `json:"transactions,omitempty"`
	TotalAnomalies int                  `json:"total_anomalies,omitempty"`
	TriesRemaining int                  `json:"tries_remaining,omitempty"`

	InsufficientData bool                   `json:"insufficient_data,omitempty"`
	Message          string                 `json:"message,omitempty"`
	XPAwarded        int                    `json:"xp_awarded,omitempty"`
	Progression      *game.ProgressionDelta `json:"progression,omitempty"`
	Streak           int                    `json:"streak,omitempty"`
}

// Start builds a round from the last week of transactions scored against a
// 90-day baseline. The game is weekly-gated: one completed round per period.
func (g *Game) Start(ctx context.Context, uid string) (*StartResult, error) {
	now := g.now()
	week := g.periods.Key(now)

	st, err := g.store.GameState(ctx, uid, store.GameSpendDetective)
	if err != nil {
		return nil, fmt.Errorf("detective start: read state: %w", err)
	}
	if st.LastPlayedPeriod == week {
		return nil, game.ErrAlreadyPlayed
	}

	historical, recent, err := g.fetchWindows(ctx, uid, now)
	if err != nil {
		return nil, fmt.Errorf("detective start: fetch transactions: %w", err)
	}

	if len(historical) < minHistoryTxns || len(recent) < txnsPerRound {
		return g.rewardInsufficient(ctx, uid, week)
	}

	round := g.buildRound(historical, recent, now, week)

	err = g.store.RunUpdate(ctx, func(tx store.Tx) error {
		st, err := tx.GameState(uid, store.GameSpendDetective)
		if err != nil {
			return err
		}
		if st.LastPlayedPeriod == week {
			return game.ErrAlreadyPlayed
		}
		st.Round = round
		st.UpdatedAt = now
		return tx.SetGameState(uid, store.GameSpendDetective, st)
	})
	if err != nil {
		return nil, err
	}

	g.log.Info().Str("user_id", uid).Str("round_id", round.ID).
		Int("anomalies", len(round.Detective.AnomalyIDs)).
		Int("simulated", len(round.Detective.Simulated)).
		Msg("spend detective round started")

	return &StartResult{
		CanPlay:        true,
		RoundID:        round.ID,
		Transactions:   round.Detective.Transactions,
		TotalAnomalies: len(round.Detective.AnomalyIDs),
		TriesRemaining: round.Detective.TriesRemaining,
	}, nil
}

// fetchWindows loads the baseline and recent windows in parallel.
func (g *Game) fetchWindows(ctx context.Context, uid string, now time.Time) (historical, recent []domain.Transaction, err error) {
	end := civil.DateOf(now.AddDate(0, 0, 1))

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		txns, err := g.txns.Fetch(ctx, uid, civil.DateOf(now.AddDate(0, 0, -historyDays)), end)
		if err != nil {
			return err
		}
		historical = capTxns(txns, historyLimit)
		return nil
	})
	eg.Go(func() error {
		txns, err := g.txns.Fetch(ctx, uid, civil.DateOf(now.AddDate(0, 0, -recentDays)), end)
		if err != nil {
			return err
		}
		recent = capTxns(txns, recentLimit)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return historical, recent, nil
}

func (g *Game) rewardInsufficient(ctx context.Context, uid, week string) (*StartResult, error) {
	now := g.now()
	xp := txnsPerRound * xpPerCorrect

	var res StartResult
	err := g.store.RunUpdate(ctx, func(tx store.Tx) error {
		st, err := tx.GameState(uid, store.GameSpendDetective)
		if err != nil {
			return err
		}
		if st.LastPlayedPeriod == week {
			return game.ErrAlreadyPlayed
		}
		award, err := g.prog.AwardIn(tx, uid, xp, source)
		if err != nil {
			return err
		}
		st.Streak++
		st.LastPlayedPeriod = week
		st.UpdatedAt = now
		if err := tx.SetGameState(uid, store.GameSpendDetective, st); err != nil {
			return err
		}

		res = StartResult{
			InsufficientData: true,
			Message:          insufficientMessage,
			XPAwarded:        xp,
			Progression:      game.DeltaFrom(award),
			Streak:           st.Streak,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.log.Info().Str("user_id", uid).Int("xp", xp).
		Msg("spend detective: insufficient history, full reward")
	return &res, nil
}

// buildRound selects 1-3 anomalies (real ones when the detector found any,
// simulated otherwise), pads with normal transactions to six, and shuffles.
func (g *Game) buildRound(historical, recent []domain.Transaction, now time.Time, week string) *store.Round {
	detected := detectAnomalies(recent[:min(len(recent), candidateLimit)], historical)

	byID := make(map[string]domain.Transaction, len(recent))
	for _, t := range recent {
		byID[t.ID] = t
	}
	detectedIDs := make(map[string]bool, len(detected))
	reasonsByID := make(map[string][]string, len(detected))
	for _, a := range detected {
		detectedIDs[a.ID] = true
		reasonsByID[a.ID] = a.Reasons
	}

	dr := &store.DetectiveRound{
		Reasons:        make(map[string][]string),
		TriesRemaining: triesPerRound,
	}
	var roundTxns []store.DetectiveTxn

	if len(detected) >= minAnomalies {
		ids := make([]string, 0, len(detected))
		for _, a := range detected {
			ids = append(ids, a.ID)
		}
		chosen := g.sample(ids, min(len(ids), maxAnomalies))
		for _, id := range chosen {
			dr.AnomalyIDs = append(dr.AnomalyIDs, id)
			dr.Reasons[id] = reasonsByID[id]
			roundTxns = append(roundTxns, redact(byID[id]))
		}

		var normal []string
		for _, t := range recent {
			if !detectedIDs[t.ID] {
				normal = append(normal, t.ID)
			}
		}
		for _, id := range g.sample(normal, min(len(normal), txnsPerRound-len(chosen))) {
			roundTxns = append(roundTxns, redact(byID[id]))
		}
	} else {
		numFakes := minAnomalies + g.rng.Intn(maxAnomalies-minAnomalies+1)
		for i := 0; i < min(txnsPerRound-numFakes, len(recent)); i++ {
			roundTxns = append(roundTxns, redact(recent[i]))
		}
		for i := 0; i < numFakes; i++ {
			fake := g.generateFake(i, now)
			roundTxns = append(roundTxns, fake)
			dr.AnomalyIDs = append(dr.AnomalyIDs, fake.ID)
			dr.Reasons[fake.ID] = []string{"Simulated anomaly transaction"}
			dr.Simulated = append(dr.Simulated, fake.ID)
		}
	}

	g.rng.Shuffle(len(roundTxns), func(i, j int) {
		roundTxns[i], roundTxns[j] = roundTxns[j], roundTxns[i]
	})
	dr.Transactions = roundTxns

	return &store.Round{
		ID:        uuid.NewString(),
		Period:    week,
		StartedAt: now,
		Detective: dr,
	}
}

func (g *Game) generateFake(index int, now time.Time) store.DetectiveTxn {
	m := fakeMerchants[g.rng.Intn(len(fakeMerchants))]
	date := civil.DateOf(now.AddDate(0, 0, -g.rng.Intn(recentDays)))
	return store.DetectiveTxn{
		ID:       fmt.Sprintf("sim_%d_%04d", index, 1000+g.rng.Intn(9000)),
		Date:     date.String(),
		Merchant: m.name,
		Amount:   fakeAmounts[g.rng.Intn(len(fakeAmounts))],
		Category: m.category,
	}
}

// sample picks n distinct elements in random order.
func (g *Game) sample(ids []string, n int) []string {
	out := append([]string(nil), ids...)
	g.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out[:n]
}

func redact(t domain.Transaction) store.DetectiveTxn {
	cat := category.Normalize(t)
	display := string(cat)
	if cat == category.Unmatched {
		display = t.CategoryPrimary
	}
	return store.DetectiveTxn{
		ID:       t.ID,
		Date:     t.Date.String(),
		Merchant: t.MerchantName,
		Amount:   t.Amount,
		Category: display,
	}
}

// RevealEntry explains one anomaly at the end of a round.
type RevealEntry struct {
	TransactionID string   `json:"transaction_id"`
	WasAnomaly    bool     `json:"was_anomaly"`
	FoundByUser   bool     `json:"found_by_user"`
	Reasons       []string `json:"reasons"`
}

// SubmitResult is the outcome of one guess submission.
type SubmitResult struct {
	NewCorrect        int  `json:"new_correct"`
	NewFalsePositives int  `json:"new_false_positives"`
	AlreadyFound      int  `json:"already_found"`
	FoundCount        int  `json:"found_count"`
	TotalAnomalies    int  `json:"total_anomalies"`
	TriesRemaining    int  `json:"tries_remaining"`
	RoundComplete     bool `json:"round_complete"`
	AllFound          bool `json:"all_found"`

	XPEarned         int                    `json:"xp_earned,omitempty"`
	Progression      *game.ProgressionDelta `json:"progression,omitempty"`
	Streak           int                    `json:"streak,omitempty"`
	Accuracy         float64                `json:"accuracy,omitempty"`
	StreakMaintained bool                   `json:"streak_maintained,omitempty"`
	Feedback         string                 `json:"feedback,omitempty"`
	Reveal           []RevealEntry          `json:"reveal,omitempty"`
}

// Submit grades a set of suspected transaction ids. Re-submitting an anomaly
// already found is a no-op; each NEW false positive costs one try. When every
// anomaly is found or tries run out, the round is finalized in the same store
// transaction, XP award included.
func (g *Game) Submit(ctx context.Context, uid string, selectedIDs []string) (*SubmitResult, error) {
	if len(selectedIDs) == 0 {
		return nil, fmt.Errorf("%w: selected_ids must not be empty", game.ErrInvalidArgument)
	}

	now := g.now()
	var res SubmitResult

	err := g.store.RunUpdate(ctx, func(tx store.Tx) error {
		st, err := tx.GameState(uid, store.GameSpendDetective)
		if err != nil {
			return err
		}
		if st.Round == nil || st.Round.Detective == nil {
			return game.ErrNoActiveRound
		}
		dr := st.Round.Detective

		anomalies := toSet(dr.AnomalyIDs)
		found := toSet(dr.Found)
		falsePos := toSet(dr.FalsePositives)
		known := toSet(idsOf(dr.Transactions))

		var newCorrect, newFP, alreadyFound int
		for _, id := range dedupe(selectedIDs) {
			if !known[id] {
				return fmt.Errorf("%w: unknown transaction id %q", game.ErrInvalidArgument, id)
			}
			switch {
			case anomalies[id] && found[id]:
				alreadyFound++
			case anomalies[id]:
				found[id] = true
				dr.Found = append(dr.Found, id)
				newCorrect++
			case !falsePos[id]:
				falsePos[id] = true
				dr.FalsePositives = append(dr.FalsePositives, id)
				newFP++
			}
		}

		dr.TriesRemaining -= newFP
		if dr.TriesRemaining < 0 {
			dr.TriesRemaining = 0
		}

		allFound := len(dr.Found) == len(dr.AnomalyIDs)
		complete := allFound || dr.TriesRemaining == 0

		res = SubmitResult{
			NewCorrect:        newCorrect,
			NewFalsePositives: newFP,
			AlreadyFound:      alreadyFound,
			FoundCount:        len(dr.Found),
			TotalAnomalies:    len(dr.AnomalyIDs),
			TriesRemaining:    dr.TriesRemaining,
			RoundComplete:     complete,
			AllFound:          allFound,
		}

		if !complete {
			st.UpdatedAt = now
			return tx.SetGameState(uid, store.GameSpendDetective, st)
		}
		return g.finalize(tx, uid, &st, now, &res)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// finalize scores the round, awards XP, sets the weekly gate, and archives
// the summary, all within the caller's transaction.
func (g *Game) finalize(tx store.Tx, uid string, st *store.GameState, now time.Time, res *SubmitResult) error {
	dr := st.Round.Detective
	correct := len(dr.Found)
	total := len(dr.AnomalyIDs)
	xp := correct * xpPerCorrect
	accuracy := game.Accuracy(correct, total)
	maintained := accuracy >= streakAccuracy

	if xp > 0 {
		award, err := g.prog.AwardIn(tx, uid, xp, source)
		if err != nil {
			return err
		}
		res.Progression = game.DeltaFrom(award)
	}

	if maintained {
		st.Streak++
	} else {
		st.Streak = 0
	}

	foundSet := toSet(dr.Found)
	reveal := make([]RevealEntry, 0, total)
	for _, id := range dr.AnomalyIDs {
		reasons := dr.Reasons[id]
		if len(reasons) == 0 {
			reasons = []string{"Unusual pattern detected"}
		}
		reveal = append(reveal, RevealEntry{
			TransactionID: id,
			WasAnomaly:    true,
			FoundByUser:   foundSet[id],
			Reasons:       reasons,
		})
	}

	summary := store.RoundSummary{
		RoundID:          st.Round.ID,
		Period:           st.Round.Period,
		Correct:          correct,
		Total:            total,
		Accuracy:         accuracy,
		XPEarned:         xp,
		StreakMaintained: maintained,
		CompletedAt:      now,
	}

	res.XPEarned = xp
	res.Streak = st.Streak
	res.Accuracy = accuracy
	res.StreakMaintained = maintained
	res.Feedback = feedbackFor(accuracy)
	res.Reveal = reveal

	st.LastPlayedPeriod = st.Round.Period
	st.LastSummary = &summary
	st.History = game.AppendHistory(st.History, summary)
	st.Round = nil
	st.UpdatedAt = now

	g.log.Info().Str("user_id", uid).Str("round_id", summary.RoundID).
		Int("correct", correct).Int("total", total).Int("xp", xp).
		Msg("spend detective round complete")

	return tx.SetGameState(uid, store.GameSpendDetective, *st)
}

func feedbackFor(accuracy float64) string {
	switch {
	case accuracy >= 0.9:
		return "Perfect detective work! You have a sharp eye for unusual spending."
	case accuracy >= 0.6:
		return "Good job! Keep practicing to sharpen your spending awareness."
	default:
		return "Keep practicing! Review the patterns of unusual transactions to improve."
	}
}

// StateView is the read-only game state for UI resume.
type StateView struct {
	Streak            int    `json:"streak"`
	HasActiveRound    bool   `json:"has_active_round"`
	CanPlayThisPeriod bool   `json:"can_play_this_period"`
	LastPlayedPeriod  string `json:"last_played_period,omitempty"`

	RoundID        string               `json:"round_id,omitempty"`
	Transactions   []store.DetectiveTxn `json:"transactions,omitempty"`
	TriesRemaining int                  `json:"tries_remaining,omitempty"`
	FoundCount     int                  `json:"found_count,omitempty"`
	TotalAnomalies int                  `json:"total_anomalies,omitempty"`

	LastSummary *store.RoundSummary `json:"last_summary,omitempty"`
}

// State returns the current state without mutating anything. Anomaly ids and
// reasons never leave the server while a round is live.
func (g *Game) State(ctx context.Context, uid string) (*StateView, error) {
	st, err := g.store.GameState(ctx, uid, store.GameSpendDetective)
	if err != nil {
		return nil, fmt.Errorf("detective state: %w", err)
	}

	view := &StateView{
		Streak:            st.Streak,
		CanPlayThisPeriod: st.LastPlayedPeriod != g.periods.Key(g.now()),
		LastPlayedPeriod:  st.LastPlayedPeriod,
		LastSummary:       st.LastSummary,
	}
	if st.Round != nil && st.Round.Detective != nil {
		dr := st.Round.Detective
		view.HasActiveRound = true
		view.RoundID = st.Round.ID
		view.Transactions = dr.Transactions
		view.TriesRemaining = dr.TriesRemaining
		view.FoundCount = len(dr.Found)
		view.TotalAnomalies = len(dr.AnomalyIDs)
	}
	return view, nil
}

func capTxns(txns []domain.Transaction, n int) []domain.Transaction {
	if len(txns) > n {
		return txns[:n]
	}
	return txns
}

func idsOf(txns []store.DetectiveTxn) []string {
	out := make([]string, len(txns))
	for i, t := range txns {
		out[i] = t.ID
	}
	return out
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
