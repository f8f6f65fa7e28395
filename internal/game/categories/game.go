// Package categories implements the Financial Categories minigame: match
// your weekly spending categories to their dollar amounts.
package categories

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/centsible/backend/internal/category"
	"github.com/centsible/backend/internal/game"
	"github.com/centsible/backend/internal/messages"
	"github.com/centsible/backend/internal/period"
	"github.com/centsible/backend/internal/progression"
	"github.com/centsible/backend/internal/store"
)

const (
	minActiveCategories = 3
	maxGameCategories   = 5
	maxDecoyCategories  = 2
	triesPerRound       = 3
	xpPerMatch          = 20
	fullRoundXP         = 100

	// activeFloor filters out sub-cent rounding noise.
	activeFloor = 0.01

	windowDays = 7
	source     = "categories"
	sourceLow  = "categories_low_spend"
)

// Game is the Financial Categories engine. All durable state lives in the
// store; the struct itself is safe for concurrent use.
type Game struct {
	store   store.Store
	txns    store.TransactionReader
	prog    *progression.Engine
	msgs    messages.Generator
	periods period.Policy
	now     func() time.Time
	rng     *rand.Rand
	log     zerolog.Logger
}

// New creates the game on top of the shared store and progression engine.
func New(st store.Store, txns store.TransactionReader, prog *progression.Engine, msgs messages.Generator, log zerolog.Logger) *Game {
	return &Game{
		store:   st,
		txns:    txns,
		prog:    prog,
		msgs:    msgs,
		periods: period.Default(),
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     log,
	}
}

// UsePeriod overrides the period boundary used to label rounds.
func (g *Game) UsePeriod(p period.Policy) { g.periods = p }

// StartResult is the outcome of Start: either a playable round (redacted; the
// truth map stays server-side) or the insufficient-signal reward.
type StartResult struct {
	CanPlay        bool                 `json:"can_play"`
	RoundID        string               `json:"round_id,omitempty"`
	CategoryTiles  []store.CategoryTile `json:"category_tiles,omitempty"`
	AmountTiles    []store.AmountTile   `json:"amount_tiles,omitempty"`
	TriesRemaining int                  `json:"tries_remaining,omitempty"`

	Message          string                 `json:"message,omitempty"`
	XPAwarded        int                    `json:"xp_awarded,omitempty"`
	Progression      *game.ProgressionDelta `json:"progression,omitempty"`
	Streak           int                    `json:"streak,omitempty"`
	StreakMaintained bool                   `json:"streak_maintained,omitempty"`
}

// Start builds a fresh round from the past week of spending. Fewer than
// three active categories is not enough signal for a meaningful round; that
// outcome awards the full-round XP instead of blocking the user.
func (g *Game) Start(ctx context.Context, uid string) (*StartResult, error) {
	now := g.now()
	start := civil.DateOf(now.AddDate(0, 0, -windowDays))
	end := civil.DateOf(now.AddDate(0, 0, 1))

	txns, err := g.txns.Fetch(ctx, uid, start, end)
	if err != nil {
		return nil, fmt.Errorf("categories start: fetch transactions: %w", err)
	}

	spend := game.SpendByCategory(txns)
	active := make(map[category.Category]float64)
	for cat, amt := range spend {
		if amt > activeFloor {
			active[cat] = amt
		}
	}

	if len(active) < minActiveCategories {
		return g.rewardLowSpend(ctx, uid)
	}

	selected, amounts := g.selectCategories(active)
	round := g.buildRound(selected, amounts, now)

	err = g.store.RunUpdate(ctx, func(tx store.Tx) error {
		st, err := tx.GameState(uid, store.GameFinancialCategories)
		if err != nil {
			return err
		}
		st.Round = round
		st.UpdatedAt = now
		return tx.SetGameState(uid, store.GameFinancialCategories, st)
	})
	if err != nil {
		return nil, fmt.Errorf("categories start: save round: %w", err)
	}

	g.log.Info().Str("user_id", uid).Str("round_id", round.ID).
		Int("categories", len(selected)).Msg("financial categories round started")

	return &StartResult{
		CanPlay:        true,
		RoundID:        round.ID,
		CategoryTiles:  round.Categories.CategoryTiles,
		AmountTiles:    round.Categories.AmountTiles,
		TriesRemaining: round.Categories.TriesRemaining,
	}, nil
}

func (g *Game) rewardLowSpend(ctx context.Context, uid string) (*StartResult, error) {
	now := g.now()
	msg := g.msgs.LowSpend(ctx)

	var res StartResult
	err := g.store.RunUpdate(ctx, func(tx store.Tx) error {
		st, err := tx.GameState(uid, store.GameFinancialCategories)
		if err != nil {
			return err
		}
		award, err := g.prog.AwardIn(tx, uid, fullRoundXP, sourceLow)
		if err != nil {
			return err
		}
		st.Streak++
		st.UpdatedAt = now
		if err := tx.SetGameState(uid, store.GameFinancialCategories, st); err != nil {
			return err
		}

		res = StartResult{
			CanPlay:          false,
			Message:          msg,
			XPAwarded:        fullRoundXP,
			Progression:      game.DeltaFrom(award),
			Streak:           st.Streak,
			StreakMaintained: true,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("categories start: low-spend reward: %w", err)
	}

	g.log.Info().Str("user_id", uid).Int("xp", fullRoundXP).
		Msg("financial categories: insufficient signal, full reward")
	return &res, nil
}

// selectCategories picks up to five categories: with five or more active,
// the highest, the lowest, and three evenly spaced from the middle; with
// three or four active, all of them padded with zero-spend decoys.
func (g *Game) selectCategories(active map[category.Category]float64) ([]category.Category, map[string]float64) {
	type catSpend struct {
		cat category.Category
		amt float64
	}
	sorted := make([]catSpend, 0, len(active))
	for cat, amt := range active {
		sorted = append(sorted, catSpend{cat, amt})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].amt != sorted[j].amt {
			return sorted[i].amt > sorted[j].amt
		}
		return sorted[i].cat < sorted[j].cat
	})

	var selected []category.Category
	amounts := make(map[string]float64)

	if len(sorted) >= maxGameCategories {
		selected = append(selected, sorted[0].cat, sorted[len(sorted)-1].cat)
		middle := sorted[1 : len(sorted)-1]
		idxs := []int{len(middle) / 4, len(middle) / 2, 3 * len(middle) / 4}
		seen := map[int]bool{}
		for _, i := range idxs {
			if !seen[i] {
				seen[i] = true
				selected = append(selected, middle[i].cat)
			}
		}
		for _, cs := range sorted {
			for _, sel := range selected {
				if cs.cat == sel {
					amounts[string(cs.cat)] = cs.amt
				}
			}
		}
		return selected[:min(len(selected), maxGameCategories)], amounts
	}

	for _, cs := range sorted {
		selected = append(selected, cs.cat)
		amounts[string(cs.cat)] = cs.amt
	}

	decoysNeeded := min(maxGameCategories-len(selected), maxDecoyCategories)
	if decoysNeeded > 0 {
		var available []category.Category
		for _, cat := range category.All() {
			if _, used := active[cat]; !used {
				available = append(available, cat)
			}
		}
		g.rng.Shuffle(len(available), func(i, j int) {
			available[i], available[j] = available[j], available[i]
		})
		for _, decoy := range available[:min(decoysNeeded, len(available))] {
			selected = append(selected, decoy)
			amounts[string(decoy)] = 0.0
		}
	}
	return selected, amounts
}

// buildRound generates the tiles and ground truth. Only amount tiles are
// shuffled; category tiles keep selection order.
func (g *Game) buildRound(selected []category.Category, amounts map[string]float64, now time.Time) *store.Round {
	cr := &store.CategoriesRound{
		Amounts:        amounts,
		TruthMap:       make(map[string]string, len(selected)),
		TriesRemaining: triesPerRound,
	}

	for i, cat := range selected {
		catID := fmt.Sprintf("cat_%d", i)
		amtID := fmt.Sprintf("amt_%d", i)
		amt := amounts[string(cat)]

		cr.CategoryTiles = append(cr.CategoryTiles, store.CategoryTile{
			ID:       catID,
			Label:    cat.Label(),
			Category: string(cat),
		})
		cr.AmountTiles = append(cr.AmountTiles, store.AmountTile{
			ID:    amtID,
			Value: amt,
			Label: game.Dollars(amt),
		})
		cr.TruthMap[catID] = amtID
	}

	g.rng.Shuffle(len(cr.AmountTiles), func(i, j int) {
		cr.AmountTiles[i], cr.AmountTiles[j] = cr.AmountTiles[j], cr.AmountTiles[i]
	})

	return &store.Round{
		ID:         uuid.NewString(),
		Period:     g.periods.Key(now),
		StartedAt:  now,
		Categories: cr,
	}
}

// RevealEntry is one line of the end-of-round reveal, sorted by amount
// descending.
type RevealEntry struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Label    string  `json:"label"`
	Found    bool    `json:"found"`
}

// MatchResult is the outcome of one match submission.
type MatchResult struct {
	Correct         bool `json:"correct"`
	TriesRemaining  int  `json:"tries_remaining"`
	CorrectCount    int  `json:"correct_count"`
	TotalCategories int  `json:"total_categories"`
	RoundComplete   bool `json:"round_complete"`

	XPEarned    int                    `json:"xp_earned,omitempty"`
	Progression *game.ProgressionDelta `json:"progression,omitempty"`
	Streak      int                    `json:"streak,omitempty"`
	Accuracy    float64                `json:"accuracy,omitempty"`
	AllCorrect  bool                   `json:"all_correct,omitempty"`
	Reveal      []RevealEntry          `json:"reveal,omitempty"`
}

// Match submits one category->amount pairing. A wrong pairing consumes a
// try; a correct one is permanent for the round and cannot be re-submitted.
// When the round reaches a terminal state it is finalized in the same store
// transaction, XP award included.
func (g *Game) Match(ctx context.Context, uid, categoryID, amountID string) (*MatchResult, error) {
	if categoryID == "" || amountID == "" {
		return nil, fmt.Errorf("%w: category_id and amount_id are required", game.ErrInvalidArgument)
	}

	now := g.now()
	var res MatchResult

	err := g.store.RunUpdate(ctx, func(tx store.Tx) error {
		st, err := tx.GameState(uid, store.GameFinancialCategories)
		if err != nil {
			return err
		}
		if st.Round == nil || st.Round.Categories == nil {
			return game.ErrNoActiveRound
		}
		cr := st.Round.Categories

		for _, m := range cr.Matched {
			if m.CategoryID == categoryID {
				return fmt.Errorf("%w: %s", game.ErrAlreadyMatched, categoryID)
			}
		}
		if cr.TriesRemaining <= 0 {
			return game.ErrRoundComplete
		}

		wantAmtID, ok := cr.TruthMap[categoryID]
		if !ok {
			return fmt.Errorf("%w: unknown category tile %q", game.ErrInvalidArgument, categoryID)
		}
		if !hasAmountTile(cr.AmountTiles, amountID) {
			return fmt.Errorf("%w: unknown amount tile %q", game.ErrInvalidArgument, amountID)
		}

		correct := wantAmtID == amountID
		if correct {
			cr.Matched = append(cr.Matched, store.MatchPair{CategoryID: categoryID, AmountID: amountID})
		} else {
			cr.TriesRemaining--
		}

		total := len(cr.TruthMap)
		complete := len(cr.Matched) == total || cr.TriesRemaining == 0

		res = MatchResult{
			Correct:         correct,
			TriesRemaining:  cr.TriesRemaining,
			CorrectCount:    len(cr.Matched),
			TotalCategories: total,
			RoundComplete:   complete,
		}

		if !complete {
			st.UpdatedAt = now
			return tx.SetGameState(uid, store.GameFinancialCategories, st)
		}
		return g.finalize(tx, uid, &st, now, &res)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// finalize computes XP, updates the streak, archives the round summary, and
// deletes the in-flight round — all within the caller's transaction.
func (g *Game) finalize(tx store.Tx, uid string, st *store.GameState, now time.Time, res *MatchResult) error {
	cr := st.Round.Categories
	correct := len(cr.Matched)
	total := len(cr.TruthMap)
	xp := correct * xpPerMatch
	allCorrect := correct == total

	if xp > 0 {
		award, err := g.prog.AwardIn(tx, uid, xp, source)
		if err != nil {
			return err
		}
		res.Progression = game.DeltaFrom(award)
	}

	if allCorrect {
		st.Streak++
	} else {
		st.Streak = 0
	}

	summary := store.RoundSummary{
		RoundID:          st.Round.ID,
		Period:           st.Round.Period,
		Correct:          correct,
		Total:            total,
		Accuracy:         game.Accuracy(correct, total),
		XPEarned:         xp,
		StreakMaintained: allCorrect,
		CompletedAt:      now,
	}

	res.XPEarned = xp
	res.Streak = st.Streak
	res.Accuracy = summary.Accuracy
	res.AllCorrect = allCorrect
	res.Reveal = buildReveal(cr)

	st.LastSummary = &summary
	st.History = game.AppendHistory(st.History, summary)
	st.Round = nil
	st.UpdatedAt = now

	g.log.Info().Str("user_id", uid).Str("round_id", summary.RoundID).
		Int("correct", correct).Int("xp", xp).Msg("financial categories round complete")

	return tx.SetGameState(uid, store.GameFinancialCategories, *st)
}

func buildReveal(cr *store.CategoriesRound) []RevealEntry {
	found := make(map[string]bool, len(cr.Matched))
	for _, m := range cr.Matched {
		found[m.CategoryID] = true
	}

	reveal := make([]RevealEntry, 0, len(cr.CategoryTiles))
	for _, tile := range cr.CategoryTiles {
		amt := cr.Amounts[tile.Category]
		reveal = append(reveal, RevealEntry{
			Category: tile.Label,
			Amount:   amt,
			Label:    game.Dollars(amt),
			Found:    found[tile.ID],
		})
	}
	sort.Slice(reveal, func(i, j int) bool { return reveal[i].Amount > reveal[j].Amount })
	return reveal
}

// StateView is the read-only game state for UI resume.
type StateView struct {
	Streak         int  `json:"streak"`
	HasActiveRound bool `json:"has_active_round"`

	RoundID         string               `json:"round_id,omitempty"`
	CategoryTiles   []store.CategoryTile `json:"category_tiles,omitempty"`
	AmountTiles     []store.AmountTile   `json:"amount_tiles,omitempty"`
	Matched         []store.MatchPair    `json:"matched,omitempty"`
	TriesRemaining  int                  `json:"tries_remaining,omitempty"`
	TotalCategories int                  `json:"total_categories,omitempty"`

	LastSummary *store.RoundSummary `json:"last_summary,omitempty"`
}

// State returns the current state without mutating anything. The active
// round view is redacted: the truth map never leaves the server.
func (g *Game) State(ctx context.Context, uid string) (*StateView, error) {
	st, err := g.store.GameState(ctx, uid, store.GameFinancialCategories)
	if err != nil {
		return nil, fmt.Errorf("categories state: %w", err)
	}

	view := &StateView{
		Streak:      st.Streak,
		LastSummary: st.LastSummary,
	}
	if st.Round != nil && st.Round.Categories != nil {
		cr := st.Round.Categories
		view.HasActiveRound = true
		view.RoundID = st.Round.ID
		view.CategoryTiles = cr.CategoryTiles
		view.AmountTiles = cr.AmountTiles
		view.Matched = cr.Matched
		view.TriesRemaining = cr.TriesRemaining
		view.TotalCategories = len(cr.TruthMap)
	}
	return view, nil
}

func hasAmountTile(tiles []store.AmountTile, id string) bool {
	for _, t := range tiles {
		if t.ID == id {
			return true
		}
	}
	return false
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
