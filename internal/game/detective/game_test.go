package detective

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/centsible/backend/internal/domain"
	"github.com/centsible/backend/internal/game"
	"github.com/centsible/backend/internal/logger"
	"github.com/centsible/backend/internal/progression"
	"github.com/centsible/backend/internal/store"
	"github.com/centsible/backend/internal/store/inmemory"
)

var testNow = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC) // Wednesday

func newTestGame(t *testing.T) (*Game, *inmemory.Store) {
	t.Helper()
	st := inmemory.New()
	log := logger.Discard()
	g := New(st, st, progression.NewEngine(st, log), log)
	g.now = func() time.Time { return testNow }
	g.rng = rand.New(rand.NewSource(1))
	return g, st
}

// seedSteadySpending writes a 60-day baseline of routine transactions plus
// five routine ones inside the last week.
func seedSteadySpending(st *inmemory.Store, uid string, extra ...domain.Transaction) {
	var txns []domain.Transaction
	for i := 0; i < 20; i++ {
		amt := 40.0
		if i%2 == 0 {
			amt = 60.0
		}
		txns = append(txns, domain.Transaction{
			ID:           fmt.Sprintf("hist_%d", i),
			Date:         civil.DateOf(testNow.AddDate(0, 0, -10-i*2)),
			Amount:       amt,
			MerchantName: "Corner Deli",
		})
	}
	for i := 0; i < 5; i++ {
		txns = append(txns, domain.Transaction{
			ID:           fmt.Sprintf("recent_%d", i),
			Date:         civil.DateOf(testNow.AddDate(0, 0, -1-i)),
			Amount:       50,
			MerchantName: "Corner Deli",
		})
	}
	txns = append(txns, extra...)
	st.SeedTransactions(uid, txns)
}

func anomalyTxn() domain.Transaction {
	return domain.Transaction{
		ID:           "suspicious",
		Date:         civil.DateOf(testNow.AddDate(0, 0, -2)),
		Amount:       500,
		MerchantName: "Vault Jewelers",
	}
}

func TestStart_RoundShape(t *testing.T) {
	g, st := newTestGame(t)
	seedSteadySpending(st, "u1", anomalyTxn())

	res, err := g.Start(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.CanPlay {
		t.Fatal("expected a playable round")
	}
	if len(res.Transactions) != txnsPerRound {
		t.Fatalf("round has %d transactions, want %d", len(res.Transactions), txnsPerRound)
	}
	if res.TotalAnomalies != 1 {
		t.Errorf("total anomalies = %d, want 1 (the planted spike)", res.TotalAnomalies)
	}
	if res.TriesRemaining != triesPerRound {
		t.Errorf("tries = %d, want %d", res.TriesRemaining, triesPerRound)
	}

	saved, err := st.GameState(context.Background(), "u1", store.GameSpendDetective)
	if err != nil {
		t.Fatal(err)
	}
	dr := saved.Round.Detective
	if len(dr.AnomalyIDs) != 1 || dr.AnomalyIDs[0] != "suspicious" {
		t.Errorf("anomaly ids = %v, want [suspicious]", dr.AnomalyIDs)
	}
	if len(dr.Reasons["suspicious"]) == 0 {
		t.Error("planted anomaly has no recorded reasons")
	}
	if len(dr.Simulated) != 0 {
		t.Errorf("simulated = %v, want none with a real anomaly present", dr.Simulated)
	}
	// Gate is set on completion, not on start.
	if saved.LastPlayedPeriod != "" {
		t.Errorf("last played period = %q, want unset", saved.LastPlayedPeriod)
	}
}

func TestStart_SimulatedAnomaliesWhenNoneDetected(t *testing.T) {
	g, st := newTestGame(t)
	seedSteadySpending(st, "u1",
		domain.Transaction{
			ID:           "recent_5",
			Date:         civil.DateOf(testNow.AddDate(0, 0, -6)),
			Amount:       45,
			MerchantName: "Corner Deli",
		})

	res, err := g.Start(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Transactions) != txnsPerRound {
		t.Fatalf("round has %d transactions, want %d", len(res.Transactions), txnsPerRound)
	}
	if res.TotalAnomalies < minAnomalies || res.TotalAnomalies > maxAnomalies {
		t.Fatalf("total anomalies = %d, want %d..%d", res.TotalAnomalies, minAnomalies, maxAnomalies)
	}

	saved, _ := st.GameState(context.Background(), "u1", store.GameSpendDetective)
	dr := saved.Round.Detective
	if len(dr.Simulated) != len(dr.AnomalyIDs) {
		t.Errorf("simulated = %v anomalies = %v, want all anomalies simulated", dr.Simulated, dr.AnomalyIDs)
	}
	for _, id := range dr.AnomalyIDs {
		if got := dr.Reasons[id]; len(got) != 1 || got[0] != "Simulated anomaly transaction" {
			t.Errorf("reasons[%s] = %v", id, got)
		}
	}
}

func TestStart_InsufficientHistoryAwardsAndGates(t *testing.T) {
	g, st := newTestGame(t)
	st.SeedTransactions("u1", []domain.Transaction{
		{ID: "t1", Date: civil.DateOf(testNow.AddDate(0, 0, -3)), Amount: 20, MerchantName: "Corner Deli"},
	})

	res, err := g.Start(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.InsufficientData {
		t.Fatal("expected insufficient-data outcome")
	}
	wantXP := txnsPerRound * xpPerCorrect
	if res.XPAwarded != wantXP {
		t.Errorf("xp = %d, want %d", res.XPAwarded, wantXP)
	}
	if res.Streak != 1 {
		t.Errorf("streak = %d, want 1", res.Streak)
	}
	if res.Progression == nil || res.Progression.TotalXP != wantXP {
		t.Errorf("progression = %+v", res.Progression)
	}

	// The reward counts as this week's play.
	if _, err := g.Start(context.Background(), "u1"); !errors.Is(err, game.ErrAlreadyPlayed) {
		t.Fatalf("second start: err = %v, want ErrAlreadyPlayed", err)
	}

	p, _, _ := st.Profile(context.Background(), "u1")
	if p.TotalXP != wantXP {
		t.Errorf("profile xp = %d, want %d", p.TotalXP, wantXP)
	}
}

func TestSubmit_Lifecycle(t *testing.T) {
	g, st := newTestGame(t)
	seedSteadySpending(st, "u1", anomalyTxn())
	if _, err := g.Start(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}

	// Wrong guess costs a try.
	res, err := g.Submit(context.Background(), "u1", []string{"recent_0"})
	if err != nil {
		t.Fatal(err)
	}
	if res.NewFalsePositives != 1 || res.TriesRemaining != triesPerRound-1 {
		t.Fatalf("first wrong guess: %+v", res)
	}

	// Repeating the same wrong guess is free.
	res, err = g.Submit(context.Background(), "u1", []string{"recent_0"})
	if err != nil {
		t.Fatal(err)
	}
	if res.NewFalsePositives != 0 || res.TriesRemaining != triesPerRound-1 {
		t.Fatalf("repeated wrong guess: %+v", res)
	}

	// Finding the anomaly completes the round.
	res, err = g.Submit(context.Background(), "u1", []string{"suspicious"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.RoundComplete || !res.AllFound {
		t.Fatalf("completion: %+v", res)
	}
	if res.XPEarned != xpPerCorrect {
		t.Errorf("xp = %d, want %d", res.XPEarned, xpPerCorrect)
	}
	if res.Accuracy != 1.0 || !res.StreakMaintained || res.Streak != 1 {
		t.Errorf("accuracy=%v maintained=%v streak=%d", res.Accuracy, res.StreakMaintained, res.Streak)
	}
	if res.Feedback != "Perfect detective work! You have a sharp eye for unusual spending." {
		t.Errorf("feedback = %q", res.Feedback)
	}
	if len(res.Reveal) != 1 || !res.Reveal[0].FoundByUser {
		t.Errorf("reveal = %+v", res.Reveal)
	}

	saved, _ := st.GameState(context.Background(), "u1", store.GameSpendDetective)
	if saved.Round != nil {
		t.Error("finished round still in state")
	}
	if saved.LastPlayedPeriod != "2025-03-10" {
		t.Errorf("last played period = %q, want 2025-03-10", saved.LastPlayedPeriod)
	}
	if len(saved.History) != 1 {
		t.Errorf("history has %d entries, want 1", len(saved.History))
	}

	p, _, _ := st.Profile(context.Background(), "u1")
	if p.TotalXP != xpPerCorrect {
		t.Errorf("profile xp = %d, want %d", p.TotalXP, xpPerCorrect)
	}

	// Weekly gate now blocks a new round.
	if _, err := g.Start(context.Background(), "u1"); !errors.Is(err, game.ErrAlreadyPlayed) {
		t.Fatalf("restart after completion: err = %v, want ErrAlreadyPlayed", err)
	}
}

func TestSubmit_OutOfTries(t *testing.T) {
	g, st := newTestGame(t)
	seedSteadySpending(st, "u1", anomalyTxn())
	if _, err := g.Start(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}

	var last *SubmitResult
	for _, wrong := range []string{"recent_0", "recent_1", "recent_2"} {
		res, err := g.Submit(context.Background(), "u1", []string{wrong})
		if err != nil {
			t.Fatal(err)
		}
		last = res
	}

	if !last.RoundComplete || last.AllFound {
		t.Fatalf("after three misses: %+v", last)
	}
	if last.XPEarned != 0 || last.Accuracy != 0 {
		t.Errorf("xp=%d accuracy=%v, want 0/0", last.XPEarned, last.Accuracy)
	}
	if last.Streak != 0 || last.StreakMaintained {
		t.Errorf("streak=%d maintained=%v, want reset", last.Streak, last.StreakMaintained)
	}
	if len(last.Reveal) != 1 || last.Reveal[0].FoundByUser {
		t.Errorf("reveal = %+v", last.Reveal)
	}

	if _, ok, _ := st.Profile(context.Background(), "u1"); ok {
		t.Error("profile written despite zero XP")
	}
}

func TestSubmit_Validation(t *testing.T) {
	g, st := newTestGame(t)

	if _, err := g.Submit(context.Background(), "u1", nil); !errors.Is(err, game.ErrInvalidArgument) {
		t.Errorf("empty selection: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := g.Submit(context.Background(), "u1", []string{"x"}); !errors.Is(err, game.ErrNoActiveRound) {
		t.Errorf("no round: err = %v, want ErrNoActiveRound", err)
	}

	seedSteadySpending(st, "u1", anomalyTxn())
	if _, err := g.Start(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Submit(context.Background(), "u1", []string{"not_in_round"}); !errors.Is(err, game.ErrInvalidArgument) {
		t.Errorf("unknown id: err = %v, want ErrInvalidArgument", err)
	}
}

func TestState(t *testing.T) {
	g, st := newTestGame(t)

	view, err := g.State(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if view.HasActiveRound || !view.CanPlayThisPeriod {
		t.Errorf("fresh state: %+v", view)
	}

	seedSteadySpending(st, "u1", anomalyTxn())
	if _, err := g.Start(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	view, err = g.State(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !view.HasActiveRound || len(view.Transactions) != txnsPerRound {
		t.Errorf("active state: %+v", view)
	}
	if view.TotalAnomalies != 1 || view.TriesRemaining != triesPerRound {
		t.Errorf("active round counters: %+v", view)
	}

	// Completing the round flips the gate.
	if _, err := g.Submit(context.Background(), "u1", []string{"suspicious"}); err != nil {
		t.Fatal(err)
	}
	view, _ = g.State(context.Background(), "u1")
	if view.CanPlayThisPeriod {
		t.Error("gate not reflected in state view")
	}
	if view.LastSummary == nil {
		t.Error("last summary missing after completion")
	}
}
