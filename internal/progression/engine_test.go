package progression

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/centsible/backend/internal/logger"
	"github.com/centsible/backend/internal/store"
	"github.com/centsible/backend/internal/store/inmemory"
)

func newTestEngine() (*Engine, *inmemory.Store) {
	st := inmemory.New()
	return NewEngine(st, logger.Discard()), st
}

func TestLevel(t *testing.T) {
	tests := []struct {
		xp   int
		want int
	}{
		{0, 1},
		{-5, 1},
		{1, 1},
		{200, 10},
		{800, 20},
		{1800, 30},
		{5000, 50},
		{20000, 100},
		{1000000, 100}, // clamped at max
	}

	for _, tt := range tests {
		if got := Level(tt.xp); got != tt.want {
			t.Errorf("Level(%d) = %d, want %d", tt.xp, got, tt.want)
		}
	}
}

func TestRankFor(t *testing.T) {
	tests := []struct {
		xp           int
		wantName     string
		wantNext     string
		wantProgress float64
	}{
		{0, "Penny Pincher", "Savvy Saver", 0},
		{250, "Penny Pincher", "Savvy Saver", 0.5},
		{500, "Savvy Saver", "Budget Master", 0},
		{1500, "Budget Master", "Portfolio Pro", 0},
		{12000, "Finance Legend", "", 1.0},
		{50000, "Finance Legend", "", 1.0},
	}

	for _, tt := range tests {
		info := RankFor(tt.xp)
		if info.Name != tt.wantName {
			t.Errorf("RankFor(%d).Name = %q, want %q", tt.xp, info.Name, tt.wantName)
		}
		next := ""
		if info.NextRank != nil {
			next = info.NextRank.Name
		}
		if next != tt.wantNext {
			t.Errorf("RankFor(%d).NextRank = %q, want %q", tt.xp, next, tt.wantNext)
		}
		if info.Progress != tt.wantProgress {
			t.Errorf("RankFor(%d).Progress = %v, want %v", tt.xp, info.Progress, tt.wantProgress)
		}
	}
}

// Rank and level are pure functions of XP, so the cached values written by
// AwardIn must always equal recomputation.
func TestCachedLevelRankNeverDrift(t *testing.T) {
	e, st := newTestEngine()
	ctx := context.Background()

	amounts := []int{5, 100, 395, 1000, 2000, 3500, 5000}
	for _, amt := range amounts {
		if _, err := e.AddXP(ctx, "u1", amt, "test"); err != nil {
			t.Fatalf("AddXP(%d) failed: %v", amt, err)
		}
		p, ok, err := st.Profile(ctx, "u1")
		if err != nil || !ok {
			t.Fatalf("Profile read failed: %v", err)
		}
		if p.Level != Level(p.TotalXP) {
			t.Errorf("stored level %d drifted from Level(%d) = %d", p.Level, p.TotalXP, Level(p.TotalXP))
		}
		if p.Rank.Name != RankFor(p.TotalXP).Name {
			t.Errorf("stored rank %q drifted from RankFor(%d) = %q", p.Rank.Name, p.TotalXP, RankFor(p.TotalXP).Name)
		}
	}
}

func TestAddXP_RankUpAtExactThreshold(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	if _, err := e.AddXP(ctx, "u1", 1400, "seed"); err != nil {
		t.Fatalf("seed award failed: %v", err)
	}

	res, err := e.AddXP(ctx, "u1", 100, "quiz")
	if err != nil {
		t.Fatalf("AddXP failed: %v", err)
	}
	if res.NewXP != 1500 {
		t.Errorf("NewXP = %d, want 1500", res.NewXP)
	}
	if res.OldRank != "Savvy Saver" || res.NewRank != "Budget Master" {
		t.Errorf("rank transition = %q -> %q, want Savvy Saver -> Budget Master", res.OldRank, res.NewRank)
	}
	if !res.RankUp {
		t.Error("expected RankUp at exact threshold")
	}
}

func TestAddXP_InvalidAmount(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	for _, amt := range []int{0, -20} {
		if _, err := e.AddXP(ctx, "u1", amt, "test"); !errors.Is(err, ErrInvalidXPAmount) {
			t.Errorf("AddXP(%d) error = %v, want ErrInvalidXPAmount", amt, err)
		}
	}
}

func TestAddXP_SideEffects(t *testing.T) {
	e, st := newTestEngine()
	ctx := context.Background()

	e.AddXP(ctx, "u1", 40, "detective")
	e.AddXP(ctx, "u1", 60, "quiz")

	p, _, _ := st.Profile(ctx, "u1")
	if p.GamesPlayed != 2 {
		t.Errorf("GamesPlayed = %d, want 2", p.GamesPlayed)
	}
	if p.LastXPSource != "quiz" {
		t.Errorf("LastXPSource = %q, want %q", p.LastXPSource, "quiz")
	}
	if p.LastXPAmount != 60 {
		t.Errorf("LastXPAmount = %d, want 60", p.LastXPAmount)
	}
}

// Two games finalizing near-simultaneously must not lose an XP update.
func TestAddXP_ConcurrentConservation(t *testing.T) {
	e, st := newTestEngine()
	ctx := context.Background()

	const workers = 32
	const perWorker = 20

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for j := 0; j < perWorker; j++ {
				if _, err := e.AddXP(ctx, "u1", 20, "detective"); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent AddXP failed: %v", err)
	}

	p, _, _ := st.Profile(ctx, "u1")
	want := workers * perWorker * 20
	if p.TotalXP != want {
		t.Errorf("TotalXP = %d, want %d (lost updates)", p.TotalXP, want)
	}
	if p.GamesPlayed != workers*perWorker {
		t.Errorf("GamesPlayed = %d, want %d", p.GamesPlayed, workers*perWorker)
	}
}

func TestProfile_ZeroState(t *testing.T) {
	e, _ := newTestEngine()

	view, err := e.Profile(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if view.TotalXP != 0 || view.Level != 1 {
		t.Errorf("zero state = xp %d level %d, want 0 and 1", view.TotalXP, view.Level)
	}
	if view.Rank.Name != "Penny Pincher" {
		t.Errorf("zero state rank = %q, want Penny Pincher", view.Rank.Name)
	}
	if view.NextRank == nil || view.NextRank.XPNeeded != 500 {
		t.Errorf("zero state next rank = %+v, want 500 XP to Savvy Saver", view.NextRank)
	}
}

func TestLeaderboard(t *testing.T) {
	e, _ := newTestEngine()
	ctx := context.Background()

	e.AddXP(ctx, "alice", 700, "quiz")
	e.AddXP(ctx, "bob", 1600, "detective")
	e.AddXP(ctx, "carol", 100, "categories")

	rows, err := e.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].UserID != "bob" || rows[0].Rank != "Budget Master" {
		t.Errorf("rows[0] = %+v, want bob at Budget Master", rows[0])
	}
	if rows[1].UserID != "alice" || rows[1].Rank != "Savvy Saver" {
		t.Errorf("rows[1] = %+v, want alice at Savvy Saver", rows[1])
	}
}

func TestRankList(t *testing.T) {
	list := RankList()
	if len(list) != 6 {
		t.Fatalf("RankList length = %d, want 6", len(list))
	}
	var prev *store.Rank
	for i := range list {
		if prev != nil && list[i].Threshold <= prev.Threshold {
			t.Errorf("thresholds not ascending at %d", i)
		}
		prev = &list[i]
	}
}
