// Package progression owns the unified XP, level, and rank state shared by
// all minigames. The profile document is the only resource mutated by more
// than one game, so every mutation goes through a store transaction.
package progression

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/centsible/backend/internal/store"
)

// MaxLevel caps the level curve.
const MaxLevel = 100

// ErrInvalidXPAmount is returned when an award amount is not positive.
var ErrInvalidXPAmount = errors.New("xp amount must be positive")

// Level computes the level for an XP total: clamp(floor(sqrt(xp/2)), 1, 100).
// The curve is monotonic with diminishing level-per-XP.
func Level(xp int) int {
	if xp <= 0 {
		return 1
	}
	level := int(math.Sqrt(float64(xp) / 2))
	if level < 1 {
		return 1
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

// XPForLevel returns the XP total at which a level is reached (level^2 * 2).
func XPForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	return level * level * 2
}

// AwardResult reports one XP award and any level or rank transitions.
type AwardResult struct {
	Awarded  int    `json:"xp_awarded"`
	OldXP    int    `json:"old_xp"`
	NewXP    int    `json:"new_xp"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
	LevelUp  bool   `json:"level_up"`
	OldRank  string `json:"old_rank"`
	NewRank  string `json:"new_rank"`
	RankUp   bool   `json:"rank_up"`
}

// Engine is the progression service. Games depend on it for awards; the API
// layer depends on it for profile reads.
type Engine struct {
	store store.Store
	now   func() time.Time
	log   zerolog.Logger
}

// NewEngine creates a progression engine on top of a transactional store.
func NewEngine(s store.Store, log zerolog.Logger) *Engine {
	return &Engine{store: s, now: time.Now, log: log}
}

// AddXP atomically awards XP to a user. Concurrent calls for the same user
// serialize on the profile document; no update is lost. Every successful
// award bumps GamesPlayed and records the source.
func (e *Engine) AddXP(ctx context.Context, uid string, amount int, source string) (AwardResult, error) {
	var res AwardResult
	err := e.store.RunUpdate(ctx, func(tx store.Tx) error {
		var err error
		res, err = e.AwardIn(tx, uid, amount, source)
		return err
	})
	if err != nil {
		return AwardResult{}, err
	}

	e.log.Info().
		Str("user_id", uid).
		Str("source", source).
		Int("amount", amount).
		Int("total_xp", res.NewXP).
		Bool("level_up", res.LevelUp).
		Bool("rank_up", res.RankUp).
		Msg("XP awarded")
	return res, nil
}

// AwardIn applies the same mutation as AddXP inside a caller-owned
// transaction, so a game can archive its round and award XP as one atomic
// unit.
func (e *Engine) AwardIn(tx store.Tx, uid string, amount int, source string) (AwardResult, error) {
	if amount <= 0 {
		return AwardResult{}, fmt.Errorf("%w: got %d", ErrInvalidXPAmount, amount)
	}

	profile, _, err := tx.Profile(uid)
	if err != nil {
		return AwardResult{}, fmt.Errorf("AwardIn: read profile: %w", err)
	}

	oldXP := profile.TotalXP
	oldLevel := profile.Level
	if oldLevel < 1 {
		oldLevel = 1
	}
	oldRank := profile.Rank.Name
	if oldRank == "" {
		oldRank = ranks[0].Name
	}

	newXP := oldXP + amount
	newLevel := Level(newXP)
	newRank := RankFor(newXP)

	profile.TotalXP = newXP
	profile.Level = newLevel
	profile.Rank = newRank.Rank
	profile.GamesPlayed++
	profile.LastXPSource = source
	profile.LastXPAmount = amount
	profile.UpdatedAt = e.now()

	if err := tx.SetProfile(uid, profile); err != nil {
		return AwardResult{}, fmt.Errorf("AwardIn: write profile: %w", err)
	}

	return AwardResult{
		Awarded:  amount,
		OldXP:    oldXP,
		NewXP:    newXP,
		OldLevel: oldLevel,
		NewLevel: newLevel,
		LevelUp:  newLevel > oldLevel,
		OldRank:  oldRank,
		NewRank:  newRank.Name,
		RankUp:   newRank.Name != oldRank,
	}, nil
}

// RankView is the rank block of a profile view.
type RankView struct {
	Name          string  `json:"name"`
	Color         string  `json:"color"`
	Tier          string  `json:"tier"`
	Progress      float64 `json:"progress"`
	XPInRank      int     `json:"xp_in_rank"`
	XPForNextRank int     `json:"xp_for_next_rank"`
}

// NextRankView describes the tier above the current one.
type NextRankView struct {
	Name     string `json:"name"`
	Color    string `json:"color"`
	Tier     string `json:"tier"`
	XPNeeded int    `json:"xp_needed"`
}

// NextLevelView describes the next level boundary.
type NextLevelView struct {
	Level    int `json:"level"`
	XPNeeded int `json:"xp_needed"`
}

// ProfileView is the read-only progression profile. Level and rank are
// recomputed from TotalXP on every read, so the cached values can never
// drift into a response.
type ProfileView struct {
	TotalXP     int            `json:"total_xp"`
	Level       int            `json:"level"`
	Rank        RankView       `json:"rank"`
	NextRank    *NextRankView  `json:"next_rank"`
	NextLevel   *NextLevelView `json:"next_level"`
	GamesPlayed int            `json:"games_played"`
}

// Profile returns the progression view for a user. An absent profile returns
// the zero state: 0 XP, level 1, lowest rank.
func (e *Engine) Profile(ctx context.Context, uid string) (ProfileView, error) {
	p, _, err := e.store.Profile(ctx, uid)
	if err != nil {
		return ProfileView{}, fmt.Errorf("Profile: %w", err)
	}
	return buildView(p), nil
}

func buildView(p store.Profile) ProfileView {
	info := RankFor(p.TotalXP)
	level := Level(p.TotalXP)

	view := ProfileView{
		TotalXP: p.TotalXP,
		Level:   level,
		Rank: RankView{
			Name:          info.Name,
			Color:         info.Color,
			Tier:          info.Tier,
			Progress:      round3(info.Progress),
			XPInRank:      info.XPInRank,
			XPForNextRank: info.XPForNext,
		},
		GamesPlayed: p.GamesPlayed,
	}
	if info.NextRank != nil {
		view.NextRank = &NextRankView{
			Name:     info.NextRank.Name,
			Color:    info.NextRank.Color,
			Tier:     info.NextRank.Tier,
			XPNeeded: info.NextRank.Threshold - p.TotalXP,
		}
	}
	if level < MaxLevel {
		view.NextLevel = &NextLevelView{
			Level:    level + 1,
			XPNeeded: XPForLevel(level+1) - p.TotalXP,
		}
	}
	return view
}

// LeaderboardEntry is one row of the XP leaderboard.
type LeaderboardEntry struct {
	UserID    string `json:"user_id"`
	TotalXP   int    `json:"total_xp"`
	Level     int    `json:"level"`
	Rank      string `json:"rank"`
	RankColor string `json:"rank_color"`
}

// Leaderboard returns the top users by total XP.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	profiles, err := e.store.TopProfiles(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("Leaderboard: %w", err)
	}

	out := make([]LeaderboardEntry, 0, len(profiles))
	for _, p := range profiles {
		info := RankFor(p.TotalXP)
		out = append(out, LeaderboardEntry{
			UserID:    p.UserID,
			TotalXP:   p.TotalXP,
			Level:     Level(p.TotalXP),
			Rank:      info.Name,
			RankColor: info.Color,
		})
	}
	return out, nil
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
