package game

import "github.com/centsible/backend/internal/progression"

// ProgressionDelta is the progression snippet attached to game results after
// an XP award.
type ProgressionDelta struct {
	TotalXP int    `json:"total_xp"`
	Level   int    `json:"level"`
	LevelUp bool   `json:"level_up"`
	Rank    string `json:"rank"`
	RankUp  bool   `json:"rank_up"`
}

// DeltaFrom converts an award result into the response shape.
func DeltaFrom(res progression.AwardResult) *ProgressionDelta {
	return &ProgressionDelta{
		TotalXP: res.NewXP,
		Level:   res.NewLevel,
		LevelUp: res.LevelUp,
		Rank:    res.NewRank,
		RankUp:  res.RankUp,
	}
}
