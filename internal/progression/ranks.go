package progression

import "github.com/centsible/backend/internal/store"

// ranks is the fixed tier table, ascending by threshold. Rank is a pure
// function of total XP: the highest tier whose threshold has been reached.
var ranks = []store.Rank{
	{Name: "Penny Pincher", Threshold: 0, Color: "copper", Tier: "bronze"},
	{Name: "Savvy Saver", Threshold: 500, Color: "bronze", Tier: "bronze"},
	{Name: "Budget Master", Threshold: 1500, Color: "silver", Tier: "silver"},
	{Name: "Portfolio Pro", Threshold: 3500, Color: "gold", Tier: "gold"},
	{Name: "Investment Expert", Threshold: 7000, Color: "platinum", Tier: "platinum"},
	{Name: "Finance Legend", Threshold: 12000, Color: "diamond", Tier: "diamond"},
}

// RankInfo describes the rank derived from an XP total, including progress
// toward the next tier.
type RankInfo struct {
	store.Rank
	NextRank  *store.Rank
	Progress  float64 // 0..1, 1.0 at max tier
	XPInRank  int
	XPForNext int // XP span to next tier, 0 at max tier
}

// RankFor computes the rank for an XP total.
func RankFor(xp int) RankInfo {
	cur := 0
	for i, r := range ranks {
		if xp >= r.Threshold {
			cur = i
		} else {
			break
		}
	}

	info := RankInfo{Rank: ranks[cur], XPInRank: xp - ranks[cur].Threshold}
	if cur+1 < len(ranks) {
		next := ranks[cur+1]
		info.NextRank = &next
		info.XPForNext = next.Threshold - ranks[cur].Threshold
		info.Progress = float64(info.XPInRank) / float64(info.XPForNext)
	} else {
		info.Progress = 1.0
	}
	return info
}

// RankList returns the full tier table for display.
func RankList() []store.Rank {
	out := make([]store.Rank, len(ranks))
	copy(out, ranks)
	return out
}
