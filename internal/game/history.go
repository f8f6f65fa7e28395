package game

import (
	"math"

	"github.com/centsible/backend/internal/store"
)

// Accuracy returns correct/total rounded to two decimals. A zero total is
// treated as zero accuracy.
func Accuracy(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(correct)/float64(total)*100) / 100
}

// AppendHistory appends a round summary, keeping only the most recent
// store.HistoryLimit entries.
func AppendHistory(history []store.RoundSummary, s store.RoundSummary) []store.RoundSummary {
	history = append(history, s)
	if len(history) > store.HistoryLimit {
		history = history[len(history)-store.HistoryLimit:]
	}
	return history
}
