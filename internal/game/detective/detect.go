package detective

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/centsible/backend/internal/domain"
)

// Detection thresholds.
const (
	zScoreThreshold       = 2.0
	rareMerchantThreshold = 2
	percentileMinSamples  = 10
)

// baseline holds the statistical profile of a user's spending history.
type baseline struct {
	Count  int
	Mean   float64
	Std    float64
	Median float64
	Q75    float64
	Q95    float64

	merchantFreq map[string]int
}

// buildBaseline computes amount statistics over positive spend and counts
// merchant occurrences.
func buildBaseline(historical []domain.Transaction) baseline {
	var amounts []float64
	freq := make(map[string]int)

	for _, t := range historical {
		if t.Amount > 0 {
			amounts = append(amounts, t.Amount)
		}
		if m := strings.ToLower(strings.TrimSpace(t.MerchantName)); m != "" {
			freq[m]++
		}
	}

	b := baseline{merchantFreq: freq}
	n := len(amounts)
	if n == 0 {
		return b
	}
	sort.Float64s(amounts)

	var sum float64
	for _, a := range amounts {
		sum += a
	}
	mean := sum / float64(n)

	var variance float64
	for _, a := range amounts {
		variance += (a - mean) * (a - mean)
	}
	variance /= float64(n)

	b.Count = n
	b.Mean = mean
	if variance > 0 {
		b.Std = math.Sqrt(variance)
	}
	b.Median = amounts[n/2]
	b.Q75 = amounts[int(float64(n)*0.75)]
	if n > percentileMinSamples {
		b.Q95 = amounts[int(float64(n)*0.95)]
	} else {
		b.Q95 = amounts[n-1]
	}
	return b
}

// anomaly is one flagged transaction with the signals that fired.
type anomaly struct {
	ID      string
	Reasons []string
}

// detectAnomalies scores candidates against the historical baseline. A
// transaction is anomalous when any signal fires: z-score above threshold,
// amount in the top 5% of history, or a merchant seen at most twice.
func detectAnomalies(candidates, historical []domain.Transaction) []anomaly {
	b := buildBaseline(historical)

	var out []anomaly
	for _, t := range candidates {
		if t.Amount <= 0 {
			continue
		}
		var reasons []string

		if b.Std > 0 {
			z := (t.Amount - b.Mean) / b.Std
			if z > zScoreThreshold {
				reasons = append(reasons,
					fmt.Sprintf("Unusually high amount ($%.2f vs avg $%.2f)", t.Amount, b.Mean))
			}
		}

		if t.Amount > b.Q95 && b.Count > percentileMinSamples {
			reasons = append(reasons, "Top 5% of your spending")
		}

		if m := strings.ToLower(strings.TrimSpace(t.MerchantName)); m != "" {
			if n := b.merchantFreq[m]; n <= rareMerchantThreshold {
				reasons = append(reasons, fmt.Sprintf("Rare merchant (only %d transactions)", n))
			}
		}

		if len(reasons) > 0 {
			out = append(out, anomaly{ID: t.ID, Reasons: reasons})
		}
	}
	return out
}
