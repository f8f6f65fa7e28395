package game

import (
	"github.com/shopspring/decimal"

	"github.com/centsible/backend/internal/category"
	"github.com/centsible/backend/internal/domain"
)

// SpendByCategory aggregates positive spend into game categories. Unmatched
// transactions are excluded; amounts are cent-exact.
func SpendByCategory(txns []domain.Transaction) map[category.Category]float64 {
	sums := make(map[category.Category]decimal.Decimal)
	for _, t := range txns {
		if !t.IsSpend() {
			continue
		}
		cat := category.Normalize(t)
		if cat == category.Unmatched {
			continue
		}
		sums[cat] = sums[cat].Add(decimal.NewFromFloat(t.Amount))
	}

	out := make(map[category.Category]float64, len(sums))
	for cat, sum := range sums {
		out[cat], _ = sum.Round(2).Float64()
	}
	return out
}

// TotalSpend sums a category spend map exactly.
func TotalSpend(spend map[category.Category]float64) float64 {
	total := decimal.Zero
	for _, amt := range spend {
		total = total.Add(decimal.NewFromFloat(amt))
	}
	f, _ := total.Round(2).Float64()
	return f
}

// Dollars renders an amount as a dollar label, e.g. "$85.43".
func Dollars(amount float64) string {
	return "$" + decimal.NewFromFloat(amount).StringFixed(2)
}
