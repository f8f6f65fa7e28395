package detective

import (
	"strings"
	"testing"

	"cloud.google.com/go/civil"

	"github.com/centsible/backend/internal/domain"
)

// baselineTxns yields mean 50 and std 10 (ten at 40, ten at 60) under one
// well-known merchant.
func baselineTxns() []domain.Transaction {
	day := civil.Date{Year: 2025, Month: 2, Day: 1}
	var out []domain.Transaction
	for i := 0; i < 10; i++ {
		out = append(out,
			domain.Transaction{ID: "lo" + string(rune('a'+i)), Date: day, Amount: 40, MerchantName: "Corner Deli"},
			domain.Transaction{ID: "hi" + string(rune('a'+i)), Date: day, Amount: 60, MerchantName: "Corner Deli"},
		)
	}
	return out
}

func TestBuildBaseline(t *testing.T) {
	b := buildBaseline(baselineTxns())

	if b.Count != 20 {
		t.Fatalf("count = %d, want 20", b.Count)
	}
	if b.Mean != 50 {
		t.Errorf("mean = %v, want 50", b.Mean)
	}
	if b.Std != 10 {
		t.Errorf("std = %v, want 10", b.Std)
	}
	if b.Median != 60 {
		t.Errorf("median = %v, want 60", b.Median)
	}
	if b.Q95 != 60 {
		t.Errorf("q95 = %v, want 60", b.Q95)
	}
	if b.merchantFreq["corner deli"] != 20 {
		t.Errorf("merchant freq = %d, want 20", b.merchantFreq["corner deli"])
	}
}

func TestDetectAnomalies(t *testing.T) {
	day := civil.Date{Year: 2025, Month: 3, Day: 10}
	candidates := []domain.Transaction{
		// z = (95-50)/10 = 4.5, above threshold; also above q95.
		{ID: "spike", Date: day, Amount: 95, MerchantName: "Corner Deli"},
		// Ordinary amount at a familiar merchant.
		{ID: "normal", Date: day, Amount: 52, MerchantName: "Corner Deli"},
		// Ordinary amount, but the merchant was never seen before.
		{ID: "rare", Date: day, Amount: 45, MerchantName: "Vault Jewelers"},
		// Refunds are never candidates.
		{ID: "refund", Date: day, Amount: -30, MerchantName: "Vault Jewelers"},
	}

	got := detectAnomalies(candidates, baselineTxns())

	byID := map[string][]string{}
	for _, a := range got {
		byID[a.ID] = a.Reasons
	}

	if len(got) != 2 {
		t.Fatalf("flagged %d transactions, want 2: %v", len(got), byID)
	}
	if reasons := byID["spike"]; len(reasons) != 2 {
		t.Errorf("spike reasons = %v, want z-score and top-5%%", reasons)
	} else {
		if !strings.Contains(reasons[0], "Unusually high amount") {
			t.Errorf("spike reason[0] = %q", reasons[0])
		}
		if reasons[1] != "Top 5% of your spending" {
			t.Errorf("spike reason[1] = %q", reasons[1])
		}
	}
	if reasons := byID["rare"]; len(reasons) != 1 || !strings.Contains(reasons[0], "Rare merchant") {
		t.Errorf("rare reasons = %v, want rare-merchant only", reasons)
	}
	if _, ok := byID["normal"]; ok {
		t.Error("ordinary transaction flagged")
	}
	if _, ok := byID["refund"]; ok {
		t.Error("refund flagged")
	}
}

func TestDetectAnomalies_TinyHistorySkipsPercentile(t *testing.T) {
	day := civil.Date{Year: 2025, Month: 3, Day: 10}
	historical := []domain.Transaction{
		{ID: "a", Date: day, Amount: 50, MerchantName: "Corner Deli"},
		{ID: "b", Date: day, Amount: 50, MerchantName: "Corner Deli"},
		{ID: "c", Date: day, Amount: 50, MerchantName: "Corner Deli"},
	}
	got := detectAnomalies([]domain.Transaction{
		{ID: "x", Date: day, Amount: 55, MerchantName: "Corner Deli"},
	}, historical)

	// Ten or fewer samples: the top-5% rule must not fire.
	for _, a := range got {
		for _, r := range a.Reasons {
			if r == "Top 5% of your spending" {
				t.Fatal("percentile rule fired with a tiny baseline")
			}
		}
	}
}
