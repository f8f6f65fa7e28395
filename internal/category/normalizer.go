// Package category maps raw transaction signals onto the fixed set of game
// spending buckets. Normalization is deterministic and never fails: a
// transaction that matches no rule is Unmatched.
package category

import (
	"strings"

	"github.com/centsible/backend/internal/domain"
)

// Category is one of the fixed game spending buckets.
type Category string

const (
	Dining         Category = "dining"
	Groceries      Category = "groceries"
	Transportation Category = "transportation"
	Entertainment  Category = "entertainment"
	Shopping       Category = "shopping"
	Travel         Category = "travel"

	// Unmatched means no rule recognised the transaction. Unmatched spend is
	// excluded from category aggregates but still visible as a detective
	// candidate.
	Unmatched Category = "unmatched"
)

// All returns the playable categories in a stable order.
func All() []Category {
	return []Category{Dining, Groceries, Transportation, Entertainment, Shopping, Travel}
}

// Label returns the user-facing label, e.g. "Dining".
func (c Category) Label() string {
	if c == "" || c == Unmatched {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// rule is one (predicate, category) pair. Rules are evaluated top to bottom
// against a lowercased signal; the first hit wins.
type rule struct {
	keywords []string
	category Category
}

func (r rule) matches(s string) bool {
	for _, kw := range r.keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// categoryRules interpret structured category fields and raw aggregator
// category paths.
var categoryRules = []rule{
	{[]string{"food_and_drink", "food & drink", "dining", "restaurant", "fast_food", "coffee"}, Dining},
	{[]string{"grocery", "groceries", "supermarket"}, Groceries},
	{[]string{"transport", "taxi", "ride", "gas", "fuel", "parking", "toll", "public_transit"}, Transportation},
	{[]string{"entertainment", "sporting_events", "amusement", "recreation", "arts", "music", "movies"}, Entertainment},
	{[]string{"shopping", "general_merchandise", "retail", "online_marketplace", "discount_store"}, Shopping},
	{[]string{"travel", "airline", "hotel", "lodging", "car_rental", "vacation"}, Travel},
}

// merchantRules are the keyword heuristics applied to merchant names when no
// category field carries a signal.
var merchantRules = []rule{
	{[]string{"uber", "lyft", "taxi", "transit", "metro"}, Transportation},
	{[]string{"whole foods", "kroger", "heb", "h-e-b", "trader joe", "aldi", "safeway", "publix"}, Groceries},
	{[]string{"mcdonald", "starbucks", "cafe", "coffee", "pizza", "restaurant", "grill", "chipotle", "subway", "taco", "burger", "wendy", "chick-fil-a"}, Dining},
	{[]string{"amc", "cinema", "theater", "spotify", "netflix", "hulu", "disney+", "apple music"}, Entertainment},
	{[]string{"amazon", "ebay", "etsy", "best buy", "macys"}, Shopping},
	{[]string{"airline", "airways", "hotel", "hostel", "airbnb"}, Travel},
}

// Normalize maps a transaction to a game category. Resolution order, first
// match wins: structured primary field, structured detailed field, first
// segment of the raw category path, merchant-name keywords.
func Normalize(t domain.Transaction) Category {
	signals := []struct {
		value string
		rules []rule
	}{
		{t.CategoryPrimary, categoryRules},
		{t.CategoryDetailed, categoryRules},
		{firstPathSegment(t.RawCategoryPath), categoryRules},
		{t.MerchantName, merchantRules},
	}

	for _, sig := range signals {
		s := strings.ToLower(strings.TrimSpace(sig.value))
		if s == "" {
			continue
		}
		for _, r := range sig.rules {
			if r.matches(s) {
				return r.category
			}
		}
	}
	return Unmatched
}

func firstPathSegment(path string) string {
	if path == "" {
		return ""
	}
	seg, _, _ := strings.Cut(path, ">")
	return strings.TrimSpace(seg)
}
