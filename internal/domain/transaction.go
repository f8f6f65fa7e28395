package domain

import (
	"cloud.google.com/go/civil"
)

// Transaction is one normalized transaction from the aggregator feed.
// This is a domain struct, not a Firestore document; the store layer maps it
// into the per-user transactions collection.
// Amount sign convention: positive = money spent, negative = money in. Every
// game only considers positive amounts as spend.
type Transaction struct {
	ID               string     // aggregator transaction id
	Date             civil.Date // calendar day of the transaction
	Amount           float64    // signed; positive = spend
	MerchantName     string     // merchant display name, may be empty
	CategoryPrimary  string     // structured primary category, may be empty
	CategoryDetailed string     // structured detailed category, may be empty
	RawCategoryPath  string     // raw aggregator path, e.g. "Food and Drink > Coffee"
}

// IsSpend reports whether the transaction counts as spending.
func (t Transaction) IsSpend() bool {
	return t.Amount > 0
}
