package store

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"

	"github.com/centsible/backend/internal/domain"
)

// ErrUnavailable wraps transient persistence failures that survived the
// store's bounded retries. Callers may retry the whole operation.
var ErrUnavailable = errors.New("store unavailable")

// Tx is the view of the store inside one transaction. Implementations must
// give serializable read-modify-write semantics across every document touched
// through the same Tx: either all writes commit or none do.
//
// Firestore requires all reads before the first write; transaction bodies
// written against this interface must follow that order.
type Tx interface {
	// GameState returns the state document for (uid, game), or the zero
	// state if the user has never played.
	GameState(uid, game string) (GameState, error)
	SetGameState(uid, game string, st GameState) error

	// Profile returns the progression profile and whether it exists.
	Profile(uid string) (Profile, bool, error)
	SetProfile(uid string, p Profile) error
}

// Store is the transactional document store behind every game and the
// progression engine.
type Store interface {
	// RunUpdate executes fn inside one transaction, retrying a bounded
	// number of times on write conflict before failing.
	RunUpdate(ctx context.Context, fn func(tx Tx) error) error

	// Read-only fast paths; no transaction, fail fast.
	GameState(ctx context.Context, uid, game string) (GameState, error)
	Profile(ctx context.Context, uid string) (Profile, bool, error)
	TopProfiles(ctx context.Context, limit int) ([]RankedProfile, error)
}

// TransactionReader fetches a user's transactions for the half-open calendar
// range [start, end), most recent first. This is the boundary to the external
// transaction feed.
type TransactionReader interface {
	Fetch(ctx context.Context, uid string, start, end civil.Date) ([]domain.Transaction, error)
}
