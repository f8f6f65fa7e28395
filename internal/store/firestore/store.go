// Package firestore backs store.Store and store.TransactionReader with Cloud
// Firestore. Document layout:
//
//	users/{uid}/games/{game}            one GameState per game
//	users/{uid}/profile/progression     the shared progression Profile
//	users/{uid}/transactions/{txid}     normalized aggregator transactions
//
// The leaderboard is a collection-group query over every "profile"
// subcollection ordered by total_xp, so no separate index document is kept.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/centsible/backend/internal/domain"
	"github.com/centsible/backend/internal/store"
)

const (
	colUsers        = "users"
	colGames        = "games"
	colProfile      = "profile"
	colTransactions = "transactions"
	docProgression  = "progression"
)

// Store implements store.Store and store.TransactionReader on Firestore.
type Store struct {
	client *firestore.Client
}

// New connects to the project's Firestore database. Credentials come from the
// environment (attached service account on Cloud Run, or
// GOOGLE_APPLICATION_CREDENTIALS locally).
func New(ctx context.Context, projectID string, opts ...option.ClientOption) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) userDoc(uid string) *firestore.DocumentRef {
	return s.client.Collection(colUsers).Doc(uid)
}

func (s *Store) gameDoc(uid, game string) *firestore.DocumentRef {
	return s.userDoc(uid).Collection(colGames).Doc(game)
}

func (s *Store) profileDoc(uid string) *firestore.DocumentRef {
	return s.userDoc(uid).Collection(colProfile).Doc(docProgression)
}

func (s *Store) txnCol(uid string) *firestore.CollectionRef {
	return s.userDoc(uid).Collection(colTransactions)
}

// fsTx adapts one Firestore transaction to store.Tx. Firestore requires all
// reads before the first write; the games are written that way.
type fsTx struct {
	s  *Store
	tx *firestore.Transaction
}

func (t *fsTx) GameState(uid, game string) (store.GameState, error) {
	snap, err := t.tx.Get(t.s.gameDoc(uid, game))
	if status.Code(err) == codes.NotFound {
		return store.GameState{}, nil
	}
	if err != nil {
		return store.GameState{}, wrapErr("get game state", err)
	}
	var st store.GameState
	if err := snap.DataTo(&st); err != nil {
		return store.GameState{}, fmt.Errorf("decode game state: %w", err)
	}
	return st, nil
}

func (t *fsTx) SetGameState(uid, game string, st store.GameState) error {
	if err := t.tx.Set(t.s.gameDoc(uid, game), st); err != nil {
		return wrapErr("set game state", err)
	}
	return nil
}

func (t *fsTx) Profile(uid string) (store.Profile, bool, error) {
	snap, err := t.tx.Get(t.s.profileDoc(uid))
	if status.Code(err) == codes.NotFound {
		return store.Profile{}, false, nil
	}
	if err != nil {
		return store.Profile{}, false, wrapErr("get profile", err)
	}
	var p store.Profile
	if err := snap.DataTo(&p); err != nil {
		return store.Profile{}, false, fmt.Errorf("decode profile: %w", err)
	}
	return p, true, nil
}

func (t *fsTx) SetProfile(uid string, p store.Profile) error {
	if err := t.tx.Set(t.s.profileDoc(uid), p); err != nil {
		return wrapErr("set profile", err)
	}
	return nil
}

// RunUpdate executes fn inside one Firestore transaction. The client retries
// aborted transactions a bounded number of times before surfacing the error.
func (s *Store) RunUpdate(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		return fn(&fsTx{s: s, tx: tx})
	})
	if err != nil {
		return wrapErr("run update", err)
	}
	return nil
}

func (s *Store) GameState(ctx context.Context, uid, game string) (store.GameState, error) {
	snap, err := s.gameDoc(uid, game).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return store.GameState{}, nil
	}
	if err != nil {
		return store.GameState{}, wrapErr("get game state", err)
	}
	var st store.GameState
	if err := snap.DataTo(&st); err != nil {
		return store.GameState{}, fmt.Errorf("decode game state: %w", err)
	}
	return st, nil
}

func (s *Store) Profile(ctx context.Context, uid string) (store.Profile, bool, error) {
	snap, err := s.profileDoc(uid).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return store.Profile{}, false, nil
	}
	if err != nil {
		return store.Profile{}, false, wrapErr("get profile", err)
	}
	var p store.Profile
	if err := snap.DataTo(&p); err != nil {
		return store.Profile{}, false, fmt.Errorf("decode profile: %w", err)
	}
	return p, true, nil
}

// TopProfiles reads the leaderboard: every profile/progression document
// ordered by total_xp descending. The user id is the grandparent document of
// each hit.
func (s *Store) TopProfiles(ctx context.Context, limit int) ([]store.RankedProfile, error) {
	it := s.client.CollectionGroup(colProfile).
		OrderBy("total_xp", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer it.Stop()

	var out []store.RankedProfile
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapErr("leaderboard query", err)
		}
		var p store.Profile
		if err := snap.DataTo(&p); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
		out = append(out, store.RankedProfile{
			UserID:  snap.Ref.Parent.Parent.ID,
			Profile: p,
		})
	}
	return out, nil
}

// txnDoc is the stored transaction shape. Dates are YYYY-MM-DD strings so
// range queries stay lexicographic.
type txnDoc struct {
	ID           string    `firestore:"transaction_id"`
	Date         string    `firestore:"date"`
	Amount       float64   `firestore:"amount"`
	Name         string    `firestore:"name,omitempty"`
	PFCPrimary   string    `firestore:"pfc_primary,omitempty"`
	PFCDetailed  string    `firestore:"pfc_detailed,omitempty"`
	CategoryPath string    `firestore:"category_path,omitempty"`
	Pending      bool      `firestore:"pending,omitempty"`
	Removed      bool      `firestore:"removed,omitempty"`
	UpdatedAt    time.Time `firestore:"updated_at"`
}

// Fetch implements store.TransactionReader: half-open range [start, end),
// most recent first. Pending and removed transactions are filtered out after
// the range query to keep the required composite index to a single field.
func (s *Store) Fetch(ctx context.Context, uid string, start, end civil.Date) ([]domain.Transaction, error) {
	it := s.txnCol(uid).
		Where("date", ">=", start.String()).
		Where("date", "<", end.String()).
		OrderBy("date", firestore.Desc).
		Documents(ctx)
	defer it.Stop()

	var out []domain.Transaction
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapErr("transactions query", err)
		}
		var d txnDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}
		if d.Pending || d.Removed {
			continue
		}
		date, err := civil.ParseDate(d.Date)
		if err != nil {
			continue // malformed feed row, skip rather than fail the game
		}
		out = append(out, domain.Transaction{
			ID:               d.ID,
			Date:             date,
			Amount:           d.Amount,
			MerchantName:     d.Name,
			CategoryPrimary:  d.PFCPrimary,
			CategoryDetailed: d.PFCDetailed,
			RawCategoryPath:  d.CategoryPath,
		})
	}
	return out, nil
}

// SaveTransactions upserts transactions into the user's feed, keyed by
// transaction id. Used by the seeding tool and backfills.
func (s *Store) SaveTransactions(ctx context.Context, uid string, txns []domain.Transaction) error {
	bw := s.client.BulkWriter(ctx)
	col := s.txnCol(uid)
	for _, t := range txns {
		doc := txnDoc{
			ID:           t.ID,
			Date:         t.Date.String(),
			Amount:       t.Amount,
			Name:         t.MerchantName,
			PFCPrimary:   t.CategoryPrimary,
			PFCDetailed:  t.CategoryDetailed,
			CategoryPath: t.RawCategoryPath,
			UpdatedAt:    time.Now().UTC(),
		}
		if _, err := bw.Set(col.Doc(t.ID), doc); err != nil {
			return wrapErr("queue transaction write", err)
		}
	}
	bw.End()
	return nil
}

// wrapErr maps transient RPC failures onto store.ErrUnavailable so callers
// can distinguish "retry the whole operation" from hard errors.
func wrapErr(op string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return fmt.Errorf("%s: %w: %v", op, store.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
