// Package game holds the round-lifecycle pieces shared by all three
// minigames: the error taxonomy, spend aggregation, and the
// insufficient-signal outcome.
package game

import "errors"

// State-machine and validation errors shared across games. These are expected
// conditions; the API layer surfaces them as named results, not generic
// failures.
var (
	// ErrInvalidArgument marks a malformed submission (missing ids,
	// out-of-range index, empty selection).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoActiveRound is returned when a submit-style call arrives with no
	// round in flight.
	ErrNoActiveRound = errors.New("no active round")

	// ErrRoundComplete is returned when the round already reached a terminal
	// state.
	ErrRoundComplete = errors.New("round already complete")

	// ErrRoundIncomplete is returned when finalization is requested before
	// every question is answered.
	ErrRoundIncomplete = errors.New("round not yet complete")

	// ErrAlreadyAnswered is returned when a quiz question is answered twice.
	ErrAlreadyAnswered = errors.New("question already answered")

	// ErrAlreadyMatched is returned when a correctly matched category is
	// submitted again.
	ErrAlreadyMatched = errors.New("category already matched")

	// ErrAlreadyPlayed is returned by weekly-gated games when the user
	// completed a round in the current period.
	ErrAlreadyPlayed = errors.New("already played this period")
)
