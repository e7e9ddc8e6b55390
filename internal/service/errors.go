// Package service implements the auction orchestrator: the public
// operations gluing the state machine, ranking engine, bid ledger and
// notification fan-out together.  This file defines the error taxonomy
// the operations surface to callers.
package service

import "errors"

// Validation, lookup and state errors propagate synchronously to the
// caller of a state-mutating operation.  Handlers map them to HTTP
// status codes with errors.Is.
var (
	// ErrValidation marks malformed or inadmissible input.  Never
	// retried automatically.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an unknown auction, bid or user id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState marks an illegal state-machine transition or an
	// operation outside the auction's bidding window.
	ErrInvalidState = errors.New("invalid auction state")

	// ErrContention is returned when a bid commit lost the optimistic
	// race twice in a row.  Safe to retry with backoff at the call
	// site.
	ErrContention = errors.New("auction bid stream contention")
)
