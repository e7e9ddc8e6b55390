// Package repository implements the bid ledger on MySQL.  This file
// defines sentinel error values shared across the repositories so that
// higher layers can distinguish failure scenarios with errors.Is instead
// of inspecting driver errors.
package repository

import "errors"

// ErrAuctionNotFound is returned when no auction exists for the given id.
var ErrAuctionNotFound = errors.New("auction not found")

// ErrBidNotFound is returned when no bid matches the given reference.
var ErrBidNotFound = errors.New("bid not found")

// ErrUserNotFound is returned when no account matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrStaleSnapshot is returned by CommitBid when the auction's version
// changed between the caller's snapshot read and the serialized commit.
// The caller should re-read the snapshot and retry once.
var ErrStaleSnapshot = errors.New("auction snapshot is stale")

// ErrInvalidTransition is returned when a conditional status update finds
// the auction in a state the transition does not start from.
var ErrInvalidTransition = errors.New("invalid auction state transition")

// ErrAlreadyClosed is returned when a closure commit finds the auction
// already in a terminal state.  Closure is idempotent, so callers treat
// this by re-reading the closed record rather than failing.
var ErrAlreadyClosed = errors.New("auction already closed")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own, such as retracting another buyer's bid.
var ErrForbidden = errors.New("forbidden")

// ErrDuplicateEmail is returned when registering an account with an
// email address that is already taken.
var ErrDuplicateEmail = errors.New("email already registered")
