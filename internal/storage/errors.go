package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLedgerUnavailable wraps any failure to reach the dedup ledger backend.
	// Callers treat it as fail-open: the token is evaluated as if unclaimed.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrNotOwner is returned by Mark and Release when a live entry belongs
	// to another evaluation, typically after this caller's lease expired.
	ErrNotOwner = errors.New("ledger entry held by another owner")
)
