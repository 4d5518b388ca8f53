package ingestion

import "errors"

var (
	// ErrUnknownSource is returned when no field mapping is registered for a source.
	ErrUnknownSource = errors.New("unknown ingestion source")
	// ErrInvalidAddress is returned when a token address cannot be canonicalized.
	ErrInvalidAddress = errors.New("invalid token address")
	// ErrMissingField is returned when a record lacks its chain or address.
	ErrMissingField = errors.New("required field missing")
	// ErrQueueFull is returned when the intake queue cannot accept more candidates.
	ErrQueueFull = errors.New("intake queue full")
)
