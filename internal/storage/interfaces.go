package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"token-sentinel/internal/domain"
)

// DedupLedger is the single shared mutable resource of the pipeline.
// Implementations must make TryClaim a single atomic create-if-absent-with-expiry
// operation. Every entry records the owner token of the evaluation that wrote
// it, and Mark and Release are compare-and-set on that token.
type DedupLedger interface {
	// TryClaim creates key for owner with the given TTL if and only if it does
	// not exist (or has expired). Returns true when owner now holds the key.
	TryClaim(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// Exists reports whether a live entry exists. It is an early-exit
	// optimization, not a correctness guarantee.
	Exists(ctx context.Context, key string) (bool, error)

	// Mark overwrites key with a fresh TTL when the key is absent, expired
	// or held by owner. A live entry held by another owner is left untouched
	// and ErrNotOwner is returned. Mark never creates a second entry.
	Mark(ctx context.Context, key, owner string, ttl time.Duration) error

	// Release deletes key if owner holds it so that a later ingestion cycle
	// can claim it again. Releasing an absent key is a no-op; a live key held
	// by another owner returns ErrNotOwner.
	Release(ctx context.Context, key, owner string) error
}

// VolumeReader reads locally aggregated swap volume.
type VolumeReader interface {
	// Volume24h returns the summed quote volume over the 24h before now.
	// Returns ErrNotFound if no swaps were recorded in the window.
	Volume24h(ctx context.Context, chain domain.Chain, address string, now time.Time) (float64, error)
}

// DefaultKeyPrefix namespaces ledger keys.
const DefaultKeyPrefix = "sentinel:seen"

// LedgerKey builds the opaque ledger key for a token.
func LedgerKey(prefix string, chain domain.Chain, address string) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return fmt.Sprintf("%s:%s:%s", strings.TrimRight(prefix, ":"), chain, address)
}

// SwapRecord is one quote-denominated trade recorded for a token.
type SwapRecord struct {
	Chain       domain.Chain
	Address     string
	TimestampMs int64
	VolumeUSD   float64
}

// VolumeWriter appends swaps for local volume aggregation.
type VolumeWriter interface {
	InsertSwaps(ctx context.Context, swaps []SwapRecord) error
}
