package domain

import "time"

// DedupEntry is a single ledger record. It is considered expired at
// WrittenAt + TTL.
type DedupEntry struct {
	Key       string
	Owner     string // token of the evaluation that wrote the entry
	WrittenAt time.Time
	TTL       time.Duration
}

// ExpiresAt returns the instant the entry stops counting as present.
func (e DedupEntry) ExpiresAt() time.Time {
	return e.WrittenAt.Add(e.TTL)
}

// Expired reports whether the entry is expired at now.
func (e DedupEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}
