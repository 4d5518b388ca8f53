package memory

import (
	"context"
	"sync"
	"time"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/storage"
)

// Ledger is a process-local implementation of storage.DedupLedger.
// Expired entries are ignored on read and removed by a background sweep.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]domain.DedupEntry
	now     func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// LedgerOption configures Ledger.
type LedgerOption func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates a new in-memory ledger.
func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		entries: make(map[string]domain.DedupEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryClaim creates key for owner if absent or expired. The check and the
// write happen under one lock, so concurrent callers for the same key see
// exactly one winner.
func (l *Ledger) TryClaim(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if key == "" || owner == "" || ttl <= 0 {
		return false, storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, exists := l.entries[key]; exists && !e.Expired(now) {
		return false, nil
	}

	l.entries[key] = domain.DedupEntry{Key: key, Owner: owner, WrittenAt: now, TTL: ttl}
	return true, nil
}

// Exists reports whether a live entry exists for key.
func (l *Ledger) Exists(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.entries[key]
	if !exists {
		return false, nil
	}
	if e.Expired(l.now()) {
		delete(l.entries, key)
		return false, nil
	}
	return true, nil
}

// Mark overwrites key with a fresh TTL unless a live entry belongs to
// another owner.
func (l *Ledger) Mark(_ context.Context, key, owner string, ttl time.Duration) error {
	if key == "" || owner == "" || ttl <= 0 {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, exists := l.entries[key]; exists && e.Owner != owner && !e.Expired(now) {
		return storage.ErrNotOwner
	}

	l.entries[key] = domain.DedupEntry{Key: key, Owner: owner, WrittenAt: now, TTL: ttl}
	return nil
}

// Release deletes key if owner holds it. Expired entries are dropped
// regardless of owner.
func (l *Ledger) Release(_ context.Context, key, owner string) error {
	if key == "" || owner == "" {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.entries[key]
	switch {
	case !exists:
		return nil
	case e.Owner != owner && !e.Expired(l.now()):
		return storage.ErrNotOwner
	}
	delete(l.entries, key)
	return nil
}

// Entry returns a copy of the live entry for key.
func (l *Ledger) Entry(key string) (domain.DedupEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.entries[key]
	if !exists || e.Expired(l.now()) {
		return domain.DedupEntry{}, false
	}
	return e, true
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep removes expired entries and returns how many were removed.
func (l *Ledger) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for k, e := range l.entries {
		if e.Expired(now) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done or Close is called.
func (l *Ledger) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}

// Close stops the background sweeper.
func (l *Ledger) Close() error {
	l.once.Do(func() { close(l.stop) })
	l.wg.Wait()
	return nil
}

// Verify interface compliance at compile time.
var _ storage.DedupLedger = (*Ledger)(nil)
