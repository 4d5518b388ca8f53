package postgres

import (
	"context"
	"fmt"
	"time"

	"token-sentinel/internal/storage"
)

// Ledger implements storage.DedupLedger using PostgreSQL.
// Expiry is evaluated against the database clock so that every worker
// shares one notion of "now".
type Ledger struct {
	pool *Pool
}

// NewLedger creates a new Ledger.
func NewLedger(pool *Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Compile-time interface check.
var _ storage.DedupLedger = (*Ledger)(nil)

// TryClaim inserts key for owner, or takes over an expired row, in a single
// statement. A live row blocks the conditional update and no row is returned.
func (l *Ledger) TryClaim(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if key == "" || owner == "" || ttl <= 0 {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO dedup_ledger (key, owner, written_at, ttl_ms, expires_at)
		VALUES ($1, $3, now(), $2, now() + $2::bigint * interval '1 millisecond')
		ON CONFLICT (key) DO UPDATE SET
			owner      = EXCLUDED.owner,
			written_at = EXCLUDED.written_at,
			ttl_ms     = EXCLUDED.ttl_ms,
			expires_at = EXCLUDED.expires_at
		WHERE dedup_ledger.expires_at <= now()
		RETURNING key
	`

	var claimed string
	err := l.pool.QueryRow(ctx, query, key, ttl.Milliseconds(), owner).Scan(&claimed)
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		if isRetryableConflict(err) {
			// Another writer held the row; it owns the claim.
			return false, nil
		}
		return false, fmt.Errorf("%w: claim %s: %v", storage.ErrLedgerUnavailable, key, err)
	}
	return true, nil
}

// Exists reports whether a live row exists for key.
func (l *Ledger) Exists(ctx context.Context, key string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM dedup_ledger WHERE key = $1 AND expires_at > now())`

	var exists bool
	if err := l.pool.QueryRow(ctx, query, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: exists %s: %v", storage.ErrLedgerUnavailable, key, err)
	}
	return exists, nil
}

// Mark overwrites key with a fresh TTL. A live row held by another owner
// blocks the update and ErrNotOwner is returned.
func (l *Ledger) Mark(ctx context.Context, key, owner string, ttl time.Duration) error {
	if key == "" || owner == "" || ttl <= 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO dedup_ledger (key, owner, written_at, ttl_ms, expires_at)
		VALUES ($1, $3, now(), $2, now() + $2::bigint * interval '1 millisecond')
		ON CONFLICT (key) DO UPDATE SET
			owner      = EXCLUDED.owner,
			written_at = EXCLUDED.written_at,
			ttl_ms     = EXCLUDED.ttl_ms,
			expires_at = EXCLUDED.expires_at
		WHERE dedup_ledger.owner = EXCLUDED.owner OR dedup_ledger.expires_at <= now()
		RETURNING key
	`

	var marked string
	err := l.pool.QueryRow(ctx, query, key, ttl.Milliseconds(), owner).Scan(&marked)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotOwner
		}
		return fmt.Errorf("%w: mark %s: %v", storage.ErrLedgerUnavailable, key, err)
	}
	return nil
}

// Release deletes key if owner holds it. The second column reports a live
// row held by someone else, which is left in place.
func (l *Ledger) Release(ctx context.Context, key, owner string) error {
	if key == "" || owner == "" {
		return storage.ErrInvalidInput
	}

	query := `
		WITH deleted AS (
			DELETE FROM dedup_ledger WHERE key = $1 AND owner = $2 RETURNING key
		)
		SELECT
			EXISTS (SELECT 1 FROM deleted),
			EXISTS (SELECT 1 FROM dedup_ledger WHERE key = $1 AND owner <> $2 AND expires_at > now())
	`

	var deleted, heldElsewhere bool
	if err := l.pool.QueryRow(ctx, query, key, owner).Scan(&deleted, &heldElsewhere); err != nil {
		return fmt.Errorf("%w: release %s: %v", storage.ErrLedgerUnavailable, key, err)
	}
	if !deleted && heldElsewhere {
		return storage.ErrNotOwner
	}
	return nil
}

// Purge deletes expired rows and returns how many were removed.
func (l *Ledger) Purge(ctx context.Context) (int64, error) {
	tag, err := l.pool.Exec(ctx, `DELETE FROM dedup_ledger WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("purge dedup ledger: %w", err)
	}
	return tag.RowsAffected(), nil
}

// StartPurger runs Purge every interval until ctx is done.
func (l *Ledger) StartPurger(ctx context.Context, interval time.Duration, onError func(error)) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := l.Purge(ctx); err != nil && onError != nil {
					onError(err)
				}
			}
		}
	}()
}
