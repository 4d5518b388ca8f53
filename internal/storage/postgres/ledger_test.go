package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentinel/internal/storage"
	pgstore "token-sentinel/internal/storage/postgres"
)

func TestLedger_ClaimLifecycle(t *testing.T) {
	pool := newTestPool(t)

	ledger := pgstore.NewLedger(pool)
	ctx := context.Background()

	ok, err := ledger.TryClaim(ctx, "k1", "w1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.TryClaim(ctx, "k1", "w1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim within TTL must fail")

	exists, err := ledger.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, ledger.Release(ctx, "k1", "w1"))

	exists, err = ledger.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLedger_ExpiredRowCanBeReclaimed(t *testing.T) {
	pool := newTestPool(t)

	ledger := pgstore.NewLedger(pool)
	ctx := context.Background()

	ok, err := ledger.TryClaim(ctx, "k-exp", "w1", 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(250 * time.Millisecond)

	exists, err := ledger.Exists(ctx, "k-exp")
	require.NoError(t, err)
	assert.False(t, exists)

	ok, err = ledger.TryClaim(ctx, "k-exp", "w1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired row must be reclaimable")

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM dedup_ledger WHERE key = 'k-exp'`).Scan(&count))
	assert.Equal(t, 1, count, "reclaim must not create a second row")
}

func TestLedger_MarkAndPurge(t *testing.T) {
	pool := newTestPool(t)

	ledger := pgstore.NewLedger(pool)
	ctx := context.Background()

	require.NoError(t, ledger.Mark(ctx, "k-long", "w1", time.Hour))
	require.NoError(t, ledger.Mark(ctx, "k-short", "w1", 50*time.Millisecond))

	time.Sleep(150 * time.Millisecond)

	removed, err := ledger.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	exists, err := ledger.Exists(ctx, "k-long")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLedger_OwnerCheckedWrites(t *testing.T) {
	pool := newTestPool(t)

	ledger := pgstore.NewLedger(pool)
	ctx := context.Background()

	ok, err := ledger.TryClaim(ctx, "k-owner", "slow", 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(250 * time.Millisecond)

	ok, err = ledger.TryClaim(ctx, "k-owner", "fresh", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "claim after lease expiry must succeed")

	assert.ErrorIs(t, ledger.Release(ctx, "k-owner", "slow"), storage.ErrNotOwner)
	assert.ErrorIs(t, ledger.Mark(ctx, "k-owner", "slow", time.Hour), storage.ErrNotOwner)

	var owner string
	var ttlMs int64
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT owner, ttl_ms FROM dedup_ledger WHERE key = 'k-owner'`).Scan(&owner, &ttlMs))
	assert.Equal(t, "fresh", owner)
	assert.Equal(t, time.Minute.Milliseconds(), ttlMs, "stale mark must not overwrite the fresh claim")

	require.NoError(t, ledger.Mark(ctx, "k-owner", "fresh", time.Hour))
	require.NoError(t, ledger.Release(ctx, "k-owner", "fresh"))
	require.NoError(t, ledger.Release(ctx, "k-owner", "fresh"), "releasing an absent key is a no-op")

	exists, err := ledger.Exists(ctx, "k-owner")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLedger_ConcurrentClaims(t *testing.T) {
	pool := newTestPool(t)

	ledger := pgstore.NewLedger(pool)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.TryClaim(ctx, "k-race", "w1", time.Minute)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
