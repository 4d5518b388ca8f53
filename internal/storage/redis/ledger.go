// Package redis implements storage.DedupLedger on Redis.
// TryClaim maps to SET key value NX PX ttl, which is atomic on the server.
// Mark and Release compare the stored owner inside a Lua script.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"token-sentinel/internal/storage"
)

// Ledger implements storage.DedupLedger using Redis.
type Ledger struct {
	client goredis.UniversalClient
	now    func() time.Time
}

// entryValue is stored as the key's value. Owner is read back by the scripts;
// the rest is for operator inspection.
type entryValue struct {
	Owner       string `json:"owner"`
	WrittenAtMs int64  `json:"written_at_ms"`
	TTLSeconds  int64  `json:"ttl_seconds"`
}

// KEYS[1] key, ARGV[1] owner, ARGV[2] value, ARGV[3] ttl ms.
// Returns 1 on write, 0 when a live entry belongs to someone else.
var markScript = goredis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, e = pcall(cjson.decode, cur)
  if not ok or type(e) ~= 'table' or e.owner ~= ARGV[1] then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// KEYS[1] key, ARGV[1] owner.
// Returns 1 when the key is gone afterwards, 0 when another owner holds it.
var releaseScript = goredis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
  return 1
end
local ok, e = pcall(cjson.decode, cur)
if ok and type(e) == 'table' and e.owner == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)

// Connect creates a client from a redis:// URL and verifies the connection.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewLedger creates a new Ledger on an existing client.
func NewLedger(client goredis.UniversalClient) *Ledger {
	return &Ledger{client: client, now: time.Now}
}

// Compile-time interface check.
var _ storage.DedupLedger = (*Ledger)(nil)

// TryClaim atomically creates key for owner with ttl if it does not exist.
func (l *Ledger) TryClaim(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if key == "" || owner == "" || ttl <= 0 {
		return false, storage.ErrInvalidInput
	}

	ok, err := l.client.SetNX(ctx, key, l.value(owner, ttl), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: setnx %s: %v", storage.ErrLedgerUnavailable, key, err)
	}
	return ok, nil
}

// Exists reports whether key is present. Redis drops expired keys itself.
func (l *Ledger) Exists(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %v", storage.ErrLedgerUnavailable, key, err)
	}
	return n > 0, nil
}

// Mark overwrites key with a fresh TTL unless another owner holds it.
func (l *Ledger) Mark(ctx context.Context, key, owner string, ttl time.Duration) error {
	if key == "" || owner == "" || ttl <= 0 {
		return storage.ErrInvalidInput
	}

	n, err := markScript.Run(ctx, l.client, []string{key}, owner, l.value(owner, ttl), ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("%w: mark %s: %v", storage.ErrLedgerUnavailable, key, err)
	}
	if n == 0 {
		return storage.ErrNotOwner
	}
	return nil
}

// Release deletes key if owner holds it.
func (l *Ledger) Release(ctx context.Context, key, owner string) error {
	if key == "" || owner == "" {
		return storage.ErrInvalidInput
	}

	n, err := releaseScript.Run(ctx, l.client, []string{key}, owner).Int()
	if err != nil {
		return fmt.Errorf("%w: release %s: %v", storage.ErrLedgerUnavailable, key, err)
	}
	if n == 0 {
		return storage.ErrNotOwner
	}
	return nil
}

func (l *Ledger) value(owner string, ttl time.Duration) string {
	b, _ := json.Marshal(entryValue{
		Owner:       owner,
		WrittenAtMs: l.now().UnixMilli(),
		TTLSeconds:  int64(ttl / time.Second),
	})
	return string(b)
}
