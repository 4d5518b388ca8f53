package clickhouse

import (
	"context"
	"fmt"
	"time"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/storage"
)

// volumeWindow is the trailing window summed by Volume24h.
const volumeWindow = 24 * time.Hour

// Swap is one quote-denominated trade recorded for a token.
type Swap = storage.SwapRecord

// VolumeStore records swaps and serves trailing volume sums.
type VolumeStore struct {
	conn *Conn
}

// NewVolumeStore creates a new VolumeStore.
func NewVolumeStore(conn *Conn) *VolumeStore {
	return &VolumeStore{conn: conn}
}

// Compile-time interface checks.
var (
	_ storage.VolumeReader = (*VolumeStore)(nil)
	_ storage.VolumeWriter = (*VolumeStore)(nil)
)

// InsertSwaps appends swaps in one batch.
func (s *VolumeStore) InsertSwaps(ctx context.Context, swaps []Swap) error {
	if len(swaps) == 0 {
		return nil
	}

	for _, sw := range swaps {
		if sw.Address == "" || sw.TimestampMs < 0 || sw.VolumeUSD < 0 {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO token_swap_volume (chain, address, timestamp_ms, volume_usd)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, sw := range swaps {
		if err := batch.Append(string(sw.Chain), sw.Address, uint64(sw.TimestampMs), sw.VolumeUSD); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Volume24h sums volume over (now-24h, now].
func (s *VolumeStore) Volume24h(ctx context.Context, chain domain.Chain, address string, now time.Time) (float64, error) {
	query := `
		SELECT count(), sum(volume_usd)
		FROM token_swap_volume
		WHERE chain = ? AND address = ? AND timestamp_ms > ? AND timestamp_ms <= ?
	`

	end := now.UnixMilli()
	start := now.Add(-volumeWindow).UnixMilli()
	if start < 0 {
		start = 0
	}

	var (
		count uint64
		total float64
	)
	err := s.conn.QueryRow(ctx, query, string(chain), address, uint64(start), uint64(end)).Scan(&count, &total)
	if err != nil {
		return 0, fmt.Errorf("query volume: %w", err)
	}
	if count == 0 {
		return 0, storage.ErrNotFound
	}
	return total, nil
}

// RecentSwaps returns swaps for a token in [start, end], ordered by time.
func (s *VolumeStore) RecentSwaps(ctx context.Context, chain domain.Chain, address string, start, end int64) ([]Swap, error) {
	query := `
		SELECT chain, address, timestamp_ms, volume_usd
		FROM token_swap_volume
		WHERE chain = ? AND address = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, string(chain), address, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query swaps: %w", err)
	}
	defer rows.Close()

	return scanSwaps(rows)
}

func scanSwaps(rows chRows) ([]Swap, error) {
	var swaps []Swap
	for rows.Next() {
		var (
			sw    Swap
			chain string
			ts    uint64
		)
		if err := rows.Scan(&chain, &sw.Address, &ts, &sw.VolumeUSD); err != nil {
			return nil, fmt.Errorf("scan swap row: %w", err)
		}
		sw.Chain = domain.Chain(chain)
		sw.TimestampMs = int64(ts)
		swaps = append(swaps, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap rows: %w", err)
	}
	return swaps, nil
}
