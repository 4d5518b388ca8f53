// Package swapvolume serves volume24h from locally recorded swaps.
package swapvolume

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/provider"
	"token-sentinel/internal/storage"
)

// Provider implements provider.MetricProvider over a storage.VolumeReader.
type Provider struct {
	reader storage.VolumeReader
	now    func() time.Time
}

// New creates a Provider. A nil clock uses time.Now.
func New(reader storage.VolumeReader, now func() time.Time) *Provider {
	if now == nil {
		now = time.Now
	}
	return &Provider{reader: reader, now: now}
}

var _ provider.MetricProvider = (*Provider)(nil)

// Name returns "swapvolume".
func (p *Provider) Name() string { return "swapvolume" }

// Supplies returns volume24h.
func (p *Provider) Supplies() []domain.MetricName {
	return []domain.MetricName{domain.MetricVolume24h}
}

// QueryMetric sums the trailing 24h of swaps.
func (p *Provider) QueryMetric(ctx context.Context, chain domain.Chain, address string) (domain.PartialMetrics, error) {
	vol, err := p.reader.Volume24h(ctx, chain, address, p.now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("%w: volume store: %v", provider.ErrUnavailable, err)
	}
	return domain.PartialMetrics{domain.MetricVolume24h: decimal.NewFromFloat(vol)}, nil
}
