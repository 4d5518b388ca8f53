// Package provider defines the fallback data sources consulted by the
// resolver and the guard that bounds every call to them.
package provider

import (
	"context"
	"errors"
	"math/big"

	"token-sentinel/internal/domain"
)

// Sentinel errors. Every provider error wraps exactly one of them.
var (
	// ErrUnavailable covers timeouts, transport failures, 429, 5xx and an open breaker.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrMalformed is returned when a response cannot be interpreted.
	ErrMalformed = errors.New("provider response malformed")
	// ErrNotFound is returned when the source has no record for the token.
	ErrNotFound = errors.New("token not found by provider")
)

// MetricProvider returns a subset of the scalar metrics for a token.
type MetricProvider interface {
	Name() string
	// Supplies lists the metrics this provider can return.
	Supplies() []domain.MetricName
	// QueryMetric returns only the metrics the source had.
	QueryMetric(ctx context.Context, chain domain.Chain, address string) (domain.PartialMetrics, error)
}

// HolderProvider returns the largest holders of a token.
type HolderProvider interface {
	Name() string
	// FetchHolders returns at most limit holders sorted by balance descending.
	FetchHolders(ctx context.Context, chain domain.Chain, address string, limit int) ([]domain.HolderRecord, error)
}

// SupplyProvider returns the raw total supply of a token.
type SupplyProvider interface {
	Name() string
	TotalSupply(ctx context.Context, chain domain.Chain, address string) (*big.Int, error)
}

// Supplies reports whether p declares metric.
func Supplies(p MetricProvider, metric domain.MetricName) bool {
	for _, m := range p.Supplies() {
		if m == metric {
			return true
		}
	}
	return false
}

// Classify returns the short label of err for logs and metrics.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	}
	return "error"
}
