package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/observability"
)

// GuardConfig bounds calls to one provider.
type GuardConfig struct {
	Timeout time.Duration // per call
	RPS     float64       // token bucket refill; <= 0 disables limiting
	Burst   int

	// Breaker settings.
	MaxRequests         uint32        // probes allowed while half-open
	Interval            time.Duration // closed-state count reset
	OpenTimeout         time.Duration // open -> half-open
	ConsecutiveFailures uint32        // trip threshold
}

// DefaultGuardConfig returns conservative defaults.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:             3 * time.Second,
		RPS:                 5,
		Burst:               5,
		MaxRequests:         1,
		Interval:            time.Minute,
		OpenTimeout:         30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Guard applies a timeout, rate limit and circuit breaker to calls.
type Guard struct {
	name    string
	cfg     GuardConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewGuard creates a Guard for the named provider.
func NewGuard(name string, cfg GuardConfig, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultGuardConfig().ConsecutiveFailures
	}

	g := &Guard{name: name, cfg: cfg, logger: logger.With(zap.String("provider", name))}

	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		// A token the source does not know is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			observability.SetBreakerState(name, int(to))
		},
	})

	return g
}

// Name returns the guarded provider name.
func (g *Guard) Name() string {
	return g.name
}

// Do runs fn under the guard. Limiter waits and breaker rejections surface
// as ErrUnavailable; a cancelled or expired parent context does too.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()

	err := g.do(ctx, fn)

	observability.RecordProviderCall(g.name, Classify(err), time.Since(start).Seconds())
	return err
}

func (g *Guard) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %s rate limit: %v", ErrUnavailable, g.name, err)
		}
	}

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %s breaker: %v", ErrUnavailable, g.name, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, g.name, err)
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrMalformed), errors.Is(err, ErrNotFound):
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, g.name, err)
}

// GuardedMetric wraps a MetricProvider with a Guard.
type GuardedMetric struct {
	inner MetricProvider
	guard *Guard
}

// NewGuardedMetric wraps p.
func NewGuardedMetric(p MetricProvider, cfg GuardConfig, logger *zap.Logger) *GuardedMetric {
	return &GuardedMetric{inner: p, guard: NewGuard(p.Name(), cfg, logger)}
}

// Name returns the wrapped provider name.
func (p *GuardedMetric) Name() string { return p.inner.Name() }

// Supplies returns the wrapped provider metrics.
func (p *GuardedMetric) Supplies() []domain.MetricName { return p.inner.Supplies() }

// QueryMetric calls the wrapped provider under the guard.
func (p *GuardedMetric) QueryMetric(ctx context.Context, chain domain.Chain, address string) (domain.PartialMetrics, error) {
	var out domain.PartialMetrics
	err := p.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = p.inner.QueryMetric(ctx, chain, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GuardedHolder wraps a HolderProvider with a Guard.
type GuardedHolder struct {
	inner HolderProvider
	guard *Guard
}

// NewGuardedHolder wraps p.
func NewGuardedHolder(p HolderProvider, cfg GuardConfig, logger *zap.Logger) *GuardedHolder {
	return &GuardedHolder{inner: p, guard: NewGuard(p.Name()+"_holders", cfg, logger)}
}

// Name returns the wrapped provider name.
func (p *GuardedHolder) Name() string { return p.inner.Name() }

// FetchHolders calls the wrapped provider under the guard.
func (p *GuardedHolder) FetchHolders(ctx context.Context, chain domain.Chain, address string, limit int) ([]domain.HolderRecord, error) {
	var out []domain.HolderRecord
	err := p.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = p.inner.FetchHolders(ctx, chain, address, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GuardedSupply wraps a SupplyProvider with a Guard.
type GuardedSupply struct {
	inner SupplyProvider
	guard *Guard
}

// NewGuardedSupply wraps p.
func NewGuardedSupply(p SupplyProvider, cfg GuardConfig, logger *zap.Logger) *GuardedSupply {
	return &GuardedSupply{inner: p, guard: NewGuard(p.Name()+"_supply", cfg, logger)}
}

// Name returns the wrapped provider name.
func (p *GuardedSupply) Name() string { return p.inner.Name() }

// TotalSupply calls the wrapped provider under the guard.
func (p *GuardedSupply) TotalSupply(ctx context.Context, chain domain.Chain, address string) (*big.Int, error) {
	var out *big.Int
	err := p.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = p.inner.TotalSupply(ctx, chain, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
