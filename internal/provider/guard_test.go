package provider

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentinel/internal/domain"
)

type fakeMetric struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (f *fakeMetric) Name() string { return "fake" }

func (f *fakeMetric) Supplies() []domain.MetricName {
	return []domain.MetricName{domain.MetricMarketcap}
}

func (f *fakeMetric) QueryMetric(ctx context.Context, _ domain.Chain, _ string) (domain.PartialMetrics, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return domain.PartialMetrics{domain.MetricMarketcap: decimal.NewFromInt(1)}, nil
}

func testGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:             100 * time.Millisecond,
		MaxRequests:         1,
		Interval:            time.Minute,
		OpenTimeout:         time.Minute,
		ConsecutiveFailures: 3,
	}
}

func TestGuard_Success(t *testing.T) {
	inner := &fakeMetric{}
	p := NewGuardedMetric(inner, testGuardConfig(), nil)

	got, err := p.QueryMetric(context.Background(), domain.ChainSolana, "mint")
	require.NoError(t, err)
	assert.True(t, got[domain.MetricMarketcap].Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "fake", p.Name())
	assert.True(t, Supplies(p, domain.MetricMarketcap))
	assert.False(t, Supplies(p, domain.MetricHolders))
}

func TestGuard_BreakerOpensOnUnavailable(t *testing.T) {
	inner := &fakeMetric{err: ErrUnavailable}
	p := NewGuardedMetric(inner, testGuardConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.QueryMetric(ctx, domain.ChainSolana, "mint")
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, p.guard.breaker.State())

	_, err := p.QueryMetric(ctx, domain.ChainSolana, "mint")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), inner.calls.Load(), "open breaker must short-circuit")
}

func TestGuard_NotFoundDoesNotTrip(t *testing.T) {
	inner := &fakeMetric{err: ErrNotFound}
	p := NewGuardedMetric(inner, testGuardConfig(), nil)

	for i := 0; i < 10; i++ {
		_, err := p.QueryMetric(context.Background(), domain.ChainSolana, "mint")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, p.guard.breaker.State())
	assert.Equal(t, int32(10), inner.calls.Load())
}

func TestGuard_TimeoutIsUnavailable(t *testing.T) {
	inner := &fakeMetric{delay: time.Second}
	p := NewGuardedMetric(inner, testGuardConfig(), nil)

	start := time.Now()
	_, err := p.QueryMetric(context.Background(), domain.ChainSolana, "mint")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGuard_UnclassifiedErrorWrapped(t *testing.T) {
	inner := &fakeMetric{err: errors.New("socket closed")}
	p := NewGuardedMetric(inner, testGuardConfig(), nil)

	_, err := p.QueryMetric(context.Background(), domain.ChainSolana, "mint")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "unavailable", Classify(err))
}

func TestGuard_RateLimitRespectsDeadline(t *testing.T) {
	cfg := testGuardConfig()
	cfg.RPS = 0.1
	cfg.Burst = 1
	g := NewGuard("slow", cfg, nil)

	noop := func(context.Context) error { return nil }
	require.NoError(t, g.Do(context.Background(), noop))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := g.Do(ctx, noop)
	assert.ErrorIs(t, err, ErrUnavailable)
}

type fakeSupply struct{}

func (fakeSupply) Name() string { return "supply" }

func (fakeSupply) TotalSupply(context.Context, domain.Chain, string) (*big.Int, error) {
	return big.NewInt(42), nil
}

func TestGuardedSupply(t *testing.T) {
	p := NewGuardedSupply(fakeSupply{}, testGuardConfig(), nil)
	got, err := p.TotalSupply(context.Background(), domain.ChainSolana, "mint")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Int64())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "ok", Classify(nil))
	assert.Equal(t, "not_found", Classify(ErrNotFound))
	assert.Equal(t, "malformed", Classify(ErrMalformed))
	assert.Equal(t, "timeout", Classify(context.DeadlineExceeded))
	assert.Equal(t, "error", Classify(errors.New("x")))
}

func TestGetJSON_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"ok", http.StatusOK, `{"a":1}`, nil},
		{"not found", http.StatusNotFound, ``, ErrNotFound},
		{"rate limited", http.StatusTooManyRequests, ``, ErrUnavailable},
		{"server error", http.StatusBadGateway, ``, ErrUnavailable},
		{"bad request", http.StatusBadRequest, ``, ErrMalformed},
		{"invalid json", http.StatusOK, `{"a":`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
			res, err := GetJSON(context.Background(), server.Client(), req)
			if tt.want == nil {
				require.NoError(t, err)
				assert.Equal(t, int64(1), res.Get("a").Int())
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
