package resolver

import (
	"context"
	"encoding/json"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/provider"
)

type fakeMetric struct {
	name     string
	supplies []domain.MetricName
	result   domain.PartialMetrics
	err      error
	block    bool
	calls    atomic.Int32
}

func (f *fakeMetric) Name() string                  { return f.name }
func (f *fakeMetric) Supplies() []domain.MetricName { return f.supplies }

func (f *fakeMetric) QueryMetric(ctx context.Context, _ domain.Chain, _ string) (domain.PartialMetrics, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, f.err
}

type fakeHolders struct {
	holders []domain.HolderRecord
	err     error
	calls   atomic.Int32
}

func (f *fakeHolders) Name() string { return "holders" }

func (f *fakeHolders) FetchHolders(context.Context, domain.Chain, string, int) ([]domain.HolderRecord, error) {
	f.calls.Add(1)
	return f.holders, f.err
}

type fakeSupply struct {
	supply *big.Int
	err    error
	calls  atomic.Int32
}

func (f *fakeSupply) Name() string { return "supply" }

func (f *fakeSupply) TotalSupply(context.Context, domain.Chain, string) (*big.Int, error) {
	f.calls.Add(1)
	return f.supply, f.err
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func holder(addr string, bal int64) domain.HolderRecord {
	return domain.HolderRecord{Address: addr, Balance: big.NewInt(bal)}
}

func candidate(fields map[string]any) *domain.CandidateToken {
	return &domain.CandidateToken{
		Chain:     domain.ChainSolana,
		Address:   "MintAAA",
		Source:    domain.SourcePoll,
		RawFields: fields,
	}
}

func TestResolve_PrimaryRecordOnly(t *testing.T) {
	r := New(Options{})
	res := r.Resolve(context.Background(), candidate(map[string]any{
		"marketcap":    20000.0,
		"holders":      json.Number("50"),
		"top10Percent": "15.00",
		"devPercent":   1,
		"volume24h":    decimal.NewFromInt(500),
	}))

	assert.True(t, res.Metrics.Complete())
	assert.True(t, res.Metrics.Marketcap.Decimal.Equal(dec("20000")))
	assert.True(t, res.Metrics.Holders.Decimal.Equal(dec("50")))
	assert.True(t, res.Metrics.Top10Percent.Decimal.Equal(dec("15")))
	assert.Empty(t, res.Queried)
}

func TestResolve_FallbackPriorityAndLaziness(t *testing.T) {
	first := &fakeMetric{
		name:     "first",
		supplies: []domain.MetricName{domain.MetricMarketcap, domain.MetricVolume24h},
		result:   domain.PartialMetrics{domain.MetricMarketcap: dec("100")},
	}
	second := &fakeMetric{
		name:     "second",
		supplies: []domain.MetricName{domain.MetricMarketcap, domain.MetricVolume24h},
		result: domain.PartialMetrics{
			domain.MetricMarketcap: dec("999"),
			domain.MetricVolume24h: dec("5"),
		},
	}
	unneeded := &fakeMetric{
		name:     "unneeded",
		supplies: []domain.MetricName{domain.MetricMarketcap},
		result:   domain.PartialMetrics{domain.MetricMarketcap: dec("1")},
	}

	r := New(Options{MetricProviders: []provider.MetricProvider{first, second, unneeded}})
	res := r.Resolve(context.Background(), candidate(map[string]any{"holders": 50}))

	assert.True(t, res.Metrics.Marketcap.Decimal.Equal(dec("100")), "first non-null result wins")
	assert.True(t, res.Metrics.Volume24h.Decimal.Equal(dec("5")))
	assert.Equal(t, int32(1), first.calls.Load())
	assert.Equal(t, int32(1), second.calls.Load())
	assert.Equal(t, int32(0), unneeded.calls.Load(), "provider with nothing missing must not be called")
	assert.Equal(t, []string{"first", "second"}, res.Queried)
}

func TestResolve_ProviderErrorIsNonFatal(t *testing.T) {
	failing := &fakeMetric{
		name:     "failing",
		supplies: []domain.MetricName{domain.MetricVolume24h},
		err:      provider.ErrUnavailable,
	}
	backup := &fakeMetric{
		name:     "backup",
		supplies: []domain.MetricName{domain.MetricVolume24h},
		result:   domain.PartialMetrics{domain.MetricVolume24h: dec("7")},
	}

	r := New(Options{MetricProviders: []provider.MetricProvider{failing, backup}})
	res := r.Resolve(context.Background(), candidate(nil))

	assert.True(t, res.Metrics.Volume24h.Decimal.Equal(dec("7")))
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "failing", res.Errors[0].Provider)
	assert.ErrorIs(t, res.Errors[0].Err, provider.ErrUnavailable)
}

func TestResolve_HolderDerivedMetrics(t *testing.T) {
	holders := &fakeHolders{holders: []domain.HolderRecord{
		holder("dev", 100),
		holder("whale", 500),
		holder("small", 80),
	}}

	cand := candidate(map[string]any{"totalSupply": "10000"})
	cand.CreatorAddress = "dev"

	r := New(Options{HolderProviders: []provider.HolderProvider{holders}})
	res := r.Resolve(context.Background(), cand)

	assert.Equal(t, "6.8", res.Metrics.Top10Percent.Decimal.String())
	assert.Equal(t, "1", res.Metrics.DevPercent.Decimal.String())
	assert.False(t, res.SupplyInvalid)
}

func TestResolve_SkipsHoldersWhenSharesPresent(t *testing.T) {
	holders := &fakeHolders{holders: []domain.HolderRecord{holder("a", 250)}}
	supply := &fakeSupply{supply: big.NewInt(1000)}

	r := New(Options{
		HolderProviders: []provider.HolderProvider{holders},
		SupplyProviders: []provider.SupplyProvider{supply},
	})
	res := r.Resolve(context.Background(), candidate(map[string]any{
		"top10Percent": "12",
		"devPercent":   "3",
	}))

	assert.Equal(t, "12", res.Metrics.Top10Percent.Decimal.String())
	assert.Equal(t, int32(0), holders.calls.Load())
	assert.Equal(t, int32(0), supply.calls.Load())
}

func TestResolve_DevFallsBackToLargestHolder(t *testing.T) {
	holders := &fakeHolders{holders: []domain.HolderRecord{holder("a", 250), holder("b", 100)}}
	supply := &fakeSupply{supply: big.NewInt(1000)}

	r := New(Options{
		HolderProviders: []provider.HolderProvider{holders},
		SupplyProviders: []provider.SupplyProvider{supply},
	})
	res := r.Resolve(context.Background(), candidate(nil))

	assert.True(t, res.Metrics.DevPercent.Decimal.Equal(dec("25")))
	assert.True(t, res.Metrics.Top10Percent.Decimal.Equal(dec("35")))
	assert.Equal(t, int32(1), supply.calls.Load())
}

func TestResolve_ZeroSupplyLeavesHolderMetricsAbsent(t *testing.T) {
	holders := &fakeHolders{holders: []domain.HolderRecord{holder("a", 250)}}

	r := New(Options{HolderProviders: []provider.HolderProvider{holders}})
	res := r.Resolve(context.Background(), candidate(map[string]any{
		"marketcap":   20000,
		"holders":     50,
		"volume24h":   500,
		"totalSupply": "0",
	}))

	assert.True(t, res.SupplyInvalid)
	assert.False(t, res.Metrics.Top10Percent.Valid)
	assert.False(t, res.Metrics.DevPercent.Valid)
	assert.Equal(t, int32(0), holders.calls.Load(), "holders are not fetched without a usable supply")
}

func TestResolve_MissingSupplyIsNotInvalid(t *testing.T) {
	supply := &fakeSupply{err: provider.ErrNotFound}
	holders := &fakeHolders{holders: []domain.HolderRecord{holder("a", 1)}}

	r := New(Options{
		HolderProviders: []provider.HolderProvider{holders},
		SupplyProviders: []provider.SupplyProvider{supply},
	})
	res := r.Resolve(context.Background(), candidate(nil))

	assert.False(t, res.SupplyInvalid)
	assert.False(t, res.Metrics.Top10Percent.Valid)
	assert.Len(t, res.Errors, 1)
}

func TestResolve_MissingHoldersLeavesHolderMetricsAbsent(t *testing.T) {
	holders := &fakeHolders{err: provider.ErrUnavailable}

	r := New(Options{HolderProviders: []provider.HolderProvider{holders}})
	res := r.Resolve(context.Background(), candidate(map[string]any{"totalSupply": "1000"}))

	assert.False(t, res.Metrics.Top10Percent.Valid)
	assert.False(t, res.Metrics.DevPercent.Valid)
	assert.False(t, res.SupplyInvalid)
}

func TestResolve_DeadlineStopsProviders(t *testing.T) {
	slow := &fakeMetric{
		name:     "slow",
		supplies: []domain.MetricName{domain.MetricMarketcap},
		block:    true,
	}
	after := &fakeMetric{
		name:     "after",
		supplies: []domain.MetricName{domain.MetricVolume24h},
		result:   domain.PartialMetrics{domain.MetricVolume24h: dec("1")},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r := New(Options{MetricProviders: []provider.MetricProvider{slow, after}})

	start := time.Now()
	res := r.Resolve(ctx, candidate(nil))

	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, res.Metrics.Marketcap.Valid)
	assert.False(t, res.Metrics.Volume24h.Valid)
	assert.Equal(t, int32(0), after.calls.Load())
}

func TestToAmount(t *testing.T) {
	tests := []struct {
		in   any
		want string
		ok   bool
	}{
		{"123456789012345678901234567890", "123456789012345678901234567890", true},
		{json.Number("42"), "42", true},
		{float64(1e6), "1000000", true},
		{float64(1.5), "", false},
		{"1.5", "", false},
		{"", "", false},
		{true, "", false},
	}

	for _, tt := range tests {
		got, ok := toAmount(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got.String())
		}
	}
}

func TestToDecimal_RejectsNonNumeric(t *testing.T) {
	_, ok := toDecimal("abc")
	assert.False(t, ok)
	_, ok = toDecimal(map[string]any{})
	assert.False(t, ok)
	d, ok := toDecimal(" 12.5 ")
	assert.True(t, ok)
	assert.Equal(t, "12.5", d.String())
}
