// Package resolver fills the five required metrics for a candidate from its
// primary record, holder data and ranked fallback providers.
package resolver

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/provider"
	"token-sentinel/internal/sharemath"
)

// DefaultHolderLimit is the number of holders requested from holder providers.
const DefaultHolderLimit = 20

// Options configures a Resolver. Provider slices are in priority order.
type Options struct {
	MetricProviders []provider.MetricProvider
	HolderProviders []provider.HolderProvider
	SupplyProviders []provider.SupplyProvider
	HolderLimit     int
	Logger          *zap.Logger
}

// Resolver builds ResolvedMetrics. It is safe for concurrent use.
type Resolver struct {
	metricProviders []provider.MetricProvider
	holderProviders []provider.HolderProvider
	supplyProviders []provider.SupplyProvider
	holderLimit     int
	logger          *zap.Logger
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := opts.HolderLimit
	if limit < sharemath.TopN {
		limit = DefaultHolderLimit
	}
	return &Resolver{
		metricProviders: opts.MetricProviders,
		holderProviders: opts.HolderProviders,
		supplyProviders: opts.SupplyProviders,
		holderLimit:     limit,
		logger:          logger,
	}
}

// ProviderError records a non-fatal provider failure.
type ProviderError struct {
	Provider string
	Err      error
}

// Resolution is the outcome of one Resolve call.
type Resolution struct {
	Metrics domain.ResolvedMetrics

	// SupplyInvalid is set when a total supply was obtained but was zero or
	// negative, so holder-derived metrics could not be computed.
	SupplyInvalid bool

	// Queried lists providers invoked, in call order.
	Queried []string
	Errors  []ProviderError
}

// Resolve never fails: missing data leaves metrics absent, and provider
// errors are recorded in the Resolution. An expired ctx stops further
// provider calls.
func (r *Resolver) Resolve(ctx context.Context, cand *domain.CandidateToken) *Resolution {
	res := &Resolution{}
	log := r.logger.With(zap.String("chain", cand.Chain.String()), zap.String("address", cand.Address))

	r.fromPrimary(cand, res)

	if missingHolderDerived(&res.Metrics) {
		r.fromHolders(ctx, cand, res, log)
	}

	for _, p := range r.metricProviders {
		if res.Metrics.Complete() {
			break
		}
		if ctx.Err() != nil {
			log.Debug("resolution deadline reached", zap.Strings("missing", names(res.Metrics.Missing())))
			break
		}
		if !r.needs(p, &res.Metrics) {
			continue
		}

		res.Queried = append(res.Queried, p.Name())
		partial, err := p.QueryMetric(ctx, cand.Chain, cand.Address)
		if err != nil {
			r.recordErr(res, log, p.Name(), err)
			continue
		}
		for name, v := range partial {
			if !res.Metrics.Has(name) {
				res.Metrics.Set(name, decimal.NewNullDecimal(v))
			}
		}
	}

	return res
}

func (r *Resolver) fromPrimary(cand *domain.CandidateToken, res *Resolution) {
	for _, name := range domain.AllMetrics {
		raw, ok := cand.Field(string(name))
		if !ok {
			continue
		}
		if v, ok := toDecimal(raw); ok {
			res.Metrics.Set(name, decimal.NewNullDecimal(v))
		}
	}
}

// fromHolders computes top10Percent and devPercent when both a holder list
// and a positive supply are available.
func (r *Resolver) fromHolders(ctx context.Context, cand *domain.CandidateToken, res *Resolution, log *zap.Logger) {
	supply, ok := r.totalSupply(ctx, cand, res, log)
	if !ok {
		return
	}
	if supply.Sign() <= 0 {
		res.SupplyInvalid = true
		log.Debug("total supply not positive", zap.String("supply", supply.String()))
		return
	}

	holders := r.holders(ctx, cand, res, log)
	if len(holders) == 0 {
		return
	}
	domain.SortHoldersDesc(holders)

	if !res.Metrics.Has(domain.MetricTop10Percent) {
		res.Metrics.Top10Percent = sharemath.Top10Percent(holders, supply)
	}
	if !res.Metrics.Has(domain.MetricDevPercent) {
		if !cand.HasCreator() {
			log.Debug("creator unknown, dev share taken from largest holder")
		}
		res.Metrics.DevPercent = sharemath.DevPercent(holders, cand.CreatorAddress, supply)
	}
}

func (r *Resolver) totalSupply(ctx context.Context, cand *domain.CandidateToken, res *Resolution, log *zap.Logger) (*big.Int, bool) {
	if raw, ok := cand.Field(domain.FieldTotalSupply); ok {
		if supply, ok := toAmount(raw); ok {
			return supply, true
		}
		log.Debug("primary totalSupply is not an integer")
	}

	for _, p := range r.supplyProviders {
		if ctx.Err() != nil {
			return nil, false
		}
		res.Queried = append(res.Queried, p.Name())
		supply, err := p.TotalSupply(ctx, cand.Chain, cand.Address)
		if err != nil {
			r.recordErr(res, log, p.Name(), err)
			continue
		}
		if supply != nil {
			return supply, true
		}
	}
	return nil, false
}

func (r *Resolver) holders(ctx context.Context, cand *domain.CandidateToken, res *Resolution, log *zap.Logger) []domain.HolderRecord {
	for _, p := range r.holderProviders {
		if ctx.Err() != nil {
			return nil
		}
		res.Queried = append(res.Queried, p.Name())
		holders, err := p.FetchHolders(ctx, cand.Chain, cand.Address, r.holderLimit)
		if err != nil {
			r.recordErr(res, log, p.Name(), err)
			continue
		}
		if len(holders) > 0 {
			return holders
		}
	}
	return nil
}

// needs reports whether p declares at least one still-missing metric.
func (r *Resolver) needs(p provider.MetricProvider, m *domain.ResolvedMetrics) bool {
	for _, name := range m.Missing() {
		if provider.Supplies(p, name) {
			return true
		}
	}
	return false
}

func missingHolderDerived(m *domain.ResolvedMetrics) bool {
	for _, name := range m.Missing() {
		if name.HolderDerived() {
			return true
		}
	}
	return false
}

func (r *Resolver) recordErr(res *Resolution, log *zap.Logger, name string, err error) {
	res.Errors = append(res.Errors, ProviderError{Provider: name, Err: err})
	log.Warn("provider query failed",
		zap.String("provider", name),
		zap.String("class", provider.Classify(err)),
		zap.Error(err))
}

func names(ms []domain.MetricName) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = string(m)
	}
	return out
}
