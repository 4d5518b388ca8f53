// Package pipeline sequences ledger claim, metric resolution, filtering and
// dispatch for each candidate token.
//
// Per token:
//
//	Exists -> TryClaim(lease) -> Resolve -> Filter -> Dispatch -> Mark | Release
//
// Nothing from one token propagates to the batch caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/filter"
	"token-sentinel/internal/notify"
	"token-sentinel/internal/observability"
	"token-sentinel/internal/resolver"
	"token-sentinel/internal/storage"
)

// Defaults.
const (
	DefaultWorkers       = 8
	DefaultTokenDeadline = 20 * time.Second
	DefaultLedgerTimeout = 2 * time.Second
)

// MetricResolver builds the metrics bundle for a candidate.
type MetricResolver interface {
	Resolve(ctx context.Context, cand *domain.CandidateToken) *resolver.Resolution
}

// Dispatcher delivers one alert.
type Dispatcher interface {
	Dispatch(ctx context.Context, cand *domain.CandidateToken, m *domain.ResolvedMetrics) notify.DispatchResult
}

// Options for creating an Orchestrator.
type Options struct {
	// Required
	Ledger     storage.DedupLedger
	Resolver   MetricResolver
	Dispatcher Dispatcher
	Thresholds filter.Thresholds

	// Optional
	TTL           TTLPolicy
	KeyPrefix     string
	Workers       int
	TokenDeadline time.Duration
	LedgerTimeout time.Duration
	Logger        *zap.Logger
}

// Orchestrator evaluates candidates. It is safe for concurrent use.
type Orchestrator struct {
	ledger        storage.DedupLedger
	resolver      MetricResolver
	dispatcher    Dispatcher
	evaluator     *filter.Evaluator
	ttl           TTLPolicy
	keyPrefix     string
	workers       int
	tokenDeadline time.Duration
	ledgerTimeout time.Duration
	logger        *zap.Logger
}

// New creates a new Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Ledger == nil {
		return nil, errors.New("pipeline: ledger is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("pipeline: resolver is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("pipeline: dispatcher is required")
	}

	ttl := opts.TTL
	if ttl == (TTLPolicy{}) {
		ttl = DefaultTTLPolicy()
	}
	if err := ttl.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	o := &Orchestrator{
		ledger:        opts.Ledger,
		resolver:      opts.Resolver,
		dispatcher:    opts.Dispatcher,
		evaluator:     filter.NewEvaluator(opts.Thresholds),
		ttl:           ttl,
		keyPrefix:     opts.KeyPrefix,
		workers:       opts.Workers,
		tokenDeadline: opts.TokenDeadline,
		ledgerTimeout: opts.LedgerTimeout,
		logger:        opts.Logger,
	}
	if o.workers <= 0 {
		o.workers = DefaultWorkers
	}
	if o.tokenDeadline <= 0 {
		o.tokenDeadline = DefaultTokenDeadline
	}
	if o.ledgerTimeout <= 0 {
		o.ledgerTimeout = DefaultLedgerTimeout
	}
	if err := o.ttl.CheckLease(o.tokenDeadline, o.ledgerTimeout); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o, nil
}

// Result describes one evaluation.
type Result struct {
	Candidate *domain.CandidateToken
	Key       string
	Outcome   Outcome

	// Claimed is true when this evaluation owned the ledger key.
	Claimed bool
	// FailOpen is true when the ledger was unreachable and evaluation
	// continued without a claim.
	FailOpen bool

	Resolution *resolver.Resolution
	Filter     *filter.Result
	Dispatch   *notify.DispatchResult

	// Err carries the panic or delivery error, if any.
	Err      error
	Duration time.Duration
}

// BatchResult summarizes one EvaluateBatch call.
type BatchResult struct {
	ID       string
	Results  []*Result
	Counts   map[Outcome]int
	Duration time.Duration
}

// EvaluateBatch evaluates candidates on a bounded worker pool. Results are
// in input order. Duplicates within the batch race on the ledger claim and
// only one of them runs to completion.
func (o *Orchestrator) EvaluateBatch(ctx context.Context, cands []*domain.CandidateToken) *BatchResult {
	start := time.Now()
	batch := &BatchResult{
		ID:      uuid.NewString(),
		Results: make([]*Result, len(cands)),
		Counts:  make(map[Outcome]int),
	}
	log := o.logger.With(zap.String("batch_id", batch.ID))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, cand := range cands {
		g.Go(func() error {
			batch.Results[i] = o.evaluate(gctx, cand, log)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range batch.Results {
		batch.Counts[r.Outcome]++
	}
	batch.Duration = time.Since(start)
	observability.RecordBatch(len(cands), batch.Duration.Seconds())

	log.Info("batch evaluated",
		zap.Int("size", len(cands)),
		zap.Any("outcomes", batch.Counts),
		zap.Duration("duration", batch.Duration))
	return batch
}

// Evaluate runs one candidate through the pipeline.
func (o *Orchestrator) Evaluate(ctx context.Context, cand *domain.CandidateToken) *Result {
	return o.evaluate(ctx, cand, o.logger)
}

func (o *Orchestrator) evaluate(ctx context.Context, cand *domain.CandidateToken, logger *zap.Logger) (res *Result) {
	start := time.Now()
	res = &Result{Candidate: cand}
	if cand == nil || cand.Chain == "" || cand.Address == "" {
		res.Outcome = OutcomeInvalid
		res.Err = errors.New("candidate without chain or address")
		observability.RecordTokenOutcome(string(res.Outcome), 0)
		return res
	}

	res.Key = storage.LedgerKey(o.keyPrefix, cand.Chain, cand.Address)
	owner := uuid.NewString()
	log := logger.With(
		zap.String("chain", cand.Chain.String()),
		zap.String("address", cand.Address),
		zap.String("source", cand.Source.String()))

	defer func() {
		if p := recover(); p != nil {
			res.Outcome = OutcomeError
			res.Err = fmt.Errorf("panic: %v", p)
			log.Error("evaluation panicked", zap.Any("panic", p), zap.Stack("stack"))
			if res.Claimed {
				o.release(ctx, res.Key, owner, log)
			}
		}
		res.Duration = time.Since(start)
		observability.RecordTokenOutcome(string(res.Outcome), res.Duration.Seconds())
		log.Info("token evaluated",
			zap.String("outcome", string(res.Outcome)),
			zap.Bool("fail_open", res.FailOpen),
			zap.Duration("duration", res.Duration))
	}()

	tokenCtx, cancel := context.WithTimeout(ctx, o.tokenDeadline)
	defer cancel()

	if o.seen(tokenCtx, res.Key, log) {
		res.Outcome = OutcomeSkipped
		return res
	}

	claimed, err := o.claim(tokenCtx, res.Key, owner)
	switch {
	case err != nil:
		res.FailOpen = true
		log.Error("ledger unavailable, evaluating without claim", zap.Error(err))
	case !claimed:
		res.Outcome = OutcomeSkipped
		return res
	default:
		res.Claimed = true
	}

	res.Resolution = o.resolver.Resolve(tokenCtx, cand)
	res.Filter = o.evaluator.Evaluate(res.Resolution.Metrics)

	if !res.Filter.Passed {
		res.Outcome = classify(res.Resolution, res.Filter)
		log.Debug("filter rejected token",
			zap.String("outcome", string(res.Outcome)),
			zap.Any("failed_checks", res.Filter.FailedChecks()))
		o.mark(ctx, res.Key, owner, res.Outcome, log)
		return res
	}

	dispatch := o.dispatcher.Dispatch(tokenCtx, cand, &res.Resolution.Metrics)
	res.Dispatch = &dispatch
	if !dispatch.Delivered {
		res.Outcome = OutcomeDeliveryFailed
		res.Err = dispatch.Err
		if res.Claimed {
			o.release(ctx, res.Key, owner, log)
		}
		return res
	}

	res.Outcome = OutcomeDelivered
	o.mark(ctx, res.Key, owner, res.Outcome, log)
	return res
}

// classify picks the reason a token failed the filter.
func classify(r *resolver.Resolution, f *filter.Result) Outcome {
	switch {
	case r.SupplyInvalid:
		return OutcomeArithmeticInvalid
	case f.OnlyMissing():
		return OutcomeMissingData
	}
	return OutcomeRejected
}

// seen is the early-exit check. A ledger error is logged and treated as
// unseen; the claim that follows is authoritative.
func (o *Orchestrator) seen(ctx context.Context, key string, log *zap.Logger) bool {
	ctx, cancel := context.WithTimeout(ctx, o.ledgerTimeout)
	defer cancel()

	start := time.Now()
	exists, err := o.ledger.Exists(ctx, key)
	observability.RecordLedgerOp("exists", time.Since(start).Seconds(), err)
	if err != nil {
		log.Warn("ledger exists check failed", zap.Error(err))
		return false
	}
	return exists
}

func (o *Orchestrator) claim(ctx context.Context, key, owner string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, o.ledgerTimeout)
	defer cancel()

	start := time.Now()
	ok, err := o.ledger.TryClaim(ctx, key, owner, o.ttl.Lease)
	observability.RecordLedgerOp("claim", time.Since(start).Seconds(), err)
	return ok, err
}

// mark and release run detached from the token deadline so that a slow
// resolution still leaves the ledger consistent. Both are scoped to owner:
// once a lease has been taken over, the late writer changes nothing.
func (o *Orchestrator) mark(ctx context.Context, key, owner string, outcome Outcome, log *zap.Logger) {
	ttl, ok := o.ttl.For(outcome)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.ledgerTimeout)
	defer cancel()

	start := time.Now()
	err := o.ledger.Mark(ctx, key, owner, ttl)
	observability.RecordLedgerOp("mark", time.Since(start).Seconds(), err)
	switch {
	case errors.Is(err, storage.ErrNotOwner):
		log.Warn("ledger entry taken over, mark skipped", zap.Duration("ttl", ttl))
	case err != nil:
		log.Error("ledger mark failed", zap.Duration("ttl", ttl), zap.Error(err))
	}
}

func (o *Orchestrator) release(ctx context.Context, key, owner string, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.ledgerTimeout)
	defer cancel()

	start := time.Now()
	err := o.ledger.Release(ctx, key, owner)
	observability.RecordLedgerOp("release", time.Since(start).Seconds(), err)
	switch {
	case errors.Is(err, storage.ErrNotOwner):
		log.Warn("ledger entry taken over, release skipped")
	case err != nil:
		log.Error("ledger release failed", zap.Error(err))
	}
}
