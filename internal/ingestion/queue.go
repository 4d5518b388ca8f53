package ingestion

import (
	"context"
	"time"

	"go.uber.org/zap"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/observability"
)

// BatchHandler processes one batch drained from the queue.
type BatchHandler func(ctx context.Context, batch []*domain.CandidateToken)

// QueueOptions configures a Queue.
type QueueOptions struct {
	Size          int           // capacity; Offer fails beyond it
	BatchSize     int           // maximum candidates per handler call
	FlushInterval time.Duration // partial batches are flushed after this long
	Logger        *zap.Logger
}

// Queue is the bounded intake queue between transports and the pipeline.
// Producers never block: a full queue rejects with ErrQueueFull.
type Queue struct {
	ch            chan *domain.CandidateToken
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger
}

// NewQueue creates a queue with defaults for zero options.
func NewQueue(opts QueueOptions) *Queue {
	if opts.Size <= 0 {
		opts.Size = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Queue{
		ch:            make(chan *domain.CandidateToken, opts.Size),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		logger:        opts.Logger,
	}
}

// Offer enqueues a candidate without blocking.
func (q *Queue) Offer(c *domain.CandidateToken) error {
	select {
	case q.ch <- c:
		observability.UpdateQueueDepth(len(q.ch))
		return nil
	default:
		observability.RecordQueueRejected()
		return ErrQueueFull
	}
}

// OfferAll enqueues candidates in order and stops at the first rejection.
// It returns the number accepted.
func (q *Queue) OfferAll(cands []*domain.CandidateToken) (int, error) {
	for i, c := range cands {
		if err := q.Offer(c); err != nil {
			return i, err
		}
	}
	return len(cands), nil
}

// Len returns the number of queued candidates.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Run drains the queue into h until ctx is cancelled. A batch is handed off
// when it reaches BatchSize or when FlushInterval passes with a partial batch.
// Batches are processed one at a time; concurrency lives in the handler.
func (q *Queue) Run(ctx context.Context, h BatchHandler) error {
	ticker := time.NewTicker(q.flushInterval)
	defer ticker.Stop()

	batch := make([]*domain.CandidateToken, 0, q.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		observability.UpdateQueueDepth(len(q.ch))
		h(ctx, batch)
		batch = make([]*domain.CandidateToken, 0, q.batchSize)
	}

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				q.logger.Warn("intake queue stopped with pending candidates",
					zap.Int("pending", len(batch)+len(q.ch)))
			}
			return ctx.Err()
		case c := <-q.ch:
			batch = append(batch, c)
			if len(batch) >= q.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
