// Package notify formats alerts and delivers them through a single sink.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/observability"
)

// DefaultTimeout bounds one delivery attempt.
const DefaultTimeout = 5 * time.Second

// ErrNoSink is returned when the dispatcher has no sink configured.
var ErrNoSink = errors.New("notify: no sink configured")

// Sink delivers a rendered message. Deliver is one-shot: implementations
// must not retry.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// DispatchResult is the outcome of one Dispatch call.
type DispatchResult struct {
	Delivered bool
	Err       error
}

// Options configures a Dispatcher.
type Options struct {
	Sink      Sink
	Formatter *Formatter
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Dispatcher makes exactly one delivery attempt per call.
type Dispatcher struct {
	sink      Sink
	formatter *Formatter
	timeout   time.Duration
	logger    *zap.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		sink:      opts.Sink,
		formatter: opts.Formatter,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
	}
	if d.formatter == nil {
		d.formatter = NewFormatter(DefaultLinkTemplate)
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	return d
}

// Dispatch renders and delivers one alert.
func (d *Dispatcher) Dispatch(ctx context.Context, cand *domain.CandidateToken, m *domain.ResolvedMetrics) DispatchResult {
	if d.sink == nil {
		return DispatchResult{Err: ErrNoSink}
	}

	msg := d.formatter.Format(cand, m)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.sink.Deliver(ctx, msg)
	observability.RecordDispatch(d.sink.Name(), err == nil)

	if err != nil {
		d.logger.Warn("notification delivery failed",
			zap.String("sink", d.sink.Name()),
			zap.String("chain", msg.Chain),
			zap.String("address", msg.Address),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return DispatchResult{Err: fmt.Errorf("deliver via %s: %w", d.sink.Name(), err)}
	}

	d.logger.Info("notification delivered",
		zap.String("sink", d.sink.Name()),
		zap.String("chain", msg.Chain),
		zap.String("address", msg.Address))
	return DispatchResult{Delivered: true}
}
