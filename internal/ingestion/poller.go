package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/observability"
)

const maxPollBody = 8 << 20

// PollTarget is one feed endpoint polled on the schedule.
type PollTarget struct {
	Source  string // mapping name used to normalize the response
	URL     string
	Headers map[string]string
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Targets    []PollTarget
	Schedule   string // cron expression with optional seconds, or a descriptor such as "@every 30s"
	Normalizer *Normalizer
	Queue      *Queue
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Poller fetches feed endpoints on a cron schedule and enqueues candidates.
type Poller struct {
	targets    []PollTarget
	schedule   string
	normalizer *Normalizer
	queue      *Queue
	client     *http.Client
	logger     *zap.Logger
}

// NewPoller validates options and creates a poller.
func NewPoller(opts PollerOptions) (*Poller, error) {
	if opts.Normalizer == nil || opts.Queue == nil {
		return nil, errors.New("poller: normalizer and queue are required")
	}
	for _, t := range opts.Targets {
		if !opts.Normalizer.Has(t.Source) {
			return nil, fmt.Errorf("poller: %w: %s", ErrUnknownSource, t.Source)
		}
		if t.URL == "" {
			return nil, fmt.Errorf("poller: target %s has no url", t.Source)
		}
	}
	if opts.Schedule == "" {
		opts.Schedule = "@every 30s"
	}
	if _, err := cronParser.Parse(opts.Schedule); err != nil {
		return nil, fmt.Errorf("poller: invalid schedule %q: %w", opts.Schedule, err)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Poller{
		targets:    opts.Targets,
		schedule:   opts.Schedule,
		normalizer: opts.Normalizer,
		queue:      opts.Queue,
		client:     opts.HTTPClient,
		logger:     opts.Logger,
	}, nil
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Run schedules PollOnce and blocks until ctx is cancelled. Overlapping
// ticks are skipped while a poll is still running.
func (p *Poller) Run(ctx context.Context) error {
	cl := cronLogger{p.logger.Sugar()}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(p.schedule, func() {
		if _, err := p.PollOnce(ctx); err != nil {
			p.logger.Warn("poll failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule poller: %w", err)
	}

	p.logger.Info("poller started",
		zap.String("schedule", p.schedule),
		zap.Int("targets", len(p.targets)))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	p.logger.Info("poller stopped")
	return ctx.Err()
}

// PollOnce fetches every target once and enqueues the normalized candidates.
// It returns the number enqueued. Target failures are joined; one failing
// target does not stop the others.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, t := range p.targets {
		n, err := p.poll(ctx, t)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Source, err))
		}
	}
	if len(errs) == 0 {
		observability.RecordPollSuccess(float64(time.Now().Unix()))
	}
	return total, errors.Join(errs...)
}

func (p *Poller) poll(ctx context.Context, t PollTarget) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPollBody))
	if err != nil {
		return 0, err
	}

	cands, err := p.normalizer.Normalize(t.Source, domain.SourcePoll, body)
	if err != nil {
		return 0, err
	}
	n, err := p.queue.OfferAll(cands)
	if err != nil {
		p.logger.Warn("intake queue full, dropping polled candidates",
			zap.String("source", t.Source),
			zap.Int("dropped", len(cands)-n))
	}
	return n, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
