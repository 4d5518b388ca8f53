package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"token-sentinel/internal/domain"
)

// WSFeedOptions configures a WSFeed.
type WSFeedOptions struct {
	URL       string
	Source    string          // mapping name used to normalize each message
	Subscribe json.RawMessage // sent after every (re)connect when non-empty
	Headers   http.Header

	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	PingInterval time.Duration

	Normalizer *Normalizer
	Queue      *Queue
	Dialer     *websocket.Dialer
	Logger     *zap.Logger
}

// WSFeed consumes a push feed over WebSocket and enqueues candidates.
// The connection is re-established with exponential backoff until the
// context is cancelled.
type WSFeed struct {
	opts   WSFeedOptions
	logger *zap.Logger
}

// NewWSFeed validates options and creates a feed.
func NewWSFeed(opts WSFeedOptions) (*WSFeed, error) {
	if opts.URL == "" {
		return nil, errors.New("wsfeed: url is required")
	}
	if opts.Normalizer == nil || opts.Queue == nil {
		return nil, errors.New("wsfeed: normalizer and queue are required")
	}
	if !opts.Normalizer.Has(opts.Source) {
		return nil, fmt.Errorf("wsfeed: %w: %s", ErrUnknownSource, opts.Source)
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &WSFeed{opts: opts, logger: opts.Logger.With(zap.String("source", opts.Source))}, nil
}

// Run connects and consumes until ctx is cancelled.
func (f *WSFeed) Run(ctx context.Context) error {
	backoff := f.opts.MinBackoff
	for {
		start := time.Now()
		err := f.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A session that stayed up for a while resets the backoff.
		if time.Since(start) > f.opts.MaxBackoff {
			backoff = f.opts.MinBackoff
		}
		f.logger.Warn("websocket feed disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > f.opts.MaxBackoff {
			backoff = f.opts.MaxBackoff
		}
	}
}

func (f *WSFeed) session(ctx context.Context) error {
	conn, _, err := f.opts.Dialer.DialContext(ctx, f.opts.URL, f.opts.Headers)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if len(f.opts.Subscribe) > 0 {
		if err := conn.WriteMessage(websocket.TextMessage, f.opts.Subscribe); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}
	f.logger.Info("websocket feed connected", zap.String("url", f.opts.URL))

	done := make(chan struct{})
	defer close(done)
	go f.keepalive(ctx, conn, done)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("closed by server")
			}
			return fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}

		cands, err := f.opts.Normalizer.Normalize(f.opts.Source, domain.SourceWebSocket, data)
		if err != nil {
			f.logger.Debug("skipping message", zap.Error(err))
			continue
		}
		if n, err := f.opts.Queue.OfferAll(cands); err != nil {
			f.logger.Warn("intake queue full, dropping streamed candidates",
				zap.Int("dropped", len(cands)-n))
		}
	}
}

// keepalive pings the server and closes the connection when ctx ends,
// which unblocks the reader.
func (f *WSFeed) keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(f.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
