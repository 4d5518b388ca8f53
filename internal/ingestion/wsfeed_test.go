package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentinel/internal/domain"
)

func TestWSFeed_SubscribesAndReconnects(t *testing.T) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := conns.Add(1)

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		assert.JSONEq(t, `{"method":"subscribeNewToken"}`, string(msg))

		mint := wsolMint
		if n > 1 {
			mint = usdcMint
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"mint":"`+mint+`"}`))
		// Drop the first connection to force a reconnect.
		if n == 1 {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	q := NewQueue(QueueOptions{Size: 8})
	f, err := NewWSFeed(WSFeedOptions{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		Source:     "pumpfun",
		Subscribe:  []byte(`{"method":"subscribeNewToken"}`),
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
		Normalizer: NewNormalizer(nil, nil),
		Queue:      q,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, func() bool { return q.Len() == 2 }, 3*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("feed did not stop")
	}

	first, second := <-q.ch, <-q.ch
	assert.Equal(t, wsolMint, first.Address)
	assert.Equal(t, usdcMint, second.Address)
	assert.Equal(t, domain.SourceWebSocket, second.Source)
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}

func TestNewWSFeed_Validation(t *testing.T) {
	n := NewNormalizer(nil, nil)
	q := NewQueue(QueueOptions{})

	_, err := NewWSFeed(WSFeedOptions{Source: "pumpfun", Normalizer: n, Queue: q})
	assert.Error(t, err)

	_, err = NewWSFeed(WSFeedOptions{URL: "ws://x", Source: "nope", Normalizer: n, Queue: q})
	assert.ErrorIs(t, err, ErrUnknownSource)
}
