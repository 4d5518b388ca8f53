package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// TelegramSink sends alerts through the Telegram Bot API.
type TelegramSink struct {
	bot    *telego.Bot
	chatID telego.ChatID
}

// TelegramOption configures TelegramSink.
type TelegramOption func(*telegramConfig)

type telegramConfig struct {
	apiServer string
	http      *http.Client
}

// WithTelegramAPIServer overrides the Bot API base URL.
func WithTelegramAPIServer(u string) TelegramOption {
	return func(c *telegramConfig) {
		c.apiServer = u
	}
}

// WithTelegramHTTPClient sets the HTTP client used for Bot API calls.
func WithTelegramHTTPClient(hc *http.Client) TelegramOption {
	return func(c *telegramConfig) {
		c.http = hc
	}
}

// NewTelegramSink creates a TelegramSink. chat is a numeric chat ID or a
// public @channel username.
func NewTelegramSink(token, chat string, opts ...TelegramOption) (*TelegramSink, error) {
	cfg := telegramConfig{http: &http.Client{Timeout: 5 * time.Second}}
	for _, opt := range opts {
		opt(&cfg)
	}

	chatID, err := parseChatID(chat)
	if err != nil {
		return nil, err
	}

	botOpts := []telego.BotOption{
		telego.WithHTTPClient(cfg.http),
		telego.WithDiscardLogger(),
	}
	if cfg.apiServer != "" {
		botOpts = append(botOpts, telego.WithAPIServer(cfg.apiServer))
	}

	bot, err := telego.NewBot(token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

// Name returns "telegram".
func (s *TelegramSink) Name() string { return "telegram" }

// Deliver sends msg once.
func (s *TelegramSink) Deliver(ctx context.Context, msg Message) error {
	params := tu.Message(s.chatID, msg.Text)
	if _, err := s.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func parseChatID(chat string) (telego.ChatID, error) {
	chat = strings.TrimSpace(chat)
	if chat == "" {
		return telego.ChatID{}, fmt.Errorf("telegram chat id is empty")
	}
	if strings.HasPrefix(chat, "@") {
		return tu.Username(chat), nil
	}
	id, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return telego.ChatID{}, fmt.Errorf("invalid telegram chat id %q: %w", chat, err)
	}
	return tu.ID(id), nil
}
