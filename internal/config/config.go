package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"token-sentinel/internal/filter"
	"token-sentinel/internal/pipeline"
	"token-sentinel/internal/provider"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type PipelineConfig struct {
	Workers       int              `mapstructure:"workers"`
	TokenDeadline time.Duration    `mapstructure:"token_deadline"`
	Thresholds    ThresholdsConfig `mapstructure:"thresholds"`
	TTL           TTLConfig        `mapstructure:"ttl"`
}

// ThresholdsConfig holds filter limits as decimal strings so that values such
// as 0.1 are not rounded through float64.
type ThresholdsConfig struct {
	MinMarketcap string `mapstructure:"min_marketcap"`
	MinHolders   string `mapstructure:"min_holders"`
	MaxTop10Pct  string `mapstructure:"max_top10_pct"`
	MaxDevPct    string `mapstructure:"max_dev_pct"`
}

type TTLConfig struct {
	Lease             time.Duration `mapstructure:"lease"`
	Rejected          time.Duration `mapstructure:"rejected"`
	MissingData       time.Duration `mapstructure:"missing_data"`
	ArithmeticInvalid time.Duration `mapstructure:"arithmetic_invalid"`
	Delivered         time.Duration `mapstructure:"delivered"`
}

type LedgerConfig struct {
	Kind          string         `mapstructure:"kind"` // memory | redis | postgres
	KeyPrefix     string         `mapstructure:"key_prefix"`
	Timeout       time.Duration  `mapstructure:"timeout"`
	SweepInterval time.Duration  `mapstructure:"sweep_interval"`
	Redis         RedisConfig    `mapstructure:"redis"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type PostgresConfig struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

type ProvidersConfig struct {
	Timeout     time.Duration     `mapstructure:"timeout"`
	Rate        RateConfig        `mapstructure:"rate"`
	Breaker     BreakerConfig     `mapstructure:"breaker"`
	HolderLimit int               `mapstructure:"holder_limit"`
	Order       []string          `mapstructure:"order"`
	DexScreener DexScreenerConfig `mapstructure:"dexscreener"`
	Birdeye     BirdeyeConfig     `mapstructure:"birdeye"`
	SolanaRPC   SolanaRPCConfig   `mapstructure:"solana_rpc"`
	Clickhouse  ClickhouseConfig  `mapstructure:"clickhouse"`
}

type RateConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type BreakerConfig struct {
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
	Interval            time.Duration `mapstructure:"interval"`
	MaxRequests         uint32        `mapstructure:"max_requests"`
}

type DexScreenerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
}

type BirdeyeConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type SolanaRPCConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Endpoint   string        `mapstructure:"endpoint"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type ClickhouseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

type NotifierConfig struct {
	Kind         string         `mapstructure:"kind"` // log | telegram | slack | webhook
	Timeout      time.Duration  `mapstructure:"timeout"`
	LinkTemplate string         `mapstructure:"link_template"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
	Slack        SlackConfig    `mapstructure:"slack"`
	Webhook      WebhookConfig  `mapstructure:"webhook"`
}

type TelegramConfig struct {
	Token     string `mapstructure:"token"`
	ChatID    string `mapstructure:"chat_id"`
	APIServer string `mapstructure:"api_server"`
}

type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type IngestionConfig struct {
	QueueSize     int             `mapstructure:"queue_size"`
	BatchSize     int             `mapstructure:"batch_size"`
	FlushInterval time.Duration   `mapstructure:"flush_interval"`
	Poll          PollConfig      `mapstructure:"poll"`
	Webhook       WebhookInConfig `mapstructure:"webhook"`
	WebSocket     WebSocketConfig `mapstructure:"websocket"`
}

type PollConfig struct {
	Enabled  bool               `mapstructure:"enabled"`
	Schedule string             `mapstructure:"schedule"`
	Timeout  time.Duration      `mapstructure:"timeout"`
	Targets  []PollTargetConfig `mapstructure:"targets"`
}

type PollTargetConfig struct {
	Source  string            `mapstructure:"source"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type WebhookInConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Secret  string `mapstructure:"secret"`
}

type WebSocketConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	Source     string        `mapstructure:"source"`
	Subscribe  string        `mapstructure:"subscribe"`
	MinBackoff time.Duration `mapstructure:"min_backoff"`
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
}

// Load reads the YAML file at path (skipped when path is empty) and applies
// SENTINEL_ environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.development", false)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", true)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("pipeline.workers", 8)
	v.SetDefault("pipeline.token_deadline", "20s")
	v.SetDefault("pipeline.thresholds.min_marketcap", "10000")
	v.SetDefault("pipeline.thresholds.min_holders", "100")
	v.SetDefault("pipeline.thresholds.max_top10_pct", "30")
	v.SetDefault("pipeline.thresholds.max_dev_pct", "5")
	v.SetDefault("pipeline.ttl.lease", "2m")
	v.SetDefault("pipeline.ttl.rejected", "24h")
	v.SetDefault("pipeline.ttl.missing_data", "5m")
	v.SetDefault("pipeline.ttl.arithmetic_invalid", "5m")
	v.SetDefault("pipeline.ttl.delivered", "24h")

	v.SetDefault("ledger.kind", "memory")
	v.SetDefault("ledger.key_prefix", "sentinel:seen")
	v.SetDefault("ledger.timeout", "2s")
	v.SetDefault("ledger.sweep_interval", "10m")
	v.SetDefault("ledger.redis.url", "redis://localhost:6379/0")
	v.SetDefault("ledger.postgres.dsn", "")
	v.SetDefault("ledger.postgres.migrate", true)

	v.SetDefault("providers.timeout", "3s")
	v.SetDefault("providers.rate.rps", 5)
	v.SetDefault("providers.rate.burst", 5)
	v.SetDefault("providers.breaker.consecutive_failures", 5)
	v.SetDefault("providers.breaker.open_timeout", "30s")
	v.SetDefault("providers.breaker.interval", "1m")
	v.SetDefault("providers.breaker.max_requests", 1)
	v.SetDefault("providers.holder_limit", 20)
	v.SetDefault("providers.order", []string{"dexscreener", "birdeye", "swapvolume"})
	v.SetDefault("providers.dexscreener.enabled", true)
	v.SetDefault("providers.dexscreener.base_url", "https://api.dexscreener.com")
	v.SetDefault("providers.birdeye.enabled", false)
	v.SetDefault("providers.birdeye.base_url", "https://public-api.birdeye.so")
	v.SetDefault("providers.birdeye.api_key", "")
	v.SetDefault("providers.solana_rpc.enabled", true)
	v.SetDefault("providers.solana_rpc.endpoint", "https://api.mainnet-beta.solana.com")
	v.SetDefault("providers.solana_rpc.max_retries", 2)
	v.SetDefault("providers.solana_rpc.retry_delay", "250ms")
	v.SetDefault("providers.clickhouse.enabled", false)
	v.SetDefault("providers.clickhouse.dsn", "")
	v.SetDefault("providers.clickhouse.migrate", true)

	v.SetDefault("notifier.kind", "log")
	v.SetDefault("notifier.timeout", "5s")
	v.SetDefault("notifier.link_template", "https://dexscreener.com/{chain}/{address}")
	v.SetDefault("notifier.telegram.token", "")
	v.SetDefault("notifier.telegram.chat_id", "")
	v.SetDefault("notifier.telegram.api_server", "")
	v.SetDefault("notifier.slack.webhook_url", "")
	v.SetDefault("notifier.slack.channel", "")
	v.SetDefault("notifier.webhook.url", "")

	v.SetDefault("ingestion.queue_size", 1024)
	v.SetDefault("ingestion.batch_size", 32)
	v.SetDefault("ingestion.flush_interval", "1s")
	v.SetDefault("ingestion.poll.enabled", false)
	v.SetDefault("ingestion.poll.schedule", "@every 30s")
	v.SetDefault("ingestion.poll.timeout", "10s")
	v.SetDefault("ingestion.webhook.enabled", true)
	v.SetDefault("ingestion.webhook.secret", "")
	v.SetDefault("ingestion.websocket.enabled", false)
	v.SetDefault("ingestion.websocket.url", "")
	v.SetDefault("ingestion.websocket.source", "pumpfun")
	v.SetDefault("ingestion.websocket.subscribe", "")
	v.SetDefault("ingestion.websocket.min_backoff", "1s")
	v.SetDefault("ingestion.websocket.max_backoff", "30s")
}

// Validate checks cross-field constraints that defaults cannot express.
func (c Config) Validate() error {
	var errs []error

	if c.Pipeline.Workers <= 0 {
		errs = append(errs, errors.New("pipeline.workers must be positive"))
	}
	if c.Pipeline.TokenDeadline <= 0 {
		errs = append(errs, errors.New("pipeline.token_deadline must be positive"))
	}
	if _, err := c.Pipeline.FilterThresholds(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Pipeline.TTLPolicy().Validate(); err != nil {
		errs = append(errs, err)
	}
	ledgerTimeout := c.Ledger.Timeout
	if ledgerTimeout <= 0 {
		ledgerTimeout = pipeline.DefaultLedgerTimeout
	}
	if err := c.Pipeline.TTLPolicy().CheckLease(c.Pipeline.TokenDeadline, ledgerTimeout); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.ttl.lease: %w", err))
	}

	switch c.Ledger.Kind {
	case "memory":
	case "redis":
		if c.Ledger.Redis.URL == "" {
			errs = append(errs, errors.New("ledger.redis.url is required for the redis ledger"))
		}
	case "postgres":
		if c.Ledger.Postgres.DSN == "" {
			errs = append(errs, errors.New("ledger.postgres.dsn is required for the postgres ledger"))
		}
	default:
		errs = append(errs, fmt.Errorf("ledger.kind %q is not one of memory, redis, postgres", c.Ledger.Kind))
	}

	if c.Providers.Birdeye.Enabled && c.Providers.Birdeye.APIKey == "" {
		errs = append(errs, errors.New("providers.birdeye.api_key is required when birdeye is enabled"))
	}
	if c.Providers.Clickhouse.Enabled && c.Providers.Clickhouse.DSN == "" {
		errs = append(errs, errors.New("providers.clickhouse.dsn is required when clickhouse is enabled"))
	}
	if c.Providers.SolanaRPC.Enabled && c.Providers.SolanaRPC.Endpoint == "" {
		errs = append(errs, errors.New("providers.solana_rpc.endpoint is required when solana_rpc is enabled"))
	}

	switch c.Notifier.Kind {
	case "log":
	case "telegram":
		if c.Notifier.Telegram.Token == "" || c.Notifier.Telegram.ChatID == "" {
			errs = append(errs, errors.New("notifier.telegram.token and chat_id are required"))
		}
	case "slack":
		if c.Notifier.Slack.WebhookURL == "" {
			errs = append(errs, errors.New("notifier.slack.webhook_url is required"))
		}
	case "webhook":
		if c.Notifier.Webhook.URL == "" {
			errs = append(errs, errors.New("notifier.webhook.url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifier.kind %q is not one of log, telegram, slack, webhook", c.Notifier.Kind))
	}

	if c.Ingestion.Poll.Enabled && len(c.Ingestion.Poll.Targets) == 0 {
		errs = append(errs, errors.New("ingestion.poll.targets must not be empty when polling is enabled"))
	}
	if c.Ingestion.WebSocket.Enabled && c.Ingestion.WebSocket.URL == "" {
		errs = append(errs, errors.New("ingestion.websocket.url is required when the websocket feed is enabled"))
	}

	return errors.Join(errs...)
}

// FilterThresholds parses the configured limits.
func (p PipelineConfig) FilterThresholds() (filter.Thresholds, error) {
	var (
		t   filter.Thresholds
		err error
	)
	parse := func(name, s string, dst *decimal.Decimal) {
		if err != nil {
			return
		}
		d, perr := decimal.NewFromString(strings.TrimSpace(s))
		if perr != nil {
			err = fmt.Errorf("pipeline.thresholds.%s: %w", name, perr)
			return
		}
		*dst = d
	}
	parse("min_marketcap", p.Thresholds.MinMarketcap, &t.MinMarketcap)
	parse("min_holders", p.Thresholds.MinHolders, &t.MinHolders)
	parse("max_top10_pct", p.Thresholds.MaxTop10Pct, &t.MaxTop10Pct)
	parse("max_dev_pct", p.Thresholds.MaxDevPct, &t.MaxDevPct)
	return t, err
}

// TTLPolicy converts the ttl section.
func (p PipelineConfig) TTLPolicy() pipeline.TTLPolicy {
	return pipeline.TTLPolicy{
		Lease:             p.TTL.Lease,
		Rejected:          p.TTL.Rejected,
		MissingData:       p.TTL.MissingData,
		ArithmeticInvalid: p.TTL.ArithmeticInvalid,
		Delivered:         p.TTL.Delivered,
	}
}

// GuardConfig converts the shared provider limits.
func (p ProvidersConfig) GuardConfig() provider.GuardConfig {
	return provider.GuardConfig{
		Timeout:             p.Timeout,
		RPS:                 p.Rate.RPS,
		Burst:               p.Rate.Burst,
		MaxRequests:         p.Breaker.MaxRequests,
		Interval:            p.Breaker.Interval,
		OpenTimeout:         p.Breaker.OpenTimeout,
		ConsecutiveFailures: p.Breaker.ConsecutiveFailures,
	}
}
