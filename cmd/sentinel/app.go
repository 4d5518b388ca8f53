package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"token-sentinel/internal/config"
	"token-sentinel/internal/notify"
	"token-sentinel/internal/pipeline"
	"token-sentinel/internal/provider"
	"token-sentinel/internal/provider/birdeye"
	"token-sentinel/internal/provider/dexscreener"
	"token-sentinel/internal/provider/solanarpc"
	"token-sentinel/internal/provider/swapvolume"
	"token-sentinel/internal/resolver"
	"token-sentinel/internal/solana"
	"token-sentinel/internal/storage"
	chstore "token-sentinel/internal/storage/clickhouse"
	"token-sentinel/internal/storage/memory"
	"token-sentinel/internal/storage/migrations"
	pgstore "token-sentinel/internal/storage/postgres"
	redisstore "token-sentinel/internal/storage/redis"
)

// app holds the wired pipeline and the resources to release on exit.
type app struct {
	cfg          config.Config
	logger       *zap.Logger
	orchestrator *pipeline.Orchestrator
	volumes      *chstore.VolumeStore // nil unless clickhouse is enabled
	closers      []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires ledger, providers, dispatcher and orchestrator from cfg.
// Background maintenance (ledger sweeps) is bound to ctx.
func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	ledger, err := a.buildLedger(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	res, err := a.buildResolver(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	sink, err := buildSink(cfg.Notifier, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	dispatcher := notify.NewDispatcher(notify.Options{
		Sink:      sink,
		Formatter: notify.NewFormatter(cfg.Notifier.LinkTemplate),
		Timeout:   cfg.Notifier.Timeout,
		Logger:    logger.Named("notify"),
	})

	thresholds, err := cfg.Pipeline.FilterThresholds()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.orchestrator, err = pipeline.New(pipeline.Options{
		Ledger:        ledger,
		Resolver:      res,
		Dispatcher:    dispatcher,
		Thresholds:    thresholds,
		TTL:           cfg.Pipeline.TTLPolicy(),
		KeyPrefix:     cfg.Ledger.KeyPrefix,
		Workers:       cfg.Pipeline.Workers,
		TokenDeadline: cfg.Pipeline.TokenDeadline,
		LedgerTimeout: cfg.Ledger.Timeout,
		Logger:        logger.Named("pipeline"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("pipeline ready",
		zap.String("ledger", cfg.Ledger.Kind),
		zap.String("notifier", sink.Name()),
		zap.Int("workers", cfg.Pipeline.Workers))
	return a, nil
}

func (a *app) buildLedger(ctx context.Context) (storage.DedupLedger, error) {
	lc := a.cfg.Ledger
	switch lc.Kind {
	case "redis":
		client, err := redisstore.Connect(ctx, lc.Redis.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return redisstore.NewLedger(client), nil

	case "postgres":
		pool, err := pgstore.NewPool(ctx, lc.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		if lc.Postgres.Migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		l := pgstore.NewLedger(pool)
		l.StartPurger(ctx, lc.SweepInterval, func(err error) {
			a.logger.Warn("ledger purge failed", zap.Error(err))
		})
		return l, nil
	}

	l := memory.NewLedger()
	l.StartSweeper(ctx, lc.SweepInterval)
	a.closers = append(a.closers, func() { _ = l.Close() })
	return l, nil
}

func (a *app) buildResolver(ctx context.Context) (*resolver.Resolver, error) {
	pc := a.cfg.Providers
	guard := pc.GuardConfig()
	log := a.logger.Named("provider")
	hc := &http.Client{}

	available := make(map[string]provider.MetricProvider)
	if pc.DexScreener.Enabled {
		available["dexscreener"] = dexscreener.New(
			dexscreener.WithBaseURL(pc.DexScreener.BaseURL),
			dexscreener.WithHTTPClient(hc))
	}
	if pc.Birdeye.Enabled {
		available["birdeye"] = birdeye.New(pc.Birdeye.APIKey,
			birdeye.WithBaseURL(pc.Birdeye.BaseURL),
			birdeye.WithHTTPClient(hc))
	}
	if pc.Clickhouse.Enabled {
		conn, err := openClickhouse(ctx, pc.Clickhouse)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		a.volumes = chstore.NewVolumeStore(conn)
		available["swapvolume"] = swapvolume.New(a.volumes, nil)
	}

	opts := resolver.Options{
		HolderLimit: pc.HolderLimit,
		Logger:      a.logger.Named("resolver"),
	}
	for _, name := range orderProviders(pc.Order, available) {
		if p, ok := available[name]; ok {
			opts.MetricProviders = append(opts.MetricProviders, provider.NewGuardedMetric(p, guard, log))
		} else {
			a.logger.Warn("providers.order names a disabled or unknown provider", zap.String("provider", name))
		}
	}

	if pc.SolanaRPC.Enabled {
		rpc := solana.NewHTTPClient(pc.SolanaRPC.Endpoint,
			solana.WithTimeout(pc.Timeout),
			solana.WithMaxRetries(pc.SolanaRPC.MaxRetries),
			solana.WithRetryDelay(pc.SolanaRPC.RetryDelay))
		sp := solanarpc.New(rpc)
		opts.HolderProviders = append(opts.HolderProviders, provider.NewGuardedHolder(sp, guard, log))
		opts.SupplyProviders = append(opts.SupplyProviders, provider.NewGuardedSupply(sp, guard, log))
	}

	return resolver.New(opts), nil
}

func openClickhouse(ctx context.Context, cc config.ClickhouseConfig) (*chstore.Conn, error) {
	if cc.Migrate {
		conn, err := migrations.RunClickhouseMigrations(ctx, cc.DSN)
		if err != nil {
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		return conn, nil
	}
	return chstore.NewConn(ctx, cc.DSN)
}

// orderProviders returns names in configured priority order, followed by any
// enabled provider the order does not mention.
func orderProviders(order []string, available map[string]provider.MetricProvider) []string {
	seen := make(map[string]bool, len(order))
	out := make([]string, 0, len(available))
	for _, name := range order {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, name := range []string{"dexscreener", "birdeye", "swapvolume"} {
		if _, ok := available[name]; ok && !seen[name] {
			out = append(out, name)
		}
	}
	return out
}

func buildSink(nc config.NotifierConfig, logger *zap.Logger) (notify.Sink, error) {
	hc := &http.Client{}
	switch nc.Kind {
	case "telegram":
		opts := []notify.TelegramOption{notify.WithTelegramHTTPClient(hc)}
		if nc.Telegram.APIServer != "" {
			opts = append(opts, notify.WithTelegramAPIServer(nc.Telegram.APIServer))
		}
		return notify.NewTelegramSink(nc.Telegram.Token, nc.Telegram.ChatID, opts...)
	case "slack":
		return notify.NewSlackSink(nc.Slack.WebhookURL, nc.Slack.Channel, hc), nil
	case "webhook":
		return &notify.WebhookSink{URL: nc.Webhook.URL, Headers: nc.Webhook.Headers, HTTP: hc}, nil
	}
	return &notify.LogSink{Logger: logger.Named("alert")}, nil
}
