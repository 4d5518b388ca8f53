package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"token-sentinel/internal/config"
	"token-sentinel/internal/domain"
	"token-sentinel/internal/ingestion"
	"token-sentinel/internal/observability"
	"token-sentinel/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run ingestion, the HTTP surface and the evaluation pipeline",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ic := cfg.Ingestion
	normalizer := ingestion.NewNormalizer(nil, logger.Named("ingestion"))
	logger.Info("field mappings loaded", zap.Strings("sources", normalizer.Sources()))
	queue := ingestion.NewQueue(ingestion.QueueOptions{
		Size:          ic.QueueSize,
		BatchSize:     ic.BatchSize,
		FlushInterval: ic.FlushInterval,
		Logger:        logger.Named("queue"),
	})

	var volumes storage.VolumeWriter
	if a.volumes != nil {
		volumes = a.volumes
	}
	router := newRouter(cfg, normalizer, queue, volumes, logger)
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return ignoreCanceled(queue.Run(gctx, func(ctx context.Context, batch []*domain.CandidateToken) {
			a.orchestrator.EvaluateBatch(ctx, batch)
		}))
	})

	if ic.Poll.Enabled {
		targets := make([]ingestion.PollTarget, 0, len(ic.Poll.Targets))
		for _, t := range ic.Poll.Targets {
			targets = append(targets, ingestion.PollTarget{Source: t.Source, URL: t.URL, Headers: t.Headers})
		}
		poller, err := ingestion.NewPoller(ingestion.PollerOptions{
			Targets:    targets,
			Schedule:   ic.Poll.Schedule,
			Normalizer: normalizer,
			Queue:      queue,
			HTTPClient: &http.Client{Timeout: ic.Poll.Timeout},
			Logger:     logger.Named("poller"),
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return ignoreCanceled(poller.Run(gctx)) })
	}

	if ic.WebSocket.Enabled {
		var sub json.RawMessage
		if ic.WebSocket.Subscribe != "" {
			sub = json.RawMessage(ic.WebSocket.Subscribe)
		}
		feed, err := ingestion.NewWSFeed(ingestion.WSFeedOptions{
			URL:        ic.WebSocket.URL,
			Source:     ic.WebSocket.Source,
			Subscribe:  sub,
			MinBackoff: ic.WebSocket.MinBackoff,
			MaxBackoff: ic.WebSocket.MaxBackoff,
			Normalizer: normalizer,
			Queue:      queue,
			Logger:     logger.Named("wsfeed"),
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return ignoreCanceled(feed.Run(gctx)) })
	}

	err = g.Wait()
	logger.Info("sentinel stopped")
	return err
}

func newRouter(cfg config.Config, n *ingestion.Normalizer, q *ingestion.Queue, volumes storage.VolumeWriter, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"queue_depth": q.Len(),
		})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	if cfg.Ingestion.Webhook.Enabled {
		ingestion.NewWebhookHandler(n, q, cfg.Ingestion.Webhook.Secret, logger.Named("webhook")).Register(r)
		if volumes != nil {
			ingestion.NewSwapHandler(volumes, cfg.Ingestion.Webhook.Secret, logger.Named("swaps")).Register(r)
		}
	}
	return r
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
