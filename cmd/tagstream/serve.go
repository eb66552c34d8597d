package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qepting91/tagstream/internal/api"
	"github.com/qepting91/tagstream/internal/backoff"
	"github.com/qepting91/tagstream/internal/broadcast"
	"github.com/qepting91/tagstream/internal/collector"
	"github.com/qepting91/tagstream/internal/config"
	"github.com/qepting91/tagstream/internal/coordinator"
	"github.com/qepting91/tagstream/internal/dashboard"
	"github.com/qepting91/tagstream/internal/ingest"
	"github.com/qepting91/tagstream/internal/poller"
	"github.com/qepting91/tagstream/internal/storage"
	"github.com/qepting91/tagstream/internal/transport/ws"
)

func serveCmd() *cobra.Command {
	var autostart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the feed server",
		Long: `Run the feed server: HTTP control API, websocket stream and dashboard.

Examples:
  tagstream serve
  COLLECTOR_MODE=mock tagstream serve --start`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(autostart)
		},
	}
	cmd.Flags().BoolVar(&autostart, "start", false, "start polling immediately")
	return cmd
}

func runServe(autostart bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stdout, cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewSettingsStore(ctx, cfg.DatabaseURL, cfg.SettingsPath)
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}
	defer store.Close()

	searcher, err := collector.NewCollector(cfg.Collector())
	if err != nil {
		return fmt.Errorf("initialize collector: %w", err)
	}
	logger.Info("collector initialized", "mode", cfg.CollectorMode)

	var seed []string
	if cfg.HashtagsPath != "" {
		seed, err = ingest.LoadHashtags(cfg.HashtagsPath)
		if err != nil {
			return fmt.Errorf("load hashtags: %w", err)
		}
		logger.Info("default hashtags loaded", "path", cfg.HashtagsPath, "count", len(seed))
	}

	hub := broadcast.NewHub(cfg.HeartbeatInterval, logger)
	defer hub.Close()

	coord := coordinator.New(searcher, hub, store, coordinator.Options{
		Grace: cfg.RestartGrace,
		Poll: poller.Config{
			Backoff:          backoff.Policy{Base: cfg.PollBackoffBase, Cap: cfg.PollBackoffCap},
			RateLimitDefault: cfg.RateLimitDefault,
		},
		DefaultHashtags: seed,
	}, logger)
	if err := coord.Load(ctx); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	stats := dashboard.NewStats(coord.Hashtags)
	hub.Observe(stats.Observe)

	streamHandler := ws.NewServer(hub, ws.Options{PongWait: 3 * cfg.HeartbeatInterval}, logger)
	server := api.NewServer(coord, streamHandler, stats.Handler(), logger)

	if autostart {
		if err := coord.Start(); err != nil {
			logger.Warn("autostart failed", "err", err)
		}
	}

	err = server.Run(ctx, ":"+cfg.Port)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := coord.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("poller did not finish in time", "err", serr)
	}
	logger.Info("shutdown complete")
	return err
}
