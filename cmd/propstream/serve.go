// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/propstream/propstream/internal/bus"
	"github.com/propstream/propstream/internal/config"
	"github.com/propstream/propstream/internal/dispatch"
	"github.com/propstream/propstream/internal/health"
	"github.com/propstream/propstream/internal/hub"
	"github.com/propstream/propstream/internal/identity"
	"github.com/propstream/propstream/internal/logging"
	"github.com/propstream/propstream/internal/observability"
	"github.com/propstream/propstream/internal/store"
	"github.com/propstream/propstream/internal/ws"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the notification server",
		Long: `Start the notification server: accept WebSocket connections, consume
the message bus and fan events out to subscribed clients.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd)
		},
	}

	// Flag names mirror the koanf config paths so the posflag provider can
	// overlay them onto the file values directly.
	cmd.Flags().String("listen.ws", ":8080", "WebSocket listen address")
	cmd.Flags().String("listen.observability", "127.0.0.1:9100", "metrics/health HTTP address")
	cmd.Flags().String("nats.url", "nats://127.0.0.1:4222", "message bus URL")
	cmd.Flags().Duration("health.interval", 30*time.Second, "health report publish interval")
	cmd.Flags().String("log.format", "json", "log format (json or text)")
	cmd.Flags().String("log.level", "info", "log level (debug, info, warn or error)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}

	logging.SetLevel(cfg.Log.Level)
	logging.SetDefault("propstream", version, cfg.Log.Format)
	logger := slog.Default()

	logger.Info("starting notification server",
		"ws_addr", cfg.Listen.WS,
		"observability_addr", cfg.Listen.Observability,
		"log_format", cfg.Log.Format,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Postgres and the bus are hard dependencies: fail fast rather than
	// accept connections we cannot authenticate or deliver to.
	pool, err := store.NewPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger.Info("connected to database")

	tokens := store.NewTokenRepository(pool)
	offline := store.NewOfflineNotificationRepository(pool)
	preferences := store.NewPreferenceRepository(pool)
	bookmarks := store.NewBookmarkRepository(pool)
	inquiries := store.NewInquiryRepository(pool)

	registry := hub.NewRegistry()
	rooms := hub.NewRoomIndex()
	manager, err := hub.NewManager(registry, rooms, hub.TierPolicy{}, logger)
	if err != nil {
		return err
	}

	var ready atomic.Bool
	obsServer := observability.NewServer(cfg.Listen.Observability, registry, ready.Load)
	metrics := obsServer.Metrics()

	natsBus, err := bus.ConnectNATS(ctx, bus.NATSConfig{URL: cfg.NATS.URL}, metrics, logger)
	if err != nil {
		return err
	}
	defer natsBus.Close()

	logger.Info("connected to message bus", "url", cfg.NATS.URL)

	authenticator, err := identity.NewAuthenticator(tokens, cfg.Auth.Timeout)
	if err != nil {
		return err
	}

	dispatcher, err := dispatch.NewDispatcher(natsBus, registry, rooms, offline, metrics, logger)
	if err != nil {
		return err
	}
	if err := dispatcher.Start(ctx); err != nil {
		return err
	}
	defer dispatcher.Stop()

	wsServer, err := ws.NewServer(cfg.Listen.WS, authenticator, manager, ws.Stores{
		Preferences: preferences,
		Bookmarks:   bookmarks,
		Inquiries:   inquiries,
	}, metrics, logger)
	if err != nil {
		return err
	}

	reporter, err := health.NewReporter(natsBus, registry, cfg.Health.Interval, logger)
	if err != nil {
		return err
	}

	obsErrChan, err := obsServer.Start()
	if err != nil {
		return err
	}
	go monitorServerErrors(ctx, cancel, obsErrChan, "observability")

	logger.Info("observability server started", "addr", obsServer.Addr())

	go reporter.Run(ctx)

	errChan := make(chan error, 1)
	go func() {
		if serveErr := wsServer.Run(ctx); serveErr != nil {
			errChan <- serveErr
		}
	}()

	ready.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Notification server started")
	logger.Info("notification server ready", "ws_addr", cfg.Listen.WS)

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case serveErr := <-errChan:
		return oops.With("server", "websocket").Wrap(serveErr)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	// Graceful shutdown
	logger.Info("shutting down...")
	ready.Store(false)
	cancel()

	dispatcher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := obsServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels the run context when a background server
// reports a fatal error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errChan <-chan error, name string) {
	select {
	case err, ok := <-errChan:
		if ok && err != nil {
			slog.Error("server failed", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
