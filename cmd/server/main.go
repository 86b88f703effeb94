// Orderbell - Order Event Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/orderbell

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

	"github.com/tomtom215/orderbell/internal/api"
	"github.com/tomtom215/orderbell/internal/auth"
	"github.com/tomtom215/orderbell/internal/authz"
	"github.com/tomtom215/orderbell/internal/config"
	"github.com/tomtom215/orderbell/internal/database"
	"github.com/tomtom215/orderbell/internal/dedupe"
	"github.com/tomtom215/orderbell/internal/eventprocessor"
	"github.com/tomtom215/orderbell/internal/logging"
	"github.com/tomtom215/orderbell/internal/models"
	"github.com/tomtom215/orderbell/internal/notify"
	"github.com/tomtom215/orderbell/internal/push"
	"github.com/tomtom215/orderbell/internal/supervisor"
	ws "github.com/tomtom215/orderbell/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

//nolint:gocyclo // Sequential setup steps
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Str("auth_mode", cfg.Security.AuthMode).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Bool("push_enabled", cfg.Push.Enabled).
		Msg("Starting Orderbell")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Notification store initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ledger *dedupe.Ledger
	if cfg.Dedupe.Enabled {
		ledger, err = dedupe.Open(&cfg.Dedupe)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open dedupe ledger")
		}
		defer func() {
			if err := ledger.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing dedupe ledger")
			}
		}()
	} else {
		logging.Info().Msg("Dedupe ledger disabled (DEDUPE_ENABLED=false)")
	}

	natsComponents, err := InitNATS(ctx, &cfg.NATS)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize NATS")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		natsComponents.Shutdown(shutdownCtx)
	}()

	wsHub := ws.NewHub()
	logger := logging.Logger()

	dispatcher := notify.NewDispatcher(
		notify.NewInAppAdapter(db, cfg.Notify.OrderLinkBase),
		notify.NewPushAdapter(db, newPushSender(&cfg.Push), logger,
			notify.WithParallelism(cfg.Notify.PushParallelism),
			notify.WithGoneHook(func(ctx context.Context, target models.PushDeliveryTarget) {
				if err := db.DeletePushTarget(ctx, target.ID); err != nil && !errors.Is(err, database.ErrNotFound) {
					logging.Ctx(ctx).Warn().Err(err).Str("target_id", target.ID).Msg("Failed to prune expired push target")
				}
			}),
		),
		outcomeSink(natsComponents),
		notify.DispatcherConfig{
			InAppTimeout: cfg.Notify.InAppTimeout,
			PushTimeout:  cfg.Notify.PushTimeout,
		},
		logger,
	)
	notifier := notify.NewNotifier(dispatcher)

	// With NATS the dashboard events travel over core NATS so that every
	// instance's hub sees them; otherwise they go straight to the local hub.
	var realtime notify.RealtimePublisher = wsHub
	if relay := natsComponents.Relay(); relay != nil {
		realtime = relay
	}
	broadcaster := notify.NewAdminBroadcaster(db, realtime, cfg.Notify.BroadcastTimeout, logger)

	if natsComponents != nil {
		var consumerLedger eventprocessor.ClaimLedger
		if ledger != nil {
			consumerLedger = ledger
		}
		err := natsComponents.StartConsumers(
			eventprocessor.NewNotificationHandler(dispatcher, consumerLedger, cfg.NATS.NotificationTopic, logger),
			eventprocessor.NewAdminHandler(broadcaster, cfg.NATS.AdminTopic, logger),
		)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start NATS consumers")
		}
	}

	authn, err := auth.NewMiddleware(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authentication")
	}
	if authn.Mode() == auth.AuthModeNone {
		logging.Warn().Msg("============================================================")
		logging.Warn().Msg("  SECURITY WARNING: Authentication is DISABLED (AUTH_MODE=none)")
		logging.Warn().Msg("  Every request acts as ADMIN. Use for local development only.")
		logging.Warn().Msg("============================================================")
	}

	enforcer, err := authz.NewEnforcer(&cfg.Security.Casbin)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization")
	}
	defer enforcer.Close()

	if cfg.Server.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}
	if cfg.ShouldWarnAboutCORS() {
		logging.Warn().Msg("CORS allows any origin while authentication is enabled; set CORS_ORIGINS in production")
	}

	deps := api.Dependencies{
		Notifications: db,
		PushTargets:   db,
		Directory:     db,
		Notifier:      notifier,
		Unread:        notify.NewUnreadCounter(db, logger),
		Broadcaster:   broadcaster,
		Database:      db,
		Hub:           wsHub,
		Upgrader:      ws.NewUpgrader(cfg.Server.CORSOrigins),
		Version:       version,
	}
	if ledger != nil {
		deps.Ledger = ledger
	}
	if natsComponents != nil {
		deps.Publisher = natsComponents.Events()
		deps.NATSHealthy = natsComponents.Healthy
	}

	router := api.NewRouter(
		api.NewHandler(deps),
		authn,
		authz.NewMiddleware(enforcer),
		api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(&cfg.Server)),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if ledger != nil {
		tree.AddDataService(ledger)
	}
	tree.AddMessagingService(supervisor.NewHubService(wsHub))
	natsComponents.AddToSupervisor(tree, wsHub)
	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
		treeErr = <-errCh
	case treeErr = <-errCh:
		cancel()
	}
	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		logging.Error().Err(treeErr).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer drainCancel()
	if err := notifier.Wait(drainCtx); err != nil {
		logging.Warn().Err(err).Msg("Background dispatches still running at shutdown")
	}

	logging.Info().Msg("Application stopped gracefully")
}

// newPushSender returns the Web Push sender guarded by a breaker and rate
// limiter, or a no-op sender when push is disabled.
func newPushSender(cfg *config.PushConfig) push.Sender {
	if !cfg.Enabled {
		logging.Info().Msg("Web Push disabled (PUSH_ENABLED=false); sends to registered targets are skipped")
		return push.NopSender{}
	}
	logging.Info().
		Float64("rate_limit", cfg.RateLimit).
		Uint32("breaker_threshold", cfg.BreakerFailureThreshold).
		Msg("Web Push sender ready")
	return push.NewResilientSender(push.NewWebPushSender(cfg), push.ResilientConfig{
		RateLimit:        cfg.RateLimit,
		RateBurst:        cfg.RateBurst,
		FailureThreshold: cfg.BreakerFailureThreshold,
		OpenTimeout:      cfg.BreakerOpenTimeout,
	})
}

// outcomeSink keeps the interface nil when NATS is off.
func outcomeSink(c *NATSComponents) notify.OutcomeSink {
	if events := c.Events(); events != nil {
		return events
	}
	return nil
}
