// Package main is the entry point for the PlotMarket API server.
//
// It loads configuration, connects to Postgres and applies migrations, wires
// the rental, checkout, reconciliation, and download services onto the core
// chassis, and serves HTTP until a shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plotmarket/internal/api/handlers"
	"plotmarket/internal/checkout"
	"plotmarket/internal/config"
	"plotmarket/internal/core"
	"plotmarket/internal/db"
	"plotmarket/internal/downloads"
	"plotmarket/internal/external"
	"plotmarket/internal/reconcile"
	"plotmarket/internal/rental"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("plotmarket API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"max_plots", cfg.Registry.MaxPlots,
	)

	if err := db.Migrate(cfg.Database); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := db.NewPool(ctx, cfg.Database)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	// Repositories and domain services.
	plotRepo := db.NewPlotRepository(pool)
	downloadRepo := db.NewDownloadRepository(pool)

	rentalSvc := rental.NewService(pool, plotRepo, logger)
	tracker := downloads.NewTracker(downloadRepo, logger)

	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: 20 * time.Second},
		external.StripeClientConfig{
			SecretKey:  cfg.Billing.StripeSecretKey.Reveal(),
			BaseURL:    cfg.Billing.APIBaseURL,
			SuccessURL: cfg.Server.SiteURL + "/checkout/success",
			CancelURL:  cfg.Server.SiteURL + "/checkout/cancelled",
			Logger:     logger,
		},
	)

	orchestrator := checkout.NewOrchestrator(plotRepo, stripeClient, cfg.Registry, logger)
	reconciler := reconcile.NewReconciler(
		&external.StripeVerifier{},
		rentalSvc,
		cfg.Billing.WebhookSecret.Reveal(),
		logger,
	)

	// HTTP chassis and handlers.
	srv, err := core.NewServer(cfg, pool, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	checkoutHandler := handlers.NewCheckoutHandler(orchestrator, logger)
	plotsHandler := handlers.NewPlotsHandler(rentalSvc, cfg.Registry, logger)
	adminHandler := handlers.NewAdminHandler(rentalSvc, cfg.Registry, cfg.Admin.Token, logger)
	downloadsHandler := handlers.NewDownloadsHandler(tracker, logger)
	webhookHandler := handlers.NewWebhookHandler(reconciler, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		checkoutHandler.RegisterRoutes,
		plotsHandler.RegisterRoutes,
		adminHandler.RegisterRoutes,
		downloadsHandler.RegisterRoutes,
	)
	srv.PublicRouteRegistrars = append(srv.PublicRouteRegistrars,
		webhookHandler.RegisterRoutes,
	)

	srv.MountRoutes()

	// Background expiry sweep shares the API process.
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	sweeper := rental.NewSweeper(rentalSvc, cfg.Sweeper.Interval, logger)
	go func() {
		if err := sweeper.Run(sweepCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sweeper exited", "error", err)
		}
	}()

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server in standard HTTP mode with graceful
// shutdown on SIGINT/SIGTERM.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured JSON logger for the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
