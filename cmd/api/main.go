// Package main is the entry point for the SiteWatch admin API.
//
// It loads configuration, assembles the notifier and serves the admin routes
// (trigger a run, read run summaries, maintain weather settings, health) over
// HTTP until SIGINT or SIGTERM.
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

	"sitewatch/internal/api"
	"sitewatch/internal/app"
	"sitewatch/internal/config"
)

// shutdownTimeout bounds graceful shutdown, including an in-flight run.
const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := config.NewLogger(cfg.LogLevel).With("service", cfg.Service)
	logger.Info("sitewatch admin API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)
	if !cfg.Security.AdminKeyHash.IsSet() {
		logger.Warn("ADMIN_KEY_HASH not set, every /v1 request will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("assembling notifier: %w", err)
	}
	defer notifier.Close()

	srv, err := api.NewServer(notifier.APIDeps(), cfg.Security.AdminKeyHash.Unmask(), cfg.Build.Version, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return runHTTPServer(ctx, httpServer, logger)
}

// runHTTPServer serves until ctx is cancelled or the listener fails, then
// shuts down gracefully.
func runHTTPServer(ctx context.Context, httpServer *http.Server, logger *slog.Logger) error {
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
