// Package main is the entrypoint for the Archiver Lambda function.
//
// EventBridge rules send a MaintenancePayload naming one retention task and
// the handler routes it to the scheduler's maintenance service. All
// low-frequency cleanup lives in this one function.
//
// Handler flow:
//  1. Parse the MaintenancePayload.
//  2. Run the task against the configured store.
//  3. Return the cutoff and the number of deleted records.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"sitewatch/internal/app"
	"sitewatch/internal/config"
	"sitewatch/internal/scheduler"
)

// Maintainer executes one retention task.
type Maintainer interface {
	Execute(ctx context.Context, p scheduler.MaintenancePayload) (scheduler.Result, error)
}

// Handler holds the dependencies for the archiver Lambda handler.
type Handler struct {
	Service Maintainer
	Logger  *slog.Logger
}

// Handle processes a MaintenancePayload from EventBridge.
func (h *Handler) Handle(ctx context.Context, payload scheduler.MaintenancePayload) (scheduler.Result, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "archiver handler invoked", "task", string(payload.Task))
	return h.Service.Execute(ctx, payload)
}

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
	logger := config.NewLogger(cfg.LogLevel).With("service", "sitewatch-archiver")
	logger.Info("Archiver Lambda initializing (cold start)", "environment", cfg.Environment)

	ctx := context.Background()
	a, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.NewMaintenance(cfg, logger)
	if err != nil {
		return err
	}
	handler := &Handler{Service: svc, Logger: logger}

	logger.Info("Archiver Lambda initialized",
		"store_backend", cfg.Store.Backend,
		"notification_retention", cfg.Retention.Notifications.String(),
	)

	// Local mode: read a MaintenancePayload from stdin.
	// Usage: echo '{"task":"purge_dry_runs"}' | go run ./cmd/archiver
	if cfg.IsLocal() {
		logger.Info("APP_ENV=local: reading maintenance payload from stdin")
		return runLocal(ctx, handler, os.Stdin, os.Stdout)
	}

	lambda.Start(handler.Handle)
	return nil
}

func runLocal(ctx context.Context, h *Handler, r io.Reader, w io.Writer) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	var payload scheduler.MaintenancePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("parse stdin as maintenance payload: %w", err)
	}
	result, err := h.Handle(ctx, payload)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
