// Package main is the entrypoint for the notifier batch.
//
// Each invocation runs one evaluation batch over every user and active
// jobsite and returns the counters of the resulting RunSummary.
//
// Modes:
//   - Lambda (default): an EventBridge schedule invokes Handle.
//   - APP_ENV=local: one JSON Event is read from stdin and the summary is
//     printed to stdout.
//   - -daemon: batches run in-process on the NOTIFIER_CRON schedule until
//     SIGINT or SIGTERM.
//
// Usage:
//
//	echo '{"debug_mode":true}' | APP_ENV=local go run ./cmd/notifier
//	go run ./cmd/notifier -daemon
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/robfig/cron/v3"

	"sitewatch/internal/app"
	"sitewatch/internal/config"
	"sitewatch/internal/orchestrator"
	"sitewatch/internal/types"
)

// Event is the invocation payload. Scheduled EventBridge events carry none of
// these fields and run with the configured defaults.
type Event struct {
	DebugMode     *bool      `json:"debug_mode,omitempty"`
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// Response summarizes a finished batch.
type Response struct {
	RunID             string `json:"run_id"`
	DebugMode         bool   `json:"debug_mode"`
	TotalTargets      int    `json:"total_targets"`
	Succeeded         int    `json:"succeeded"`
	Failed            int    `json:"failed"`
	NotificationsSent int    `json:"notifications_sent"`
	DurationMS        int64  `json:"duration_ms"`
}

// BatchRunner executes one batch.
type BatchRunner interface {
	Run(ctx context.Context, opts orchestrator.RunOptions) (*types.RunSummary, error)
}

// Handler holds the dependencies for the notifier handler.
type Handler struct {
	Runner       BatchRunner
	DefaultDebug bool
	Logger       *slog.Logger
}

// Handle runs one batch. It fails only when targets could not be enumerated.
func (h *Handler) Handle(ctx context.Context, ev Event) (Response, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := orchestrator.RunOptions{DebugMode: h.DefaultDebug}
	if ev.DebugMode != nil {
		opts.DebugMode = *ev.DebugMode
	}
	if ev.ReferenceTime != nil {
		opts.ReferenceTime = ev.ReferenceTime.UTC()
	}

	summary, err := h.Runner.Run(ctx, opts)
	if err != nil {
		logger.ErrorContext(ctx, "notification run failed", "debug_mode", opts.DebugMode, "error", err)
		return Response{}, fmt.Errorf("notification run: %w", err)
	}

	return Response{
		RunID:             summary.ID,
		DebugMode:         summary.DebugMode,
		TotalTargets:      summary.TotalTargets,
		Succeeded:         summary.Succeeded,
		Failed:            summary.Failed,
		NotificationsSent: summary.NotificationsSent,
		DurationMS:        summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	}, nil
}

// runLocal reads one Event from r, runs it and writes the response to w. An
// empty input runs with the defaults.
func runLocal(ctx context.Context, h *Handler, r io.Reader, w io.Writer) error {
	payload, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	var ev Event
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("parse stdin as event: %w", err)
		}
	}
	resp, err := h.Handle(ctx, ev)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// cronLogger adapts *slog.Logger to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// runDaemon runs a batch on every tick of schedule until ctx is cancelled.
// A tick that fires while the previous batch is still running is skipped.
func runDaemon(ctx context.Context, h *Handler, schedule string, loc *time.Location, logger *slog.Logger) error {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(schedule, func() {
		resp, err := h.Handle(ctx, Event{})
		if err != nil {
			return
		}
		logger.Info("scheduled run finished", "run_id", resp.RunID, "notifications_sent", resp.NotificationsSent)
	}); err != nil {
		return fmt.Errorf("invalid NOTIFIER_CRON %q: %w", schedule, err)
	}

	c.Start()
	logger.Info("notifier daemon started", "schedule", schedule, "location", loc.String())

	<-ctx.Done()
	logger.Info("shutdown signal received, waiting for the running batch")
	<-c.Stop().Done()
	return nil
}

func main() {
	daemon := flag.Bool("daemon", false, "run batches on the NOTIFIER_CRON schedule instead of as a Lambda")
	flag.Parse()

	if err := run(*daemon); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(daemon bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := config.NewLogger(cfg.LogLevel).With("service", cfg.Service)
	logger.Info("notifier initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"debug_mode", cfg.Run.DebugMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("assembling notifier: %w", err)
	}
	defer notifier.Close()

	handler := &Handler{Runner: notifier.Runner, DefaultDebug: cfg.Run.DebugMode, Logger: logger}

	switch {
	case daemon:
		return runDaemon(ctx, handler, cfg.Run.Schedule, cfg.DedupLocation(), logger)
	case cfg.IsLocal():
		logger.Info("APP_ENV=local: reading event from stdin")
		return runLocal(ctx, handler, os.Stdin, os.Stdout)
	default:
		lambda.StartWithOptions(handler.Handle, lambda.WithContext(ctx))
		return nil
	}
}
