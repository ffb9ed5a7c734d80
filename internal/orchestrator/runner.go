// Package orchestrator runs one evaluation batch: it enumerates targets by
// plan tier, dispatches them with bounded concurrency and persists the
// resulting RunSummary.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sitewatch/internal/dispatch"
	"sitewatch/internal/types"
)

// TargetDispatcher runs the pipeline for one target.
type TargetDispatcher interface {
	Dispatch(ctx context.Context, target types.Target, opts dispatch.Options) types.TargetResult
}

// RunSink persists run summaries.
type RunSink interface {
	AppendRunSummary(ctx context.Context, summary *types.RunSummary) error
}

// RunMetrics records batch-level metrics.
type RunMetrics interface {
	RecordRun(ctx context.Context, summary *types.RunSummary) error
}

// Deps are the collaborators of a Runner. DryRunSink and Metrics are
// optional.
type Deps struct {
	Targets    TargetSource
	Thresholds ThresholdStore
	Dispatcher TargetDispatcher
	Sink       RunSink
	DryRunSink RunSink
	Metrics    RunMetrics
}

// Config tunes a Runner.
type Config struct {
	// Concurrency bounds the number of targets dispatched at once.
	Concurrency int
}

// RunOptions are per-run settings.
type RunOptions struct {
	DebugMode     bool
	ReferenceTime time.Time
}

// Runner executes evaluation batches.
type Runner struct {
	targets     TargetSource
	thresholds  ThresholdStore
	dispatcher  TargetDispatcher
	sink        RunSink
	dryRunSink  RunSink
	metrics     RunMetrics
	concurrency int
	clock       types.Clock
	logger      *slog.Logger
}

// NewRunner creates a Runner. Concurrency defaults to 8.
func NewRunner(deps Deps, cfg Config, logger *slog.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		targets:     deps.Targets,
		thresholds:  deps.Thresholds,
		dispatcher:  deps.Dispatcher,
		sink:        deps.Sink,
		dryRunSink:  deps.DryRunSink,
		metrics:     deps.Metrics,
		concurrency: cfg.Concurrency,
		clock:       types.RealClock{},
		logger:      logger,
	}
}

// WithClock replaces the runner's clock.
func (r *Runner) WithClock(c types.Clock) *Runner {
	r.clock = c
	return r
}

// Run executes one batch. It returns an error only when targets could not be
// enumerated; per-target failures are reported in the summary.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*types.RunSummary, error) {
	runID := types.PrefixRun + uuid.New().String()
	logger := r.logger.With("run_id", runID, "debug_mode", opts.DebugMode)
	ctx = types.WithRunID(ctx, runID)
	ctx = types.WithRequestID(ctx, runID)
	ctx = types.WithLogger(ctx, logger)

	started := r.clock.Now()
	ref := opts.ReferenceTime
	if ref.IsZero() {
		ref = started
	}

	targets, err := r.EnumerateTargets(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "target enumeration failed, aborting run", "error", err)
		return nil, fmt.Errorf("enumerate targets: %w", err)
	}
	logger.InfoContext(ctx, "run started", "targets", len(targets))

	results := make([]types.TargetResult, len(targets))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, t := range targets {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(ctx, "panic escaped target dispatch", "target_id", t.ID(), "panic", rec)
					results[i] = types.TargetResult{
						TargetKind: t.Kind,
						TargetID:   t.ID(),
						UserID:     t.UserID,
						Name:       t.Name,
						DryRun:     opts.DebugMode,
						Error:      fmt.Sprintf("panic: %v", rec),
						ErrorCode:  types.ErrCodeInternalPanic,
					}
				}
			}()
			results[i] = r.dispatcher.Dispatch(ctx, t, dispatch.Options{DebugMode: opts.DebugMode, Now: ref})
			return nil
		})
	}
	_ = g.Wait()

	summary := &types.RunSummary{
		ID:         runID,
		StartedAt:  started,
		FinishedAt: r.clock.Now(),
		DebugMode:  opts.DebugMode,
		Results:    results,
	}
	summary.Tally()

	r.persist(ctx, logger, summary)

	if r.metrics != nil {
		if err := r.metrics.RecordRun(ctx, summary); err != nil {
			logger.WarnContext(ctx, "failed to record run metrics", "error", err)
		}
	}

	logger.InfoContext(ctx, "run finished",
		"total", summary.TotalTargets,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"notifications_sent", summary.NotificationsSent,
		"duration_ms", summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	)
	return summary, nil
}

// persist writes the summary to the production sink, or in debug mode to the
// dry-run sink only.
func (r *Runner) persist(ctx context.Context, logger *slog.Logger, summary *types.RunSummary) {
	sink := r.sink
	if summary.DebugMode {
		sink = r.dryRunSink
	}
	if sink == nil {
		return
	}
	if err := sink.AppendRunSummary(ctx, summary); err != nil {
		logger.ErrorContext(ctx, "run summary not persisted", "error", err)
	}
}
