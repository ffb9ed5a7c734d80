// Package dispatch runs the per-target notification pipeline: fetch weather,
// evaluate thresholds, check dedup history, resolve recipients, build
// content, emit emails and log the aggregate record.
//
// Every failure is converted into a types.TargetResult. Dispatch never
// returns an error and never panics out of a target.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sitewatch/internal/content"
	"sitewatch/internal/dedup"
	"sitewatch/internal/evaluator"
	"sitewatch/internal/types"
)

// WeatherSource supplies weather snapshots.
type WeatherSource interface {
	Snapshot(ctx context.Context, loc types.LocationQuery) (*types.WeatherSnapshot, error)
}

// DedupChecker decides whether a target should be notified.
type DedupChecker interface {
	Check(ctx context.Context, target types.Target, conditions types.TriggeredConditions, now time.Time) dedup.Decision
}

// RecipientResolver returns the recipients for a target.
type RecipientResolver interface {
	Resolve(ctx context.Context, target types.Target) ([]types.Recipient, error)
}

// ContentBuilder produces alert text. It never fails.
type ContentBuilder interface {
	Build(ctx context.Context, target types.Target, snapshot *types.WeatherSnapshot, conditions types.TriggeredConditions) content.Content
}

// NotificationWriter appends delivery records.
type NotificationWriter interface {
	AppendRecipientNotification(ctx context.Context, n *types.RecipientNotification) (string, error)
	AppendNotificationRecord(ctx context.Context, rec *types.NotificationRecord) (string, error)
}

// EmailSender transmits a rendered alert email.
type EmailSender interface {
	Send(ctx context.Context, email types.AlertEmail) (string, error)
}

// Deps are the collaborators of a Dispatcher. All are required.
type Deps struct {
	Weather    WeatherSource
	Dedup      DedupChecker
	Recipients RecipientResolver
	Content    ContentBuilder
	Writer     NotificationWriter
	Email      EmailSender
}

// Config tunes a Dispatcher.
type Config struct {
	WeatherTimeout  time.Duration
	EmitConcurrency int
}

// DefaultConfig returns a 10s weather timeout and four concurrent sends per
// target.
func DefaultConfig() Config {
	return Config{WeatherTimeout: 10 * time.Second, EmitConcurrency: 4}
}

// Options are per-call settings.
type Options struct {
	// DebugMode evaluates and builds content but sends nothing and writes no
	// records.
	DebugMode bool
	// Now is the reference time for dedup and record timestamps. Zero means
	// the dispatcher's clock.
	Now time.Time
}

// Dispatcher executes the notification pipeline for one target at a time.
// It is safe for concurrent use.
type Dispatcher struct {
	deps   Deps
	cfg    Config
	clock  types.Clock
	render func(types.Target, types.Recipient, *types.WeatherSnapshot, types.TriggeredConditions, string) (types.AlertEmail, error)
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher. Zero config values take the defaults.
func NewDispatcher(deps Deps, cfg Config, logger *slog.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.WeatherTimeout <= 0 {
		cfg.WeatherTimeout = def.WeatherTimeout
	}
	if cfg.EmitConcurrency <= 0 {
		cfg.EmitConcurrency = def.EmitConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		deps:   deps,
		cfg:    cfg,
		clock:  types.RealClock{},
		render: content.RenderEmail,
		logger: logger,
	}
}

// WithClock replaces the clock used when Options.Now is zero.
func (d *Dispatcher) WithClock(c types.Clock) *Dispatcher {
	d.clock = c
	return d
}

// Dispatch runs the pipeline for target and reports the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, target types.Target, opts Options) (result types.TargetResult) {
	result = types.TargetResult{
		TargetKind: target.Kind,
		TargetID:   target.ID(),
		UserID:     target.UserID,
		Name:       target.Name,
		DryRun:     opts.DebugMode,
		Stage:      types.StageFetchWeather,
	}
	logger := types.LoggerFromContext(ctx, d.logger).With(
		"target_id", result.TargetID,
		"target_kind", string(target.Kind),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while dispatching target",
				"stage", string(result.Stage),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result.Success = false
			result.Error = fmt.Sprintf("panic at %s: %v", result.Stage, r)
			result.ErrorCode = types.ErrCodeInternalPanic
		}
	}()

	now := opts.Now
	if now.IsZero() {
		now = d.clock.Now()
	}

	wctx, cancel := context.WithTimeout(ctx, d.cfg.WeatherTimeout)
	snapshot, err := d.deps.Weather.Snapshot(wctx, target.Location)
	cancel()
	if err != nil {
		logger.Warn("weather fetch failed", "error", err)
		return failed(result, err)
	}

	result.Stage = types.StageEvaluate
	conditions := evaluator.Evaluate(snapshot, target.Thresholds)
	result.TriggeredConditions = conditions

	result.Stage = types.StageDedupCheck
	decision := d.deps.Dedup.Check(ctx, target, conditions, now)
	if decision.Warning != nil {
		result.Warnings = append(result.Warnings, "dedup history unavailable: "+decision.Warning.Error())
	}
	if !decision.Send {
		result.Success = true
		result.SkipReason = decision.Reason
		return result
	}

	result.Stage = types.StageResolveRecipients
	recipients, err := d.deps.Recipients.Resolve(ctx, target)
	if err != nil {
		logger.Error("recipient resolution failed", "error", err)
		return failed(result, err)
	}
	if len(recipients) == 0 {
		result.Success = true
		result.SkipReason = "no eligible recipients"
		return result
	}

	result.Stage = types.StageBuildContent
	buildCtx := ctx
	if opts.DebugMode {
		buildCtx = types.WithDryRun(ctx)
	}
	built := d.deps.Content.Build(buildCtx, target, snapshot, conditions)

	if opts.DebugMode {
		logger.Info("dry run: notifications not sent",
			"conditions", conditions.Strings(),
			"recipients", len(recipients),
			"content_source", string(built.Source),
		)
		result.Stage = types.StageDone
		result.Success = true
		result.NotificationsSent = len(recipients)
		result.ContentPreview = built.Text
		return result
	}

	result.Stage = types.StageEmit
	out := d.emit(ctx, logger, target, snapshot, conditions, built.Text, recipients, now)
	result.Warnings = append(result.Warnings, out.warnings...)
	if out.sent == 0 {
		err := types.NewAppError(types.CodeOf(out.firstErr),
			fmt.Sprintf("all %d notification sends failed", len(recipients)), out.firstErr)
		logger.Error("no notifications delivered", "recipients", len(recipients), "error", out.firstErr)
		return failed(result, err)
	}
	result.NotificationsSent = out.sent

	result.Stage = types.StageLogRecord
	rec := &types.NotificationRecord{
		ID:             types.PrefixNotification + uuid.New().String(),
		UserID:         target.UserID,
		JobsiteID:      target.JobsiteID,
		TargetKind:     target.Kind,
		Conditions:     conditions,
		RecipientCount: out.sent,
		Weather:        snapshot.Summarize(),
		CreatedAt:      now,
	}
	if _, err := d.deps.Writer.AppendNotificationRecord(ctx, rec); err != nil {
		logger.Error("aggregate notification record lost", "notification_id", rec.ID, "error", err)
		result.Warnings = append(result.Warnings, "aggregate notification record not written: "+err.Error())
	}

	result.Stage = types.StageDone
	result.Success = true
	logger.Info("target notified",
		"conditions", conditions.Strings(),
		"sent", out.sent,
		"recipients", len(recipients),
	)
	return result
}

type emitOutcome struct {
	sent     int
	warnings []string
	firstErr error
}

type recipientOutcome struct {
	sent    bool
	err     error
	warning string
}

// emit sends to every recipient with bounded concurrency. A failure for one
// recipient never stops the others.
func (d *Dispatcher) emit(
	ctx context.Context,
	logger *slog.Logger,
	target types.Target,
	snapshot *types.WeatherSnapshot,
	conditions types.TriggeredConditions,
	text string,
	recipients []types.Recipient,
	now time.Time,
) emitOutcome {
	outcomes := make([]recipientOutcome, len(recipients))
	summary := snapshot.Summarize()

	var g errgroup.Group
	g.SetLimit(d.cfg.EmitConcurrency)
	for i, rcpt := range recipients {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic while emitting notification", "recipient_id", rcpt.ID, "panic", r)
					outcomes[i] = recipientOutcome{err: types.NewAppError(types.ErrCodeInternalPanic, fmt.Sprintf("panic: %v", r), nil)}
				}
			}()
			outcomes[i] = d.emitOne(ctx, logger, target, snapshot, summary, conditions, text, rcpt, now)
			return nil
		})
	}
	_ = g.Wait()

	var out emitOutcome
	for i, o := range outcomes {
		if o.sent {
			out.sent++
		} else if o.err != nil {
			if out.firstErr == nil {
				out.firstErr = o.err
			}
			out.warnings = append(out.warnings, fmt.Sprintf("send to %s failed: %v", types.RedactEmail(recipients[i].Email), o.err))
		}
		if o.warning != "" {
			out.warnings = append(out.warnings, o.warning)
		}
	}
	return out
}

func (d *Dispatcher) emitOne(
	ctx context.Context,
	logger *slog.Logger,
	target types.Target,
	snapshot *types.WeatherSnapshot,
	summary types.WeatherSummary,
	conditions types.TriggeredConditions,
	text string,
	rcpt types.Recipient,
	now time.Time,
) recipientOutcome {
	id := types.PrefixRecipientNotification + uuid.New().String()

	email, err := d.render(target, rcpt, snapshot, conditions, text)
	if err != nil {
		return recipientOutcome{err: types.NewAppError(types.ErrCodeInternalUnexpected, "failed to render alert email", err)}
	}
	email.ReferenceID = id

	msgID, err := d.deps.Email.Send(ctx, email)
	if err != nil {
		logger.Warn("alert email not accepted", "recipient_id", rcpt.ID, "recipient_type", string(rcpt.Type), "error", err)
		return recipientOutcome{err: err}
	}

	n := &types.RecipientNotification{
		ID:             id,
		UserID:         target.UserID,
		JobsiteID:      target.JobsiteID,
		RecipientID:    rcpt.ID,
		RecipientType:  rcpt.Type,
		RecipientName:  rcpt.Name,
		RecipientEmail: rcpt.Email,
		Conditions:     conditions,
		Content:        text,
		Weather:        summary,
		MessageID:      msgID,
		SentAt:         now,
	}
	if _, err := d.deps.Writer.AppendRecipientNotification(ctx, n); err != nil {
		logger.Error("recipient notification record lost", "recipient_notification_id", id, "error", err)
		return recipientOutcome{sent: true, warning: fmt.Sprintf("record for %s not written: %v", types.RedactEmail(rcpt.Email), err)}
	}
	return recipientOutcome{sent: true}
}

func failed(result types.TargetResult, err error) types.TargetResult {
	result.Success = false
	result.Error = err.Error()
	result.ErrorCode = types.CodeOf(err)
	return result
}
