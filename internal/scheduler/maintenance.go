package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sitewatch/internal/types"
)

// MinRetention keeps at least two days of notification history so the
// dedup window, which starts at local midnight, is never purged.
const MinRetention = 48 * time.Hour

// NotificationPurger deletes notification logs.
type NotificationPurger interface {
	PurgeNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// RunPurger deletes run summaries.
type RunPurger interface {
	PurgeRunSummariesBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Retention is how long each kind of record is kept.
type Retention struct {
	Notifications time.Duration
	Runs          time.Duration
	DryRuns       time.Duration
}

// DefaultRetention keeps notification logs for 90 days, run summaries for a
// year and dry runs for two weeks.
func DefaultRetention() Retention {
	return Retention{
		Notifications: 90 * 24 * time.Hour,
		Runs:          365 * 24 * time.Hour,
		DryRuns:       14 * 24 * time.Hour,
	}
}

func (r Retention) validate() error {
	for name, d := range map[string]time.Duration{
		"notifications": r.Notifications,
		"runs":          r.Runs,
		"dry runs":      r.DryRuns,
	} {
		if d < MinRetention {
			return fmt.Errorf("%s retention %s is below the minimum %s", name, d, MinRetention)
		}
	}
	return nil
}

// Result reports one executed task.
type Result struct {
	Task    TaskType  `json:"task"`
	Cutoff  time.Time `json:"cutoff"`
	Deleted int       `json:"deleted"`
}

// MaintenanceService routes payloads to the purge operations.
type MaintenanceService struct {
	notifications NotificationPurger
	runs          RunPurger
	dryRuns       RunPurger
	retention     Retention
	clock         types.Clock
	logger        *slog.Logger
}

// NewMaintenanceService validates retention and returns the service.
func NewMaintenanceService(notifications NotificationPurger, runs, dryRuns RunPurger, retention Retention, logger *slog.Logger) (*MaintenanceService, error) {
	if err := retention.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MaintenanceService{
		notifications: notifications,
		runs:          runs,
		dryRuns:       dryRuns,
		retention:     retention,
		clock:         types.RealClock{},
		logger:        logger,
	}, nil
}

// WithClock replaces the clock used when a payload has no reference time.
func (s *MaintenanceService) WithClock(c types.Clock) *MaintenanceService {
	s.clock = c
	return s
}

// Execute runs the task named by p. Rows deleted before a failure are
// reported in the result.
func (s *MaintenanceService) Execute(ctx context.Context, p MaintenancePayload) (Result, error) {
	now := s.clock.Now().UTC()
	if p.ReferenceTime != nil {
		now = p.ReferenceTime.UTC()
	}
	if p.Task == "" {
		return Result{}, fmt.Errorf("empty task type in maintenance payload")
	}

	var (
		cutoff time.Time
		purge  func(context.Context, time.Time) (int, error)
	)
	switch p.Task {
	case TaskPurgeNotifications:
		cutoff, purge = now.Add(-s.retention.Notifications), s.notifications.PurgeNotificationsBefore
	case TaskPurgeRuns:
		cutoff, purge = now.Add(-s.retention.Runs), s.runs.PurgeRunSummariesBefore
	case TaskPurgeDryRuns:
		cutoff, purge = now.Add(-s.retention.DryRuns), s.dryRuns.PurgeRunSummariesBefore
	default:
		return Result{}, fmt.Errorf("unknown task type: %q", p.Task)
	}

	logger := s.logger.With("task", string(p.Task), "cutoff", cutoff.Format(time.RFC3339))
	deleted, err := purge(ctx, cutoff)
	result := Result{Task: p.Task, Cutoff: cutoff, Deleted: deleted}
	if err != nil {
		logger.ErrorContext(ctx, "maintenance task failed", "deleted_before_error", deleted, "error", err)
		return result, fmt.Errorf("task %s failed: %w", p.Task, err)
	}

	logger.InfoContext(ctx, "maintenance task complete", "deleted", deleted)
	return result, nil
}
