// Package scheduler implements the scheduled retention tasks run by
// cmd/archiver and cmd/tools/job-runner.
//
// An EventBridge rule sends a MaintenancePayload naming the task; the
// reference time may be overridden for manual runs and backfills:
//
//	{
//	  "task": "purge_notifications",
//	  "reference_time": "2026-02-06T03:00:00Z"
//	}
package scheduler

import "time"

// TaskType identifies a maintenance task.
type TaskType string

const (
	TaskPurgeNotifications TaskType = "purge_notifications"
	TaskPurgeRuns          TaskType = "purge_runs"
	TaskPurgeDryRuns       TaskType = "purge_dry_runs"
)

// TaskDescriptions documents every supported task.
var TaskDescriptions = map[TaskType]string{
	TaskPurgeNotifications: "Delete aggregate and per-recipient notification logs past retention",
	TaskPurgeRuns:          "Delete production run summaries past retention",
	TaskPurgeDryRuns:       "Delete dry-run summaries past retention",
}

// MaintenancePayload is the invocation payload of the archiver.
type MaintenancePayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime replaces "now" when set.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
