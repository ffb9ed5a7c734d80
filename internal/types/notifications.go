package types

import "time"

// ID prefixes for generated record identifiers.
const (
	PrefixNotification          = "ntf_"
	PrefixRecipientNotification = "rcp_"
	PrefixRun                   = "run_"
)

// NotificationRecord is the aggregate log written once per target evaluation
// that produced notifications. It is append-only and serves as dedup history.
type NotificationRecord struct {
	ID             string              `json:"id"`
	UserID         string              `json:"user_id"`
	JobsiteID      string              `json:"jobsite_id,omitempty"`
	TargetKind     TargetKind          `json:"target_kind"`
	Conditions     TriggeredConditions `json:"conditions"`
	RecipientCount int                 `json:"recipient_count"`
	Weather        WeatherSummary      `json:"weather"`
	CreatedAt      time.Time           `json:"created_at"`
}

// TargetID returns the identifier the record is keyed by in history lookups.
func (r NotificationRecord) TargetID() string {
	if r.JobsiteID != "" {
		return r.JobsiteID
	}
	return r.UserID
}

// RecipientNotification is the per-recipient record of a delivered alert.
type RecipientNotification struct {
	ID             string              `json:"id"`
	UserID         string              `json:"user_id"`
	JobsiteID      string              `json:"jobsite_id,omitempty"`
	RecipientID    string              `json:"recipient_id"`
	RecipientType  ContactKind         `json:"recipient_type"`
	RecipientName  string              `json:"recipient_name"`
	RecipientEmail string              `json:"recipient_email"`
	Conditions     TriggeredConditions `json:"conditions"`
	Content        string              `json:"content"`
	Weather        WeatherSummary      `json:"weather"`
	MessageID      string              `json:"message_id,omitempty"`
	SentAt         time.Time           `json:"sent_at"`
}

// AlertEmail is the rendered message handed to an email sender.
type AlertEmail struct {
	To          string `json:"to"`
	ToName      string `json:"to_name,omitempty"`
	Subject     string `json:"subject"`
	TextBody    string `json:"text_body"`
	HTMLBody    string `json:"html_body,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
}

// Stage is a step of the per-target dispatch pipeline.
type Stage string

const (
	StageFetchWeather      Stage = "fetch_weather"
	StageEvaluate          Stage = "evaluate"
	StageDedupCheck        Stage = "dedup_check"
	StageResolveRecipients Stage = "resolve_recipients"
	StageBuildContent      Stage = "build_content"
	StageEmit              Stage = "emit_notifications"
	StageLogRecord         Stage = "log_run_record"
	StageDone              Stage = "done"
)

// TargetResult is the outcome of dispatching one target.
type TargetResult struct {
	TargetKind          TargetKind          `json:"target_kind"`
	TargetID            string              `json:"target_id"`
	UserID              string              `json:"user_id"`
	Name                string              `json:"name"`
	Success             bool                `json:"success"`
	Error               string              `json:"error,omitempty"`
	ErrorCode           ErrorCode           `json:"error_code,omitempty"`
	Stage               Stage               `json:"stage"`
	TriggeredConditions TriggeredConditions `json:"triggered_conditions,omitempty"`
	NotificationsSent   int                 `json:"notifications_sent"`
	DryRun              bool                `json:"dry_run,omitempty"`
	SkipReason          string              `json:"skip_reason,omitempty"`
	Warnings            []string            `json:"warnings,omitempty"`
	ContentPreview      string              `json:"content_preview,omitempty"`
}

// RunSummary aggregates one batch execution.
type RunSummary struct {
	ID                string         `json:"id"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
	DebugMode         bool           `json:"debug_mode"`
	TotalTargets      int            `json:"total_targets"`
	Succeeded         int            `json:"succeeded"`
	Failed            int            `json:"failed"`
	NotificationsSent int            `json:"notifications_sent"`
	Results           []TargetResult `json:"results"`
}

// Tally recomputes the aggregate counters from Results.
func (s *RunSummary) Tally() {
	s.TotalTargets = len(s.Results)
	s.Succeeded, s.Failed, s.NotificationsSent = 0, 0, 0
	for _, r := range s.Results {
		if r.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.NotificationsSent += r.NotificationsSent
	}
}
