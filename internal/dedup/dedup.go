// Package dedup decides whether a target should be notified again today.
//
// The rule: a notification is suppressed only when some record already sent
// today covers every currently triggered condition. New conditions appearing
// later in the day produce a fresh notification; a shrinking set does not.
package dedup

import (
	"context"
	"log/slog"
	"time"

	"sitewatch/internal/types"
)

// HistoryStore reads the notification history for a target.
type HistoryStore interface {
	NotificationsSince(ctx context.Context, targetID string, since time.Time) ([]types.NotificationRecord, error)
}

// Decision is the outcome of a dedup check.
type Decision struct {
	Send   bool
	Reason string
	// Warning is set when the history lookup failed and the check failed open.
	Warning error
}

// Reasons reported on Decision.
const (
	ReasonNoConditions   = "no triggered conditions"
	ReasonFirstToday     = "no notification sent today"
	ReasonAlreadyCovered = "already notified today for these conditions"
	ReasonNewConditions  = "new conditions since last notification"
	ReasonFailOpen       = "history lookup failed, fail-open"
)

// ShouldSend applies the superset rule to today's history.
func ShouldSend(current types.TriggeredConditions, history []types.NotificationRecord) bool {
	send, _ := decide(current, history)
	return send
}

func decide(current types.TriggeredConditions, history []types.NotificationRecord) (bool, string) {
	if len(current) == 0 {
		return false, ReasonNoConditions
	}
	if len(history) == 0 {
		return true, ReasonFirstToday
	}
	for _, rec := range history {
		if current.SubsetOf(rec.Conditions) {
			return false, ReasonAlreadyCovered
		}
	}
	return true, ReasonNewConditions
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Deduplicator checks history before a target is notified.
type Deduplicator struct {
	history HistoryStore
	loc     *time.Location
	logger  *slog.Logger
}

// NewDeduplicator creates a Deduplicator. Day boundaries are computed in loc;
// nil means the process-local zone.
func NewDeduplicator(history HistoryStore, loc *time.Location, logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Deduplicator{history: history, loc: loc, logger: logger}
}

// Check decides whether target should be notified for conditions at now.
// Storage failures never block an alert: the decision fails open and the
// error is returned as a warning.
func (d *Deduplicator) Check(ctx context.Context, target types.Target, conditions types.TriggeredConditions, now time.Time) Decision {
	if len(conditions) == 0 {
		return Decision{Send: false, Reason: ReasonNoConditions}
	}

	since := StartOfDay(now, d.loc)
	history, err := d.history.NotificationsSince(ctx, target.ID(), since)
	if err != nil {
		d.logger.Warn("notification history lookup failed, sending anyway",
			"target_id", target.ID(),
			"target_kind", string(target.Kind),
			"since", since,
			"error", err,
		)
		return Decision{Send: true, Reason: ReasonFailOpen, Warning: err}
	}

	send, reason := decide(conditions, history)
	return Decision{Send: send, Reason: reason}
}
