package db

import (
	"context"
	"encoding/json"
	"time"

	"sitewatch/internal/types"
)

// NotificationRepository provides data access for the append-only
// notifications (aggregate log) and recipient_notifications tables.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a new NotificationRepository backed by the
// given database connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// AppendNotificationRecord inserts one aggregate record and returns its id.
// The caller sets the ID (prefixed UUID, "ntf_...").
func (r *NotificationRepository) AppendNotificationRecord(ctx context.Context, rec *types.NotificationRecord) (string, error) {
	weather, err := json.Marshal(rec.Weather)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode weather summary", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO notifications
		 (id, target_id, target_kind, user_id, jobsite_id, conditions,
		  recipient_count, weather, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))`,
		rec.ID,
		rec.TargetID(),
		string(rec.TargetKind),
		rec.UserID,
		nilIfEmpty(rec.JobsiteID),
		rec.Conditions.Strings(),
		rec.RecipientCount,
		weather,
		nilIfZeroTime(rec.CreatedAt),
	)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to append notification record", err)
	}
	return rec.ID, nil
}

// AppendRecipientNotification inserts one per-recipient delivery record and
// returns its id.
func (r *NotificationRepository) AppendRecipientNotification(ctx context.Context, n *types.RecipientNotification) (string, error) {
	weather, err := json.Marshal(n.Weather)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode weather summary", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO recipient_notifications
		 (id, user_id, jobsite_id, recipient_id, recipient_type, recipient_name,
		  recipient_email, conditions, content, weather, message_id, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, NOW()))`,
		n.ID,
		n.UserID,
		nilIfEmpty(n.JobsiteID),
		n.RecipientID,
		string(n.RecipientType),
		nilIfEmpty(n.RecipientName),
		n.RecipientEmail,
		n.Conditions.Strings(),
		n.Content,
		weather,
		nilIfEmpty(n.MessageID),
		nilIfZeroTime(n.SentAt),
	)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to append recipient notification", err)
	}
	return n.ID, nil
}

// NotificationsSince returns the aggregate records for targetID created at or
// after since, oldest first.
func (r *NotificationRepository) NotificationsSince(ctx context.Context, targetID string, since time.Time) ([]types.NotificationRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, target_kind, user_id, jobsite_id, conditions,
		        recipient_count, weather, created_at
		 FROM notifications
		 WHERE target_id = $1 AND created_at >= $2
		 ORDER BY created_at`,
		targetID,
		since,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query notification history", err)
	}
	defer rows.Close()

	var records []types.NotificationRecord
	for rows.Next() {
		var rec types.NotificationRecord
		var kind string
		var jobsiteID *string
		var conditions []string
		var weather []byte
		if err := rows.Scan(&rec.ID, &kind, &rec.UserID, &jobsiteID, &conditions,
			&rec.RecipientCount, &weather, &rec.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification row", err)
		}
		rec.TargetKind = types.TargetKind(kind)
		rec.JobsiteID = derefString(jobsiteID)
		rec.Conditions = types.ParseConditions(conditions)
		if len(weather) > 0 {
			// History is only used for its condition set; a bad summary is not fatal.
			_ = json.Unmarshal(weather, &rec.Weather)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notification rows", err)
	}
	return records, nil
}

// PurgeNotificationsBefore deletes aggregate and per-recipient records older
// than cutoff and returns the number of rows removed. Callers must keep
// cutoff before the current dedup day.
func (r *NotificationRepository) PurgeNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	aggregate, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge notification records", err)
	}
	perRecipient, err := r.db.Exec(ctx, `DELETE FROM recipient_notifications WHERE sent_at < $1`, cutoff)
	if err != nil {
		return int(aggregate.RowsAffected()), types.NewAppError(types.ErrCodeInternalDB, "failed to purge recipient notifications", err)
	}
	return int(aggregate.RowsAffected() + perRecipient.RowsAffected()), nil
}
