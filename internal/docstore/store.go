// Package docstore is the Firestore-backed implementation of the notifier's
// storage contracts. It mirrors internal/db so the two backends are
// interchangeable behind app.Build.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"sitewatch/internal/types"
)

// Open initializes a Firebase app and returns its Firestore client. Empty
// credentialsJSON falls back to application default credentials.
func Open(ctx context.Context, projectID string, credentialsJSON []byte) (*firestore.Client, error) {
	var opts []option.ClientOption
	if len(credentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return client, nil
}

// Store reads accounts and appends notification records in Firestore.
type Store struct {
	client *firestore.Client
	logger *slog.Logger
	clock  types.Clock
}

// NewStore wraps client.
func NewStore(client *firestore.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, logger: logger, clock: types.RealClock{}}
}

func dbError(msg string, err error) error {
	return types.NewAppError(types.ErrCodeInternalDB, msg, err)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// ListUsers returns every user document.
func (s *Store) ListUsers(ctx context.Context) ([]types.User, error) {
	iter := s.client.Collection(colUsers).OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var users []types.User
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, dbError("failed to list users", err)
		}
		var doc userDoc
		if err := snap.DataTo(&doc); err != nil {
			s.logger.WarnContext(ctx, "skipping malformed user document", "user_id", snap.Ref.ID, "error", err)
			continue
		}
		users = append(users, doc.toUser(snap.Ref.ID))
	}
	return users, nil
}

// ListActiveJobsites returns the user's jobsites with status active.
func (s *Store) ListActiveJobsites(ctx context.Context, userID string) ([]types.Jobsite, error) {
	iter := s.client.Collection(colJobsites).
		Where("userId", "==", userID).
		Where("status", "==", string(types.JobsiteActive)).
		Documents(ctx)
	defer iter.Stop()

	var jobsites []types.Jobsite
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, dbError("failed to list jobsites", err)
		}
		var doc jobsiteDoc
		if err := snap.DataTo(&doc); err != nil {
			s.logger.WarnContext(ctx, "skipping malformed jobsite document", "jobsite_id", snap.Ref.ID, "error", err)
			continue
		}
		jobsites = append(jobsites, doc.toJobsite(snap.Ref.ID))
	}
	return jobsites, nil
}

// ListActiveContacts returns the user's active clients or workers.
func (s *Store) ListActiveContacts(ctx context.Context, ownerUserID string, kind types.ContactKind) ([]types.Contact, error) {
	iter := s.client.Collection(contactCollection(kind)).
		Where("userId", "==", ownerUserID).
		Where("active", "==", true).
		Documents(ctx)
	defer iter.Stop()

	var contacts []types.Contact
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, dbError("failed to list contacts", err)
		}
		var doc contactDoc
		if err := snap.DataTo(&doc); err != nil {
			s.logger.WarnContext(ctx, "skipping malformed contact document", "contact_id", snap.Ref.ID, "error", err)
			continue
		}
		contacts = append(contacts, doc.toContact(snap.Ref.ID, kind))
	}
	return contacts, nil
}

// GetThresholds returns the weather settings stored under targetID, or nil
// when there are none.
func (s *Store) GetThresholds(ctx context.Context, targetID string) (*types.ThresholdConfig, error) {
	snap, err := s.client.Collection(colWeatherSettings).Doc(targetID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, dbError("failed to retrieve weather settings", err)
	}
	if snap != nil && !snap.Exists() {
		return nil, nil
	}
	var doc settingsDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, dbError("failed to decode weather settings", err)
	}
	cfg := doc.toThresholds()
	return &cfg, nil
}

// UpsertThresholds validates cfg and replaces the settings stored under
// targetID.
func (s *Store) UpsertThresholds(ctx context.Context, targetID string, cfg types.ThresholdConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := s.client.Collection(colWeatherSettings).Doc(targetID).Set(ctx, settingsFrom(cfg)); err != nil {
		return dbError("failed to save weather settings", err)
	}
	return nil
}

// AppendNotificationRecord writes one aggregate log document.
func (s *Store) AppendNotificationRecord(ctx context.Context, rec *types.NotificationRecord) (string, error) {
	doc, err := notificationFrom(rec, s.clock.Now())
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode weather summary", err)
	}
	if _, err := s.client.Collection(colNotifications).Doc(rec.ID).Create(ctx, doc); err != nil {
		return "", dbError("failed to append notification record", err)
	}
	return rec.ID, nil
}

// AppendRecipientNotification writes one per-recipient log document.
func (s *Store) AppendRecipientNotification(ctx context.Context, n *types.RecipientNotification) (string, error) {
	doc, err := recipientLogFrom(n, s.clock.Now())
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode weather summary", err)
	}
	if _, err := s.client.Collection(colNotificationLogs).Doc(n.ID).Create(ctx, doc); err != nil {
		return "", dbError("failed to append recipient notification", err)
	}
	return n.ID, nil
}

// NotificationsSince returns the aggregate records for targetID created at or
// after since, oldest first. Requires a composite index on
// (targetId, createdAt).
func (s *Store) NotificationsSince(ctx context.Context, targetID string, since time.Time) ([]types.NotificationRecord, error) {
	iter := s.client.Collection(colNotifications).
		Where("targetId", "==", targetID).
		Where("createdAt", ">=", since.UTC()).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var records []types.NotificationRecord
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, dbError("failed to query notification history", err)
		}
		var doc notificationDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, dbError("failed to decode notification record", err)
		}
		records = append(records, doc.toRecord(snap.Ref.ID))
	}
	return records, nil
}

// RunStore persists run summaries to one collection.
type RunStore struct {
	client     *firestore.Client
	collection string
}

// Runs returns the store for production run summaries.
func (s *Store) Runs() *RunStore { return &RunStore{client: s.client, collection: colRuns} }

// DryRuns returns the store for debug-mode run summaries.
func (s *Store) DryRuns() *RunStore { return &RunStore{client: s.client, collection: colDryRuns} }

// AppendRunSummary writes summary under its id.
func (r *RunStore) AppendRunSummary(ctx context.Context, summary *types.RunSummary) error {
	doc, err := runFrom(summary)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode run results", err)
	}
	if _, err := r.client.Collection(r.collection).Doc(summary.ID).Set(ctx, doc); err != nil {
		return dbError("failed to append run summary", err)
	}
	return nil
}

// GetRunSummary returns the summary with id.
func (r *RunStore) GetRunSummary(ctx context.Context, id string) (*types.RunSummary, error) {
	snap, err := r.client.Collection(r.collection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRun, "run not found", nil)
		}
		return nil, dbError("failed to retrieve run summary", err)
	}
	if snap != nil && !snap.Exists() {
		return nil, types.NewAppError(types.ErrCodeNotFoundRun, "run not found", nil)
	}
	var doc runDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, dbError("failed to decode run summary", err)
	}
	summary, err := doc.toSummary(id)
	if err != nil {
		return nil, dbError("failed to decode run results", err)
	}
	return summary, nil
}

// PurgeNotificationsBefore deletes aggregate and per-recipient log documents
// older than cutoff and returns how many were removed.
func (s *Store) PurgeNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	aggregate, err := purgeBefore(ctx, s.client, colNotifications, "createdAt", cutoff)
	if err != nil {
		return aggregate, dbError("failed to purge notification records", err)
	}
	perRecipient, err := purgeBefore(ctx, s.client, colNotificationLogs, "sentAt", cutoff)
	if err != nil {
		return aggregate + perRecipient, dbError("failed to purge recipient notifications", err)
	}
	return aggregate + perRecipient, nil
}

// Ping reads at most one user document.
func (s *Store) Ping(ctx context.Context) error {
	iter := s.client.Collection(colUsers).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

// PurgeRunSummariesBefore deletes summaries of runs started before cutoff.
func (r *RunStore) PurgeRunSummariesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := purgeBefore(ctx, r.client, r.collection, "startedAt", cutoff)
	if err != nil {
		return n, dbError("failed to purge run summaries", err)
	}
	return n, nil
}

// purgePageSize bounds the documents deleted per BulkWriter flush.
const purgePageSize = 400

// purgeBefore deletes, one page at a time, every document in collection whose
// field is before cutoff.
func purgeBefore(ctx context.Context, client *firestore.Client, collection, field string, cutoff time.Time) (int, error) {
	total := 0
	for {
		iter := client.Collection(collection).
			Where(field, "<", cutoff.UTC()).
			Limit(purgePageSize).
			Documents(ctx)
		refs, err := collectRefs(iter)
		if err != nil {
			return total, err
		}
		if len(refs) == 0 {
			return total, nil
		}

		bw := client.BulkWriter(ctx)
		jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
		for _, ref := range refs {
			job, err := bw.Delete(ref)
			if err != nil {
				bw.End()
				return total, err
			}
			jobs = append(jobs, job)
		}
		bw.End()
		for _, job := range jobs {
			if _, err := job.Results(); err != nil {
				return total, err
			}
			total++
		}

		if len(refs) < purgePageSize {
			return total, nil
		}
	}
}

func collectRefs(iter *firestore.DocumentIterator) ([]*firestore.DocumentRef, error) {
	defer iter.Stop()
	var refs []*firestore.DocumentRef
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return refs, nil
		}
		if err != nil {
			return nil, err
		}
		refs = append(refs, snap.Ref)
	}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
