// Package recipients assembles the alert recipients for a target from the
// owning user's clients and workers.
package recipients

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"sitewatch/internal/types"
)

// ContactStore lists a user's active contacts of one kind.
type ContactStore interface {
	ListActiveContacts(ctx context.Context, ownerUserID string, kind types.ContactKind) ([]types.Contact, error)
}

// Resolver resolves recipients for targets.
type Resolver struct {
	contacts ContactStore
	logger   *slog.Logger
}

// NewResolver creates a Resolver backed by contacts.
func NewResolver(contacts ContactStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{contacts: contacts, logger: logger}
}

// Resolve returns the de-duplicated recipients for target. Contacts are
// resolved at the owning user's level for every tier; jobsite targets do not
// narrow the set. An empty slice is a valid result.
func (r *Resolver) Resolve(ctx context.Context, target types.Target) ([]types.Recipient, error) {
	applyOptIn := !target.Plan.UsesJobsites()

	seen := make(map[string]struct{})
	var out []types.Recipient
	dropped := 0

	for _, kind := range []types.ContactKind{types.ContactClient, types.ContactWorker} {
		contacts, err := r.contacts.ListActiveContacts(ctx, target.UserID, kind)
		if err != nil {
			return nil, fmt.Errorf("list active %ss for user %s: %w", kind, target.UserID, err)
		}
		for _, c := range contacts {
			if !c.Active {
				continue
			}
			if applyOptIn && !c.OptedIn() {
				continue
			}
			email := strings.TrimSpace(c.Email)
			if !types.IsValidEmail(email) {
				dropped++
				continue
			}
			key := strings.ToLower(email)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, types.Recipient{
				ID:    c.ID,
				Name:  c.Name,
				Email: email,
				Type:  kind,
			})
		}
	}

	if dropped > 0 {
		r.logger.Debug("dropped contacts without usable email",
			"user_id", target.UserID,
			"target_id", target.ID(),
			"dropped", dropped,
		)
	}
	return out, nil
}
