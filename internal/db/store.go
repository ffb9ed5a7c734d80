package db

import "fmt"

// Store bundles the Postgres repositories behind the interfaces the
// notifier consumes.
type Store struct {
	*AccountRepository
	*NotificationRepository

	Runs    *RunRepository
	DryRuns *RunRepository
}

// NewStore builds a Store on db.
func NewStore(db DBTX) (*Store, error) {
	runs, err := NewRunRepository(db, TableRuns)
	if err != nil {
		return nil, fmt.Errorf("runs repository: %w", err)
	}
	dryRuns, err := NewRunRepository(db, TableDryRunRuns)
	if err != nil {
		return nil, fmt.Errorf("dry-run repository: %w", err)
	}
	return &Store{
		AccountRepository:      NewAccountRepository(db),
		NotificationRepository: NewNotificationRepository(db),
		Runs:                   runs,
		DryRuns:                dryRuns,
	}, nil
}
