package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"sitewatch/internal/types"
)

// AccountRepository reads users, jobsites, contacts and weather settings.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates a new AccountRepository backed by the given
// database connection (pool or transaction).
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// ListUsers returns every user ordered by id. Unknown plan values are
// normalized to basic.
func (r *AccountRepository) ListUsers(ctx context.Context) ([]types.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, email, plan, zip_code
		 FROM users
		 ORDER BY id`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list users", err)
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		var u types.User
		var name, zip *string
		var plan string
		if err := rows.Scan(&u.ID, &name, &u.Email, &plan, &zip); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user row", err)
		}
		u.Name = derefString(name)
		u.ZipCode = strings.TrimSpace(derefString(zip))
		u.Plan = types.NormalizePlanTier(plan)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating user rows", err)
	}
	return users, nil
}

// ListActiveJobsites returns the user's jobsites with status active.
func (r *AccountRepository) ListActiveJobsites(ctx context.Context, userID string) ([]types.Jobsite, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, name, address, zip_code, lat, lon, status, use_global_settings
		 FROM jobsites
		 WHERE user_id = $1 AND status = 'active'
		 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list jobsites", err)
	}
	defer rows.Close()

	var jobsites []types.Jobsite
	for rows.Next() {
		var js types.Jobsite
		var address, zip *string
		var status string
		if err := rows.Scan(&js.ID, &js.UserID, &js.Name, &address, &zip,
			&js.Lat, &js.Lon, &status, &js.UseGlobalSettings); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan jobsite row", err)
		}
		js.Address = derefString(address)
		js.ZipCode = derefString(zip)
		js.Status = types.JobsiteStatus(status)
		jobsites = append(jobsites, js)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating jobsite rows", err)
	}
	return jobsites, nil
}

// ListActiveContacts returns the active contacts of one kind owned by the
// user. Opt-in filtering is left to the caller.
func (r *AccountRepository) ListActiveContacts(ctx context.Context, ownerUserID string, kind types.ContactKind) ([]types.Contact, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, kind, name, email, active, weather_alerts_opt_in
		 FROM contacts
		 WHERE user_id = $1 AND kind = $2 AND active
		 ORDER BY id`,
		ownerUserID,
		string(kind),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list contacts", err)
	}
	defer rows.Close()

	var contacts []types.Contact
	for rows.Next() {
		var c types.Contact
		var k string
		var name, email *string
		if err := rows.Scan(&c.ID, &c.UserID, &k, &name, &email, &c.Active, &c.WeatherAlertsOptIn); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan contact row", err)
		}
		c.Kind = types.ContactKind(k)
		c.Name = derefString(name)
		c.Email = derefString(email)
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating contact rows", err)
	}
	return contacts, nil
}

// GetThresholds returns the weather settings stored under id (a jobsite id
// or a user id), or nil when none exist.
func (r *AccountRepository) GetThresholds(ctx context.Context, id string) (*types.ThresholdConfig, error) {
	var cfg types.ThresholdConfig
	err := r.db.QueryRow(ctx,
		`SELECT min_temperature, max_temperature, max_wind_speed,
		        precipitation_threshold, snow_threshold
		 FROM weather_settings
		 WHERE id = $1`,
		id,
	).Scan(&cfg.MinTemperature, &cfg.MaxTemperature, &cfg.MaxWindSpeed,
		&cfg.PrecipitationThreshold, &cfg.SnowThreshold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve weather settings", err)
	}
	return &cfg, nil
}

// UpsertThresholds stores weather settings under id after validating them.
func (r *AccountRepository) UpsertThresholds(ctx context.Context, id string, cfg types.ThresholdConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO weather_settings
		 (id, min_temperature, max_temperature, max_wind_speed,
		  precipitation_threshold, snow_threshold, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (id) DO UPDATE SET
		   min_temperature = EXCLUDED.min_temperature,
		   max_temperature = EXCLUDED.max_temperature,
		   max_wind_speed = EXCLUDED.max_wind_speed,
		   precipitation_threshold = EXCLUDED.precipitation_threshold,
		   snow_threshold = EXCLUDED.snow_threshold,
		   updated_at = NOW()`,
		id,
		cfg.MinTemperature,
		cfg.MaxTemperature,
		cfg.MaxWindSpeed,
		cfg.PrecipitationThreshold,
		cfg.SnowThreshold,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert weather settings", err)
	}
	return nil
}
