package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"sitewatch/internal/types"
)

// TargetSource lists the accounts and jobsites to evaluate.
type TargetSource interface {
	ListUsers(ctx context.Context) ([]types.User, error)
	ListActiveJobsites(ctx context.Context, userID string) ([]types.Jobsite, error)
}

// ThresholdStore returns the stored thresholds keyed by jobsite id or user
// id. A nil config means none are stored.
type ThresholdStore interface {
	GetThresholds(ctx context.Context, targetID string) (*types.ThresholdConfig, error)
}

// EnumerateTargets builds the target list for a run. Basic users contribute
// one target at their zip code; premium and enterprise users contribute one
// target per active jobsite. Any store failure aborts enumeration.
func (r *Runner) EnumerateTargets(ctx context.Context) ([]types.Target, error) {
	users, err := r.targets.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	targets := make([]types.Target, 0, len(users))
	for _, u := range users {
		if !u.Plan.UsesJobsites() {
			t, ok, err := r.userTarget(ctx, u)
			if err != nil {
				return nil, err
			}
			if ok {
				targets = append(targets, t)
			}
			continue
		}

		jobsites, err := r.targets.ListActiveJobsites(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("list jobsites for user %s: %w", u.ID, err)
		}
		for _, js := range jobsites {
			if js.Status != "" && js.Status != types.JobsiteActive {
				continue
			}
			t, err := r.jobsiteTarget(ctx, u, js)
			if err != nil {
				return nil, err
			}
			targets = append(targets, t)
		}
	}
	return targets, nil
}

func (r *Runner) userTarget(ctx context.Context, u types.User) (types.Target, bool, error) {
	if strings.TrimSpace(u.ZipCode) == "" {
		r.logger.WarnContext(ctx, "skipping basic user without zip code", "user_id", u.ID)
		return types.Target{}, false, nil
	}

	cfg, source, err := r.resolveThresholds(ctx, "", u.ID)
	if err != nil {
		return types.Target{}, false, err
	}

	name := u.Name
	if name == "" {
		name = u.Email
	}
	return types.Target{
		Kind:            types.TargetUser,
		UserID:          u.ID,
		Name:            name,
		Plan:            types.PlanBasic,
		Location:        types.LocationQuery{ZipCode: u.ZipCode},
		Thresholds:      cfg,
		ThresholdSource: source,
	}, true, nil
}

func (r *Runner) jobsiteTarget(ctx context.Context, u types.User, js types.Jobsite) (types.Target, error) {
	jobsiteKey := ""
	if !js.UsesGlobalSettings() {
		jobsiteKey = js.ID
	}
	cfg, source, err := r.resolveThresholds(ctx, jobsiteKey, u.ID)
	if err != nil {
		return types.Target{}, err
	}

	return types.Target{
		Kind:            types.TargetJobsite,
		UserID:          u.ID,
		JobsiteID:       js.ID,
		Name:            js.Name,
		Plan:            u.Plan,
		Location:        js.Location(),
		Thresholds:      cfg,
		ThresholdSource: source,
	}, nil
}

// resolveThresholds applies jobsite, then user global, then defaults. An
// empty jobsiteID skips the jobsite level.
func (r *Runner) resolveThresholds(ctx context.Context, jobsiteID, userID string) (types.ThresholdConfig, types.ThresholdSource, error) {
	if jobsiteID != "" {
		cfg, err := r.loadThresholds(ctx, jobsiteID)
		if err != nil {
			return types.ThresholdConfig{}, "", err
		}
		if cfg != nil {
			return *cfg, types.ThresholdSourceJobsite, nil
		}
	}

	cfg, err := r.loadThresholds(ctx, userID)
	if err != nil {
		return types.ThresholdConfig{}, "", err
	}
	if cfg != nil {
		return *cfg, types.ThresholdSourceGlobal, nil
	}
	return types.DefaultThresholds(), types.ThresholdSourceDefault, nil
}

// loadThresholds returns nil only when nothing is stored. A stored all-zero
// config disables every check. Invalid stored fields are disabled, never
// replaced by defaults.
func (r *Runner) loadThresholds(ctx context.Context, key string) (*types.ThresholdConfig, error) {
	cfg, err := r.thresholds.GetThresholds(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load thresholds for %s: %w", key, err)
	}
	if cfg == nil {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		clean, disabled := cfg.Sanitize()
		r.logger.WarnContext(ctx, "disabling invalid stored thresholds",
			"settings_id", key, "fields", disabled, "error", err)
		return &clean, nil
	}
	return cfg, nil
}
