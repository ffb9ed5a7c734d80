package types

import (
	"fmt"
	"strconv"
	"strings"
)

// PlanTier is the subscription tier of a user account.
type PlanTier string

const (
	PlanBasic      PlanTier = "basic"
	PlanPremium    PlanTier = "premium"
	PlanEnterprise PlanTier = "enterprise"
)

// UsesJobsites reports whether the tier monitors jobsites rather than the
// user's single zip code.
func (p PlanTier) UsesJobsites() bool {
	return p == PlanPremium || p == PlanEnterprise
}

// NormalizePlanTier maps stored plan values onto the known tiers. Unknown or
// empty values are treated as basic.
func NormalizePlanTier(s string) PlanTier {
	switch PlanTier(strings.ToLower(strings.TrimSpace(s))) {
	case PlanPremium:
		return PlanPremium
	case PlanEnterprise:
		return PlanEnterprise
	default:
		return PlanBasic
	}
}

// User is an account owner.
type User struct {
	ID      string
	Name    string
	Email   string
	Plan    PlanTier
	ZipCode string
}

// JobsiteStatus is the lifecycle state of a jobsite.
type JobsiteStatus string

const (
	JobsiteActive    JobsiteStatus = "active"
	JobsiteCompleted JobsiteStatus = "completed"
	JobsiteOnHold    JobsiteStatus = "on_hold"
)

// Jobsite is a construction site owned by a premium or enterprise user.
type Jobsite struct {
	ID                string
	UserID            string
	Name              string
	Address           string
	ZipCode           string
	Lat               *float64
	Lon               *float64
	Status            JobsiteStatus
	UseGlobalSettings *bool
}

// UsesGlobalSettings reports whether the jobsite defers to the owner's global
// thresholds. Unset means true.
func (j Jobsite) UsesGlobalSettings() bool {
	return j.UseGlobalSettings == nil || *j.UseGlobalSettings
}

// Location returns the most precise location descriptor the jobsite has.
func (j Jobsite) Location() LocationQuery {
	if j.Lat != nil && j.Lon != nil {
		return LocationQuery{Lat: j.Lat, Lon: j.Lon}
	}
	if j.ZipCode != "" {
		return LocationQuery{ZipCode: j.ZipCode}
	}
	return LocationQuery{Address: j.Address}
}

// ContactKind distinguishes the two contact collections.
type ContactKind string

const (
	ContactClient ContactKind = "client"
	ContactWorker ContactKind = "worker"
)

// Contact is a client or worker belonging to a user.
type Contact struct {
	ID                 string
	UserID             string
	Kind               ContactKind
	Name               string
	Email              string
	Active             bool
	WeatherAlertsOptIn *bool
}

// OptedIn reports whether the contact accepts weather alerts. Contacts
// without an explicit preference are included.
func (c Contact) OptedIn() bool {
	return c.WeatherAlertsOptIn == nil || *c.WeatherAlertsOptIn
}

// Recipient is one resolved email destination for an alert.
type Recipient struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Type  ContactKind `json:"type"`
}

// LocationQuery describes where to fetch weather for: coordinates, a zip
// code, or a free-text address, in that order of preference.
type LocationQuery struct {
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
	ZipCode string   `json:"zip_code,omitempty"`
	Address string   `json:"address,omitempty"`
}

// Query renders the descriptor in the weather provider's q parameter format.
func (l LocationQuery) Query() (string, error) {
	switch {
	case l.Lat != nil && l.Lon != nil:
		if *l.Lat < -90 || *l.Lat > 90 || *l.Lon < -180 || *l.Lon > 180 {
			return "", NewAppError(ErrCodeValidationLocation,
				fmt.Sprintf("coordinates out of range: %f,%f", *l.Lat, *l.Lon), nil)
		}
		return strconv.FormatFloat(*l.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(*l.Lon, 'f', -1, 64), nil
	case strings.TrimSpace(l.ZipCode) != "":
		return strings.TrimSpace(l.ZipCode), nil
	case strings.TrimSpace(l.Address) != "":
		return strings.TrimSpace(l.Address), nil
	default:
		return "", NewAppError(ErrCodeValidationLocation, "target has no coordinates, zip code or address", nil)
	}
}

// TargetKind is the unit of evaluation.
type TargetKind string

const (
	TargetJobsite TargetKind = "jobsite"
	TargetUser    TargetKind = "user"
)

// Target is one jobsite or basic-tier user location evaluated in a run.
type Target struct {
	Kind            TargetKind      `json:"kind"`
	UserID          string          `json:"user_id"`
	JobsiteID       string          `json:"jobsite_id,omitempty"`
	Name            string          `json:"name"`
	Plan            PlanTier        `json:"plan"`
	Location        LocationQuery   `json:"location"`
	Thresholds      ThresholdConfig `json:"thresholds"`
	ThresholdSource ThresholdSource `json:"threshold_source"`
}

// ID returns the target's identifier: the jobsite id for jobsites, the user
// id for user targets. Notification history is keyed by it.
func (t Target) ID() string {
	if t.Kind == TargetJobsite {
		return t.JobsiteID
	}
	return t.UserID
}
