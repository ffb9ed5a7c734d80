package docstore

import (
	"encoding/json"
	"strings"
	"time"

	"sitewatch/internal/types"
)

// Collection names.
const (
	colUsers            = "users"
	colJobsites         = "jobsites"
	colClients          = "clients"
	colWorkers          = "workers"
	colWeatherSettings  = "weatherSettings"
	colNotifications    = "notifications"
	colNotificationLogs = "notificationLogs"
	colRuns             = "notificationRuns"
	colDryRuns          = "notificationDryRuns"
)

type userDoc struct {
	Name    string `firestore:"name"`
	Email   string `firestore:"email"`
	Plan    string `firestore:"plan"`
	ZipCode string `firestore:"zipCode"`
}

func (d userDoc) toUser(id string) types.User {
	return types.User{
		ID:      id,
		Name:    d.Name,
		Email:   d.Email,
		Plan:    types.NormalizePlanTier(d.Plan),
		ZipCode: strings.TrimSpace(d.ZipCode),
	}
}

type jobsiteDoc struct {
	UserID            string   `firestore:"userId"`
	Name              string   `firestore:"name"`
	Address           string   `firestore:"address"`
	ZipCode           string   `firestore:"zipCode"`
	Lat               *float64 `firestore:"lat"`
	Lon               *float64 `firestore:"lon"`
	Status            string   `firestore:"status"`
	UseGlobalSettings *bool    `firestore:"useGlobalSettings"`
}

func (d jobsiteDoc) toJobsite(id string) types.Jobsite {
	return types.Jobsite{
		ID:                id,
		UserID:            d.UserID,
		Name:              d.Name,
		Address:           d.Address,
		ZipCode:           strings.TrimSpace(d.ZipCode),
		Lat:               d.Lat,
		Lon:               d.Lon,
		Status:            types.JobsiteStatus(d.Status),
		UseGlobalSettings: d.UseGlobalSettings,
	}
}

type contactDoc struct {
	UserID             string `firestore:"userId"`
	Name               string `firestore:"name"`
	Email              string `firestore:"email"`
	Active             bool   `firestore:"active"`
	WeatherAlertsOptIn *bool  `firestore:"weatherAlerts"`
}

func (d contactDoc) toContact(id string, kind types.ContactKind) types.Contact {
	return types.Contact{
		ID:                 id,
		UserID:             d.UserID,
		Kind:               kind,
		Name:               d.Name,
		Email:              strings.TrimSpace(d.Email),
		Active:             d.Active,
		WeatherAlertsOptIn: d.WeatherAlertsOptIn,
	}
}

func contactCollection(kind types.ContactKind) string {
	if kind == types.ContactWorker {
		return colWorkers
	}
	return colClients
}

type settingsDoc struct {
	MinTemperature         float64   `firestore:"minTemperature"`
	MaxTemperature         float64   `firestore:"maxTemperature"`
	MaxWindSpeed           float64   `firestore:"maxWindSpeed"`
	PrecipitationThreshold float64   `firestore:"precipitationThreshold"`
	SnowThreshold          float64   `firestore:"snowThreshold"`
	UpdatedAt              time.Time `firestore:"updatedAt,serverTimestamp"`
}

func (d settingsDoc) toThresholds() types.ThresholdConfig {
	return types.ThresholdConfig{
		MinTemperature:         d.MinTemperature,
		MaxTemperature:         d.MaxTemperature,
		MaxWindSpeed:           d.MaxWindSpeed,
		PrecipitationThreshold: d.PrecipitationThreshold,
		SnowThreshold:          d.SnowThreshold,
	}
}

func settingsFrom(cfg types.ThresholdConfig) settingsDoc {
	return settingsDoc{
		MinTemperature:         cfg.MinTemperature,
		MaxTemperature:         cfg.MaxTemperature,
		MaxWindSpeed:           cfg.MaxWindSpeed,
		PrecipitationThreshold: cfg.PrecipitationThreshold,
		SnowThreshold:          cfg.SnowThreshold,
	}
}

// notificationDoc is the aggregate log entry. Dedup history queries it by
// targetId and createdAt.
type notificationDoc struct {
	TargetID       string    `firestore:"targetId"`
	TargetKind     string    `firestore:"targetKind"`
	UserID         string    `firestore:"userId"`
	JobsiteID      string    `firestore:"jobsiteId,omitempty"`
	Conditions     []string  `firestore:"conditions"`
	RecipientCount int       `firestore:"recipientCount"`
	Weather        []byte    `firestore:"weather"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

func notificationFrom(rec *types.NotificationRecord, now time.Time) (notificationDoc, error) {
	weather, err := json.Marshal(rec.Weather)
	if err != nil {
		return notificationDoc{}, err
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}
	return notificationDoc{
		TargetID:       rec.TargetID(),
		TargetKind:     string(rec.TargetKind),
		UserID:         rec.UserID,
		JobsiteID:      rec.JobsiteID,
		Conditions:     rec.Conditions.Strings(),
		RecipientCount: rec.RecipientCount,
		Weather:        weather,
		CreatedAt:      created.UTC(),
	}, nil
}

func (d notificationDoc) toRecord(id string) types.NotificationRecord {
	rec := types.NotificationRecord{
		ID:             id,
		UserID:         d.UserID,
		JobsiteID:      d.JobsiteID,
		TargetKind:     types.TargetKind(d.TargetKind),
		Conditions:     types.ParseConditions(d.Conditions),
		RecipientCount: d.RecipientCount,
		CreatedAt:      d.CreatedAt,
	}
	if len(d.Weather) > 0 {
		_ = json.Unmarshal(d.Weather, &rec.Weather)
	}
	return rec
}

type recipientLogDoc struct {
	UserID         string    `firestore:"userId"`
	JobsiteID      string    `firestore:"jobsiteId,omitempty"`
	RecipientID    string    `firestore:"recipientId"`
	RecipientType  string    `firestore:"recipientType"`
	RecipientName  string    `firestore:"recipientName"`
	RecipientEmail string    `firestore:"recipientEmail"`
	Conditions     []string  `firestore:"conditions"`
	Content        string    `firestore:"content"`
	Weather        []byte    `firestore:"weather"`
	MessageID      string    `firestore:"messageId,omitempty"`
	SentAt         time.Time `firestore:"sentAt"`
}

func recipientLogFrom(n *types.RecipientNotification, now time.Time) (recipientLogDoc, error) {
	weather, err := json.Marshal(n.Weather)
	if err != nil {
		return recipientLogDoc{}, err
	}
	sent := n.SentAt
	if sent.IsZero() {
		sent = now
	}
	return recipientLogDoc{
		UserID:         n.UserID,
		JobsiteID:      n.JobsiteID,
		RecipientID:    n.RecipientID,
		RecipientType:  string(n.RecipientType),
		RecipientName:  n.RecipientName,
		RecipientEmail: n.RecipientEmail,
		Conditions:     n.Conditions.Strings(),
		Content:        n.Content,
		Weather:        weather,
		MessageID:      n.MessageID,
		SentAt:         sent.UTC(),
	}, nil
}

// runDoc keeps the counters as fields and the per-target results as one
// encoded blob.
type runDoc struct {
	StartedAt         time.Time `firestore:"startedAt"`
	FinishedAt        time.Time `firestore:"finishedAt"`
	DebugMode         bool      `firestore:"debugMode"`
	TotalTargets      int       `firestore:"totalTargets"`
	Succeeded         int       `firestore:"succeeded"`
	Failed            int       `firestore:"failed"`
	NotificationsSent int       `firestore:"notificationsSent"`
	Results           []byte    `firestore:"results"`
}

func runFrom(s *types.RunSummary) (runDoc, error) {
	results := s.Results
	if results == nil {
		results = []types.TargetResult{}
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return runDoc{}, err
	}
	return runDoc{
		StartedAt:         s.StartedAt,
		FinishedAt:        s.FinishedAt,
		DebugMode:         s.DebugMode,
		TotalTargets:      s.TotalTargets,
		Succeeded:         s.Succeeded,
		Failed:            s.Failed,
		NotificationsSent: s.NotificationsSent,
		Results:           raw,
	}, nil
}

func (d runDoc) toSummary(id string) (*types.RunSummary, error) {
	s := &types.RunSummary{
		ID:                id,
		StartedAt:         d.StartedAt,
		FinishedAt:        d.FinishedAt,
		DebugMode:         d.DebugMode,
		TotalTargets:      d.TotalTargets,
		Succeeded:         d.Succeeded,
		Failed:            d.Failed,
		NotificationsSent: d.NotificationsSent,
	}
	if err := json.Unmarshal(d.Results, &s.Results); err != nil {
		return nil, err
	}
	return s, nil
}
