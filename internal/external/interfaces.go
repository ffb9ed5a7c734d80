package external

import (
	"context"

	"sitewatch/internal/types"
)

// EmailSender abstracts the email delivery service. Implementations transmit
// pre-rendered content and return the provider's message ID.
type EmailSender interface {
	Send(ctx context.Context, email types.AlertEmail) (providerMsgID string, err error)
}

// WeatherSource abstracts the weather provider.
type WeatherSource interface {
	// Snapshot returns current conditions, today's forecast and active alerts
	// for the location.
	Snapshot(ctx context.Context, loc types.LocationQuery) (*types.WeatherSnapshot, error)
}

var _ WeatherSource = (*WeatherAPIClient)(nil)
