package external

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"sitewatch/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stubs let the notifier boot with APP_ENV=local without real provider
// credentials. They log every call and return predictable values.
// ---------------------------------------------------------------------------

// StubEmailSender implements EmailSender by logging and recording each email.
type StubEmailSender struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []types.AlertEmail
}

// NewStubEmailSender creates a new StubEmailSender.
func NewStubEmailSender(logger *slog.Logger) *StubEmailSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, email types.AlertEmail) (string, error) {
	s.logger.InfoContext(ctx, "stub: Send email called",
		"to", types.RedactEmail(email.To),
		"subject", email.Subject,
		"reference_id", email.ReferenceID,
	)
	s.mu.Lock()
	s.sent = append(s.sent, email)
	s.mu.Unlock()
	return fmt.Sprintf("msg_stub_%s", email.ReferenceID), nil
}

// Sent returns a copy of every email passed to Send.
func (s *StubEmailSender) Sent() []types.AlertEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AlertEmail, len(s.sent))
	copy(out, s.sent)
	return out
}

// StubWeatherSource implements WeatherSource with a fixed snapshot.
type StubWeatherSource struct {
	Snap   *types.WeatherSnapshot
	logger *slog.Logger
}

// NewStubWeatherSource returns a source reporting a cold, windy, snowy day so
// local runs exercise every stage.
func NewStubWeatherSource(logger *slog.Logger) *StubWeatherSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubWeatherSource{
		logger: logger,
		Snap: &types.WeatherSnapshot{
			Location: types.SnapshotLocation{Name: "Stubville", Region: "Local", Country: "USA"},
			Current:  &types.CurrentConditions{TempF: 24, FeelsLikeF: 12, WindMPH: 31, Humidity: 80, ConditionText: "Blowing snow"},
			Forecast: []types.ForecastDay{{
				MinTempF: 15, MaxTempF: 29, MaxWindMPH: 38,
				ChanceOfSnow: 90, TotalSnowCM: 7.5, ConditionText: "Heavy snow",
			}},
		},
	}
}

func (s *StubWeatherSource) Snapshot(ctx context.Context, loc types.LocationQuery) (*types.WeatherSnapshot, error) {
	q, err := loc.Query()
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "stub: Snapshot called", "query", q)
	snap := *s.Snap
	return &snap, nil
}

var (
	_ EmailSender   = (*StubEmailSender)(nil)
	_ WeatherSource = (*StubWeatherSource)(nil)
)
