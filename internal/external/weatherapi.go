package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sitewatch/internal/types"
)

const weatherAPIBase = "https://api.weatherapi.com"

// weatherAPIErrNoLocation is the provider's error code for an unknown q value.
const weatherAPIErrNoLocation = 1006

// WeatherAPIConfig holds the configuration for creating a WeatherAPIClient.
type WeatherAPIConfig struct {
	APIKey       string
	BaseURL      string // Override for testing; defaults to weatherAPIBase
	ForecastDays int
	Logger       *slog.Logger
	Clock        types.Clock
}

// WeatherAPIClient fetches forecasts from WeatherAPI.com and converts them to
// types.WeatherSnapshot.
type WeatherAPIClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	days    int
	clock   types.Clock
	logger  *slog.Logger
}

// NewWeatherAPIClient creates a WeatherAPIClient. The httpClient timeout
// bounds each attempt.
func NewWeatherAPIClient(httpClient *http.Client, cfg WeatherAPIConfig) *WeatherAPIClient {
	base := NewBaseClient(
		httpClient,
		BreakerSettings{Name: "weatherapi"},
		DefaultRetryPolicy(),
		"SiteWatch/1.0",
		WithUpstreamCode(types.ErrCodeUpstreamWeather),
	)
	return NewWeatherAPIClientWithBase(base, cfg)
}

// NewWeatherAPIClientWithBase creates a WeatherAPIClient with a
// pre-configured BaseClient.
func NewWeatherAPIClientWithBase(base *BaseClient, cfg WeatherAPIConfig) *WeatherAPIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = weatherAPIBase
	}
	days := cfg.ForecastDays
	if days <= 0 {
		days = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	return &WeatherAPIClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		days:    days,
		clock:   clock,
		logger:  logger,
	}
}

// Snapshot fetches current conditions, forecast and alerts for loc.
// An unknown location returns a not_found_location AppError.
func (c *WeatherAPIClient) Snapshot(ctx context.Context, loc types.LocationQuery) (*types.WeatherSnapshot, error) {
	q, err := loc.Query()
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("q", q)
	params.Set("days", strconv.Itoa(c.days))
	params.Set("alerts", "yes")
	params.Set("aqi", "no")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/forecast.json?"+params.Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create forecast request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "failed to read forecast response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.mapErrorResponse(resp.StatusCode, body, q)
	}

	var dto forecastResponse
	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationWeatherData, "malformed forecast response", err)
	}
	if err := types.Validator().Struct(dto); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationWeatherData, "forecast response failed validation", err)
	}

	return dto.toSnapshot(c.clock.Now(), c.logger), nil
}

func (c *WeatherAPIClient) mapErrorResponse(status int, body []byte, q string) error {
	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	if apiErr.Error.Code == weatherAPIErrNoLocation {
		return types.NewAppErrorWithDetails(types.ErrCodeNotFoundLocation,
			"no weather data for location", nil, map[string]any{"query": q})
	}
	msg := apiErr.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return types.NewAppErrorWithDetails(types.ErrCodeUpstreamWeather,
		fmt.Sprintf("weather provider returned %d: %s", status, msg), nil,
		map[string]any{"provider_code": apiErr.Error.Code})
}

// ---------------------------------------------------------------------------
// Wire DTOs
// ---------------------------------------------------------------------------

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type forecastResponse struct {
	Location locationDTO  `json:"location"`
	Current  *currentDTO  `json:"current" validate:"omitempty"`
	Forecast *forecastDTO `json:"forecast" validate:"omitempty"`
	Alerts   *alertsDTO   `json:"alerts"`
}

type locationDTO struct {
	Name    string  `json:"name"`
	Region  string  `json:"region"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon     float64 `json:"lon" validate:"gte=-180,lte=180"`
	TZID    string  `json:"tz_id"`
}

type conditionDTO struct {
	Text string `json:"text"`
}

type currentDTO struct {
	TempF      float64      `json:"temp_f" validate:"gte=-130,lte=150"`
	FeelsLikeF float64      `json:"feelslike_f"`
	WindMPH    float64      `json:"wind_mph" validate:"gte=0,lte=300"`
	Humidity   float64      `json:"humidity" validate:"gte=0,lte=100"`
	Condition  conditionDTO `json:"condition"`
}

type forecastDTO struct {
	ForecastDay []forecastDayDTO `json:"forecastday" validate:"dive"`
}

type forecastDayDTO struct {
	Date string `json:"date"`
	Day  dayDTO `json:"day"`
}

type dayDTO struct {
	MaxTempF     float64      `json:"maxtemp_f" validate:"gte=-130,lte=150"`
	MinTempF     float64      `json:"mintemp_f" validate:"gte=-130,lte=150"`
	MaxWindMPH   float64      `json:"maxwind_mph" validate:"gte=0,lte=300"`
	TotalPrecip  float64      `json:"totalprecip_in" validate:"gte=0"`
	TotalSnowCM  float64      `json:"totalsnow_cm" validate:"gte=0"`
	ChanceOfRain float64      `json:"daily_chance_of_rain" validate:"gte=0,lte=100"`
	ChanceOfSnow float64      `json:"daily_chance_of_snow" validate:"gte=0,lte=100"`
	Condition    conditionDTO `json:"condition"`
}

type alertsDTO struct {
	Alert []alertDTO `json:"alert"`
}

type alertDTO struct {
	Headline  string `json:"headline"`
	Severity  string `json:"severity"`
	Category  string `json:"category"`
	Event     string `json:"event"`
	Effective string `json:"effective"`
	Expires   string `json:"expires"`
	Desc      string `json:"desc"`
}

func (r forecastResponse) toSnapshot(fetchedAt time.Time, logger *slog.Logger) *types.WeatherSnapshot {
	snap := &types.WeatherSnapshot{
		Location: types.SnapshotLocation{
			Name:    r.Location.Name,
			Region:  r.Location.Region,
			Country: r.Location.Country,
			Lat:     r.Location.Lat,
			Lon:     r.Location.Lon,
			TZID:    r.Location.TZID,
		},
		FetchedAt: fetchedAt,
	}

	if cur := r.Current; cur != nil {
		snap.Current = &types.CurrentConditions{
			TempF:         cur.TempF,
			FeelsLikeF:    cur.FeelsLikeF,
			WindMPH:       cur.WindMPH,
			Humidity:      cur.Humidity,
			ConditionText: cur.Condition.Text,
		}
	}

	if r.Forecast != nil {
		for _, fd := range r.Forecast.ForecastDay {
			snap.Forecast = append(snap.Forecast, types.ForecastDay{
				Date:          fd.Date,
				MinTempF:      fd.Day.MinTempF,
				MaxTempF:      fd.Day.MaxTempF,
				MaxWindMPH:    fd.Day.MaxWindMPH,
				ChanceOfRain:  fd.Day.ChanceOfRain,
				TotalPrecipIn: fd.Day.TotalPrecip,
				ChanceOfSnow:  fd.Day.ChanceOfSnow,
				TotalSnowCM:   fd.Day.TotalSnowCM,
				ConditionText: fd.Day.Condition.Text,
			})
		}
	}

	if r.Alerts != nil {
		for _, a := range r.Alerts.Alert {
			if strings.TrimSpace(a.Headline) == "" && strings.TrimSpace(a.Event) == "" {
				logger.Debug("skipping alert without headline or event", "location", r.Location.Name)
				continue
			}
			headline := a.Headline
			if headline == "" {
				headline = a.Event
			}
			snap.Alerts = append(snap.Alerts, types.WeatherAlert{
				Headline:    headline,
				Severity:    a.Severity,
				Category:    a.Category,
				Event:       a.Event,
				Effective:   parseAlertTime(a.Effective),
				Expires:     parseAlertTime(a.Expires),
				Description: a.Desc,
			})
		}
	}

	return snap
}

func parseAlertTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
