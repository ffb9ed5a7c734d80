package app

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitewatch/internal/config"
	"sitewatch/internal/content"
	"sitewatch/internal/external"
	"sitewatch/internal/metrics"
	"sitewatch/internal/types"
)

func localConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		Store:       config.StoreConfig{Backend: config.BackendPostgres},
		Weather:     config.WeatherConfig{BaseURL: "https://api.weatherapi.com", ForecastDays: 1},
		Content:     config.ContentConfig{CacheSize: 16},
		Email:       config.EmailConfig{Delivery: config.DeliveryDirect, FromAddress: "alerts@sitewatch.app"},
		Telemetry:   config.TelemetryConfig{MetricNamespace: "SiteWatch/Notifier"},
	}
}

func TestDecodeCredentials(t *testing.T) {
	raw, err := DecodeCredentials("")
	require.NoError(t, err)
	assert.Nil(t, raw)

	enc := base64.StdEncoding.EncodeToString([]byte(`{"type":"service_account"}`))
	raw, err = DecodeCredentials(types.SecretString(enc + "\n"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"service_account"}`, string(raw))

	_, err = DecodeCredentials("not base64!")
	assert.ErrorContains(t, err, "FIREBASE_CREDENTIALS_JSON")
}

func TestNewWeatherSource(t *testing.T) {
	cfg := localConfig()
	assert.IsType(t, &external.StubWeatherSource{}, NewWeatherSource(cfg, nil))

	cfg.Weather.APIKey = "key"
	assert.IsType(t, &external.WeatherAPIClient{}, NewWeatherSource(cfg, nil))

	cfg.Weather.APIKey = ""
	cfg.Environment = "prod"
	assert.IsType(t, &external.WeatherAPIClient{}, NewWeatherSource(cfg, nil), "stubs are local only")
}

func TestNewDirectSender(t *testing.T) {
	cfg := localConfig()
	assert.IsType(t, &external.StubEmailSender{}, NewDirectSender(cfg, nil))

	cfg.Email.SendGridAPIKey = "SG.key"
	assert.IsType(t, &external.SendGridClient{}, NewDirectSender(cfg, nil))
}

func TestNewMetrics(t *testing.T) {
	cfg := localConfig()
	assert.IsType(t, metrics.Noop{}, NewMetrics(cfg, aws.Config{}, nil))

	cfg.Telemetry.MetricsEnabled = true
	assert.IsType(t, &metrics.CloudWatchMetrics{}, NewMetrics(cfg, aws.Config{Region: "us-east-1"}, nil))
}

func TestNewGenerator(t *testing.T) {
	cfg := localConfig()
	assert.Nil(t, newGenerator(cfg, newTestLogger()))

	cfg.Content.OpenAIAPIKey = "sk-test"
	assert.IsType(t, &external.OpenAIGenerator{}, newGenerator(cfg, newTestLogger()))
}

func TestNewContentCache(t *testing.T) {
	cfg := localConfig()
	a := &App{}

	cache, err := a.newContentCache(cfg)
	require.NoError(t, err)
	assert.IsType(t, &content.MemoryCache{}, cache)
	assert.Empty(t, a.Probes)

	cfg.Content.RedisURL = "redis://localhost:6379/2"
	cache, err = a.newContentCache(cfg)
	require.NoError(t, err)
	assert.IsType(t, &content.RedisCache{}, cache)
	require.Len(t, a.Probes, 1)
	assert.Equal(t, "redis", a.Probes[0].Name())
	a.Close()

	cfg.Content.RedisURL = "mysql://nope"
	_, err = a.newContentCache(cfg)
	assert.Error(t, err)
}

func TestBuild_UnknownBackend(t *testing.T) {
	cfg := localConfig()
	cfg.Store.Backend = "cassandra"

	_, err := Build(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestBuild_BadDatabaseURL(t *testing.T) {
	cfg := localConfig()
	cfg.Store.DatabaseURL = "::not a url::"

	_, err := Build(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestOpenStorage_UnknownBackend(t *testing.T) {
	cfg := localConfig()
	cfg.Store.Backend = "cassandra"

	_, err := OpenStorage(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestNewMaintenance_RejectsShortRetention(t *testing.T) {
	cfg := localConfig()
	cfg.Retention = config.RetentionConfig{Notifications: time.Hour, Runs: 8760 * time.Hour, DryRuns: 336 * time.Hour}

	_, err := (&App{}).NewMaintenance(cfg, newTestLogger())
	assert.ErrorContains(t, err, "below the minimum")
}

func TestCloseRunsNewestFirst(t *testing.T) {
	var order []int
	a := &App{closers: []func(){
		func() { order = append(order, 1) },
		func() { order = append(order, 2) },
	}}
	a.Close()
	a.Close()
	assert.Equal(t, []int{2, 1}, order)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
