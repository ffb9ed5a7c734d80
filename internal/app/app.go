// Package app assembles the notifier from configuration. Every binary builds
// its collaborators here so the wiring is identical in Lambda, daemon and
// HTTP mode.
package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"sitewatch/internal/api"
	"sitewatch/internal/config"
	"sitewatch/internal/content"
	"sitewatch/internal/db"
	"sitewatch/internal/dedup"
	"sitewatch/internal/dispatch"
	"sitewatch/internal/docstore"
	"sitewatch/internal/external"
	"sitewatch/internal/metrics"
	"sitewatch/internal/orchestrator"
	"sitewatch/internal/queue"
	"sitewatch/internal/recipients"
	"sitewatch/internal/scheduler"
	"sitewatch/internal/types"
)

// Store is the account and notification storage both backends provide.
type Store interface {
	orchestrator.TargetSource
	orchestrator.ThresholdStore
	recipients.ContactStore
	dedup.HistoryStore
	dispatch.NotificationWriter
	scheduler.NotificationPurger
	UpsertThresholds(ctx context.Context, targetID string, cfg types.ThresholdConfig) error
}

// RunStore persists and loads run summaries.
type RunStore interface {
	orchestrator.RunSink
	api.RunReader
	scheduler.RunPurger
}

// Metrics is implemented by metrics.CloudWatchMetrics and metrics.Noop.
type Metrics interface {
	RecordRun(ctx context.Context, s *types.RunSummary) error
	RecordDelivery(ctx context.Context, result string)
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// App holds the assembled notifier.
type App struct {
	Runner  *orchestrator.Runner
	Store   Store
	Runs    RunStore
	DryRuns RunStore
	Metrics Metrics
	Probes  []api.HealthProbe

	closers []func()
}

// Close releases every connection opened by Build, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// APIDeps returns the collaborators the admin API needs.
func (a *App) APIDeps() api.Deps {
	return api.Deps{
		Runner:     a.Runner,
		Runs:       a.Runs,
		DryRuns:    a.DryRuns,
		Thresholds: a.Store,
		Probes:     a.Probes,
	}
}

// OpenStorage connects only the configured store. The archiver needs nothing
// else.
func OpenStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{}
	if err := a.openStore(ctx, cfg, logger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Build connects to storage and the providers selected by cfg and wires the
// pipeline. On error, anything already opened is closed.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a, err := OpenStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var awsCfg aws.Config
	if cfg.Telemetry.MetricsEnabled || cfg.Email.Delivery == config.DeliveryQueue {
		awsCfg, err = LoadAWS(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	a.Metrics = NewMetrics(cfg, awsCfg, logger)

	cache, err := a.newContentCache(cfg)
	if err != nil {
		return nil, err
	}

	var email dispatch.EmailSender
	if cfg.Email.Delivery == config.DeliveryQueue {
		email = queue.NewEmailPublisher(newSQSClient(cfg, awsCfg), cfg.AWS.EmailQueueURL, logger)
	} else {
		email = NewDirectSender(cfg, logger)
	}

	dispatcher := dispatch.NewDispatcher(dispatch.Deps{
		Weather:    NewWeatherSource(cfg, logger),
		Dedup:      dedup.NewDeduplicator(a.Store, cfg.DedupLocation(), logger),
		Recipients: recipients.NewResolver(a.Store, logger),
		Content:    content.NewBuilder(newGenerator(cfg, logger), cache, content.BuilderConfig{Timeout: cfg.Content.Timeout, CacheTTL: cfg.Content.CacheTTL}, logger),
		Writer:     a.Store,
		Email:      email,
	}, dispatch.Config{
		WeatherTimeout:  cfg.Weather.Timeout,
		EmitConcurrency: cfg.Run.EmitConcurrency,
	}, logger)

	a.Runner = orchestrator.NewRunner(orchestrator.Deps{
		Targets:    a.Store,
		Thresholds: a.Store,
		Dispatcher: dispatcher,
		Sink:       a.Runs,
		DryRunSink: a.DryRuns,
		Metrics:    a.Metrics,
	}, orchestrator.Config{Concurrency: cfg.Run.Concurrency}, logger)

	logger.InfoContext(ctx, "notifier assembled",
		"store_backend", cfg.Store.Backend,
		"email_delivery", cfg.Email.Delivery,
		"metrics_enabled", cfg.Telemetry.MetricsEnabled,
		"content_cache", cacheKind(cfg),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	switch cfg.Store.Backend {
	case config.BackendFirestore:
		creds, err := DecodeCredentials(cfg.Store.FirebaseCredentials)
		if err != nil {
			return err
		}
		client, err := docstore.Open(ctx, cfg.Store.FirebaseProjectID, creds)
		if err != nil {
			return err
		}
		store := docstore.NewStore(client, logger)
		a.closers = append(a.closers, func() { _ = store.Close() })
		a.Store, a.Runs, a.DryRuns = store, store.Runs(), store.DryRuns()
		a.Probes = append(a.Probes, api.NewProbe("firestore", store.Ping))
		return nil

	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.Store.DatabaseURL.Unmask(), cfg.Store.MaxConns)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		store, err := db.NewStore(pool)
		if err != nil {
			return err
		}
		a.Store, a.Runs, a.DryRuns = store, store.Runs, store.DryRuns
		a.Probes = append(a.Probes, api.NewProbe("database", pool.Ping))
		return nil

	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func (a *App) newContentCache(cfg *config.Config) (content.Cache, error) {
	if !cfg.Content.RedisURL.IsSet() {
		return content.NewMemoryCache(cfg.Content.CacheSize, cfg.Content.CacheTTL), nil
	}
	opts, err := redis.ParseURL(cfg.Content.RedisURL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.Probes = append(a.Probes, api.NewProbe("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}))
	return content.NewRedisCache(client), nil
}

func cacheKind(cfg *config.Config) string {
	if cfg.Content.RedisURL.IsSet() {
		return "redis"
	}
	return "memory"
}

// DecodeCredentials decodes the base64 service account JSON. An unset value
// decodes to nil so the client uses application default credentials.
func DecodeCredentials(secret types.SecretString) ([]byte, error) {
	if !secret.IsSet() {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(secret.Unmask()))
	if err != nil {
		return nil, fmt.Errorf("decode FIREBASE_CREDENTIALS_JSON: %w", err)
	}
	return raw, nil
}

// LoadAWS loads the SDK configuration for cfg's region.
func LoadAWS(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func newSQSClient(cfg *config.Config, awsCfg aws.Config) *sqs.Client {
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
}

// NewMetrics returns CloudWatch metrics when enabled, otherwise a no-op.
func NewMetrics(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) Metrics {
	if !cfg.Telemetry.MetricsEnabled {
		return metrics.Noop{}
	}
	client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	return metrics.NewCloudWatchMetrics(client, cfg.Telemetry.MetricNamespace, logger)
}

// NewWeatherSource returns the WeatherAPI client, or the stub in local mode
// when no key is configured.
func NewWeatherSource(cfg *config.Config, logger *slog.Logger) dispatch.WeatherSource {
	if !cfg.Weather.APIKey.IsSet() && cfg.IsLocal() {
		logger.Warn("WEATHERAPI_KEY not set, using stub weather source")
		return external.NewStubWeatherSource(logger)
	}
	return external.NewWeatherAPIClient(&http.Client{Timeout: cfg.Weather.Timeout}, external.WeatherAPIConfig{
		APIKey:       cfg.Weather.APIKey.Unmask(),
		BaseURL:      cfg.Weather.BaseURL,
		ForecastDays: cfg.Weather.ForecastDays,
		Logger:       logger,
	})
}

// NewDirectSender returns the SendGrid client, or the stub in local mode when
// no key is configured.
func NewDirectSender(cfg *config.Config, logger *slog.Logger) dispatch.EmailSender {
	if !cfg.Email.SendGridAPIKey.IsSet() && cfg.IsLocal() {
		logger.Warn("SENDGRID_API_KEY not set, using stub email sender")
		return external.NewStubEmailSender(logger)
	}
	return external.NewSendGridClient(&http.Client{Timeout: 10 * time.Second}, external.SendGridClientConfig{
		APIKey:    cfg.Email.SendGridAPIKey.Unmask(),
		BaseURL:   cfg.Email.SendGridURL,
		FromEmail: cfg.Email.FromAddress,
		FromName:  cfg.Email.FromName,
		Logger:    logger,
	})
}

// NewMaintenance returns the retention service over the opened storage.
func (a *App) NewMaintenance(cfg *config.Config, logger *slog.Logger) (*scheduler.MaintenanceService, error) {
	return scheduler.NewMaintenanceService(a.Store, a.Runs, a.DryRuns, scheduler.Retention{
		Notifications: cfg.Retention.Notifications,
		Runs:          cfg.Retention.Runs,
		DryRuns:       cfg.Retention.DryRuns,
	}, logger)
}

func newGenerator(cfg *config.Config, logger *slog.Logger) content.Generator {
	if !cfg.Content.OpenAIAPIKey.IsSet() {
		logger.Info("OPENAI_API_KEY not set, alert text uses the fallback template")
		return nil
	}
	return external.NewOpenAIGenerator(external.OpenAIConfig{
		APIKey:    cfg.Content.OpenAIAPIKey.Unmask(),
		BaseURL:   cfg.Content.OpenAIBaseURL,
		Model:     cfg.Content.Model,
		MaxTokens: cfg.Content.MaxTokens,
		Logger:    logger,
	})
}
