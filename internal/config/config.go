// Package config defines the configuration of the notifier binaries.
// Configuration is loaded once at process start (Lambda cold start) and is
// immutable thereafter.
//
// Values are resolved from the OS environment, then from a local .env file.
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"sitewatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Storage backends.
const (
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

// Email delivery modes.
const (
	DeliveryDirect = "direct"
	DeliveryQueue  = "queue"
)

// Config is the top-level configuration. Sub-components receive only the
// subsets they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"sitewatch-notifier"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server    ServerConfig
	Store     StoreConfig
	Weather   WeatherConfig
	Content   ContentConfig
	Email     EmailConfig
	AWS       AWSConfig
	Run       RunConfig
	Security  SecurityConfig
	Telemetry TelemetryConfig
	Retention RetentionConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds admin API settings.
type ServerConfig struct {
	Port         string        `envconfig:"PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"5m"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	Backend string `envconfig:"STORE_BACKEND" default:"postgres" validate:"oneof=postgres firestore"`

	DatabaseURL SecretString `envconfig:"DATABASE_URL"`
	MaxConns    int32        `envconfig:"DB_MAX_CONNS" default:"10" validate:"gte=0"`

	FirebaseProjectID string `envconfig:"FIREBASE_PROJECT_ID"`
	// Base64 encoded service account JSON. Empty uses application default
	// credentials.
	FirebaseCredentials SecretString `envconfig:"FIREBASE_CREDENTIALS_JSON"`
}

// WeatherConfig holds the WeatherAPI.com client settings.
type WeatherConfig struct {
	APIKey       SecretString  `envconfig:"WEATHERAPI_KEY"`
	BaseURL      string        `envconfig:"WEATHERAPI_BASE_URL" default:"https://api.weatherapi.com" validate:"url"`
	ForecastDays int           `envconfig:"WEATHERAPI_FORECAST_DAYS" default:"1" validate:"gte=1,lte=14"`
	Timeout      time.Duration `envconfig:"WEATHER_TIMEOUT" default:"10s"`
}

// ContentConfig holds alert text generation settings.
type ContentConfig struct {
	OpenAIAPIKey  SecretString  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `envconfig:"OPENAI_BASE_URL"`
	Model         string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	MaxTokens     int           `envconfig:"OPENAI_MAX_TOKENS" default:"300" validate:"gte=1"`
	Timeout       time.Duration `envconfig:"CONTENT_TIMEOUT" default:"15s"`
	CacheTTL      time.Duration `envconfig:"CONTENT_CACHE_TTL" default:"6h"`
	CacheSize     int           `envconfig:"CONTENT_CACHE_SIZE" default:"512" validate:"gte=1"`
	RedisURL      SecretString  `envconfig:"REDIS_URL"`
}

// EmailConfig holds email delivery settings.
type EmailConfig struct {
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY"`
	SendGridURL    string       `envconfig:"SENDGRID_BASE_URL" default:"https://api.sendgrid.com" validate:"url"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"alerts@sitewatch.app" validate:"email"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"SiteWatch Alerts"`
	Delivery       string       `envconfig:"EMAIL_DELIVERY" default:"direct" validate:"oneof=direct queue"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region        string `envconfig:"AWS_REGION" default:"us-east-1"`
	EmailQueueURL string `envconfig:"SQS_EMAIL_QUEUE_URL" validate:"omitempty,url"`

	// LocalStack support; empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// RunConfig tunes batch execution.
type RunConfig struct {
	Concurrency     int    `envconfig:"RUN_CONCURRENCY" default:"8" validate:"gte=1,lte=128"`
	EmitConcurrency int    `envconfig:"EMIT_CONCURRENCY" default:"4" validate:"gte=1,lte=64"`
	DebugMode       bool   `envconfig:"DEBUG_MODE" default:"false"`
	Schedule        string `envconfig:"NOTIFIER_CRON" default:"0 6 * * *"`
	DedupTimezone   string `envconfig:"DEDUP_TIMEZONE" default:"UTC"`
}

// SecurityConfig holds admin API access settings.
type SecurityConfig struct {
	// bcrypt hash of the admin key.
	AdminKeyHash SecretString `envconfig:"ADMIN_KEY_HASH"`
}

// TelemetryConfig holds metrics settings.
type TelemetryConfig struct {
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"SiteWatch/Notifier"`
}

// RetentionConfig holds how long the archiver keeps history.
type RetentionConfig struct {
	Notifications time.Duration `envconfig:"NOTIFICATION_RETENTION" default:"2160h"`
	Runs          time.Duration `envconfig:"RUN_RETENTION" default:"8760h"`
	DryRuns       time.Duration `envconfig:"DRY_RUN_RETENTION" default:"336h"`
}

// IsLocal reports whether the process runs outside AWS.
func (c *Config) IsLocal() bool {
	return c.Environment == localEnv
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrDependency indicates a combination of settings that cannot work
	// together, such as the queue delivery mode without a queue URL.
	ErrDependency ConfigErrorType = "DEPENDENCY_MISSING"
)
