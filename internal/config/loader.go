package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
// It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// localEnv is the APP_ENV value that allows stub providers.
const localEnv = "local"

// LoadConfig loads and validates the configuration.
//
// It performs the following steps in order:
//  1. Sets the process timezone to UTC.
//  2. Loads a .env file if present (non-fatal if missing). Existing
//     environment variables win.
//  3. Processes envconfig tags to populate the Config struct.
//  4. Populates Config.Build from linker-injected variables.
//  5. Validates struct tags, then the cross-field rules.
func LoadConfig() (*Config, error) {
	return loadConfig(".env")
}

func loadConfig(dotenvPath string) (*Config, error) {
	time.Local = time.UTC

	_ = godotenv.Load(dotenvPath)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if err := cfg.checkDependencies(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// checkDependencies enforces the rules struct tags cannot express.
func (c *Config) checkDependencies() error {
	var missing []string

	switch c.Store.Backend {
	case BackendPostgres:
		if !c.Store.DatabaseURL.IsSet() {
			missing = append(missing, "DATABASE_URL")
		}
	case BackendFirestore:
		if c.Store.FirebaseProjectID == "" {
			missing = append(missing, "FIREBASE_PROJECT_ID")
		}
	}
	if c.Email.Delivery == DeliveryQueue && c.AWS.EmailQueueURL == "" {
		missing = append(missing, "SQS_EMAIL_QUEUE_URL")
	}
	if !c.IsLocal() {
		if !c.Weather.APIKey.IsSet() {
			missing = append(missing, "WEATHERAPI_KEY")
		}
		if !c.Email.SendGridAPIKey.IsSet() && c.Email.Delivery == DeliveryDirect {
			missing = append(missing, "SENDGRID_API_KEY")
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrDependency,
			Message: "required settings missing: " + strings.Join(missing, ", "),
		}
	}

	if _, err := time.LoadLocation(c.Run.DedupTimezone); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("invalid DEDUP_TIMEZONE %q", c.Run.DedupTimezone),
			Err:     err,
		}
	}
	return nil
}

// DedupLocation returns the timezone whose midnight starts a dedup day.
func (c *Config) DedupLocation() *time.Location {
	loc, err := time.LoadLocation(c.Run.DedupTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NewLogger creates a JSON slog.Logger on stdout for the given level.
func NewLogger(level string) *slog.Logger {
	return newLogger(level, os.Stdout)
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
