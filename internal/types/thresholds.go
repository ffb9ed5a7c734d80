package types

import (
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ThresholdConfig holds the alerting thresholds for one target. A zero field
// is not checked.
type ThresholdConfig struct {
	MinTemperature         float64 `json:"min_temperature" validate:"gte=-80,lte=150"`
	MaxTemperature         float64 `json:"max_temperature" validate:"gte=-80,lte=150"`
	MaxWindSpeed           float64 `json:"max_wind_speed" validate:"gte=0,lte=250"`
	PrecipitationThreshold float64 `json:"precipitation_threshold" validate:"gte=0,lte=100"`
	SnowThreshold          float64 `json:"snow_threshold" validate:"gte=0,lte=200"`
}

// ThresholdSource records where a target's active thresholds came from.
type ThresholdSource string

const (
	ThresholdSourceJobsite ThresholdSource = "jobsite"
	ThresholdSourceGlobal  ThresholdSource = "global"
	ThresholdSourceDefault ThresholdSource = "default"
)

// DefaultThresholds applies when neither the jobsite nor the owning user has
// stored settings.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		MinTemperature:         32,
		MaxTemperature:         95,
		MaxWindSpeed:           25,
		PrecipitationThreshold: 70,
		SnowThreshold:          1,
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator instance used for ingress checks.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks that configured thresholds are physically plausible and
// that the temperature range is not inverted.
func (c ThresholdConfig) Validate() error {
	if err := Validator().Struct(c); err != nil {
		return NewAppError(ErrCodeValidationThresholds, "threshold values out of range", err)
	}
	if c.MinTemperature != 0 && c.MaxTemperature != 0 && c.MinTemperature >= c.MaxTemperature {
		return NewAppErrorWithDetails(ErrCodeValidationThresholds,
			"min_temperature must be below max_temperature", nil,
			map[string]any{"min_temperature": c.MinTemperature, "max_temperature": c.MaxTemperature})
	}
	return nil
}

// Sanitize disables every field that fails validation and returns the
// names of the disabled fields. An inverted temperature range disables both
// temperature checks. Valid fields are kept unchanged.
func (c ThresholdConfig) Sanitize() (ThresholdConfig, []string) {
	var disabled []string
	var verrs validator.ValidationErrors
	if err := Validator().Struct(c); errors.As(err, &verrs) {
		for _, fe := range verrs {
			if c.clear(fe.StructField()) {
				disabled = append(disabled, fe.StructField())
			}
		}
	}
	if c.MinTemperature != 0 && c.MaxTemperature != 0 && c.MinTemperature >= c.MaxTemperature {
		c.MinTemperature, c.MaxTemperature = 0, 0
		disabled = append(disabled, "MinTemperature", "MaxTemperature")
	}
	return c, disabled
}

func (c *ThresholdConfig) clear(field string) bool {
	switch field {
	case "MinTemperature":
		c.MinTemperature = 0
	case "MaxTemperature":
		c.MaxTemperature = 0
	case "MaxWindSpeed":
		c.MaxWindSpeed = 0
	case "PrecipitationThreshold":
		c.PrecipitationThreshold = 0
	case "SnowThreshold":
		c.SnowThreshold = 0
	default:
		return false
	}
	return true
}

// IsValidEmail reports whether addr is a syntactically usable email address.
func IsValidEmail(addr string) bool {
	if addr == "" {
		return false
	}
	return Validator().Var(addr, "required,email") == nil
}
