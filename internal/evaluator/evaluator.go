// Package evaluator decides which weather conditions a snapshot triggers for a
// threshold configuration. Evaluation is pure: no I/O and no mutation of its
// inputs.
package evaluator

import "sitewatch/internal/types"

// rule is one independent check. Rules run in types.ConditionOrder.
type rule struct {
	tag   types.ConditionTag
	check func(s *types.WeatherSnapshot, cfg types.ThresholdConfig) bool
}

var rules = []rule{
	{types.ConditionLowTemperature, lowTemperature},
	{types.ConditionHighTemperature, highTemperature},
	{types.ConditionHighWind, highWind},
	{types.ConditionRain, rain},
	{types.ConditionSnow, snow},
	{types.ConditionWeatherAlert, weatherAlert},
}

// Evaluate returns the triggered conditions in canonical order. The result is
// never nil so callers can range and marshal it uniformly.
func Evaluate(snapshot *types.WeatherSnapshot, cfg types.ThresholdConfig) types.TriggeredConditions {
	out := make(types.TriggeredConditions, 0, len(rules))
	if snapshot == nil {
		return out
	}
	for _, r := range rules {
		if r.check(snapshot, cfg) {
			out = append(out, r.tag)
		}
	}
	return out
}

func lowTemperature(s *types.WeatherSnapshot, cfg types.ThresholdConfig) bool {
	return cfg.MinTemperature != 0 && s.Current != nil && s.Current.TempF < cfg.MinTemperature
}

func highTemperature(s *types.WeatherSnapshot, cfg types.ThresholdConfig) bool {
	return cfg.MaxTemperature != 0 && s.Current != nil && s.Current.TempF > cfg.MaxTemperature
}

func highWind(s *types.WeatherSnapshot, cfg types.ThresholdConfig) bool {
	return cfg.MaxWindSpeed != 0 && s.Current != nil && s.Current.WindMPH > cfg.MaxWindSpeed
}

func rain(s *types.WeatherSnapshot, cfg types.ThresholdConfig) bool {
	day := s.Today()
	return cfg.PrecipitationThreshold != 0 && day != nil && day.ChanceOfRain > cfg.PrecipitationThreshold
}

// snow requires a non-zero snow chance and forecast depth above the threshold,
// which is configured in inches while the provider reports centimeters.
func snow(s *types.WeatherSnapshot, cfg types.ThresholdConfig) bool {
	day := s.Today()
	if cfg.SnowThreshold == 0 || day == nil || day.ChanceOfSnow <= 0 {
		return false
	}
	return day.TotalSnowCM > cfg.SnowThreshold*types.CentimetersPerInch
}

func weatherAlert(s *types.WeatherSnapshot, _ types.ThresholdConfig) bool {
	return len(s.Alerts) > 0
}
