package content

import (
	"fmt"
	"strings"

	"sitewatch/internal/types"
)

// Fallback deterministically describes the triggered conditions without an
// external call. It always returns non-empty text.
func Fallback(snapshot *types.WeatherSnapshot, conditions types.TriggeredConditions) string {
	var current types.CurrentConditions
	if snapshot != nil && snapshot.Current != nil {
		current = *snapshot.Current
	}
	var today types.ForecastDay
	if d := snapshot.Today(); d != nil {
		today = *d
	}

	var parts []string
	if conditions.Contains(types.ConditionLowTemperature) {
		parts = append(parts, fmt.Sprintf("Low temperature alert: it is currently %.0f°F at the site.", current.TempF))
	}
	if conditions.Contains(types.ConditionHighTemperature) {
		parts = append(parts, fmt.Sprintf("High temperature alert: it is currently %.0f°F at the site.", current.TempF))
	}
	if conditions.Contains(types.ConditionRain) {
		parts = append(parts, fmt.Sprintf("Rain is likely today with a %.0f%% chance of precipitation.", today.ChanceOfRain))
	}
	if conditions.Contains(types.ConditionSnow) {
		parts = append(parts, fmt.Sprintf("Snow is expected with %.1f cm (%.1f in) of accumulation forecast.",
			today.TotalSnowCM, today.TotalSnowCM/types.CentimetersPerInch))
	}
	if conditions.Contains(types.ConditionHighWind) {
		parts = append(parts, fmt.Sprintf("High winds of %.0f mph are expected.", current.WindMPH))
	}

	if len(parts) == 0 {
		if len(conditions) == 0 {
			return "Weather conditions at your site require attention."
		}
		return fmt.Sprintf("Weather conditions at your site require attention: %s.",
			strings.Join(conditions.Strings(), ", "))
	}
	return strings.Join(parts, " ")
}
