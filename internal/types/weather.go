package types

import "time"

// CentimetersPerInch converts user-facing snow thresholds (inches) to the
// provider's forecast unit (cm).
const CentimetersPerInch = 2.54

// WeatherSnapshot is current conditions plus a short-term forecast for one
// location at one point in time. Snapshots are produced by the weather client
// and treated as immutable by the engine.
type WeatherSnapshot struct {
	Location  SnapshotLocation   `json:"location"`
	Current   *CurrentConditions `json:"current,omitempty"`
	Forecast  []ForecastDay      `json:"forecast,omitempty"`
	Alerts    []WeatherAlert     `json:"alerts,omitempty"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// SnapshotLocation is the resolved location reported by the provider.
type SnapshotLocation struct {
	Name    string  `json:"name"`
	Region  string  `json:"region,omitempty"`
	Country string  `json:"country,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	TZID    string  `json:"tz_id,omitempty"`
}

// CurrentConditions holds the observation at fetch time.
type CurrentConditions struct {
	TempF         float64 `json:"temp_f"`
	FeelsLikeF    float64 `json:"feels_like_f"`
	WindMPH       float64 `json:"wind_mph"`
	Humidity      float64 `json:"humidity"`
	ConditionText string  `json:"condition_text"`
}

// ForecastDay is the provider's daily aggregate.
type ForecastDay struct {
	Date          string  `json:"date"`
	MinTempF      float64 `json:"min_temp_f"`
	MaxTempF      float64 `json:"max_temp_f"`
	MaxWindMPH    float64 `json:"max_wind_mph"`
	ChanceOfRain  float64 `json:"chance_of_rain"`
	TotalPrecipIn float64 `json:"total_precip_in"`
	ChanceOfSnow  float64 `json:"chance_of_snow"`
	TotalSnowCM   float64 `json:"total_snow_cm"`
	ConditionText string  `json:"condition_text"`
}

// WeatherAlert is an active severe-weather alert issued for the location.
type WeatherAlert struct {
	Headline    string     `json:"headline"`
	Severity    string     `json:"severity,omitempty"`
	Category    string     `json:"category,omitempty"`
	Event       string     `json:"event,omitempty"`
	Effective   *time.Time `json:"effective,omitempty"`
	Expires     *time.Time `json:"expires,omitempty"`
	Description string     `json:"description,omitempty"`
}

// Today returns the first forecast day, or nil when the snapshot has none.
func (s *WeatherSnapshot) Today() *ForecastDay {
	if s == nil || len(s.Forecast) == 0 {
		return nil
	}
	return &s.Forecast[0]
}

// CurrentText returns the current condition description, or "".
func (s *WeatherSnapshot) CurrentText() string {
	if s == nil || s.Current == nil {
		return ""
	}
	return s.Current.ConditionText
}

// ForecastText returns today's forecast description, or "".
func (s *WeatherSnapshot) ForecastText() string {
	if d := s.Today(); d != nil {
		return d.ConditionText
	}
	return ""
}

// WeatherSummary is the compact view of a snapshot stored alongside
// notification records.
type WeatherSummary struct {
	Location       string   `json:"location"`
	TempF          *float64 `json:"temp_f,omitempty"`
	WindMPH        *float64 `json:"wind_mph,omitempty"`
	Conditions     string   `json:"conditions,omitempty"`
	MinTempF       *float64 `json:"min_temp_f,omitempty"`
	MaxTempF       *float64 `json:"max_temp_f,omitempty"`
	ChanceOfRain   *float64 `json:"chance_of_rain,omitempty"`
	ChanceOfSnow   *float64 `json:"chance_of_snow,omitempty"`
	TotalSnowCM    *float64 `json:"total_snow_cm,omitempty"`
	AlertHeadlines []string `json:"alert_headlines,omitempty"`
}

// Summarize builds a WeatherSummary. Fields the snapshot lacks stay nil.
func (s *WeatherSnapshot) Summarize() WeatherSummary {
	if s == nil {
		return WeatherSummary{}
	}
	sum := WeatherSummary{Location: s.Location.Name}
	if c := s.Current; c != nil {
		sum.TempF = floatPtr(c.TempF)
		sum.WindMPH = floatPtr(c.WindMPH)
		sum.Conditions = c.ConditionText
	}
	if d := s.Today(); d != nil {
		sum.MinTempF = floatPtr(d.MinTempF)
		sum.MaxTempF = floatPtr(d.MaxTempF)
		sum.ChanceOfRain = floatPtr(d.ChanceOfRain)
		sum.ChanceOfSnow = floatPtr(d.ChanceOfSnow)
		sum.TotalSnowCM = floatPtr(d.TotalSnowCM)
	}
	for _, a := range s.Alerts {
		sum.AlertHeadlines = append(sum.AlertHeadlines, a.Headline)
	}
	return sum
}

func floatPtr(v float64) *float64 { return &v }
