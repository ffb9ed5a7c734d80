package types

import (
	"sort"
	"strings"
)

// ConditionTag names one weather-rule outcome.
type ConditionTag string

const (
	ConditionLowTemperature  ConditionTag = "low_temperature"
	ConditionHighTemperature ConditionTag = "high_temperature"
	ConditionHighWind        ConditionTag = "high_wind"
	ConditionRain            ConditionTag = "rain"
	ConditionSnow            ConditionTag = "snow"
	ConditionWeatherAlert    ConditionTag = "weather_alert"
)

// ConditionOrder is the canonical evaluation and display order.
var ConditionOrder = []ConditionTag{
	ConditionLowTemperature,
	ConditionHighTemperature,
	ConditionHighWind,
	ConditionRain,
	ConditionSnow,
	ConditionWeatherAlert,
}

// IsValid reports whether the tag is part of the fixed vocabulary.
func (c ConditionTag) IsValid() bool {
	for _, t := range ConditionOrder {
		if t == c {
			return true
		}
	}
	return false
}

// TriggeredConditions is an ordered list of condition tags. Order matters for
// display only; comparisons between lists treat them as sets.
type TriggeredConditions []ConditionTag

// Contains reports whether tag is present.
func (tc TriggeredConditions) Contains(tag ConditionTag) bool {
	for _, t := range tc {
		if t == tag {
			return true
		}
	}
	return false
}

// SubsetOf reports whether every tag in tc is present in other.
// The empty list is a subset of every list.
func (tc TriggeredConditions) SubsetOf(other TriggeredConditions) bool {
	if len(tc) == 0 {
		return true
	}
	set := make(map[ConditionTag]struct{}, len(other))
	for _, t := range other {
		set[t] = struct{}{}
	}
	for _, t := range tc {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

// Strings returns the tags as plain strings, preserving order.
func (tc TriggeredConditions) Strings() []string {
	out := make([]string, len(tc))
	for i, t := range tc {
		out[i] = string(t)
	}
	return out
}

// SortedKey returns a canonical, order-independent representation used for
// hashing and comparisons.
func (tc TriggeredConditions) SortedKey() string {
	s := tc.Strings()
	sort.Strings(s)
	return strings.Join(s, ",")
}

// ParseConditions converts stored strings back into tags, dropping values
// outside the vocabulary.
func ParseConditions(values []string) TriggeredConditions {
	out := make(TriggeredConditions, 0, len(values))
	for _, v := range values {
		tag := ConditionTag(v)
		if tag.IsValid() {
			out = append(out, tag)
		}
	}
	return out
}
