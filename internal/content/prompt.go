package content

import (
	"fmt"
	"strings"

	"sitewatch/internal/types"
)

// MaxWords bounds the length of alert text returned to recipients.
const MaxWords = 150

const systemPrompt = "You write short weather alerts for construction crews. " +
	"Describe the conditions plainly, say how they may affect outdoor work and site safety, " +
	"and keep the message under 150 words. Do not use greetings, sign-offs or markdown."

// Prompt is the structured input sent to the text generator. It carries no
// target identity: generated text is cached and shared across targets with
// the same weather pattern.
type Prompt struct {
	Conditions types.TriggeredConditions
	Current    *types.CurrentConditions
	Today      *types.ForecastDay
	Alerts     []types.WeatherAlert
}

// NewPrompt builds a prompt from a snapshot and its triggered conditions.
func NewPrompt(snapshot *types.WeatherSnapshot, conditions types.TriggeredConditions) Prompt {
	p := Prompt{Conditions: conditions}
	if snapshot != nil {
		p.Current = snapshot.Current
		p.Today = snapshot.Today()
		p.Alerts = snapshot.Alerts
	}
	return p
}

// System returns the system instruction for chat-style generators.
func (p Prompt) System() string {
	return systemPrompt
}

// User renders the weather facts and trigger list as the user message.
func (p Prompt) User() string {
	var b strings.Builder
	if c := p.Current; c != nil {
		fmt.Fprintf(&b, "Current conditions: %s, %.0f°F (feels like %.0f°F), wind %.0f mph, humidity %.0f%%.\n",
			orUnknown(c.ConditionText), c.TempF, c.FeelsLikeF, c.WindMPH, c.Humidity)
	}
	if d := p.Today; d != nil {
		fmt.Fprintf(&b, "Forecast today: %s, low %.0f°F, high %.0f°F, max wind %.0f mph, %.0f%% chance of rain, %.0f%% chance of snow, %.1f cm snow.\n",
			orUnknown(d.ConditionText), d.MinTempF, d.MaxTempF, d.MaxWindMPH, d.ChanceOfRain, d.ChanceOfSnow, d.TotalSnowCM)
	}
	for _, a := range p.Alerts {
		fmt.Fprintf(&b, "Active alert: %s", a.Headline)
		if a.Severity != "" {
			fmt.Fprintf(&b, " (severity: %s)", a.Severity)
		}
		b.WriteString(".\n")
	}
	fmt.Fprintf(&b, "Triggered conditions: %s.\n", strings.Join(p.Conditions.Strings(), ", "))
	b.WriteString("Write the alert.")
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "conditions unavailable"
	}
	return s
}

// limitWords trims s to at most n whitespace-separated words.
func limitWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.TrimSpace(s)
	}
	return strings.Join(words[:n], " ") + "…"
}
