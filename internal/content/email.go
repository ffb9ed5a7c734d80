package content

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"sitewatch/internal/types"
)

var conditionLabels = map[types.ConditionTag]string{
	types.ConditionLowTemperature:  "Low temperature",
	types.ConditionHighTemperature: "High temperature",
	types.ConditionHighWind:        "High wind",
	types.ConditionRain:            "Rain",
	types.ConditionSnow:            "Snow",
	types.ConditionWeatherAlert:    "Weather alert",
}

// Label returns the display name of a condition tag.
func Label(tag types.ConditionTag) string {
	if l, ok := conditionLabels[tag]; ok {
		return l
	}
	return string(tag)
}

var htmlTemplate = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2933;">
  <h2 style="margin-bottom: 4px;">Weather alert for {{.TargetName}}</h2>
  <p style="margin-top: 0; color: #52606d;">{{.Conditions}}</p>
  {{if .RecipientName}}<p>Hi {{.RecipientName}},</p>{{end}}
  {{range .Paragraphs}}<p>{{.}}</p>
  {{end}}{{if .Alerts}}<h3>Active alerts</h3>
  <ul>{{range .Alerts}}<li>{{.}}</li>{{end}}</ul>{{end}}
  <p style="font-size: 12px; color: #7b8794;">You are receiving this because you are listed as a contact for {{.TargetName}}.</p>
</body>
</html>
`))

type emailView struct {
	TargetName    string
	RecipientName string
	Conditions    string
	Paragraphs    []string
	Alerts        []string
}

// RenderEmail renders the alert email for one recipient.
func RenderEmail(target types.Target, recipient types.Recipient, snapshot *types.WeatherSnapshot, conditions types.TriggeredConditions, text string) (types.AlertEmail, error) {
	labels := make([]string, 0, len(conditions))
	for _, c := range conditions {
		labels = append(labels, Label(c))
	}

	name := target.Name
	if name == "" {
		name = "your site"
	}

	view := emailView{
		TargetName:    name,
		RecipientName: recipient.Name,
		Conditions:    strings.Join(labels, " · "),
	}
	for _, p := range strings.Split(text, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			view.Paragraphs = append(view.Paragraphs, p)
		}
	}
	if snapshot != nil {
		for _, a := range snapshot.Alerts {
			view.Alerts = append(view.Alerts, a.Headline)
		}
	}

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, view); err != nil {
		return types.AlertEmail{}, fmt.Errorf("render alert email: %w", err)
	}

	return types.AlertEmail{
		To:       recipient.Email,
		ToName:   recipient.Name,
		Subject:  fmt.Sprintf("Weather alert for %s: %s", name, strings.Join(labels, ", ")),
		TextBody: text,
		HTMLBody: buf.String(),
	}, nil
}
