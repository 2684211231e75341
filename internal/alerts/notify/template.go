package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Parking Alert {{.EventLabel}}]
Device: {{.Device}}
{{- if .Zone }}
Zone: {{.Zone}} (slot {{.Slot}})
{{- end }}
Type: {{.AlertType}}
Severity: {{.Severity}}
Message: {{.Message}}
Raised At: {{.CreatedAt}}
Current Status: {{.Status}}
Suggestion: {{.Suggestion}}
{{- if .DashboardURL }}
Dashboard: {{.DashboardURL}}
{{- end }}
`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	AlertID      string
	Device       string
	Zone         string
	Slot         string
	AlertType    string
	Severity     string
	Message      string
	CreatedAt    string
	Status       string
	Suggestion   string
	DashboardURL string
	Event        string
	EventLabel   string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alert-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alert template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
