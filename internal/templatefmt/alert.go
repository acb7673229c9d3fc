package templatefmt

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"alertmanager/internal/alert"
)

const (
	// DefaultBrief is the one-line alert summary used when receiver has no template.
	DefaultBrief = `{{.Name}} is {{.State}}`
	// DefaultDetail lists every attribute as "key: value" lines.
	DefaultDetail = `{{.Name}} is {{.State}}
{{range .Attributes}}{{.Key}}: {{.Value}}
{{end}}{{range .Members}}- {{.Name}} ({{.State}})
{{end}}`
)

// Attribute is one ordered key/value pair exposed to templates.
type Attribute struct {
	Key   string
	Value any
}

// View is template data for one alert.
// Params: snapshot of alert fields; Attributes keep insertion order.
// Returns: value rendered by brief/detail templates.
type View struct {
	Name       string
	State      string
	Attributes []Attribute
	Attrs      map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Expiry     time.Duration
	Members    []View
}

// NewView snapshots alert into template data.
func NewView(a *alert.Alert) View {
	attrs := a.Attributes()
	view := View{
		Name:       a.Name(),
		State:      string(a.State()),
		Attributes: make([]Attribute, 0, attrs.Len()),
		Attrs:      attrs.Map(),
		CreatedAt:  a.CreatedAt(),
		UpdatedAt:  a.UpdatedAt(),
		Expiry:     a.ExpiryDuration(),
	}
	for _, key := range attrs.Keys() {
		value, _ := attrs.Get(key)
		view.Attributes = append(view.Attributes, Attribute{Key: key, Value: value})
	}
	for _, member := range a.Members() {
		view.Members = append(view.Members, NewView(member))
	}
	return view
}

// AlertTemplate renders brief and detail alert descriptions.
type AlertTemplate struct {
	name   string
	brief  *template.Template
	detail *template.Template
}

// NewAlertTemplate compiles brief/detail pair; empty bodies fall back to defaults.
// Params: template name and bodies.
// Returns: compiled template or parse error.
func NewAlertTemplate(name, brief, detail string) (*AlertTemplate, error) {
	if brief == "" {
		brief = DefaultBrief
	}
	if detail == "" {
		detail = DefaultDetail
	}
	briefTmpl, err := Parse(name+".brief", brief)
	if err != nil {
		return nil, fmt.Errorf("parse %s.brief: %w", name, err)
	}
	detailTmpl, err := Parse(name+".detail", detail)
	if err != nil {
		return nil, fmt.Errorf("parse %s.detail: %w", name, err)
	}
	return &AlertTemplate{name: name, brief: briefTmpl, detail: detailTmpl}, nil
}

// DefaultAlertTemplate returns the built-in template.
func DefaultAlertTemplate() *AlertTemplate {
	tmpl, err := NewAlertTemplate("default", DefaultBrief, DefaultDetail)
	if err != nil {
		panic(err)
	}
	return tmpl
}

// Name returns template name.
func (t *AlertTemplate) Name() string {
	return t.name
}

// Brief renders one-line description.
func (t *AlertTemplate) Brief(a *alert.Alert) (string, error) {
	return execute(t.brief, NewView(a))
}

// Detail renders detailed description.
func (t *AlertTemplate) Detail(a *alert.Alert) (string, error) {
	return execute(t.detail, NewView(a))
}

func execute(tmpl *template.Template, view View) (string, error) {
	var out bytes.Buffer
	if err := tmpl.Execute(&out, view); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return out.String(), nil
}
