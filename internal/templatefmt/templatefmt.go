package templatefmt

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Funcs returns helpers available to brief and detail templates.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"duration": HumanDuration,
		"json":     JSON,
		"rfc3339":  RFC3339,
		"unix":     Unix,
		"attr":     AttrOr,
		"upper":    strings.ToUpper,
		"lower":    strings.ToLower,
	}
}

// Parse compiles one alert template body with Funcs.
// Missing map keys fail rendering so a typo in an attribute name is reported
// instead of printing "<no value>".
// Params: template name and body.
// Returns: compiled template or parse error.
func Parse(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(Funcs()).Option("missingkey=error").Parse(body)
}

// HumanDuration renders a duration rounded to seconds without zero-valued tail units,
// e.g. 90s -> "1m30s", 2h -> "2h". Non-duration values render as "0s".
func HumanDuration(value any) string {
	var d time.Duration
	switch typed := value.(type) {
	case time.Duration:
		d = typed
	case int:
		d = time.Duration(typed) * time.Second
	case int64:
		d = time.Duration(typed) * time.Second
	default:
		return "0s"
	}
	d = d.Round(time.Second)
	if d < 0 {
		d = -d
	}
	if d == 0 {
		return "0s"
	}
	out := d.String()
	if strings.HasSuffix(out, "m0s") {
		out = strings.TrimSuffix(out, "0s")
	}
	if strings.HasSuffix(out, "h0m") {
		out = strings.TrimSuffix(out, "0m")
	}
	return out
}

// RFC3339 renders timestamp in RFC3339 form, empty for zero time.
func RFC3339(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Format(time.RFC3339)
}

// Unix renders timestamp as UNIX seconds.
func Unix(value time.Time) int64 {
	return value.Unix()
}

// AttrOr returns attrs[key] formatted with %v, or fallback when the key is absent.
// Params: attribute map (View.Attrs), key and fallback.
func AttrOr(attrs map[string]any, key, fallback string) string {
	value, ok := attrs[key]
	if !ok || value == nil {
		return fallback
	}
	return fmt.Sprint(value)
}

// JSON renders value as compact JSON, "null" when it cannot be encoded.
func JSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
