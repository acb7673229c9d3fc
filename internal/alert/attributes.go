package alert

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Attributes is an insertion-ordered attribute map.
// Params: keys are unique strings; values are JSON scalars or nested values.
// Returns: payload used for criteria matching and template rendering.
type Attributes struct {
	keys   []string
	values map[string]any
}

// AttributesFromMap builds attributes from a plain map with sorted keys.
// Params: source map, may be nil.
// Returns: ordered attributes.
func AttributesFromMap(source map[string]any) Attributes {
	keys := make([]string, 0, len(source))
	for key := range source {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	attrs := Attributes{}
	for _, key := range keys {
		attrs.Set(key, source[key])
	}
	return attrs
}

// Set inserts or replaces one attribute keeping first insertion position.
func (a *Attributes) Set(key string, value any) {
	if a.values == nil {
		a.values = make(map[string]any)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Get returns attribute value and presence flag.
func (a Attributes) Get(key string) (any, bool) {
	value, ok := a.values[key]
	return value, ok
}

// Keys returns attribute keys in insertion order.
func (a Attributes) Keys() []string {
	return append([]string(nil), a.keys...)
}

// Len returns attribute count.
func (a Attributes) Len() int {
	return len(a.keys)
}

// Map returns a shallow copy as plain map for templates.
func (a Attributes) Map() map[string]any {
	out := make(map[string]any, len(a.keys))
	for _, key := range a.keys {
		out[key] = a.values[key]
	}
	return out
}

// Clone returns independent copy of the key order and top-level values.
func (a Attributes) Clone() Attributes {
	clone := Attributes{keys: append([]string(nil), a.keys...)}
	if a.values != nil {
		clone.values = make(map[string]any, len(a.values))
		for key, value := range a.values {
			clone.values[key] = value
		}
	}
	return clone
}

// MarshalJSON encodes attributes as object preserving key order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		encodedValue, err := json.Marshal(a.values[key])
		if err != nil {
			return nil, fmt.Errorf("encode attribute %q: %w", key, err)
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		buf.Write(encodedValue)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving document key order.
// Numbers are kept as json.Number.
func (a *Attributes) UnmarshalJSON(raw []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("decode attributes: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return errors.New("attributes must be a JSON object")
	}
	next := Attributes{}
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("decode attribute key: %w", err)
		}
		key, ok := keyToken.(string)
		if !ok {
			return errors.New("attribute key must be a string")
		}
		var value any
		if err := decoder.Decode(&value); err != nil {
			return fmt.Errorf("decode attribute %q: %w", key, err)
		}
		next.Set(key, value)
	}
	if _, err := decoder.Token(); err != nil {
		return fmt.Errorf("decode attributes end: %w", err)
	}
	*a = next
	return nil
}

func jsonUnmarshal(raw []byte, out any) error {
	return json.Unmarshal(raw, out)
}
