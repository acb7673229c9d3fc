package alert

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrMissingName is returned when an alert object has no name.
	ErrMissingName = errors.New("name is required")
	// ErrMissingAttributes is returned when an alert object has no attributes.
	ErrMissingAttributes = errors.New("attributes are required")
)

// DecodeDefaults fills optional alert fields during decode.
// Params: Expiry used when expiryDuration is absent; Now used for createdAt/updatedAt.
// Returns: decode defaults.
type DecodeDefaults struct {
	Expiry time.Duration
	Now    time.Time
}

type incomingAlert struct {
	Name           *string      `json:"name"`
	State          *State       `json:"state"`
	Attributes     *Attributes  `json:"attributes"`
	CreatedAt      *json.Number `json:"createdAt"`
	ExpiryDuration *json.Number `json:"expiryDuration"`
}

// DecodeBatch decodes one alert object or an array of alert objects.
// Params: raw JSON and defaults for optional fields.
// Returns: alerts in payload order or decode/validation error.
func DecodeBatch(raw []byte, defaults DecodeDefaults) ([]*Alert, error) {
	payload := bytes.TrimSpace(raw)
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var incoming []incomingAlert
	if payload[0] == '[' {
		if err := decoder.Decode(&incoming); err != nil {
			return nil, fmt.Errorf("decode alert batch: %w", err)
		}
		if len(incoming) == 0 {
			return nil, errors.New("alert batch must contain at least one alert")
		}
	} else {
		var single incomingAlert
		if err := decoder.Decode(&single); err != nil {
			return nil, fmt.Errorf("decode alert: %w", err)
		}
		incoming = []incomingAlert{single}
	}
	if err := ensureJSONEOF(decoder); err != nil {
		return nil, err
	}

	alerts := make([]*Alert, 0, len(incoming))
	for i, item := range incoming {
		decoded, err := item.build(defaults)
		if err != nil {
			if len(incoming) == 1 {
				return nil, err
			}
			return nil, fmt.Errorf("alert[%d]: %w", i, err)
		}
		alerts = append(alerts, decoded)
	}
	return alerts, nil
}

// DecodeOne decodes exactly one alert object.
func DecodeOne(raw []byte, defaults DecodeDefaults) (*Alert, error) {
	alerts, err := DecodeBatch(raw, defaults)
	if err != nil {
		return nil, err
	}
	if len(alerts) != 1 {
		return nil, fmt.Errorf("expected one alert, got %d", len(alerts))
	}
	return alerts[0], nil
}

func (in incomingAlert) build(defaults DecodeDefaults) (*Alert, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, ErrMissingName
	}
	if in.Attributes == nil {
		return nil, ErrMissingAttributes
	}

	decoded := New(*in.Name, *in.Attributes, defaults.Now)
	if in.State != nil {
		decoded.state = *in.State
	}
	if in.CreatedAt != nil {
		seconds, err := numberSeconds(*in.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("createdAt: %w", err)
		}
		if seconds > 0 {
			decoded.createdAt = time.Unix(seconds, 0).UTC()
		}
	}
	decoded.expiry = defaults.Expiry
	if in.ExpiryDuration != nil {
		seconds, err := numberSeconds(*in.ExpiryDuration)
		if err != nil {
			return nil, fmt.Errorf("expiryDuration: %w", err)
		}
		if seconds < 0 {
			return nil, errors.New("expiryDuration must be >=0")
		}
		decoded.expiry = time.Duration(seconds) * time.Second
	}
	return decoded, nil
}

// numberSeconds accepts integer or integral float seconds.
func numberSeconds(number json.Number) (int64, error) {
	if seconds, err := number.Int64(); err == nil {
		return seconds, nil
	}
	value, err := number.Float64()
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", number.String())
	}
	return int64(value), nil
}

// ensureJSONEOF rejects trailing tokens after a decoded JSON payload.
// Params: decoder positioned after primary decode.
// Returns: nil on EOF or error on trailing tokens.
func ensureJSONEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode trailing json: %w", err)
	}
	return errors.New("unexpected trailing json tokens")
}

// MarshalJSON encodes alert record.
func (a *Alert) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Record())
}
