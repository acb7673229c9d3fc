package alert

import (
	"errors"
	"fmt"
	"strings"
)

// State is alert lifecycle state.
// Params: one of Active/Inactive/Recovered/Acknowledged.
// Returns: normalized state for routing and reconciliation.
type State string

const (
	// StateActive marks a firing alert.
	StateActive State = "ACTIVE"
	// StateInactive marks a logically deleted alert pending removal.
	StateInactive State = "INACTIVE"
	// StateRecovered marks a resolved or expired alert.
	StateRecovered State = "RECOVERED"
	// StateAcknowledged marks an alert muted by an operator.
	StateAcknowledged State = "ACKNOWLEDGED"
)

// ErrInvalidState is returned for unknown state names.
var ErrInvalidState = errors.New("invalid alert state")

// ParseState converts raw state name into State.
// Params: raw name, case-insensitive.
// Returns: state or ErrInvalidState.
func ParseState(raw string) (State, error) {
	state := State(strings.ToUpper(strings.TrimSpace(raw)))
	if !state.Valid() {
		return "", fmt.Errorf("%w %q", ErrInvalidState, raw)
	}
	return state, nil
}

// Valid reports whether state is one of known values.
func (s State) Valid() bool {
	switch s {
	case StateActive, StateInactive, StateRecovered, StateAcknowledged:
		return true
	default:
		return false
	}
}

// UnmarshalJSON decodes and validates state value.
func (s *State) UnmarshalJSON(raw []byte) error {
	var value string
	if err := jsonUnmarshal(raw, &value); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	parsed, err := ParseState(value)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
