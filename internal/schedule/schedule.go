package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Schedule is a pure time-window predicate.
// Params: instant to check.
// Returns: true when window is active at t.
type Schedule interface {
	IsActive(t time.Time) bool
}

// Frequency selects repetition unit of a Basic schedule.
type Frequency int

const (
	// None disables repetition.
	None Frequency = 0
	// Daily repeats every Interval days.
	Daily Frequency = 1
	// Weekly repeats every Interval weeks.
	Weekly Frequency = 7
)

var (
	// ErrInvalidWindow is returned when end is not after start.
	ErrInvalidWindow = errors.New("schedule end must be after start")
	// ErrInvalidInterval is returned for negative repeat intervals.
	ErrInvalidInterval = errors.New("schedule repeat interval must be >=0")
	// ErrInvalidFrequency is returned for unknown repeat frequencies.
	ErrInvalidFrequency = errors.New("invalid schedule frequency")
)

// ParseFrequency converts config names none/daily/weekly.
func ParseFrequency(raw string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none":
		return None, nil
	case "daily":
		return Daily, nil
	case "weekly":
		return Weekly, nil
	default:
		return None, fmt.Errorf("%w %q", ErrInvalidFrequency, raw)
	}
}

// String returns config name of frequency.
func (f Frequency) String() string {
	switch f {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	default:
		return "none"
	}
}

// Basic is one start/end window with optional daily or weekly repetition.
// Repetition follows calendar days in the schedule location so DST shifts and
// leap days keep the wall-clock start.
type Basic struct {
	start     time.Time
	end       time.Time
	location  *time.Location
	frequency Frequency
	interval  int
}

// NewBasic validates and creates a non-repeating schedule.
// Params: window start/end and IANA timezone name (empty means UTC).
// Returns: schedule or validation error.
func NewBasic(start, end time.Time, timezone string) (*Basic, error) {
	location, err := loadLocation(timezone)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, ErrInvalidWindow
	}
	return &Basic{start: start, end: end, location: location}, nil
}

// WithRepeat enables repetition.
// Params: frequency and interval in frequency units.
// Returns: same schedule or validation error.
func (b *Basic) WithRepeat(frequency Frequency, interval int) (*Basic, error) {
	switch frequency {
	case None, Daily, Weekly:
	default:
		return nil, fmt.Errorf("%w %d", ErrInvalidFrequency, frequency)
	}
	if interval < 0 {
		return nil, ErrInvalidInterval
	}
	b.frequency = frequency
	b.interval = interval
	return b, nil
}

// Location returns schedule timezone.
func (b *Basic) Location() *time.Location {
	return b.location
}

// IsActive reports whether t falls within the window or one of its repetitions.
// Params: instant to check, bounds inclusive.
// Returns: activity flag.
func (b *Basic) IsActive(t time.Time) bool {
	if t.Before(b.start) {
		return false
	}
	if !t.After(b.end) {
		return true
	}
	if b.frequency == None || b.interval <= 0 {
		return false
	}

	duration := b.end.Sub(b.start)
	stepDays := b.interval * int(b.frequency)
	origin := b.start.In(b.location)
	limit := t.Add(24 * time.Hour)

	// skip whole periods that cannot contain t
	spanDays := int(duration/(24*time.Hour)) + 1
	k := (calendarDays(origin, t.In(b.location))-spanDays)/stepDays - 1
	if k < 0 {
		k = 0
	}
	for ; ; k++ {
		occurrence := origin.AddDate(0, 0, k*stepDays)
		if occurrence.After(limit) {
			return false
		}
		if !t.Before(occurrence) && !t.After(occurrence.Add(duration)) {
			return true
		}
	}
}

// calendarDays counts whole calendar days between wall dates of from and to.
func calendarDays(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	fromDate := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	toDate := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(toDate.Sub(fromDate) / (24 * time.Hour))
}

func loadLocation(timezone string) (*time.Location, error) {
	if strings.TrimSpace(timezone) == "" {
		return time.UTC, nil
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return location, nil
}

// ParseLocal parses wall-clock datetime in timezone.
// Params: value as "2006-01-02T15:04:05" or "2006-01-02 15:04", timezone name.
// Returns: absolute time or parse error.
func ParseLocal(value, timezone string) (time.Time, error) {
	location, err := loadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}
	layouts := []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02T15:04", "2006-01-02 15:04", time.RFC3339}
	for _, layout := range layouts {
		if parsed, err := time.ParseInLocation(layout, strings.TrimSpace(value), location); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported datetime %q", value)
}

// Any reports whether at least one schedule is active at t.
func Any(schedules []Schedule, t time.Time) bool {
	for _, s := range schedules {
		if s.IsActive(t) {
			return true
		}
	}
	return false
}

// Func adapts a function to Schedule.
type Func func(t time.Time) bool

// IsActive calls f(t).
func (f Func) IsActive(t time.Time) bool {
	return f(t)
}
