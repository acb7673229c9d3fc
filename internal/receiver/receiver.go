package receiver

import (
	"context"
	"log/slog"
	"time"

	"alertmanager/internal/alert"
	"alertmanager/internal/clock"
	"alertmanager/internal/routing"
	"alertmanager/internal/schedule"
)

// Receivable accepts routed alerts and decides whether it currently will.
// Params: alert to gate, route or receive.
// Returns: routing contract plus admission predicate.
type Receivable interface {
	routing.Routable
	alert.Receiver
	IsReceivable(a *alert.Alert) bool
}

// Unwrapper is implemented by decorators wrapping another receivable.
type Unwrapper interface {
	Unwrap() (Receivable, bool)
}

// Resolve walks the decorator chain down to the terminal receiver.
// Params: receivable, possibly decorated.
// Returns: innermost non-decorator receivable.
func Resolve(r Receivable) Receivable {
	for {
		unwrapper, ok := r.(Unwrapper)
		if !ok {
			return r
		}
		inner, ok := unwrapper.Unwrap()
		if !ok || inner == nil {
			return r
		}
		r = inner
	}
}

// Notifier performs the terminal notification side effect.
type Notifier interface {
	Notify(ctx context.Context, a *alert.Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, a *alert.Alert) error

// Notify calls f(ctx, a).
func (f NotifierFunc) Notify(ctx context.Context, a *alert.Alert) error {
	return f(ctx, a)
}

// Delay is the minimum alert age before first notification.
// Either a fixed duration since creation or until the alert was updated once.
type Delay struct {
	duration     time.Duration
	untilUpdated bool
}

// FixedDelay waits d after alert creation.
func FixedDelay(d time.Duration) Delay {
	return Delay{duration: d}
}

// UntilFirstUpdate waits until alert was updated after creation.
func UntilFirstUpdate() Delay {
	return Delay{untilUpdated: true}
}

// UntilUpdated reports whether delay waits for the first update.
func (d Delay) UntilUpdated() bool {
	return d.untilUpdated
}

// Duration returns fixed delay duration.
func (d Delay) Duration() time.Duration {
	return d.duration
}

// Met reports whether delay has elapsed for alert at now.
func (d Delay) Met(a *alert.Alert, now time.Time) bool {
	if d.untilUpdated {
		return a.UpdatedAt().After(a.CreatedAt())
	}
	return !now.Before(a.CreatedAt().Add(d.duration))
}

// Policy is admission configuration of a terminal receiver.
// Params: empty Schedules means always on; RepeatInterval <= 0 disables re-notification.
// Returns: gating rules evaluated by IsReceivable.
type Policy struct {
	Schedules          []schedule.Schedule
	ExclusionSchedules []schedule.Schedule
	RepeatInterval     time.Duration
	ReceiveRecoveries  bool
	Delay              Delay
	Filters            []Filter
}

// Receiver is a terminal notification sink with admission gating.
type Receiver struct {
	id       string
	policy   Policy
	notifier Notifier
	clock    clock.Clock
	logger   *slog.Logger
}

// New creates terminal receiver.
// Params: unique id, notifier, gating policy, clock and logger (nil uses defaults).
// Returns: receiver.
func New(id string, notifier Notifier, policy Policy, clk clock.Clock, logger *slog.Logger) *Receiver {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		id:       id,
		policy:   policy,
		notifier: notifier,
		clock:    clk,
		logger:   logger.With("receiver", id),
	}
}

// ReceiverID returns unique receiver id.
func (r *Receiver) ReceiverID() string {
	return r.id
}

// Policy returns receiver gating policy.
func (r *Receiver) Policy() Policy {
	return r.policy
}

// IsReceivable evaluates admission rules in order:
// exclusion schedules, schedules, filters, recovery, acknowledge, delay, repeat interval.
// Params: alert.
// Returns: true when alert should be delivered now.
func (r *Receiver) IsReceivable(a *alert.Alert) bool {
	now := r.clock.Now()
	if schedule.Any(r.policy.ExclusionSchedules, now) {
		return false
	}
	if len(r.policy.Schedules) > 0 && !schedule.Any(r.policy.Schedules, now) {
		return false
	}
	for _, filter := range r.policy.Filters {
		if filter.IsFiltered(a) {
			return false
		}
	}

	state := a.State()
	switch state {
	case alert.StateRecovered:
		if !r.policy.ReceiveRecoveries {
			return false
		}
		if _, ok := a.DispatchedAt(r.id, alert.StateActive); !ok {
			return false
		}
		_, sent := a.DispatchedAt(r.id, alert.StateRecovered)
		return !sent
	case alert.StateAcknowledged:
		return false
	}

	if !r.policy.Delay.Met(a, now) {
		return false
	}
	last, ok := a.DispatchedAt(r.id, state)
	if ok && (r.policy.RepeatInterval <= 0 || now.Before(last.Add(r.policy.RepeatInterval))) {
		return false
	}
	return true
}

// Receive performs the notification.
func (r *Receiver) Receive(ctx context.Context, a *alert.Alert) error {
	r.logger.Debug("notify", "alert", a.Name(), "state", a.State())
	return r.notifier.Notify(ctx, a)
}

// Route dispatches alert when receivable.
// Params: ctx and alert.
// Returns: false when gated out; notifier error otherwise.
func (r *Receiver) Route(ctx context.Context, a *alert.Alert) (bool, error) {
	if !r.IsReceivable(a) {
		return false, nil
	}
	return true, a.Dispatch(ctx, r, r.clock.Now())
}
