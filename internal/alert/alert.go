package alert

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Receiver is the minimal delivery contract an alert dispatches to.
// Params: receiver identity and receive side effect.
// Returns: delivery error.
type Receiver interface {
	ReceiverID() string
	Receive(ctx context.Context, a *Alert) error
}

// Alert is one live alert with per-receiver dispatch log.
// Params: identity name, mutable state, attributes, timestamps and expiry.
// Returns: entity shared by processor, router and receivers; safe for concurrent use.
type Alert struct {
	name string

	mu         sync.RWMutex
	state      State
	attributes Attributes
	createdAt  time.Time
	updatedAt  time.Time
	expiry     time.Duration
	dispatched map[string]map[State]time.Time
	members    []*Alert
}

// New creates ACTIVE alert created and updated at now.
// Params: unique name, attributes, current time.
// Returns: alert with empty dispatch log and zero expiry.
func New(name string, attributes Attributes, now time.Time) *Alert {
	return &Alert{
		name:       name,
		state:      StateActive,
		attributes: attributes.Clone(),
		createdAt:  now,
		updatedAt:  now,
		dispatched: make(map[string]map[State]time.Time),
	}
}

// Name returns alert identity.
func (a *Alert) Name() string {
	return a.name
}

// State returns current state.
func (a *Alert) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// SetState changes state; only enum membership is validated.
// Params: next state.
// Returns: ErrInvalidState for unknown values.
func (a *Alert) SetState(state State) error {
	if !state.Valid() {
		return ErrInvalidState
	}
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
	return nil
}

// Attribute returns one attribute value.
func (a *Alert) Attribute(key string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.attributes.Get(key)
}

// Attributes returns a copy of alert attributes.
func (a *Alert) Attributes() Attributes {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.attributes.Clone()
}

// CreatedAt returns creation time.
func (a *Alert) CreatedAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.createdAt
}

// SetCreatedAt overrides creation time.
func (a *Alert) SetCreatedAt(at time.Time) {
	a.mu.Lock()
	a.createdAt = at
	a.mu.Unlock()
}

// UpdatedAt returns last update time.
func (a *Alert) UpdatedAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.updatedAt
}

// SetUpdatedAt overrides last update time.
func (a *Alert) SetUpdatedAt(at time.Time) {
	a.mu.Lock()
	a.updatedAt = at
	a.mu.Unlock()
}

// ExpiryDuration returns time after last update when alert expires.
func (a *Alert) ExpiryDuration() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.expiry
}

// SetExpiryDuration sets expiry duration.
func (a *Alert) SetExpiryDuration(d time.Duration) {
	a.mu.Lock()
	a.expiry = d
	a.mu.Unlock()
}

// HasExpired reports whether now - updatedAt >= expiryDuration.
// Params: current time.
// Returns: true when alert should be recovered by expiry.
func (a *Alert) HasExpired(now time.Time) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return now.Sub(a.updatedAt) >= a.expiry
}

// UpdateFrom merges mutable fields of a newer duplicate.
// Dispatch log and creation time are preserved.
// Params: duplicate alert with same name, current time.
// Returns: none.
func (a *Alert) UpdateFrom(other *Alert, now time.Time) {
	if other == nil || other == a {
		return
	}
	other.mu.RLock()
	state := other.state
	attributes := other.attributes.Clone()
	expiry := other.expiry
	other.mu.RUnlock()

	a.mu.Lock()
	a.state = state
	a.attributes = attributes
	a.expiry = expiry
	a.updatedAt = now
	a.mu.Unlock()
}

// Dispatch logs current state for receiver and then invokes its Receive.
// Params: ctx, receiver and current time.
// Returns: receiver error.
func (a *Alert) Dispatch(ctx context.Context, receiver Receiver, now time.Time) error {
	a.LogDispatch(receiver.ReceiverID(), a.State(), now)
	return receiver.Receive(ctx, a)
}

// LogDispatch records that receiver handled given state at now.
// Params: receiver id, state and dispatch time.
// Returns: none.
func (a *Alert) LogDispatch(receiverID string, state State, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dispatched == nil {
		a.dispatched = make(map[string]map[State]time.Time)
	}
	byState, ok := a.dispatched[receiverID]
	if !ok {
		byState = make(map[State]time.Time)
		a.dispatched[receiverID] = byState
	}
	byState[state] = now
}

// DispatchedAt returns last dispatch time of state to receiver.
// Params: receiver id and state.
// Returns: dispatch time and presence flag.
func (a *Alert) DispatchedAt(receiverID string, state State) (time.Time, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	at, ok := a.dispatched[receiverID][state]
	return at, ok
}

// DispatchedTo reports whether receiver appears anywhere in dispatch log.
func (a *Alert) DispatchedTo(receiverID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.dispatched[receiverID]) > 0
}

// DispatchLogFor returns copy of receiver dispatch entries by state.
func (a *Alert) DispatchLogFor(receiverID string) map[State]time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[State]time.Time, len(a.dispatched[receiverID]))
	for state, at := range a.dispatched[receiverID] {
		out[state] = at
	}
	return out
}

// Members returns batched alerts of a synthesized alert.
func (a *Alert) Members() []*Alert {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]*Alert(nil), a.members...)
}

// DispatchRecord is one dispatch log entry in record form.
type DispatchRecord struct {
	ReceiverID string `json:"receiverId"`
	Time       int64  `json:"time"`
}

// Record is alert wire representation.
// Params: all fields are UNIX seconds where time-like.
// Returns: JSON shape used by API responses and JSON transports.
type Record struct {
	Name           string           `json:"name"`
	State          State            `json:"state"`
	Attributes     Attributes       `json:"attributes"`
	CreatedAt      int64            `json:"createdAt"`
	UpdatedAt      int64            `json:"updatedAt"`
	ExpiryDuration int64            `json:"expiryDuration"`
	DispatchedTo   []DispatchRecord `json:"dispatchedTo"`
	Alerts         []Record         `json:"alerts,omitempty"`
}

// Record renders alert snapshot.
// dispatchedTo lists receivers that dispatched the current state, sorted by id.
// Params: none.
// Returns: record snapshot.
func (a *Alert) Record() Record {
	a.mu.RLock()
	record := Record{
		Name:           a.name,
		State:          a.state,
		Attributes:     a.attributes.Clone(),
		CreatedAt:      a.createdAt.Unix(),
		UpdatedAt:      a.updatedAt.Unix(),
		ExpiryDuration: int64(a.expiry / time.Second),
		DispatchedTo:   make([]DispatchRecord, 0, len(a.dispatched)),
	}
	for receiverID, byState := range a.dispatched {
		if at, ok := byState[a.state]; ok {
			record.DispatchedTo = append(record.DispatchedTo, DispatchRecord{ReceiverID: receiverID, Time: at.Unix()})
		}
	}
	members := append([]*Alert(nil), a.members...)
	a.mu.RUnlock()

	sort.Slice(record.DispatchedTo, func(i, j int) bool {
		return record.DispatchedTo[i].ReceiverID < record.DispatchedTo[j].ReceiverID
	})
	for _, member := range members {
		record.Alerts = append(record.Alerts, member.Record())
	}
	return record
}
