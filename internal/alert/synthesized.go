package alert

import "time"

const (
	// AggregatedName names alerts produced by aggregation windows.
	AggregatedName = "ALERTMANAGER_AGG_ALERT"
	// ThrottledName names alerts emitted when a receiver enters hold-down.
	ThrottledName = "ALERTMANAGER_HOLDDOWN_ACTIVE"
	// ExpiresAtAttribute carries hold-down end as UNIX seconds.
	ExpiresAtAttribute = "expiresAt"
	// CountAttribute carries number of batched alerts.
	CountAttribute = "count"
)

// NewAggregated builds one ACTIVE alert batching members.
// Params: members in window order and current time.
// Returns: synthesized alert.
func NewAggregated(members []*Alert, now time.Time) *Alert {
	attrs := Attributes{}
	attrs.Set(CountAttribute, len(members))
	synthesized := New(AggregatedName, attrs, now)
	synthesized.members = append([]*Alert(nil), members...)
	return synthesized
}

// NewThrottled builds the hold-down notice alert.
// Params: alerts that tripped the threshold, hold-down end and current time.
// Returns: synthesized alert with zero expiry.
func NewThrottled(members []*Alert, expiresAt, now time.Time) *Alert {
	attrs := Attributes{}
	attrs.Set(ExpiresAtAttribute, expiresAt.Unix())
	attrs.Set(CountAttribute, len(members))
	synthesized := New(ThrottledName, attrs, now)
	synthesized.members = append([]*Alert(nil), members...)
	return synthesized
}

// IsSynthesized reports whether alert was produced by a decorator.
func (a *Alert) IsSynthesized() bool {
	return a.name == AggregatedName || a.name == ThrottledName
}
