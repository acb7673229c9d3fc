package receiver

import (
	"alertmanager/internal/alert"
	"alertmanager/internal/routing"
)

// Filter excludes alerts from a receiver.
type Filter interface {
	IsFiltered(a *alert.Alert) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(a *alert.Alert) bool

// IsFiltered calls f(a).
func (f FilterFunc) IsFiltered(a *alert.Alert) bool {
	return f(a)
}

// CriteriaFilter excludes alerts matching criteria.
type CriteriaFilter struct {
	criteria *routing.Criteria
}

// NewCriteriaFilter creates filter from criteria.
func NewCriteriaFilter(criteria *routing.Criteria) CriteriaFilter {
	return CriteriaFilter{criteria: criteria}
}

// IsFiltered reports whether criteria matches alert.
func (f CriteriaFilter) IsFiltered(a *alert.Alert) bool {
	return f.criteria.Matches(a)
}

// String renders filter criteria.
func (f CriteriaFilter) String() string {
	return f.criteria.String()
}
