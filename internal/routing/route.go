package routing

import (
	"context"

	"alertmanager/internal/alert"
)

// Routable is anything that can attempt to deliver an alert.
// Params: ctx and alert.
// Returns: handled flag (false means no route) and delivery error.
type Routable interface {
	Route(ctx context.Context, a *alert.Alert) (bool, error)
}

// RoutableFunc adapts a function to Routable.
type RoutableFunc func(ctx context.Context, a *alert.Alert) (bool, error)

// Route calls f(ctx, a).
func (f RoutableFunc) Route(ctx context.Context, a *alert.Alert) (bool, error) {
	return f(ctx, a)
}

// Route pairs criteria with a destination.
// A nil destination consumes matching alerts.
type Route struct {
	name        string
	criteria    *Criteria
	destination Routable
}

// To creates route to destination.
func To(destination Routable) *Route {
	return &Route{destination: destination}
}

// Drop creates black-hole route that consumes matching alerts.
func Drop() *Route {
	return &Route{}
}

// Named sets route label used in logs and metrics.
func (r *Route) Named(name string) *Route {
	r.name = name
	return r
}

// Name returns route label.
func (r *Route) Name() string {
	return r.name
}

// When replaces route criteria.
func (r *Route) When(criteria *Criteria) *Route {
	r.criteria = criteria
	return r
}

// Where adds AND criteria.
func (r *Route) Where(key string, values ...any) *Route {
	if r.criteria == nil {
		r.criteria = NewCriteria(And)
	}
	r.criteria = r.criteria.Where(key, values...)
	return r
}

// OrWhere adds OR criteria; on a route without criteria it starts them.
func (r *Route) OrWhere(key string, values ...any) *Route {
	if r.criteria == nil {
		return r.Where(key, values...)
	}
	r.criteria = r.criteria.OrWhere(key, values...)
	return r
}

// Criteria returns route criteria, possibly nil.
func (r *Route) Criteria() *Criteria {
	return r.criteria
}

// Destination returns route destination, possibly nil.
func (r *Route) Destination() Routable {
	return r.destination
}

// Test reports whether alert matches route criteria; false without criteria.
func (r *Route) Test(a *alert.Alert) bool {
	return r.criteria != nil && r.criteria.Matches(a)
}

// Route delegates to destination without re-testing criteria.
// Params: ctx and alert.
// Returns: true with no side effect for black-hole routes.
func (r *Route) Route(ctx context.Context, a *alert.Alert) (bool, error) {
	if r.destination == nil {
		return true, nil
	}
	return r.destination.Route(ctx, a)
}
