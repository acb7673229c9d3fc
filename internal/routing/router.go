package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"alertmanager/internal/alert"
)

// Action controls evaluation after a route entry.
type Action int

const (
	// End stops evaluation after this route produces a result.
	End Action = iota
	// Continue evaluates later routes after this route produces a result.
	Continue
	// Stop fences evaluation when an earlier route produced a result.
	Stop
)

// String returns config name of action.
func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case Stop:
		return "stop"
	default:
		return "end"
	}
}

// ParseAction converts config names end/continue/stop, empty means End.
func ParseAction(raw string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "end":
		return End, nil
	case "continue":
		return Continue, nil
	case "stop":
		return Stop, nil
	default:
		return End, fmt.Errorf("unsupported route action %q", raw)
	}
}

// RoutedFunc observes every route that produced a result.
type RoutedFunc func(ctx context.Context, route *Route, a *alert.Alert, err error)

type entry struct {
	route  *Route
	action Action
}

// Router is an ordered decision tree of routes.
type Router struct {
	entries  []*entry
	onRouted RoutedFunc
	fanout   bool
}

// NewRouter creates empty first-match router.
func NewRouter() *Router {
	return &Router{}
}

// NewGroup creates router whose routes are all marked Continue.
func NewGroup() *Router {
	return &Router{fanout: true}
}

// RouteHandle sets the action of one added route.
type RouteHandle struct {
	router *Router
	entry  *entry
}

// Add appends route with End action (Continue inside a group).
// Params: route to append.
// Returns: handle for the new entry.
func (r *Router) Add(route *Route) *RouteHandle {
	e := &entry{route: route, action: End}
	if r.fanout {
		e.action = Continue
	}
	r.entries = append(r.entries, e)
	return &RouteHandle{router: r, entry: e}
}

// Continue marks entry Continue.
func (h *RouteHandle) Continue() *Router {
	return h.set(Continue)
}

// Stop marks entry Stop.
func (h *RouteHandle) Stop() *Router {
	return h.set(Stop)
}

// End marks entry End.
func (h *RouteHandle) End() *Router {
	return h.set(End)
}

// As marks entry with explicit action.
func (h *RouteHandle) As(action Action) *Router {
	return h.set(action)
}

func (h *RouteHandle) set(action Action) *Router {
	if h.router.fanout {
		action = Continue
	}
	h.entry.action = action
	return h.router
}

// OnRouted installs routed observer.
func (r *Router) OnRouted(fn RoutedFunc) *Router {
	r.onRouted = fn
	return r
}

// Len returns route count.
func (r *Router) Len() int {
	return len(r.entries)
}

// Route evaluates routes in insertion order.
// Params: ctx and alert.
// Returns: handled flag (false when no route produced a result) and joined errors.
func (r *Router) Route(ctx context.Context, a *alert.Alert) (bool, error) {
	var (
		handled bool
		errs    []error
	)
	for _, e := range r.entries {
		if e.route.Test(a) {
			ok, err := e.route.Route(ctx, a)
			if err != nil {
				errs = append(errs, err)
			}
			if ok || err != nil {
				handled = true
				if r.onRouted != nil {
					r.onRouted(ctx, e.route, a, err)
				}
				if e.action != Continue {
					break
				}
			}
		}
		if e.action == Stop && handled {
			break
		}
	}
	return handled, errors.Join(errs...)
}
