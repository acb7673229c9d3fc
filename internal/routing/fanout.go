package routing

import (
	"context"
	"errors"

	"alertmanager/internal/alert"
)

// Fanout routes every alert to all destinations.
type Fanout struct {
	destinations []Routable
}

// NewFanout creates fanout over destinations.
func NewFanout(destinations ...Routable) *Fanout {
	return &Fanout{destinations: destinations}
}

// Add appends destination.
func (f *Fanout) Add(destination Routable) *Fanout {
	f.destinations = append(f.destinations, destination)
	return f
}

// Route sends alert to each destination and waits for all of them.
// Params: ctx and alert.
// Returns: true when any destination handled it; joined errors.
func (f *Fanout) Route(ctx context.Context, a *alert.Alert) (bool, error) {
	var (
		handled bool
		errs    []error
	)
	for _, destination := range f.destinations {
		ok, err := destination.Route(ctx, a)
		if err != nil {
			errs = append(errs, err)
		}
		handled = handled || ok || err != nil
	}
	return handled, errors.Join(errs...)
}
