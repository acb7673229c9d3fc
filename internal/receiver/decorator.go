package receiver

import (
	"context"

	"alertmanager/internal/alert"
)

// decorator holds the wrapped receivable of a decorating receiver.
type decorator struct {
	wrapped Receivable
}

// ReceiverID returns wrapped receiver id.
func (d decorator) ReceiverID() string {
	return d.wrapped.ReceiverID()
}

// Unwrap returns wrapped receivable.
func (d decorator) Unwrap() (Receivable, bool) {
	return d.wrapped, true
}

// routeThrough gates with self and calls self.Receive without writing the
// dispatch log; decorators log against the terminal receiver themselves.
func routeThrough(ctx context.Context, self Receivable, a *alert.Alert) (bool, error) {
	if !self.IsReceivable(a) {
		return false, nil
	}
	return true, self.Receive(ctx, a)
}
