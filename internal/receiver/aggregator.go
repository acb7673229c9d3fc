package receiver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"alertmanager/internal/alert"
	"alertmanager/internal/clock"
)

// DefaultAggregateInterval is the aggregation window when none is configured.
const DefaultAggregateInterval = 15 * time.Minute

// AggregatorConfig configures time-windowed batching.
// Params: Interval window length; Minimum batch size for one aggregated notice.
// Returns: aggregator settings.
type AggregatorConfig struct {
	Interval time.Duration
	Minimum  int
}

// Aggregator batches receivable alerts into one aggregated alert per window.
// The window flushes on the first receive after it elapses, or on Flush.
type Aggregator struct {
	decorator
	interval time.Duration
	minimum  int
	clock    clock.Clock
	logger   *slog.Logger

	mu          sync.Mutex
	windowStart time.Time
	tracked     []*alert.Alert
	index       map[*alert.Alert]struct{}
}

// NewAggregator wraps receivable with aggregation.
// Params: wrapped receivable, config, clock and logger.
// Returns: aggregator.
func NewAggregator(wrapped Receivable, cfg AggregatorConfig, clk clock.Clock, logger *slog.Logger) *Aggregator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultAggregateInterval
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		decorator: decorator{wrapped: wrapped},
		interval:  cfg.Interval,
		minimum:   cfg.Minimum,
		clock:     clk,
		logger:    logger.With("receiver", wrapped.ReceiverID(), "decorator", "aggregator"),
		index:     make(map[*alert.Alert]struct{}),
	}
}

// IsReceivable tracks admitted alerts and untracks alerts that became unreceivable.
// An emptied window is reset.
func (g *Aggregator) IsReceivable(a *alert.Alert) bool {
	ok := g.wrapped.IsReceivable(a)

	g.mu.Lock()
	defer g.mu.Unlock()
	if ok {
		if _, seen := g.index[a]; !seen {
			g.index[a] = struct{}{}
			g.tracked = append(g.tracked, a)
		}
		return true
	}
	if _, seen := g.index[a]; seen {
		delete(g.index, a)
		for i, tracked := range g.tracked {
			if tracked == a {
				g.tracked = append(g.tracked[:i], g.tracked[i+1:]...)
				break
			}
		}
		if len(g.tracked) == 0 {
			g.clearLocked()
		}
	}
	return false
}

// Receive opens the window and flushes it once elapsed.
// Params: ctx and alert admitted by IsReceivable.
// Returns: delivery error of the flush, nil while absorbing.
func (g *Aggregator) Receive(ctx context.Context, a *alert.Alert) error {
	now := g.clock.Now()

	g.mu.Lock()
	if _, tracked := g.index[a]; !tracked {
		// flushed by a concurrent receive
		g.mu.Unlock()
		return nil
	}
	if g.windowStart.IsZero() {
		g.windowStart = now
	}
	if now.Sub(g.windowStart) < g.interval {
		g.mu.Unlock()
		return nil
	}
	batch := g.takeLocked()
	g.mu.Unlock()

	return g.flush(ctx, batch, now)
}

// Flush emits the current window if it has elapsed.
// Params: ctx.
// Returns: delivery error.
func (g *Aggregator) Flush(ctx context.Context) error {
	now := g.clock.Now()

	g.mu.Lock()
	if g.windowStart.IsZero() || now.Sub(g.windowStart) < g.interval {
		g.mu.Unlock()
		return nil
	}
	batch := g.takeLocked()
	g.mu.Unlock()

	return g.flush(ctx, batch, now)
}

// Route gates and receives.
func (g *Aggregator) Route(ctx context.Context, a *alert.Alert) (bool, error) {
	return routeThrough(ctx, g, a)
}

// Pending returns number of alerts in the open window.
func (g *Aggregator) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tracked)
}

func (g *Aggregator) flush(ctx context.Context, batch []*alert.Alert, now time.Time) error {
	if len(batch) == 0 {
		return nil
	}
	terminal := Resolve(g)
	if len(batch) >= g.minimum {
		g.logger.Info("aggregation window flushed", "alerts", len(batch))
		err := g.wrapped.Receive(ctx, alert.NewAggregated(batch, now))
		for _, member := range batch {
			member.LogDispatch(terminal.ReceiverID(), member.State(), now)
		}
		return err
	}

	g.logger.Info("aggregation window below minimum, dispatching individually",
		"alerts", len(batch), "minimum", g.minimum)
	var errs []error
	for _, member := range batch {
		if _, err := g.wrapped.Route(ctx, member); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *Aggregator) takeLocked() []*alert.Alert {
	batch := g.tracked
	g.clearLocked()
	return batch
}

func (g *Aggregator) clearLocked() {
	g.tracked = nil
	g.index = make(map[*alert.Alert]struct{})
	g.windowStart = time.Time{}
}
