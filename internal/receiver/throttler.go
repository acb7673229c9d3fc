package receiver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"alertmanager/internal/alert"
	"alertmanager/internal/clock"
)

const (
	// DefaultThrottleInterval is the rolling hit window.
	DefaultThrottleInterval = 60 * time.Second
	// DefaultHitThreshold is the hit count that trips hold-down.
	DefaultHitThreshold = 15
	// DefaultHoldDown is the suppression period after threshold breach.
	DefaultHoldDown = 1800 * time.Second
)

// ThrottlerConfig configures rate limiting.
// Params: Interval max gap between hits of one window; HitThreshold hits to trip;
// HoldDown suppression period; OnHoldDown optional receiver of hold-down notices.
// Returns: throttler settings.
type ThrottlerConfig struct {
	Interval     time.Duration
	HitThreshold int
	HoldDown     time.Duration
	OnHoldDown   alert.Receiver
}

// Throttler suppresses notifications after too many hits in a short window.
type Throttler struct {
	decorator
	interval   time.Duration
	threshold  int
	holdDown   time.Duration
	onHoldDown alert.Receiver
	clock      clock.Clock
	logger     *slog.Logger

	mu            sync.Mutex
	windowStart   time.Time
	lastHit       time.Time
	holdDownStart time.Time
	window        []*alert.Alert
}

// NewThrottler wraps receivable with rate limiting.
// Params: wrapped receivable, config (zero values take defaults), clock and logger.
// Returns: throttler.
func NewThrottler(wrapped Receivable, cfg ThrottlerConfig, clk clock.Clock, logger *slog.Logger) *Throttler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultThrottleInterval
	}
	if cfg.HitThreshold <= 0 {
		cfg.HitThreshold = DefaultHitThreshold
	}
	if cfg.HoldDown <= 0 {
		cfg.HoldDown = DefaultHoldDown
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Throttler{
		decorator:  decorator{wrapped: wrapped},
		interval:   cfg.Interval,
		threshold:  cfg.HitThreshold,
		holdDown:   cfg.HoldDown,
		onHoldDown: cfg.OnHoldDown,
		clock:      clk,
		logger:     logger.With("receiver", wrapped.ReceiverID(), "decorator", "throttler"),
	}
}

// IsReceivable delegates to wrapped receivable.
func (t *Throttler) IsReceivable(a *alert.Alert) bool {
	return t.wrapped.IsReceivable(a)
}

// Receive counts the hit and forwards, swallows during hold-down, or enters hold-down.
// Params: ctx and alert.
// Returns: forward or hold-down notice error.
func (t *Throttler) Receive(ctx context.Context, a *alert.Alert) error {
	now := t.clock.Now()
	terminal := Resolve(t)
	terminalID := terminal.ReceiverID()

	t.mu.Lock()
	if !t.holdDownStart.IsZero() {
		if now.Sub(t.holdDownStart) < t.holdDown {
			t.mu.Unlock()
			a.LogDispatch(terminalID, a.State(), now)
			return nil
		}
		t.logger.Info("hold-down expired")
		t.holdDownStart = time.Time{}
		t.windowStart = time.Time{}
		t.window = nil
	}

	if t.windowStart.IsZero() || now.Sub(t.lastHit) > t.interval {
		t.windowStart = now
		t.window = nil
	}
	t.lastHit = now
	t.window = append(t.window, a)

	if len(t.window) >= t.threshold {
		t.holdDownStart = now
		members := append([]*alert.Alert(nil), t.window...)
		t.mu.Unlock()

		expiresAt := now.Add(t.holdDown)
		t.logger.Warn("hit threshold reached, entering hold-down",
			"hits", len(members), "until", expiresAt)
		var err error
		if t.onHoldDown != nil {
			err = t.onHoldDown.Receive(ctx, alert.NewThrottled(members, expiresAt, now))
		}
		a.LogDispatch(terminalID, a.State(), now)
		return err
	}
	t.mu.Unlock()

	// batch alerts are built at flush time and never meet the terminal delay gate
	if a.IsSynthesized() {
		return a.Dispatch(ctx, terminal, now)
	}
	_, err := t.wrapped.Route(ctx, a)
	return err
}

// Route gates and receives.
func (t *Throttler) Route(ctx context.Context, a *alert.Alert) (bool, error) {
	return routeThrough(ctx, t, a)
}

// InHoldDown reports whether hold-down is active at now.
func (t *Throttler) InHoldDown() bool {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.holdDownStart.IsZero() && now.Sub(t.holdDownStart) < t.holdDown
}
