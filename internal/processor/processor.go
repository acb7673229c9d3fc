package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"alertmanager/internal/alert"
	"alertmanager/internal/clock"
	"alertmanager/internal/routing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultTick is the pause between two process passes.
	DefaultTick = time.Second

	tracerName = "alertmanager/processor"
)

// Preprocessor inspects or enriches an incoming alert before it is queued.
type Preprocessor interface {
	Preprocess(ctx context.Context, a *alert.Alert) error
}

// PreprocessorFunc adapts a function to Preprocessor.
type PreprocessorFunc func(ctx context.Context, a *alert.Alert) error

// Preprocess calls f.
func (f PreprocessorFunc) Preprocess(ctx context.Context, a *alert.Alert) error {
	return f(ctx, a)
}

// Flusher is a receiver holding batched alerts that can be emitted on demand.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Option customizes Processor.
type Option func(*Processor)

// WithClock sets time source.
func WithClock(clk clock.Clock) Option {
	return func(p *Processor) { p.clock = clk }
}

// WithLogger sets logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithObserver sets event observer.
func WithObserver(observer Observer) Option {
	return func(p *Processor) { p.observer = observer }
}

// WithPreprocessors appends preprocessors run in order by Add.
func WithPreprocessors(preprocessors ...Preprocessor) Option {
	return func(p *Processor) { p.preprocessors = append(p.preprocessors, preprocessors...) }
}

// WithFlushers registers receivers flushed at the end of every routed pass.
func WithFlushers(flushers ...Flusher) Option {
	return func(p *Processor) { p.flushers = append(p.flushers, flushers...) }
}

// WithTick sets pause between passes.
func WithTick(tick time.Duration) Option {
	return func(p *Processor) {
		if tick > 0 {
			p.tick = tick
		}
	}
}

// WithTracer sets tracer used for pass and route spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Processor) { p.tracer = tracer }
}

// Processor owns the live alert set and drives routing on every tick.
// Params: top-level routable plus options.
// Returns: alert queue with periodic evaluate-route-reconcile loop.
type Processor struct {
	router        routing.Routable
	clock         clock.Clock
	logger        *slog.Logger
	observer      Observer
	preprocessors []Preprocessor
	flushers      []Flusher
	tick          time.Duration
	tracer        trace.Tracer

	mu     sync.Mutex
	alerts map[string]*alert.Alert
	order  []string

	quiesceMu    sync.Mutex
	quiesced     bool
	quiesceTimer *time.Timer

	passMu sync.Mutex
}

// New creates processor.
// Params: router every live alert is routed through and options.
// Returns: processor with empty live set.
func New(router routing.Routable, opts ...Option) *Processor {
	p := &Processor{
		router: router,
		clock:  clock.RealClock{},
		tick:   DefaultTick,
		alerts: make(map[string]*alert.Alert),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.observer == nil {
		p.observer = Observers(nil)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	return p
}

// Add queues one alert.
// Preprocessors run in order; the first failure is reported as an error event and
// skips the remaining ones, but the alert is queued regardless.
// Params: ctx and incoming alert.
// Returns: nil; reserved for future queue limits.
func (p *Processor) Add(ctx context.Context, a *alert.Alert) error {
	if a == nil {
		return errors.New("nil alert")
	}
	for _, pre := range p.preprocessors {
		if err := pre.Preprocess(ctx, a); err != nil {
			p.emit(Event{Name: EventError, Alert: a, Err: fmt.Errorf("preprocess %s: %w", a.Name(), err)})
			break
		}
	}

	now := p.clock.Now()
	p.mu.Lock()
	existing, ok := p.alerts[a.Name()]
	if !ok {
		p.alerts[a.Name()] = a
		p.order = append(p.order, a.Name())
		p.mu.Unlock()
		p.emit(Event{Name: EventAlertNew, Alert: a})
		return nil
	}
	previous := existing.State()
	existing.UpdateFrom(a, now)
	p.mu.Unlock()
	p.emit(Event{Name: EventAlertUpdated, Alert: existing, Previous: previous})
	return nil
}

// Process runs one pass: expire, route unless quiesced, then reconcile.
// Routing of different alerts runs concurrently and every outcome is awaited.
// Params: ctx for routing calls.
// Returns: joined routing and flush errors; each is also emitted as an error event.
func (p *Processor) Process(ctx context.Context) error {
	p.passMu.Lock()
	defer p.passMu.Unlock()

	started := time.Now()
	ctx, span := p.tracer.Start(ctx, "processor.process")
	defer span.End()

	now := p.clock.Now()
	quiesced := p.Quiesced()
	live := p.snapshot()
	span.SetAttributes(attribute.Int("alerts", len(live)), attribute.Bool("quiesced", quiesced))

	var (
		wg   sync.WaitGroup
		errM sync.Mutex
		errs []error
	)
	record := func(a *alert.Alert, err error) {
		errM.Lock()
		errs = append(errs, err)
		errM.Unlock()
		p.emit(Event{Name: EventError, Alert: a, Err: err})
	}

	for _, a := range live {
		state := a.State()
		if state == alert.StateInactive {
			continue
		}
		if state != alert.StateRecovered && a.HasExpired(now) {
			_ = a.SetState(alert.StateRecovered)
			p.emit(Event{Name: EventAlertExpired, Alert: a})
		}
		if quiesced {
			continue
		}
		wg.Add(1)
		go func(a *alert.Alert) {
			defer wg.Done()
			if err := p.route(ctx, a); err != nil {
				record(a, err)
			}
		}(a)
	}
	wg.Wait()

	if !quiesced {
		for _, flusher := range p.flushers {
			if err := flusher.Flush(ctx); err != nil {
				record(nil, fmt.Errorf("flush: %w", err))
			}
		}
	}

	p.reconcile()

	joined := errors.Join(errs...)
	if joined != nil {
		span.RecordError(joined)
		span.SetStatus(codes.Error, "routing failures")
	}
	p.emit(Event{Name: EventProcessPassed, Duration: time.Since(started)})
	return joined
}

func (p *Processor) route(ctx context.Context, a *alert.Alert) error {
	ctx, span := p.tracer.Start(ctx, "processor.route", trace.WithAttributes(
		attribute.String("alert.name", a.Name()),
		attribute.String("alert.state", string(a.State())),
	))
	defer span.End()

	handled, err := p.router.Route(ctx, a)
	span.SetAttributes(attribute.Bool("handled", handled))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "route failed")
		return fmt.Errorf("route %s: %w", a.Name(), err)
	}
	return nil
}

// reconcile removes INACTIVE and RECOVERED alerts from the live set.
func (p *Processor) reconcile() {
	var removed []*alert.Alert
	p.mu.Lock()
	kept := p.order[:0]
	for _, name := range p.order {
		a := p.alerts[name]
		switch a.State() {
		case alert.StateInactive, alert.StateRecovered:
			delete(p.alerts, name)
			removed = append(removed, a)
		default:
			kept = append(kept, name)
		}
	}
	p.order = kept
	p.mu.Unlock()

	for _, a := range removed {
		p.emit(Event{Name: EventAlertDeleted, Alert: a})
	}
}

// Run processes immediately and then once per tick after each pass completes.
// Params: ctx; cancellation stops the loop.
// Returns: nil after ctx is done.
func (p *Processor) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		_ = p.Process(ctx)
		timer.Reset(p.tick)
	}
}

// Quiesce suspends routing for d.
// Params: quiesce duration.
// Returns: false when routing is already quiesced.
func (p *Processor) Quiesce(d time.Duration) bool {
	p.quiesceMu.Lock()
	if p.quiesced {
		p.quiesceMu.Unlock()
		return false
	}
	p.quiesced = true
	p.quiesceTimer = time.AfterFunc(d, p.endQuiesce)
	p.quiesceMu.Unlock()

	p.emit(Event{Name: EventQuiesceStart, Duration: d})
	return true
}

func (p *Processor) endQuiesce() {
	p.quiesceMu.Lock()
	if !p.quiesced {
		p.quiesceMu.Unlock()
		return
	}
	p.quiesced = false
	p.quiesceTimer = nil
	p.quiesceMu.Unlock()
	p.emit(Event{Name: EventQuiesceEnd})
}

// Quiesced reports whether routing is suspended.
func (p *Processor) Quiesced() bool {
	p.quiesceMu.Lock()
	defer p.quiesceMu.Unlock()
	return p.quiesced
}

// Stop cancels a pending quiesce timer.
func (p *Processor) Stop() {
	p.quiesceMu.Lock()
	defer p.quiesceMu.Unlock()
	if p.quiesceTimer != nil {
		p.quiesceTimer.Stop()
		p.quiesceTimer = nil
	}
}

// Alerts returns live alerts sorted by name.
func (p *Processor) Alerts() []*alert.Alert {
	out := p.snapshot()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Get returns live alert by name.
func (p *Processor) Get(name string) (*alert.Alert, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.alerts[name]
	return a, ok
}

// Len returns live alert count.
func (p *Processor) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.alerts)
}

// snapshot returns live alerts in insertion order.
func (p *Processor) snapshot() []*alert.Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*alert.Alert, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.alerts[name])
	}
	return out
}

func (p *Processor) emit(ev Event) {
	p.observer.Event(ev)
}
