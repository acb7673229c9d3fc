package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"alertmanager/internal/alert"
	"alertmanager/internal/clock"
	"alertmanager/internal/config"
	"alertmanager/internal/metrics"
	"alertmanager/internal/notify"
	"alertmanager/internal/processor"
	"alertmanager/internal/receiver"
	"alertmanager/internal/routing"
	"alertmanager/internal/schedule"
	"alertmanager/internal/templatefmt"
)

// Runtime is the compiled routing side of one config snapshot.
// Params: root router, receivers by id, background flushers and closable senders.
type Runtime struct {
	Router    *routing.Router
	Receivers map[string]receiver.Receivable
	Flushers  []processor.Flusher
	closers   []io.Closer
}

// Close releases transport resources held by receivers.
func (r *Runtime) Close() error {
	var firstErr error
	for _, closer := range r.closers {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BuildDeps carries shared collaborators for BuildRuntime.
// Params: clock, logger, optional metrics collector and sender options.
type BuildDeps struct {
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Collector
	Notify  notify.Options
}

// BuildRuntime compiles schedules, templates, receivers and the route tree.
// Params: validated config snapshot and dependencies.
// Returns: runtime or construction error.
func BuildRuntime(cfg config.Config, deps BuildDeps) (*Runtime, error) {
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notify.Logger == nil {
		deps.Notify.Logger = deps.Logger
	}

	schedules, err := buildSchedules(cfg.Schedules)
	if err != nil {
		return nil, err
	}
	templates, err := buildTemplates(cfg.Templates)
	if err != nil {
		return nil, err
	}

	runtime := &Runtime{Receivers: make(map[string]receiver.Receivable, len(cfg.Receivers))}
	terminals := make(map[string]*receiver.Receiver, len(cfg.Receivers))
	for _, item := range cfg.Receivers {
		terminal, closer, err := buildReceiver(item, schedules, templates, deps)
		if err != nil {
			_ = runtime.Close()
			return nil, err
		}
		if closer != nil {
			runtime.closers = append(runtime.closers, closer)
		}
		terminals[item.ID] = terminal
	}

	for _, item := range cfg.Receivers {
		var decorated receiver.Receivable = terminals[item.ID]
		if throttle := item.Throttle; throttle != nil {
			throttleCfg := receiver.ThrottlerConfig{
				Interval:     time.Duration(throttle.IntervalSec) * time.Second,
				HitThreshold: throttle.HitThreshold,
				HoldDown:     time.Duration(throttle.HoldDownSec) * time.Second,
			}
			if throttle.NotifyReceiver != "" {
				throttleCfg.OnHoldDown = terminals[throttle.NotifyReceiver]
			}
			decorated = receiver.NewThrottler(decorated, throttleCfg, deps.Clock, deps.Logger)
		}
		if aggregate := item.Aggregate; aggregate != nil {
			aggregator := receiver.NewAggregator(decorated, receiver.AggregatorConfig{
				Interval: time.Duration(aggregate.IntervalMin) * time.Minute,
				Minimum:  aggregate.Minimum,
			}, deps.Clock, deps.Logger)
			if aggregate.BackgroundFlush {
				runtime.Flushers = append(runtime.Flushers, aggregator)
			}
			decorated = aggregator
		}
		runtime.Receivers[item.ID] = decorated
	}

	root, err := buildRouter(cfg.Routes, false, runtime.Receivers, routedObserver(deps))
	if err != nil {
		_ = runtime.Close()
		return nil, err
	}
	runtime.Router = root
	return runtime, nil
}

func buildSchedules(items []config.ScheduleConfig) (map[string]schedule.Schedule, error) {
	out := make(map[string]schedule.Schedule, len(items))
	for _, item := range items {
		frequency, err := schedule.ParseFrequency(item.Repeat)
		if err != nil {
			return nil, fmt.Errorf("schedule.%s: %w", item.Name, err)
		}
		start, err := schedule.ParseLocal(item.Start, item.Timezone)
		if err != nil {
			return nil, fmt.Errorf("schedule.%s.start: %w", item.Name, err)
		}
		end, err := schedule.ParseLocal(item.End, item.Timezone)
		if err != nil {
			return nil, fmt.Errorf("schedule.%s.end: %w", item.Name, err)
		}
		basic, err := schedule.NewBasic(start, end, item.Timezone)
		if err != nil {
			return nil, fmt.Errorf("schedule.%s: %w", item.Name, err)
		}
		if basic, err = basic.WithRepeat(frequency, item.Interval); err != nil {
			return nil, fmt.Errorf("schedule.%s: %w", item.Name, err)
		}
		out[item.Name] = basic
	}
	return out, nil
}

func buildTemplates(items []config.TemplateConfig) (map[string]*templatefmt.AlertTemplate, error) {
	out := make(map[string]*templatefmt.AlertTemplate, len(items))
	for _, item := range items {
		tmpl, err := templatefmt.NewAlertTemplate(item.Name, item.Brief, item.Detail)
		if err != nil {
			return nil, fmt.Errorf("template.%s: %w", item.Name, err)
		}
		out[item.Name] = tmpl
	}
	return out, nil
}

// buildReceiver creates the terminal receiver for one receiver table.
// Params: receiver config, compiled schedules/templates and deps.
// Returns: receiver, optional closer of its transport, construction error.
func buildReceiver(
	item config.ReceiverConfig,
	schedules map[string]schedule.Schedule,
	templates map[string]*templatefmt.AlertTemplate,
	deps BuildDeps,
) (*receiver.Receiver, io.Closer, error) {
	sender, err := notify.NewSender(item, deps.Notify)
	if err != nil {
		return nil, nil, err
	}
	tmpl := templatefmt.DefaultAlertTemplate()
	if item.Template != "" {
		tmpl = templates[item.Template]
	}
	dispatcher := notify.NewDispatcher(item.ID, sender, tmpl, item.Retry, deps.Logger)

	var notifier receiver.Notifier = dispatcher
	if deps.Metrics != nil {
		notifier = deps.Metrics.InstrumentNotifier(item.ID, sender.Name(), dispatcher)
	}

	policy, err := buildPolicy(item, schedules)
	if err != nil {
		_ = dispatcher.Close()
		return nil, nil, err
	}
	return receiver.New(item.ID, notifier, policy, deps.Clock, deps.Logger), dispatcher, nil
}

func buildPolicy(item config.ReceiverConfig, schedules map[string]schedule.Schedule) (receiver.Policy, error) {
	policy := receiver.Policy{
		RepeatInterval:    time.Duration(item.RepeatIntervalSec) * time.Second,
		ReceiveRecoveries: item.ReceiveRecoveries == nil || *item.ReceiveRecoveries,
	}
	for _, name := range item.Schedules {
		policy.Schedules = append(policy.Schedules, schedules[name])
	}
	for _, name := range item.ExclusionSchedules {
		policy.ExclusionSchedules = append(policy.ExclusionSchedules, schedules[name])
	}
	switch {
	case item.DelayUntilUpdated:
		policy.Delay = receiver.UntilFirstUpdate()
	case item.AlertDelaySec > 0:
		policy.Delay = receiver.FixedDelay(time.Duration(item.AlertDelaySec) * time.Second)
	}
	for i, filter := range item.Filters {
		criteria, err := buildCriteria(filter)
		if err != nil {
			return receiver.Policy{}, fmt.Errorf("receiver.%s.filter[%d]: %w", item.ID, i, err)
		}
		policy.Filters = append(policy.Filters, receiver.NewCriteriaFilter(criteria))
	}
	return policy, nil
}

// buildRouter compiles route nodes into a router or group.
// Params: route nodes, group flag, receivers by id and routed observer.
// Returns: router or construction error.
func buildRouter(routes []config.RouteConfig, group bool, receivers map[string]receiver.Receivable, observe routing.RoutedFunc) (*routing.Router, error) {
	router := routing.NewRouter()
	if group {
		router = routing.NewGroup()
	}
	router.OnRouted(observe)
	for i, item := range routes {
		route, err := buildRoute(item, receivers, observe)
		if err != nil {
			return nil, fmt.Errorf("route[%d]: %w", i, err)
		}
		action, err := routing.ParseAction(item.Action)
		if err != nil {
			return nil, fmt.Errorf("route[%d]: %w", i, err)
		}
		router.Add(route).As(action)
	}
	return router, nil
}

func buildRoute(item config.RouteConfig, receivers map[string]receiver.Receivable, observe routing.RoutedFunc) (*routing.Route, error) {
	var route *routing.Route
	switch {
	case item.Drop:
		route = routing.Drop()
	case item.Receiver != "":
		route = routing.To(receivers[item.Receiver])
	case len(item.Receivers) > 0:
		fanout := routing.NewFanout()
		for _, id := range item.Receivers {
			fanout.Add(receivers[id])
		}
		route = routing.To(fanout)
	default:
		nested, err := buildRouter(item.Routes, item.Group, receivers, observe)
		if err != nil {
			return nil, err
		}
		route = routing.To(nested)
	}

	criteria := routing.Everything()
	if item.When != nil {
		var err error
		if criteria, err = buildCriteria(*item.When); err != nil {
			return nil, fmt.Errorf("when: %w", err)
		}
	}
	return route.When(criteria).Named(routeName(item)), nil
}

func routeName(item config.RouteConfig) string {
	switch {
	case item.Name != "":
		return item.Name
	case item.Drop:
		return "drop"
	case item.Receiver != "":
		return item.Receiver
	case len(item.Receivers) > 0:
		return "fanout"
	case item.Group:
		return "group"
	default:
		return "router"
	}
}

// buildCriteria compiles one criteria node; all=true alone matches everything.
func buildCriteria(cfg config.CriteriaConfig) (*routing.Criteria, error) {
	if cfg.All && len(cfg.Match) == 0 && len(cfg.Group) == 0 {
		return routing.Everything(), nil
	}
	logic, err := routing.ParseLogic(cfg.Logic)
	if err != nil {
		return nil, err
	}
	criteria := routing.NewCriteria(logic)
	if cfg.All {
		criteria.AddGroup(routing.Everything())
	}
	for _, key := range cfg.MatchKeys() {
		criteria.Add(key, cfg.MatchValues(key)...)
	}
	for _, group := range cfg.Group {
		nested, err := buildCriteria(group)
		if err != nil {
			return nil, err
		}
		criteria.AddGroup(nested)
	}
	if err := criteria.Err(); err != nil {
		return nil, err
	}
	return criteria, nil
}

func routedObserver(deps BuildDeps) routing.RoutedFunc {
	logger := deps.Logger
	collector := deps.Metrics
	return func(ctx context.Context, route *routing.Route, a *alert.Alert, err error) {
		if collector != nil {
			collector.ObserveRouted(ctx, route, a, err)
		}
		if err != nil {
			logger.Warn("route dispatch failed", "route", route.Name(), "alert", a.Name(), "error", err.Error())
			return
		}
		logger.Debug("alert routed", "route", route.Name(), "alert", a.Name(), "state", string(a.State()))
	}
}
