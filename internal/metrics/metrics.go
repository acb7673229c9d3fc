package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"alertmanager/internal/alert"
	"alertmanager/internal/processor"
	"alertmanager/internal/receiver"
	"alertmanager/internal/routing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DefaultNamespace prefixes every metric name.
	DefaultNamespace = "alertmanager"

	maxLabelLength = 128
)

// Collector exposes processor, routing and notification metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	events         *prometheus.CounterVec
	passDuration   prometheus.Histogram
	quiesced       prometheus.Gauge
	routed         *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	notifyDuration *prometheus.HistogramVec
}

// NewCollector registers metrics.
// Params: namespace (DefaultNamespace when empty) and live alert count source (may be nil).
// Returns: collector or registration error.
func NewCollector(namespace string, liveAlerts func() int) (*Collector, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processor_events_total",
			Help:      "Processor events by name.",
		}, []string{"event"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processor_pass_duration_seconds",
			Help:      "Duration of one evaluate-route-reconcile pass.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}),
		quiesced: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processor_quiesced",
			Help:      "1 while routing is quiesced.",
		}),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routed_total",
			Help:      "Routes that produced a result, by route name and status.",
		}, []string{"route", "status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts by receiver, transport and status.",
		}, []string{"receiver", "transport", "status"}),
		notifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_duration_seconds",
			Help:      "Notification latency including retries.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"receiver", "transport"}),
	}

	collectors := []prometheus.Collector{c.events, c.passDuration, c.quiesced, c.routed, c.notifications, c.notifyDuration}
	if liveAlerts != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts_live",
			Help:      "Alerts currently held by the processor.",
		}, func() float64 { return float64(liveAlerts()) }))
	}
	for _, collector := range collectors {
		if err := c.registry.Register(collector); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return c, nil
}

// Registry returns private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Event implements processor.Observer.
func (c *Collector) Event(ev processor.Event) {
	switch ev.Name {
	case processor.EventProcessPassed:
		c.passDuration.Observe(ev.Duration.Seconds())
		return
	case processor.EventQuiesceStart:
		c.quiesced.Set(1)
	case processor.EventQuiesceEnd:
		c.quiesced.Set(0)
	}
	c.events.WithLabelValues(ev.Name).Inc()
}

// ObserveRouted counts one routed outcome; shaped as routing.RoutedFunc.
func (c *Collector) ObserveRouted(_ context.Context, route *routing.Route, _ *alert.Alert, err error) {
	name := "unnamed"
	if route != nil && route.Name() != "" {
		name = route.Name()
	}
	c.routed.WithLabelValues(sanitizeLabel(name), status(err)).Inc()
}

// InstrumentNotifier wraps notifier with attempt counters and latency histogram.
// Params: receiver id, transport name and wrapped notifier.
// Returns: instrumented notifier.
func (c *Collector) InstrumentNotifier(receiverID, transport string, next receiver.Notifier) receiver.Notifier {
	receiverID = sanitizeLabel(receiverID)
	return receiver.NotifierFunc(func(ctx context.Context, a *alert.Alert) error {
		started := time.Now()
		err := next.Notify(ctx, a)
		c.notifyDuration.WithLabelValues(receiverID, transport).Observe(time.Since(started).Seconds())
		c.notifications.WithLabelValues(receiverID, transport, status(err)).Inc()
		return err
	})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// sanitizeLabel replaces control characters and truncates to maxLabelLength runes.
func sanitizeLabel(value string) string {
	clean := strings.Map(func(r rune) rune {
		if r < 0x20 {
			return '_'
		}
		return r
	}, value)
	runes := []rune(clean)
	if len(runes) > maxLabelLength {
		return string(runes[:maxLabelLength])
	}
	return clean
}
