package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"alertmanager/internal/alert"
	"alertmanager/internal/processor"
	"alertmanager/internal/receiver"
	"alertmanager/internal/routing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountsProcessorEvents(t *testing.T) {
	t.Parallel()

	live := 3
	c, err := NewCollector("", func() int { return live })
	require.NoError(t, err)

	c.Event(processor.Event{Name: processor.EventAlertNew})
	c.Event(processor.Event{Name: processor.EventAlertNew})
	c.Event(processor.Event{Name: processor.EventQuiesceStart, Duration: time.Minute})
	c.Event(processor.Event{Name: processor.EventProcessPassed, Duration: 10 * time.Millisecond})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues(processor.EventAlertNew)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.quiesced))
	assert.Equal(t, 1, testutil.CollectAndCount(c.passDuration))

	c.Event(processor.Event{Name: processor.EventQuiesceEnd})
	assert.Equal(t, 0.0, testutil.ToFloat64(c.quiesced))

	recorder := httptest.NewRecorder()
	c.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(recorder.Body)
	assert.Contains(t, string(body), "alertmanager_alerts_live 3")
	assert.Contains(t, string(body), `alertmanager_processor_events_total{event="alert.new"} 2`)
}

func TestInstrumentNotifier(t *testing.T) {
	t.Parallel()

	c, err := NewCollector("am", nil)
	require.NoError(t, err)

	fail := true
	wrapped := c.InstrumentNotifier("ops", "slack", receiver.NotifierFunc(func(context.Context, *alert.Alert) error {
		if fail {
			return errors.New("down")
		}
		return nil
	}))
	a := alert.New("disk", alert.Attributes{}, time.Now())
	require.Error(t, wrapped.Notify(context.Background(), a))
	fail = false
	require.NoError(t, wrapped.Notify(context.Background(), a))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.notifications.WithLabelValues("ops", "slack", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.notifications.WithLabelValues("ops", "slack", "success")))
}

func TestObserveRouted(t *testing.T) {
	t.Parallel()

	c, err := NewCollector("am", nil)
	require.NoError(t, err)

	c.ObserveRouted(context.Background(), routing.Drop().Named("blackhole"), nil, nil)
	c.ObserveRouted(context.Background(), routing.Drop(), nil, errors.New("x"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.routed.WithLabelValues("blackhole", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.routed.WithLabelValues("unnamed", "error")))
}

func TestSanitizeLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a_b", sanitizeLabel("a\nb"))
	assert.Len(t, []rune(sanitizeLabel(strings.Repeat("я", 200))), maxLabelLength)
}
