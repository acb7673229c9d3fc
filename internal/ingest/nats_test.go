package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"alertmanager/internal/alert"
	"alertmanager/internal/clock"
	"alertmanager/internal/config"
	"alertmanager/internal/logging"
	"alertmanager/test/testutil"

	"github.com/nats-io/nats.go"
)

type sinkRecorder struct {
	mu     sync.Mutex
	alerts []*alert.Alert
	err    error
}

func (s *sinkRecorder) Add(_ context.Context, a *alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *sinkRecorder) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a.Name())
	}
	return out
}

func newHandlerOnly(sink AlertSink) *NATSSubscriber {
	return &NATSSubscriber{
		sink: sink,
		opts: Options{
			DefaultExpiry: time.Minute,
			Clock:         clock.NewManual(time.Unix(1000, 0)),
			Logger:        logging.Discard(),
		},
	}
}

func TestHandleDecodesBatch(t *testing.T) {
	t.Parallel()

	sink := &sinkRecorder{}
	subscriber := newHandlerOnly(sink)
	got := subscriber.handle(context.Background(), "alerts", []byte(`[{"name":"a","attributes":{}},{"name":"b","attributes":{"x":1}}]`))
	if got != dispositionAck {
		t.Fatalf("disposition = %v, want ack", got)
	}
	names := sink.names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("names = %v", names)
	}
	if sink.alerts[0].ExpiryDuration() != time.Minute {
		t.Fatalf("expiry = %s, want default", sink.alerts[0].ExpiryDuration())
	}
}

func TestHandleAcksUndecodablePayload(t *testing.T) {
	t.Parallel()

	sink := &sinkRecorder{}
	subscriber := newHandlerOnly(sink)
	if got := subscriber.handle(context.Background(), "alerts", []byte(`{"name":`)); got != dispositionAck {
		t.Fatalf("disposition = %v, want ack", got)
	}
	if got := subscriber.handle(context.Background(), "alerts", []byte(`{"attributes":{}}`)); got != dispositionAck {
		t.Fatalf("disposition = %v, want ack", got)
	}
	if len(sink.names()) != 0 {
		t.Fatalf("sink received %v", sink.names())
	}
}

func TestHandleNaksOnSinkFailure(t *testing.T) {
	t.Parallel()

	subscriber := newHandlerOnly(&sinkRecorder{err: errors.New("closed")})
	if got := subscriber.handle(context.Background(), "alerts", []byte(`{"name":"a","attributes":{}}`)); got != dispositionNak {
		t.Fatalf("disposition = %v, want nak", got)
	}
}

func TestNATSSubscriberDeliversToSink(t *testing.T) {
	url, stop := testutil.StartLocalNATSServer(t)
	defer stop()

	sink := &sinkRecorder{}
	cfg := config.NATSIngestConfig{
		Enabled:       true,
		URL:           []string{url},
		Subject:       "alerts.in",
		Stream:        "ALERTS_IN",
		ConsumerName:  "ingest-test",
		DeliverGroup:  "ingest-workers",
		Workers:       2,
		AckWaitSec:    5,
		NackDelayMS:   100,
		MaxDeliver:    -1,
		MaxAckPending: 16,
	}
	subscriber, err := NewNATSSubscriber(cfg, sink, Options{DefaultExpiry: time.Minute, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("new subscriber: %v", err)
	}
	defer subscriber.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()
	js, err := nc.JetStream()
	if err != nil {
		t.Fatalf("jetstream: %v", err)
	}
	if _, err := js.Publish(cfg.Subject, []byte(`{"name":"disk","attributes":{"host":"db1"}}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if names := sink.names(); len(names) == 1 && names[0] == "disk" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("sink did not receive alert, got %v", sink.names())
}
