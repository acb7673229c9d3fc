package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"alertmanager/internal/config"

	"github.com/nats-io/nats.go"
)

const natsNotifyStreamMaxAge = 24 * time.Hour

// NATSSender publishes webhook-shaped JSON payloads to a NATS subject.
// With Stream set, publishes go through JetStream and the stream is created on first use.
type NATSSender struct {
	cfg config.NATSNotifyConfig

	mu sync.Mutex
	nc *nats.Conn
	js nats.JetStreamContext
}

// NewNATSSender creates NATS sender; connection is opened lazily.
func NewNATSSender(cfg config.NATSNotifyConfig) *NATSSender {
	return &NATSSender{cfg: cfg}
}

// Name returns transport name.
func (s *NATSSender) Name() string {
	return config.TransportNATS
}

// Send publishes one payload.
// Params: context and rendered message.
// Returns: connect or publish error.
func (s *NATSSender) Send(ctx context.Context, msg Message) error {
	payload := WebhookPayload{Brief: msg.Brief, Detail: msg.Detail}
	if msg.Alert != nil {
		payload.Alert = msg.Alert.Record()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode nats payload: %w", err)
	}
	nc, js, err := s.connect()
	if err != nil {
		return err
	}

	out := nats.NewMsg(s.cfg.Subject)
	out.Data = body
	if msg.Alert != nil {
		out.Header.Set("Alert-Name", msg.Alert.Name())
		out.Header.Set("Alert-State", string(msg.Alert.State()))
	}
	if js != nil {
		if _, err := js.PublishMsg(out, nats.Context(ctx)); err != nil {
			return fmt.Errorf("jetstream publish %q: %w", s.cfg.Subject, err)
		}
		return nil
	}
	if err := nc.PublishMsg(out); err != nil {
		return fmt.Errorf("nats publish %q: %w", s.cfg.Subject, err)
	}
	return nc.FlushWithContext(ctx)
}

func (s *NATSSender) connect() (*nats.Conn, nats.JetStreamContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nc != nil && !s.nc.IsClosed() {
		return s.nc, s.js, nil
	}
	nc, err := nats.Connect(strings.Join(s.cfg.URL, ","))
	if err != nil {
		return nil, nil, fmt.Errorf("connect notify nats: %w", err)
	}
	var js nats.JetStreamContext
	if s.cfg.Stream != "" {
		js, err = nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("jetstream init for notify: %w", err)
		}
		if err := ensureStream(js, s.cfg.Stream, s.cfg.Subject, natsNotifyStreamMaxAge); err != nil {
			nc.Close()
			return nil, nil, err
		}
	}
	s.nc, s.js = nc, js
	return nc, js, nil
}

// Close closes NATS connection.
func (s *NATSSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nc != nil {
		s.nc.Close()
	}
	s.nc, s.js = nil, nil
	return nil
}

// ensureStream creates a limits stream bound to subject unless it already exists.
func ensureStream(js nats.JetStreamContext, streamName, subject string, maxAge time.Duration) error {
	_, err := js.StreamInfo(streamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(strings.ToLower(err.Error()), "stream not found") {
		return fmt.Errorf("stream info %q: %w", streamName, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    maxAge,
	})
	if err != nil {
		return fmt.Errorf("create stream %q: %w", streamName, err)
	}
	return nil
}
