package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"alertmanager/internal/alert"
	"alertmanager/internal/clock"
	"alertmanager/internal/config"

	"github.com/nats-io/nats.go"
)

const ingestStreamMaxAge = 24 * time.Hour

// AlertSink accepts decoded alerts.
type AlertSink interface {
	Add(ctx context.Context, a *alert.Alert) error
}

// Options carries decode defaults and logging for NATS ingestion.
// Params: default alert expiry, clock for createdAt, logger.
type Options struct {
	DefaultExpiry time.Duration
	Clock         clock.Clock
	Logger        *slog.Logger
}

type disposition int

const (
	dispositionAck disposition = iota
	dispositionNak
)

// NATSSubscriber consumes alert payloads via JetStream queue consumers and forwards them to sink.
// Params: NATS connection, worker subscriptions and alert sink.
// Returns: NATS ingest lifecycle handle.
type NATSSubscriber struct {
	nc        *nats.Conn
	subs      []*nats.Subscription
	sink      AlertSink
	opts      Options
	nackDelay time.Duration
}

// NewNATSSubscriber creates JetStream queue consumers for alert ingestion.
// Params: ingest NATS config, sink and options.
// Returns: started subscriber or initialization error.
func NewNATSSubscriber(cfg config.NATSIngestConfig, sink AlertSink, opts Options) (*NATSSubscriber, error) {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	nc, err := nats.Connect(strings.Join(cfg.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats ingest: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init for ingest: %w", err)
	}
	if err := ensureStream(js, cfg.Stream, cfg.Subject); err != nil {
		nc.Close()
		return nil, err
	}

	subscriber := &NATSSubscriber{
		nc:        nc,
		sink:      sink,
		opts:      opts,
		nackDelay: time.Duration(cfg.NackDelayMS) * time.Millisecond,
	}
	subOpts := []nats.SubOpt{
		nats.BindStream(cfg.Stream),
		nats.Durable(cfg.ConsumerName),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(time.Duration(cfg.AckWaitSec) * time.Second),
		nats.MaxDeliver(cfg.MaxDeliver),
		nats.MaxAckPending(cfg.MaxAckPending),
		nats.DeliverAll(),
	}
	workers := max(cfg.Workers, 1)
	for range workers {
		sub, err := js.QueueSubscribe(cfg.Subject, cfg.DeliverGroup, subscriber.onMessage, subOpts...)
		if err != nil {
			_ = subscriber.Close()
			return nil, fmt.Errorf("queue subscribe %q/%q: %w", cfg.Subject, cfg.DeliverGroup, err)
		}
		subscriber.subs = append(subscriber.subs, sub)
	}
	opts.Logger.Info("nats ingest started", "subject", cfg.Subject, "stream", cfg.Stream, "workers", workers)
	return subscriber, nil
}

func (s *NATSSubscriber) onMessage(message *nats.Msg) {
	switch s.handle(context.Background(), message.Subject, message.Data) {
	case dispositionNak:
		s.nackMessage(message)
	default:
		s.ackMessage(message)
	}
}

// handle decodes one payload and hands every alert to the sink.
// Params: context, subject for logs and raw payload.
// Returns: ack for processed or undecodable payloads, nak when the sink failed.
func (s *NATSSubscriber) handle(ctx context.Context, subject string, data []byte) disposition {
	alerts, err := alert.DecodeBatch(data, alert.DecodeDefaults{Expiry: s.opts.DefaultExpiry, Now: s.opts.Clock.Now()})
	if err != nil {
		s.opts.Logger.Warn("nats ingest decode failed", "subject", subject, "error", err.Error())
		return dispositionAck
	}
	var errs []error
	for _, a := range alerts {
		if err := s.sink.Add(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.opts.Logger.Error("nats ingest add failed", "subject", subject, "error", err.Error())
		return dispositionNak
	}
	return dispositionAck
}

func (s *NATSSubscriber) ackMessage(message *nats.Msg) {
	if err := message.Ack(); err != nil {
		s.opts.Logger.Warn("nats ingest ack failed", "subject", message.Subject, "error", err.Error())
	}
}

func (s *NATSSubscriber) nackMessage(message *nats.Msg) {
	var err error
	if s.nackDelay > 0 {
		err = message.NakWithDelay(s.nackDelay)
	} else {
		err = message.Nak()
	}
	if err != nil {
		s.opts.Logger.Warn("nats ingest nack failed", "subject", message.Subject, "error", err.Error())
	}
}

// Close drains subscriptions and closes connection.
// Returns: first drain error.
func (s *NATSSubscriber) Close() error {
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	s.nc.Close()
	return errors.Join(errs...)
}

func ensureStream(js nats.JetStreamContext, streamName, subject string) error {
	_, err := js.StreamInfo(streamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %q: %w", streamName, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    ingestStreamMaxAge,
	})
	if err != nil {
		return fmt.Errorf("create stream %q: %w", streamName, err)
	}
	return nil
}
