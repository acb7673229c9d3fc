package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"alertmanager/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const defaultMQTTTimeout = 10 * time.Second

// mqttClient is the subset of paho client used by MQTTSender.
type mqttClient interface {
	IsConnected() bool
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSender publishes webhook-shaped JSON payloads to an MQTT topic.
// Connection is opened on first send and kept with auto-reconnect.
type MQTTSender struct {
	cfg     config.MQTTConfig
	timeout time.Duration

	mu     sync.Mutex
	client mqttClient
	dial   func() mqttClient
}

// NewMQTTSender creates MQTT sender.
func NewMQTTSender(cfg config.MQTTConfig) *MQTTSender {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultMQTTTimeout
	}
	sender := &MQTTSender{cfg: cfg, timeout: timeout}
	sender.dial = sender.newClient
	return sender
}

func (s *MQTTSender) newClient() mqttClient {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetConnectTimeout(s.timeout).
		SetAutoReconnect(true)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	return mqtt.NewClient(opts)
}

// Name returns transport name.
func (s *MQTTSender) Name() string {
	return config.TransportMQTT
}

// Send publishes one JSON payload.
// Params: context and rendered message.
// Returns: connect, publish or timeout error.
func (s *MQTTSender) Send(ctx context.Context, msg Message) error {
	payload := WebhookPayload{Brief: msg.Brief, Detail: msg.Detail}
	if msg.Alert != nil {
		payload.Alert = msg.Alert.Record()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode mqtt payload: %w", err)
	}
	client, err := s.connected()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	token := client.Publish(s.cfg.Topic, byte(s.cfg.QoS), s.cfg.Retain, body)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("mqtt publish to %q timed out", s.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %q: %w", s.cfg.Topic, err)
	}
	return nil
}

func (s *MQTTSender) connected() (mqttClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && s.client.IsConnected() {
		return s.client, nil
	}
	if s.client == nil {
		s.client = s.dial()
	}
	token := s.client.Connect()
	if !token.WaitTimeout(s.timeout) {
		return nil, errors.New("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", s.cfg.Broker, err)
	}
	return s.client, nil
}

// Close disconnects from broker.
func (s *MQTTSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	s.client = nil
	return nil
}
