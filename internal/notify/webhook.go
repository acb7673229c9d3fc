package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"alertmanager/internal/alert"
	"alertmanager/internal/config"
)

// WebhookPayload is JSON body posted by WebhookSender.
type WebhookPayload struct {
	Alert  alert.Record `json:"alert"`
	Brief  string       `json:"brief"`
	Detail string       `json:"detail"`
}

// WebhookSender posts alert record plus rendered text to an HTTP endpoint.
// Params: endpoint URL, method, timeout and static headers.
type WebhookSender struct {
	cfg    config.WebhookConfig
	client *http.Client
}

// NewWebhookSender creates generic HTTP sender.
func NewWebhookSender(cfg config.WebhookConfig, client *http.Client) *WebhookSender {
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	return &WebhookSender{cfg: cfg, client: client}
}

// Name returns transport name.
func (s *WebhookSender) Name() string {
	return config.TransportWebhook
}

// Send encodes payload and posts it.
// Params: context and rendered message.
// Returns: encode, transport or HTTP status error.
func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	payload := WebhookPayload{Brief: msg.Brief, Detail: msg.Detail}
	if msg.Alert != nil {
		payload.Alert = msg.Alert.Record()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, s.cfg.Method, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Headers {
		request.Header.Set(key, value)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return unexpectedHTTPStatusError("webhook", response)
	}
	return nil
}
