package notify

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"alertmanager/internal/config"
)

// Options carries process-level dependencies shared by senders.
// Params: optional HTTP client override, executable path for email child process, logger.
type Options struct {
	HTTPClient *http.Client
	Executable string
	Logger     *slog.Logger
}

func (o Options) httpClient(timeoutSec int) *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: time.Duration(timeoutSec) * time.Second}
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// NewSender builds the transport configured for one receiver.
// Params: validated receiver config and shared options.
// Returns: sender or construction error.
func NewSender(cfg config.ReceiverConfig, opts Options) (Sender, error) {
	switch cfg.Transport() {
	case config.TransportSlack:
		return NewSlackSender(*cfg.Slack, opts.httpClient(cfg.Slack.TimeoutSec)), nil
	case config.TransportTeams:
		return NewTeamsSender(*cfg.Teams, opts.httpClient(cfg.Teams.TimeoutSec)), nil
	case config.TransportEmail:
		return NewEmailSender(*cfg.Email, opts.Executable, opts.logger().With("receiver", cfg.ID)), nil
	case config.TransportTelegram:
		return NewTelegramSender(*cfg.Telegram)
	case config.TransportWebhook:
		return NewWebhookSender(*cfg.Webhook, opts.httpClient(cfg.Webhook.TimeoutSec)), nil
	case config.TransportMattermost:
		return NewMattermostSender(*cfg.Mattermost, opts.httpClient(cfg.Mattermost.TimeoutSec)), nil
	case config.TransportShoutrrr:
		return NewShoutrrrSender(*cfg.Shoutrrr)
	case config.TransportMQTT:
		return NewMQTTSender(*cfg.MQTT), nil
	case config.TransportNATS:
		return NewNATSSender(*cfg.NATS), nil
	case config.TransportLog:
		return NewLogSender(*cfg.Log, opts.logger().With("receiver", cfg.ID))
	default:
		return nil, fmt.Errorf("receiver %s: %w", cfg.ID, ErrNotConfigured)
	}
}
