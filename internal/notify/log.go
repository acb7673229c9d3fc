package notify

import (
	"context"
	"log/slog"

	"alertmanager/internal/config"
	"alertmanager/internal/logging"
)

// LogSender writes notifications into the service log.
type LogSender struct {
	level  slog.Level
	logger *slog.Logger
}

// NewLogSender creates log sender at configured level.
func NewLogSender(cfg config.LogNotifyConfig, logger *slog.Logger) (*LogSender, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{level: level, logger: logger}, nil
}

// Name returns transport name.
func (s *LogSender) Name() string {
	return config.TransportLog
}

// Send logs brief as message and detail as attribute.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	attrs := []any{"detail", msg.Detail}
	if msg.Alert != nil {
		attrs = append(attrs, "alert", msg.Alert.Name(), "state", string(msg.Alert.State()))
	}
	s.logger.Log(ctx, s.level, msg.Brief, attrs...)
	return nil
}
