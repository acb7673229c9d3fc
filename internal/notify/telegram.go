package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"alertmanager/internal/config"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// TelegramSender sends HTML-escaped detail text to one Telegram chat.
type TelegramSender struct {
	client *tgbot.Bot
	chatID any
}

// NewTelegramSender creates Telegram sender.
// Params: bot token, chat id and optional API base.
// Returns: sender or bot init error.
func NewTelegramSender(cfg config.TelegramConfig) (*TelegramSender, error) {
	if strings.TrimSpace(cfg.BotToken) == "" || strings.TrimSpace(cfg.ChatID) == "" {
		return nil, fmt.Errorf("telegram: %w", ErrNotConfigured)
	}
	options := []tgbot.Option{tgbot.WithSkipGetMe()}
	if base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/"); base != "" {
		options = append(options, tgbot.WithServerURL(base))
	}
	client, err := tgbot.New(cfg.BotToken, options...)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramSender{client: client, chatID: normalizeChatID(cfg.ChatID)}, nil
}

// Name returns transport name.
func (s *TelegramSender) Name() string {
	return config.TransportTelegram
}

// Send posts one message to the chat.
func (s *TelegramSender) Send(ctx context.Context, msg Message) error {
	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      html.EscapeString(msg.Detail),
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return errors.New("telegram send returned empty message id")
	}
	return nil
}

// normalizeChatID keeps numeric ids numeric and @channel names as strings.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}
