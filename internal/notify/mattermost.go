package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"alertmanager/internal/config"
)

// MattermostSender posts detail text to a channel through the posts API.
// Params: API base URL, bot token, and channel id from config.
type MattermostSender struct {
	cfg    config.MattermostConfig
	client *http.Client
}

// NewMattermostSender creates Mattermost sender.
func NewMattermostSender(cfg config.MattermostConfig, client *http.Client) *MattermostSender {
	return &MattermostSender{cfg: cfg, client: client}
}

// Name returns transport name.
func (s *MattermostSender) Name() string {
	return config.TransportMattermost
}

// Send posts one message.
// Params: context and rendered message.
// Returns: transport, HTTP or decode error.
func (s *MattermostSender) Send(ctx context.Context, msg Message) error {
	payload := struct {
		ChannelID string `json:"channel_id"`
		Message   string `json:"message"`
	}{
		ChannelID: strings.TrimSpace(s.cfg.ChannelID),
		Message:   msg.Detail,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode mattermost payload: %w", err)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(s.cfg.BaseURL), "/") + "/api/v4/posts"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mattermost request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+strings.TrimSpace(s.cfg.BotToken))

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("mattermost send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return unexpectedHTTPStatusError("mattermost", response)
	}
	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode mattermost response: %w", err)
	}
	if strings.TrimSpace(decoded.ID) == "" {
		return errors.New("mattermost response missing id")
	}
	return nil
}
