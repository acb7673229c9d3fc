package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"alertmanager/internal/config"
	"alertmanager/internal/permanent"

	"github.com/patrickmn/go-cache"
)

const slackChannelTTL = 12 * time.Hour

// SlackSender sends the detail text as a direct message to one Slack member.
// Params: API token, member id and API base; opened DM channel ids are cached.
type SlackSender struct {
	cfg      config.SlackConfig
	client   *http.Client
	channels *cache.Cache
}

type slackResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
}

// NewSlackSender creates Slack sender.
func NewSlackSender(cfg config.SlackConfig, client *http.Client) *SlackSender {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://slack.com/api"
	}
	return &SlackSender{
		cfg:      cfg,
		client:   client,
		channels: cache.New(slackChannelTTL, time.Hour),
	}
}

// Name returns transport name.
func (s *SlackSender) Name() string {
	return config.TransportSlack
}

// Send opens (or reuses) the member DM channel and posts detail text as the bot user.
// Params: context and rendered message.
// Returns: HTTP or Slack API error.
func (s *SlackSender) Send(ctx context.Context, msg Message) error {
	if s.cfg.APIToken == "" || s.cfg.MemberID == "" {
		return permanent.Errorf("slack: %w", ErrNotConfigured)
	}
	channelID, err := s.channelID(ctx)
	if err != nil {
		return err
	}
	result, err := s.call(ctx, "chat.postMessage", url.Values{
		"token":   {s.cfg.APIToken},
		"text":    {msg.Detail},
		"channel": {channelID},
		"as_user": {"true"},
	})
	if err != nil {
		return err
	}
	if !result.OK {
		if result.Error == "channel_not_found" {
			s.channels.Delete(s.cfg.MemberID)
		}
		return slackAPIError("chat.postMessage", result.Error)
	}
	return nil
}

func (s *SlackSender) channelID(ctx context.Context) (string, error) {
	if cached, ok := s.channels.Get(s.cfg.MemberID); ok {
		return cached.(string), nil
	}
	result, err := s.call(ctx, "conversations.open", url.Values{
		"token": {s.cfg.APIToken},
		"users": {s.cfg.MemberID},
	})
	if err != nil {
		return "", err
	}
	if !result.OK || result.Channel.ID == "" {
		return "", slackAPIError("conversations.open", result.Error)
	}
	s.channels.Set(s.cfg.MemberID, result.Channel.ID, cache.DefaultExpiration)
	return result.Channel.ID, nil
}

func (s *SlackSender) call(ctx context.Context, method string, form url.Values) (slackResponse, error) {
	endpoint := strings.TrimRight(s.cfg.APIBase, "/") + "/" + method
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return slackResponse{}, fmt.Errorf("build slack %s request: %w", method, err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := s.client.Do(request)
	if err != nil {
		return slackResponse{}, fmt.Errorf("slack %s: %w", method, err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		defer response.Body.Close()
		return slackResponse{}, unexpectedHTTPStatusError("slack "+method, response)
	}
	defer closeBody(response)

	var decoded slackResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return slackResponse{}, fmt.Errorf("decode slack %s response: %w", method, err)
	}
	return decoded, nil
}

// slackAPIError reports ok=false responses; everything but rate limiting is permanent.
func slackAPIError(method, code string) error {
	if code == "" {
		code = "unknown_error"
	}
	err := fmt.Errorf("failed response from slack %s: %s", method, code)
	if code == "ratelimited" {
		return err
	}
	return permanent.Mark(err)
}
