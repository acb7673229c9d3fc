package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"alertmanager/internal/config"
)

const (
	teamsLegacyHostSuffix = "webhook.office.com"
	adaptiveCardType      = "application/vnd.microsoft.card.adaptive"
	adaptiveCardSchema    = "http://adaptivecards.io/schemas/adaptive-card.json"
)

// TeamsSender posts alerts to a Microsoft Teams webhook.
// Legacy office.com connectors get a MessageCard; workflow webhooks get an AdaptiveCard.
type TeamsSender struct {
	cfg    config.TeamsConfig
	client *http.Client
}

// NewTeamsSender creates Teams sender.
func NewTeamsSender(cfg config.TeamsConfig, client *http.Client) *TeamsSender {
	return &TeamsSender{cfg: cfg, client: client}
}

// Name returns transport name.
func (s *TeamsSender) Name() string {
	return config.TransportTeams
}

// Send posts card payload.
// Params: context and rendered message.
// Returns: HTTP error.
func (s *TeamsSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(s.payload(msg))
	if err != nil {
		return fmt.Errorf("encode teams payload: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build teams request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("teams send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return unexpectedHTTPStatusError("teams", response)
	}
	return nil
}

func (s *TeamsSender) payload(msg Message) map[string]any {
	if s.legacyWebhook() {
		return messageCard(msg)
	}
	return s.adaptiveCard(msg)
}

func (s *TeamsSender) legacyWebhook() bool {
	parsed, err := url.Parse(s.cfg.WebhookURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(parsed.Hostname()), teamsLegacyHostSuffix)
}

func messageCard(msg Message) map[string]any {
	return map[string]any{
		"@type":      "Message Card",
		"@context":   "http://schema.org/extensions",
		"summary":    msg.Brief,
		"themeColor": "fbac18",
		"title":      "",
		"text":       msg.Detail,
	}
}

func (s *TeamsSender) adaptiveCard(msg Message) map[string]any {
	var body []any

	if s.cfg.ImageURL != "" || s.cfg.Title != "" {
		var columns []any
		if s.cfg.ImageURL != "" {
			columns = append(columns, map[string]any{
				"type":  "Column",
				"width": "auto",
				"items": []any{map[string]any{
					"type":    "Image",
					"url":     s.cfg.ImageURL,
					"altText": s.cfg.Title,
					"size":    "small",
					"style":   "person",
				}},
			})
		}
		if s.cfg.Title != "" {
			columns = append(columns, map[string]any{
				"type":                     "Column",
				"width":                    "stretch",
				"verticalContentAlignment": "center",
				"items": []any{map[string]any{
					"type":   "TextBlock",
					"text":   s.cfg.Title,
					"weight": "Bolder",
					"size":   "Medium",
				}},
			})
		}
		body = append(body, map[string]any{"type": "ColumnSet", "columns": columns})
	}

	created := ""
	if msg.Alert != nil {
		created = msg.Alert.CreatedAt().Format(time.RFC3339)
	}
	body = append(body, map[string]any{
		"type": "ColumnSet",
		"columns": []any{map[string]any{
			"type":  "Column",
			"width": "stretch",
			"items": []any{
				map[string]any{
					"type":   "TextBlock",
					"text":   msg.Detail,
					"weight": "Default",
					"wrap":   true,
				},
				map[string]any{
					"type":     "TextBlock",
					"spacing":  "None",
					"text":     "Created " + created,
					"isSubtle": true,
					"wrap":     true,
				},
			},
		}},
	})

	return map[string]any{
		"type":    "message",
		"summary": msg.Brief,
		"attachments": []any{map[string]any{
			"contentType": adaptiveCardType,
			"contentUrl":  nil,
			"content": map[string]any{
				"$schema": adaptiveCardSchema,
				"type":    "AdaptiveCard",
				"version": "1.4",
				"body": []any{map[string]any{
					"type":  "Container",
					"items": body,
				}},
			},
		}},
	}
}
