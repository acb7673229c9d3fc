package notify

import (
	"context"
	"errors"
	"fmt"

	"alertmanager/internal/config"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// shoutrrrRouter is the subset of shoutrrr router used for delivery.
type shoutrrrRouter interface {
	Send(message string, params *types.Params) []error
}

// ShoutrrrSender delivers detail text to any shoutrrr service URL (ntfy, gotify, discord, ...).
type ShoutrrrSender struct {
	router shoutrrrRouter
}

// NewShoutrrrSender parses service URLs into a router.
// Params: shoutrrr config with one or more service URLs.
// Returns: sender or URL parse error.
func NewShoutrrrSender(cfg config.ShoutrrrConfig) (*ShoutrrrSender, error) {
	if len(cfg.URL) == 0 {
		return nil, fmt.Errorf("shoutrrr: %w", ErrNotConfigured)
	}
	router, err := shoutrrr.CreateSender(cfg.URL...)
	if err != nil {
		return nil, fmt.Errorf("init shoutrrr router: %w", err)
	}
	return &ShoutrrrSender{router: router}, nil
}

// Name returns transport name.
func (s *ShoutrrrSender) Name() string {
	return config.TransportShoutrrr
}

// Send pushes detail to every URL with brief as title.
// Returns: joined per-service errors.
func (s *ShoutrrrSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var failed []error
	for _, err := range s.router.Send(msg.Detail, &types.Params{"title": msg.Brief}) {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("shoutrrr send: %w", errors.Join(failed...))
	}
	return nil
}
