package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"alertmanager/internal/alert"
	"alertmanager/internal/config"
	"alertmanager/internal/permanent"
)

// Message is one rendered notification.
// Params: source alert plus brief/detail text from receiver template.
// Returns: payload handed to a Sender.
type Message struct {
	Alert  *alert.Alert
	Brief  string
	Detail string
}

// Sender delivers one rendered notification over a transport.
// Params: context and rendered message.
// Returns: transport error; permanent.Mark marks non-retryable failures.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Template renders brief and detail descriptions of an alert.
type Template interface {
	Brief(a *alert.Alert) (string, error)
	Detail(a *alert.Alert) (string, error)
}

// Dispatcher renders alerts with a template and delivers them through one sender with retries.
// Params: owning receiver id, sender, template, retry policy and logger.
// Returns: receiver notifier.
type Dispatcher struct {
	receiverID string
	sender     Sender
	template   Template
	retry      config.NotifyRetry
	logger     *slog.Logger
}

// NewDispatcher builds notifier for one receiver.
// Params: receiver id, sender, template, retry policy and optional logger.
// Returns: dispatcher implementing receiver.Notifier.
func NewDispatcher(receiverID string, sender Sender, tmpl Template, retry config.NotifyRetry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		receiverID: receiverID,
		sender:     sender,
		template:   tmpl,
		retry:      retry,
		logger:     logger,
	}
}

// Sender returns wrapped transport.
func (d *Dispatcher) Sender() Sender {
	return d.sender
}

// Notify renders the alert and sends it with retry policy.
// Params: context and alert to deliver.
// Returns: render error or final send error after retries.
func (d *Dispatcher) Notify(ctx context.Context, a *alert.Alert) error {
	brief, err := d.template.Brief(a)
	if err != nil {
		return fmt.Errorf("receiver %s: %w", d.receiverID, err)
	}
	detail, err := d.template.Detail(a)
	if err != nil {
		return fmt.Errorf("receiver %s: %w", d.receiverID, err)
	}
	msg := Message{Alert: a, Brief: brief, Detail: detail}
	if err := d.sendWithRetry(ctx, msg); err != nil {
		return fmt.Errorf("receiver %s: %w", d.receiverID, err)
	}
	return nil
}

// Close releases sender resources when sender holds any.
func (d *Dispatcher) Close() error {
	if closer, ok := d.sender.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// sendWithRetry sends one message with the receiver retry policy.
// Params: context and rendered message.
// Returns: nil on success, permanent error immediately, last error after attempts are exhausted.
// Unset max attempts falls back to config.DefaultRetryMaxAttempts.
func (d *Dispatcher) sendWithRetry(ctx context.Context, msg Message) error {
	if !d.retry.Enabled {
		return d.sender.Send(ctx, msg)
	}

	maxAttempts := d.retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultRetryMaxAttempts
	}
	attempt := 0
	backoff := time.Duration(d.retry.InitialMS) * time.Millisecond
	maxBackoff := time.Duration(d.retry.MaxMS) * time.Millisecond
	timer := time.NewTimer(time.Hour)
	stopTimer(timer)
	defer stopTimer(timer)

	for {
		attempt++
		err := d.sender.Send(ctx, msg)
		if err == nil {
			if d.retry.LogEachAttempt && attempt > 1 {
				d.logger.Info("notify send recovered after retries", "receiver", d.receiverID, "transport", d.sender.Name(), "attempt", attempt)
			}
			return nil
		}
		if d.retry.LogEachAttempt {
			d.logger.Warn("notify send attempt failed", "receiver", d.receiverID, "transport", d.sender.Name(), "attempt", attempt, "error", err.Error())
		}
		if permanent.Is(err) {
			return err
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("%s failed after %d attempts: %w", d.sender.Name(), attempt, err)
		}

		timer.Reset(backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if strings.EqualFold(d.retry.Backoff, "exponential") {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}

// unexpectedHTTPStatusError formats non-2xx HTTP response with optional body.
// 4xx responses other than 408 and 429 are marked permanent.
// Params: sender prefix label and HTTP response pointer.
// Returns: status-only or status+body error.
func unexpectedHTTPStatusError(prefix string, response *http.Response) error {
	if response == nil {
		return fmt.Errorf("%s status=0", prefix)
	}
	var err error
	rawBody, readErr := io.ReadAll(io.LimitReader(response.Body, 4096))
	switch trimmedBody := strings.TrimSpace(string(rawBody)); {
	case readErr != nil:
		err = fmt.Errorf("%s status=%d (read body error: %w)", prefix, response.StatusCode, readErr)
	case trimmedBody == "":
		err = fmt.Errorf("%s status=%d", prefix, response.StatusCode)
	default:
		err = fmt.Errorf("%s status=%d body=%s", prefix, response.StatusCode, trimmedBody)
	}
	if isPermanentStatus(response.StatusCode) {
		return permanent.Mark(err)
	}
	return err
}

func isPermanentStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return false
	}
	return status >= 400 && status < 500
}

// closeBody drains and closes response body.
func closeBody(response *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 1<<16))
	_ = response.Body.Close()
}

// ErrNotConfigured is returned by senders missing required settings.
var ErrNotConfigured = errors.New("transport is not configured")
