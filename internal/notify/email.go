package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"alertmanager/internal/alert"
	"alertmanager/internal/config"
)

// EmailSender hands each message to a child process that talks SMTP.
// The child reads server, port, from, to, subject, message, username and password from its environment.
type EmailSender struct {
	cfg     config.EmailConfig
	command []string
	logger  *slog.Logger
	run     func(ctx context.Context, command []string, env []string) ([]byte, error)
}

// NewEmailSender creates email sender.
// Params: email config, path of this binary used when no command override is set, and logger.
// Returns: sender running `<executable> send-email` per message.
func NewEmailSender(cfg config.EmailConfig, executable string, logger *slog.Logger) *EmailSender {
	command := cfg.Command
	if len(command) == 0 {
		if executable == "" {
			executable, _ = os.Executable()
		}
		command = []string{executable, "send-email"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailSender{cfg: cfg, command: command, logger: logger, run: runCommand}
}

// Name returns transport name.
func (s *EmailSender) Name() string {
	return config.TransportEmail
}

// Send runs the mail child process and waits for it.
// Params: context and rendered message.
// Returns: spawn error or non-zero exit status with child output.
func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if s.cfg.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSec)*time.Second)
		defer cancel()
	}
	output, err := s.run(ctx, s.command, s.environment(msg))
	if err != nil {
		trimmed := strings.TrimSpace(string(output))
		if trimmed != "" {
			return fmt.Errorf("email child process: %w: %s", err, trimmed)
		}
		return fmt.Errorf("email child process: %w", err)
	}
	s.logger.Debug("email sent", "to", strings.Join(s.cfg.To, ","))
	return nil
}

func (s *EmailSender) environment(msg Message) []string {
	values := map[string]string{
		"server":   s.cfg.Server,
		"port":     strconv.Itoa(s.cfg.Port),
		"from":     s.cfg.From,
		"to":       strings.Join(s.cfg.To, ","),
		"subject":  emailSubject(msg),
		"message":  emailBody(msg),
		"username": s.cfg.Username,
		"password": s.cfg.Password,
	}
	env := os.Environ()
	for _, key := range []string{"server", "port", "from", "to", "subject", "message", "username", "password"} {
		env = append(env, key+"="+values[key])
	}
	return env
}

// emailSubject is "<name> RECOVERED" for recoveries and "<name> DOWN" otherwise.
func emailSubject(msg Message) string {
	if msg.Alert == nil {
		return msg.Brief
	}
	if msg.Alert.State() == alert.StateRecovered {
		return msg.Alert.Name() + " RECOVERED"
	}
	return msg.Alert.Name() + " DOWN"
}

// emailBody lists attributes one "key: value" per line, falling back to rendered detail.
func emailBody(msg Message) string {
	if msg.Alert == nil || msg.Alert.Attributes().Len() == 0 {
		return msg.Detail
	}
	attrs := msg.Alert.Attributes()
	var body strings.Builder
	for _, key := range attrs.Keys() {
		value, _ := attrs.Get(key)
		fmt.Fprintf(&body, "%s: %v\n", key, value)
	}
	return body.String()
}

func runCommand(ctx context.Context, command []string, env []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Env = env
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	return output.Bytes(), err
}
