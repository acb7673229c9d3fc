package notify

import (
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"regexp"
	"strings"
)

// ErrMissingEmailEnv is returned when the send-email child lacks a required variable.
var ErrMissingEmailEnv = errors.New("missing required email environment")

var recipientSeparator = regexp.MustCompile(`[,;]\s*`)

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SendMailFromEnv performs the send-email child process job.
// Params: environment lookup and SMTP send function (smtp.SendMail when nil).
// Returns: ErrMissingEmailEnv or SMTP error.
func SendMailFromEnv(lookup func(string) (string, bool), send SendMailFunc) error {
	if send == nil {
		send = smtp.SendMail
	}
	values := make(map[string]string, 8)
	var missing []string
	for _, key := range []string{"server", "port", "from", "to", "message"} {
		value, ok := lookup(key)
		if !ok || strings.TrimSpace(value) == "" {
			missing = append(missing, key)
			continue
		}
		values[key] = value
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingEmailEnv, strings.Join(missing, ", "))
	}
	subject, _ := lookup("subject")
	username, _ := lookup("username")
	password, _ := lookup("password")

	var recipients []string
	for _, item := range recipientSeparator.Split(values["to"], -1) {
		if item = strings.TrimSpace(item); item != "" {
			recipients = append(recipients, item)
		}
	}

	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, values["server"])
	}
	addr := net.JoinHostPort(values["server"], values["port"])
	if err := send(addr, auth, values["from"], recipients, buildMailMessage(values["from"], recipients, subject, values["message"])); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	return nil
}

func buildMailMessage(from string, to []string, subject, body string) []byte {
	var out strings.Builder
	out.WriteString("From: " + from + "\r\n")
	out.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	out.WriteString("Subject: " + subject + "\r\n")
	out.WriteString("MIME-Version: 1.0\r\n")
	out.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	out.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(out.String())
}
