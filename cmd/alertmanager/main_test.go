package main

import (
	"bytes"
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"alertmanager/internal/config"
)

func mapLookup(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestRunRequiresConfigSource(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	served := false
	code := run(nil, &stderr, env{serve: func(context.Context, config.ConfigSource) error {
		served = true
		return nil
	}})
	if code != exitUsage || served {
		t.Fatalf("code=%d served=%v", code, served)
	}
	if !strings.Contains(stderr.String(), "--config-file") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestRunServeDefaultAndExplicit(t *testing.T) {
	t.Parallel()

	var sources []config.ConfigSource
	environment := env{serve: func(_ context.Context, source config.ConfigSource) error {
		sources = append(sources, source)
		return nil
	}}
	var stderr bytes.Buffer
	if code := run([]string{"--config-file", "am.toml"}, &stderr, environment); code != 0 {
		t.Fatalf("default command code=%d stderr=%q", code, stderr.String())
	}
	if code := run([]string{"serve", "--config-dir", "conf.d"}, &stderr, environment); code != 0 {
		t.Fatalf("serve code=%d stderr=%q", code, stderr.String())
	}
	if len(sources) != 2 || sources[0].File != "am.toml" || sources[1].Dir != "conf.d" {
		t.Fatalf("unexpected sources %+v", sources)
	}
}

func TestRunServeFailureExitsRuntime(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	code := run([]string{"--config-file", "am.toml"}, &stderr, env{serve: func(context.Context, config.ConfigSource) error {
		return errors.New("listen: address in use")
	}})
	if code != exitRuntime {
		t.Fatalf("code=%d", code)
	}
}

func TestRunSendEmail(t *testing.T) {
	t.Parallel()

	var sentTo []string
	environment := env{
		lookup: mapLookup(map[string]string{
			"server":  "smtp.example.com",
			"port":    "25",
			"from":    "am@example.com",
			"to":      "a@example.com; b@example.com",
			"subject": "disk DOWN",
			"message": "host: db1\n",
		}),
		sendMail: func(_ string, _ smtp.Auth, _ string, to []string, _ []byte) error {
			sentTo = to
			return nil
		},
	}
	var stderr bytes.Buffer
	if code := run([]string{"send-email"}, &stderr, environment); code != 0 {
		t.Fatalf("code=%d stderr=%q", code, stderr.String())
	}
	if len(sentTo) != 2 {
		t.Fatalf("recipients = %v", sentTo)
	}

	stderr.Reset()
	environment.lookup = mapLookup(map[string]string{"server": "smtp.example.com"})
	if code := run([]string{"send-email"}, &stderr, environment); code != exitRuntime {
		t.Fatalf("missing env code=%d", code)
	}
	if !strings.Contains(stderr.String(), "port") {
		t.Fatalf("stderr should list missing variables, got %q", stderr.String())
	}
}
