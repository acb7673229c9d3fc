package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"alertmanager/internal/app"
	"alertmanager/internal/clock"
	"alertmanager/internal/config"
	"alertmanager/internal/notify"
	"alertmanager/test/testutil"
)

// newServiceFromConfig writes TOML body to a temp file and creates Service from it.
// Params: test handle and config body.
// Returns: initialized service instance.
func newServiceFromConfig(t *testing.T, body string) *app.Service {
	t.Helper()

	path := filepath.Join(t.TempDir(), "alertmanager.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	source, err := config.FromCLI(path, "")
	if err != nil {
		t.Fatalf("config source: %v", err)
	}
	service, err := app.NewService(source, clock.RealClock{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

// runService starts service in background with cancellable context.
// Params: test handle and initialized service.
// Returns: cancel callback and done channel with Run result.
func runService(t *testing.T, service *app.Service) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- service.Run(ctx)
	}()
	return cancel, done
}

// waitReady waits for /readyz endpoint to return 200.
func waitReady(t *testing.T, baseURL string) {
	t.Helper()
	waitFor(t, 8*time.Second, func() bool {
		response, err := http.Get(baseURL + "/readyz")
		if err != nil {
			return false
		}
		defer response.Body.Close()
		return response.StatusCode == http.StatusOK
	})
}

// waitServiceStop asserts service Run exits without error after cancellation.
func waitServiceStop(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case runErr := <-done:
		if runErr != nil {
			t.Fatalf("service run error: %v", runErr)
		}
	case <-time.After(8 * time.Second):
		t.Fatalf("service did not stop after cancel")
	}
}

// waitFor polls condition until it holds or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// freeListen returns 127.0.0.1 listen address and base URL on a free port.
func freeListen(t *testing.T) (string, string) {
	t.Helper()
	port, err := testutil.FreePort()
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	listen := fmt.Sprintf("127.0.0.1:%d", port)
	return listen, "http://" + listen
}

// postJSON sends JSON body and returns status code with decoded envelope.
func postJSON(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	response, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer response.Body.Close()
	decoded := map[string]any{}
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode %s response: %v", url, err)
	}
	return response.StatusCode, decoded
}

// listAlerts fetches live alerts from the API.
func listAlerts(t *testing.T, url string) []map[string]any {
	t.Helper()
	response, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer response.Body.Close()
	var decoded struct {
		Status string           `json:"status"`
		Alerts []map[string]any `json:"alerts"`
	}
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode alerts: %v", err)
	}
	return decoded.Alerts
}

// webhookSink collects webhook deliveries.
type webhookSink struct {
	*httptest.Server
	mu       sync.Mutex
	payloads []notify.WebhookPayload
}

func newWebhookSink(t *testing.T) *webhookSink {
	t.Helper()
	sink := &webhookSink{}
	sink.Server = httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		var payload notify.WebhookPayload
		if err := json.NewDecoder(request.Body).Decode(&payload); err != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		sink.mu.Lock()
		sink.payloads = append(sink.payloads, payload)
		sink.mu.Unlock()
		writer.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(sink.Close)
	return sink
}

// deliveries returns "name:STATE" entries in arrival order.
func (s *webhookSink) deliveries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.payloads))
	for _, payload := range s.payloads {
		out = append(out, payload.Alert.Name+":"+string(payload.Alert.State))
	}
	return out
}

func (s *webhookSink) has(entry string) bool {
	for _, delivered := range s.deliveries() {
		if delivered == entry {
			return true
		}
	}
	return false
}

// baseConfig renders service config with webhook receiver and extra sections.
func baseConfig(listen, hookURL string, extra ...string) string {
	sections := []string{
		fmt.Sprintf(`[service]
tick_interval_ms = 50

[http]
listen = %q

[log.console]
level = "error"

[metrics]
enabled = true

[receiver.ops.webhook]
url = %q`, listen, hookURL),
	}
	sections = append(sections, extra...)
	return strings.Join(sections, "\n\n") + "\n"
}
