package e2e

import (
	"net/http"
	"testing"
	"time"
)

const catchAllRoute = `[[route]]
receiver = "ops"`

func TestAlertLifecycleOverHTTP(t *testing.T) {
	listen, baseURL := freeListen(t)
	sink := newWebhookSink(t)
	service := newServiceFromConfig(t, baseConfig(listen, sink.URL, catchAllRoute))

	cancel, done := runService(t, service)
	defer func() {
		cancel()
		waitServiceStop(t, done)
	}()
	waitReady(t, baseURL)

	status, body := postJSON(t, baseURL+"/api/v1/alerts", `{"name":"disk-full","attributes":{"host":"db1"}}`)
	if status != http.StatusCreated || body["status"] != "success" {
		t.Fatalf("create = %d %v", status, body)
	}
	waitFor(t, 5*time.Second, func() bool { return sink.has("disk-full:ACTIVE") })

	alerts := listAlerts(t, baseURL+"/api/v1/alerts?receiverId=ops")
	if len(alerts) != 1 || alerts[0]["name"] != "disk-full" {
		t.Fatalf("unexpected live alerts %v", alerts)
	}

	status, _ = postJSON(t, baseURL+"/api/v1/alerts", `{"name":"disk-full","attributes":{"host":"db1"},"state":"RECOVERED"}`)
	if status != http.StatusCreated {
		t.Fatalf("recover = %d", status)
	}
	waitFor(t, 5*time.Second, func() bool { return sink.has("disk-full:RECOVERED") })
	waitFor(t, 5*time.Second, func() bool { return len(listAlerts(t, baseURL+"/api/v1/alerts")) == 0 })

	if got := sink.deliveries(); len(got) != 2 {
		t.Fatalf("expected exactly one active and one recovered delivery, got %v", got)
	}
}

func TestQuiesceSuppressesRouting(t *testing.T) {
	listen, baseURL := freeListen(t)
	sink := newWebhookSink(t)
	service := newServiceFromConfig(t, baseConfig(listen, sink.URL, catchAllRoute))

	cancel, done := runService(t, service)
	defer func() {
		cancel()
		waitServiceStop(t, done)
	}()
	waitReady(t, baseURL)

	if status, _ := postJSON(t, baseURL+"/api/v1/alerts/quiesce", `{"duration":60}`); status != http.StatusOK {
		t.Fatalf("quiesce = %d", status)
	}
	if status, _ := postJSON(t, baseURL+"/api/v1/alerts/quiesce", `{"duration":60}`); status != http.StatusTooManyRequests {
		t.Fatalf("second quiesce = %d", status)
	}
	if status, _ := postJSON(t, baseURL+"/api/v1/alerts", `{"name":"cpu-hot","attributes":{}}`); status != http.StatusCreated {
		t.Fatalf("create = %d", status)
	}

	time.Sleep(300 * time.Millisecond)
	if got := sink.deliveries(); len(got) != 0 {
		t.Fatalf("quiesced service delivered %v", got)
	}
	if alerts := listAlerts(t, baseURL+"/api/v1/alerts"); len(alerts) != 1 {
		t.Fatalf("alert should stay live while quiesced, got %v", alerts)
	}
}

func TestBasicAuthProtectsAPI(t *testing.T) {
	listen, baseURL := freeListen(t)
	sink := newWebhookSink(t)
	service := newServiceFromConfig(t, baseConfig(listen, sink.URL, catchAllRoute, `[http.auth]
type = "basic"
users = { ops = "s3cret" }`))

	cancel, done := runService(t, service)
	defer func() {
		cancel()
		waitServiceStop(t, done)
	}()
	waitReady(t, baseURL)

	response, err := http.Get(baseURL + "/api/v1/alerts")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = response.Body.Close()
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous = %d", response.StatusCode)
	}

	request, _ := http.NewRequest(http.MethodGet, baseURL+"/api/v1/alerts", nil)
	request.SetBasicAuth("ops", "s3cret")
	response, err = http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("authorized = %d", response.StatusCode)
	}
}
