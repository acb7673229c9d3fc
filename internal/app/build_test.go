package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"alertmanager/internal/alert"
	"alertmanager/internal/clock"
	"alertmanager/internal/config"
	"alertmanager/internal/logging"
	"alertmanager/internal/notify"
	"alertmanager/internal/receiver"
)

var epoch = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

// hookServer records webhook deliveries per request path.
type hookServer struct {
	*httptest.Server
	mu    sync.Mutex
	calls map[string][]notify.WebhookPayload
}

func newHookServer(t *testing.T) *hookServer {
	t.Helper()
	hooks := &hookServer{calls: make(map[string][]notify.WebhookPayload)}
	hooks.Server = httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		var payload notify.WebhookPayload
		if err := json.NewDecoder(request.Body).Decode(&payload); err != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		hooks.mu.Lock()
		hooks.calls[request.URL.Path] = append(hooks.calls[request.URL.Path], payload)
		hooks.mu.Unlock()
		writer.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(hooks.Close)
	return hooks
}

func (h *hookServer) names(path string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.calls[path]))
	for _, payload := range h.calls[path] {
		out = append(out, payload.Alert.Name)
	}
	sort.Strings(out)
	return out
}

func parseConfig(t *testing.T, body string) config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(body))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

func newAlert(name string, pairs ...any) *alert.Alert {
	var attrs alert.Attributes
	for i := 0; i+1 < len(pairs); i += 2 {
		attrs.Set(pairs[i].(string), pairs[i+1])
	}
	a := alert.New(name, attrs, epoch)
	a.SetExpiryDuration(time.Hour)
	return a
}

func TestBuildRuntimeRoutesByCriteria(t *testing.T) {
	t.Parallel()

	hooks := newHookServer(t)
	cfg := parseConfig(t, strings.ReplaceAll(`
[receiver.db.webhook]
url = "HOOK/db"

[receiver.ops.webhook]
url = "HOOK/ops"

[[route]]
receiver = "db"
[route.when]
match = { service = "db" }

[[route]]
drop = true
[route.when]
match = { env = ["dev", "test"] }

[[route]]
receivers = ["ops", "db"]
`, "HOOK", hooks.URL))

	runtime, err := BuildRuntime(cfg, BuildDeps{Clock: clock.NewManual(epoch), Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	defer runtime.Close()

	ctx := context.Background()
	for _, a := range []*alert.Alert{
		newAlert("replica-lag", "service", "db"),
		newAlert("dev-noise", "env", "dev"),
		newAlert("disk-full", "host", "web1"),
	} {
		if _, err := runtime.Router.Route(ctx, a); err != nil {
			t.Fatalf("route %s: %v", a.Name(), err)
		}
	}

	if got := hooks.names("/db"); strings.Join(got, ",") != "disk-full,replica-lag" {
		t.Fatalf("db deliveries = %v", got)
	}
	if got := hooks.names("/ops"); strings.Join(got, ",") != "disk-full" {
		t.Fatalf("ops deliveries = %v", got)
	}
}

func TestBuildRuntimeNestedGroupAndContinue(t *testing.T) {
	t.Parallel()

	hooks := newHookServer(t)
	cfg := parseConfig(t, strings.ReplaceAll(`
[receiver.audit.webhook]
url = "HOOK/audit"

[receiver.db.webhook]
url = "HOOK/db"

[receiver.web.webhook]
url = "HOOK/web"

[[route]]
receiver = "audit"
action = "continue"

[[route]]
group = true
[[route.route]]
receiver = "db"
[route.route.when]
match = { "regex:host" = "/^db/" }
[[route.route]]
receiver = "web"
[route.route.when]
match = { tier = "frontend" }
`, "HOOK", hooks.URL))

	runtime, err := BuildRuntime(cfg, BuildDeps{Clock: clock.NewManual(epoch), Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	defer runtime.Close()

	handled, err := runtime.Router.Route(context.Background(), newAlert("mixed", "host", "db7", "tier", "frontend"))
	if err != nil || !handled {
		t.Fatalf("route handled=%v err=%v", handled, err)
	}
	for _, path := range []string{"/audit", "/db", "/web"} {
		if got := hooks.names(path); len(got) != 1 {
			t.Fatalf("%s deliveries = %v", path, got)
		}
	}
}

func TestBuildRuntimeDecoratesReceivers(t *testing.T) {
	t.Parallel()

	cfg := parseConfig(t, `
[receiver.oncall.log]
level = "warn"

[receiver.ops.log]
level = "info"

[receiver.ops.throttle]
interval_sec = 30
hit_threshold = 3
notify_receiver = "oncall"

[receiver.ops.aggregate]
interval_min = 5
minimum = 2
background_flush = true

[[route]]
receiver = "ops"
`)
	runtime, err := BuildRuntime(cfg, BuildDeps{Clock: clock.NewManual(epoch), Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	defer runtime.Close()

	if _, ok := runtime.Receivers["ops"].(*receiver.Aggregator); !ok {
		t.Fatalf("ops outermost decorator = %T, want aggregator", runtime.Receivers["ops"])
	}
	if len(runtime.Flushers) != 1 {
		t.Fatalf("flushers = %d, want 1", len(runtime.Flushers))
	}
	terminal, ok := receiver.Resolve(runtime.Receivers["ops"]).(*receiver.Receiver)
	if !ok || terminal.ReceiverID() != "ops" {
		t.Fatalf("resolved receiver = %T", receiver.Resolve(runtime.Receivers["ops"]))
	}
	if _, ok := runtime.Receivers["oncall"].(*receiver.Receiver); !ok {
		t.Fatalf("oncall = %T, want plain receiver", runtime.Receivers["oncall"])
	}
}

func TestBuildPolicyFromReceiverConfig(t *testing.T) {
	t.Parallel()

	cfg := parseConfig(t, `
[schedule.night]
start = "2024-01-01T22:00:00"
end = "2024-01-02T06:00:00"
repeat = "daily"

[receiver.pager]
exclusion_schedules = ["night"]
repeat_interval_sec = 300
receive_recoveries = false
delay_until_updated = true

[receiver.pager.log]
level = "info"

[[receiver.pager.filter]]
match = { env = "dev" }

[[route]]
receiver = "pager"
`)
	schedules, err := buildSchedules(cfg.Schedules)
	if err != nil {
		t.Fatalf("build schedules: %v", err)
	}
	policy, err := buildPolicy(cfg.Receivers[0], schedules)
	if err != nil {
		t.Fatalf("build policy: %v", err)
	}
	if policy.RepeatInterval != 5*time.Minute || policy.ReceiveRecoveries {
		t.Fatalf("unexpected policy %+v", policy)
	}
	if !policy.Delay.UntilUpdated() {
		t.Fatalf("expected delay until first update")
	}
	if len(policy.ExclusionSchedules) != 1 || len(policy.Schedules) != 0 {
		t.Fatalf("unexpected schedules %+v", policy)
	}
	if len(policy.Filters) != 1 || !policy.Filters[0].IsFiltered(newAlert("x", "env", "dev")) {
		t.Fatalf("expected env=dev filter")
	}
}

func TestBuildCriteria(t *testing.T) {
	t.Parallel()

	everything, err := buildCriteria(config.CriteriaConfig{All: true})
	if err != nil || !everything.Matches(newAlert("any")) {
		t.Fatalf("all=true should match every alert, err=%v", err)
	}

	either, err := buildCriteria(config.CriteriaConfig{
		Logic: "or",
		Match: map[string]any{"env": "prod"},
		Group: []config.CriteriaConfig{{Match: map[string]any{"team": "db", "tier": "backend"}}},
	})
	if err != nil {
		t.Fatalf("build criteria: %v", err)
	}
	if !either.Matches(newAlert("a", "env", "prod")) {
		t.Fatalf("expected env branch to match")
	}
	if !either.Matches(newAlert("b", "team", "db", "tier", "backend")) {
		t.Fatalf("expected group branch to match")
	}
	if either.Matches(newAlert("c", "team", "db")) {
		t.Fatalf("partial group must not match")
	}

	if _, err := buildCriteria(config.CriteriaConfig{Match: map[string]any{"regex:host": "/(/"}}); err == nil {
		t.Fatalf("expected invalid pattern error")
	}
}
