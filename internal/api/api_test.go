package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"alertmanager/internal/alert"
	"alertmanager/internal/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeQueue struct {
	mu        sync.Mutex
	added     []*alert.Alert
	live      []*alert.Alert
	addErr    error
	quiesced  bool
	durations []time.Duration
}

func (q *fakeQueue) Add(_ context.Context, a *alert.Alert) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.addErr != nil {
		return q.addErr
	}
	q.added = append(q.added, a)
	return nil
}

func (q *fakeQueue) Alerts() []*alert.Alert {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*alert.Alert(nil), q.live...)
}

func (q *fakeQueue) Quiesce(d time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.quiesced {
		return false
	}
	q.quiesced = true
	q.durations = append(q.durations, d)
	return true
}

func newTestHandler(queue AlertQueue, auth Authorizer) *Handler {
	return NewHandler(queue, Options{
		BasePath:      "/api/v1/",
		MaxBodyBytes:  1 << 10,
		DefaultExpiry: 600 * time.Second,
		Authorizer:    auth,
		Clock:         clock.NewManual(epoch),
	})
}

func do(t *testing.T, handler http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	response := httptest.NewRecorder()
	handler.ServeHTTP(response, request)
	decoded := map[string]any{}
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &decoded), response.Body.String())
	return response, decoded
}

func TestCreateAlertsSingleAndBatch(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{}
	handler := newTestHandler(queue, nil)

	response, body := do(t, handler, http.MethodPost, "/api/v1/alerts", `{"name":"disk","attributes":{"host":"db1"}}`)
	assert.Equal(t, http.StatusCreated, response.Code)
	assert.Equal(t, "success", body["status"])
	assert.NotEmpty(t, response.Header().Get(RequestIDHeader))

	response, _ = do(t, handler, http.MethodPost, "/api/v1/alerts",
		`[{"name":"a","attributes":{}},{"name":"b","attributes":{},"state":"RECOVERED","expiryDuration":30,"createdAt":100}]`)
	assert.Equal(t, http.StatusCreated, response.Code)

	require.Len(t, queue.added, 3)
	first := queue.added[0]
	assert.Equal(t, alert.StateActive, first.State())
	assert.Equal(t, 600*time.Second, first.ExpiryDuration())
	assert.Equal(t, epoch.Unix(), first.CreatedAt().Unix())
	last := queue.added[2]
	assert.Equal(t, alert.StateRecovered, last.State())
	assert.Equal(t, 30*time.Second, last.ExpiryDuration())
	assert.Equal(t, int64(100), last.CreatedAt().Unix())
}

func TestCreateAlertsRejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{}
	handler := newTestHandler(queue, nil)

	cases := []string{
		`{"attributes":{}}`,
		`{"name":"disk"}`,
		`{"name":"disk","attributes":{}`,
		`[]`,
		`{"name":"disk","attributes":{},"state":"BROKEN"}`,
		`{"name":"` + strings.Repeat("x", 2<<10) + `","attributes":{}}`,
	}
	for _, payload := range cases {
		response, body := do(t, handler, http.MethodPost, "/api/v1/alerts", payload)
		assert.Equal(t, http.StatusBadRequest, response.Code, payload)
		assert.Equal(t, "error", body["status"])
	}
	assert.Empty(t, queue.added)
}

func TestCreateAlertsEnqueueFailure(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{addErr: errors.New("full")}
	response, body := do(t, newTestHandler(queue, nil), http.MethodPost, "/api/v1/alerts", `{"name":"disk","attributes":{}}`)
	assert.Equal(t, http.StatusInternalServerError, response.Code)
	assert.Equal(t, "error", body["status"])
}

func TestListAlertsFilters(t *testing.T) {
	t.Parallel()

	disk := alert.New("disk", alert.Attributes{}, epoch)
	disk.LogDispatch("ops", alert.StateActive, epoch.Add(time.Second))
	cpu := alert.New("cpu", alert.Attributes{}, epoch)
	require.NoError(t, cpu.SetState(alert.StateAcknowledged))
	queue := &fakeQueue{live: []*alert.Alert{cpu, disk}}
	handler := newTestHandler(queue, nil)

	_, body := do(t, handler, http.MethodGet, "/api/v1/alerts", "")
	assert.Equal(t, "success", body["status"])
	assert.Len(t, body["alerts"], 2)

	_, body = do(t, handler, http.MethodGet, "/api/v1/alerts?state=ACTIVE", "")
	alerts := body["alerts"].([]any)
	require.Len(t, alerts, 1)
	assert.Equal(t, "disk", alerts[0].(map[string]any)["name"])

	_, body = do(t, handler, http.MethodGet, "/api/v1/alerts?state=active", "")
	assert.Empty(t, body["alerts"], "state filter is case-sensitive")

	_, body = do(t, handler, http.MethodGet, "/api/v1/alerts?receiverId=ops", "")
	alerts = body["alerts"].([]any)
	require.Len(t, alerts, 1)
	record := alerts[0].(map[string]any)
	dispatched := record["dispatchedTo"].([]any)
	require.Len(t, dispatched, 1)
	assert.Equal(t, "ops", dispatched[0].(map[string]any)["receiverId"])
	assert.Equal(t, float64(epoch.Unix()+1), dispatched[0].(map[string]any)["time"])

	_, body = do(t, handler, http.MethodGet, "/api/v1/alerts?receiverId=nobody", "")
	assert.Empty(t, body["alerts"])
}

func TestQuiesce(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{}
	handler := newTestHandler(queue, nil)

	response, _ := do(t, handler, http.MethodPost, "/api/v1/alerts/quiesce", `{}`)
	assert.Equal(t, http.StatusBadRequest, response.Code)
	response, _ = do(t, handler, http.MethodPost, "/api/v1/alerts/quiesce", `{"duration":-5}`)
	assert.Equal(t, http.StatusBadRequest, response.Code)

	response, body := do(t, handler, http.MethodPost, "/api/v1/alerts/quiesce", `{"duration":90}`)
	assert.Equal(t, http.StatusOK, response.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, []time.Duration{90 * time.Second}, queue.durations)

	response, _ = do(t, handler, http.MethodPost, "/api/v1/alerts/quiesce", `{"duration":90}`)
	assert.Equal(t, http.StatusTooManyRequests, response.Code)
}

func TestRoutingErrors(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(&fakeQueue{}, nil)

	response, _ := do(t, handler, http.MethodGet, "/api/v1/nothing", "")
	assert.Equal(t, http.StatusNotFound, response.Code)
	response, _ = do(t, handler, http.MethodGet, "/other/alerts", "")
	assert.Equal(t, http.StatusNotFound, response.Code)
	response, _ = do(t, handler, http.MethodDelete, "/api/v1/alerts", "")
	assert.Equal(t, http.StatusMethodNotAllowed, response.Code)
	assert.Equal(t, "GET, POST", response.Header().Get("Allow"))
	response, _ = do(t, handler, http.MethodGet, "/api/v1/alerts/quiesce", "")
	assert.Equal(t, http.StatusMethodNotAllowed, response.Code)
}

func TestAuthorization(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{}
	handler := newTestHandler(queue, NewBasicAuthorizer(map[string]string{"ops": "secret"}))

	response, _ := do(t, handler, http.MethodGet, "/api/v1/alerts", "")
	assert.Equal(t, http.StatusUnauthorized, response.Code)

	request := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	request.SetBasicAuth("ops", "wrong")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	request = httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	request.SetBasicAuth("ops", "secret")
	request.Header.Set(RequestIDHeader, "req-1")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "req-1", recorder.Header().Get(RequestIDHeader))

	failing := newTestHandler(queue, AuthorizerFunc(func(*http.Request) (bool, error) {
		return false, errors.New("ldap down")
	}))
	response, _ = do(t, failing, http.MethodGet, "/api/v1/alerts", "")
	assert.Equal(t, http.StatusInternalServerError, response.Code)
}
