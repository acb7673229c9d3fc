package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"alertmanager/internal/alert"
	"alertmanager/internal/clock"

	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries request correlation id.
	RequestIDHeader = "X-Request-ID"

	statusSuccess = "success"
	statusError   = "error"
)

// AlertQueue is the processor surface used by the API.
type AlertQueue interface {
	Add(ctx context.Context, a *alert.Alert) error
	Alerts() []*alert.Alert
	Quiesce(d time.Duration) bool
}

// Options configures Handler.
// Params: mount prefix, body limit, default alert expiry, authorizer, clock and logger.
type Options struct {
	BasePath      string
	MaxBodyBytes  int64
	DefaultExpiry time.Duration
	Authorizer    Authorizer
	Clock         clock.Clock
	Logger        *slog.Logger
}

// Handler serves alert list/create and quiesce endpoints.
type Handler struct {
	queue AlertQueue
	opts  Options
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type listEnvelope struct {
	Status string         `json:"status"`
	Alerts []alert.Record `json:"alerts"`
}

type quiesceRequest struct {
	Duration *json.Number `json:"duration"`
}

// NewHandler creates API handler.
// Params: alert queue and options; zero options fall back to /api/v1, 2MiB, allow-all.
// Returns: http.Handler with request id middleware.
func NewHandler(queue AlertQueue, opts Options) *Handler {
	opts.BasePath = "/" + strings.Trim(opts.BasePath, "/")
	if opts.BasePath == "/" {
		opts.BasePath = ""
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2 << 20
	}
	if opts.Authorizer == nil {
		opts.Authorizer = AllowAll{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{queue: queue, opts: opts}
}

// ServeHTTP authorizes and dispatches one API request.
func (h *Handler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	requestID := strings.TrimSpace(request.Header.Get(RequestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	writer.Header().Set(RequestIDHeader, requestID)
	recorder := &statusRecorder{ResponseWriter: writer, status: http.StatusOK}
	started := time.Now()

	h.serve(recorder, request)

	h.opts.Logger.Debug("api request",
		"request_id", requestID,
		"method", request.Method,
		"path", request.URL.Path,
		"status", recorder.status,
		"duration", time.Since(started).String(),
	)
}

func (h *Handler) serve(writer http.ResponseWriter, request *http.Request) {
	path, ok := strings.CutPrefix(request.URL.Path, h.opts.BasePath)
	if !ok {
		writeJSON(writer, http.StatusNotFound, envelope{Status: statusError, Message: "not found"})
		return
	}
	path = "/" + strings.Trim(path, "/")

	var handle func(http.ResponseWriter, *http.Request)
	switch path {
	case "/alerts":
		switch request.Method {
		case http.MethodGet:
			handle = h.listAlerts
		case http.MethodPost:
			handle = h.createAlerts
		default:
			writer.Header().Set("Allow", "GET, POST")
			writeJSON(writer, http.StatusMethodNotAllowed, envelope{Status: statusError, Message: "method not allowed"})
			return
		}
	case "/alerts/quiesce":
		if request.Method != http.MethodPost {
			writer.Header().Set("Allow", "POST")
			writeJSON(writer, http.StatusMethodNotAllowed, envelope{Status: statusError, Message: "method not allowed"})
			return
		}
		handle = h.quiesce
	default:
		writeJSON(writer, http.StatusNotFound, envelope{Status: statusError, Message: "not found"})
		return
	}

	allowed, err := h.opts.Authorizer.Authorize(request)
	if err != nil {
		h.opts.Logger.Error("api authorization failed", "error", err.Error())
		writeJSON(writer, http.StatusInternalServerError, envelope{Status: statusError, Message: "authorization failed"})
		return
	}
	if !allowed {
		writeJSON(writer, http.StatusUnauthorized, envelope{Status: statusError, Message: "unauthorized"})
		return
	}
	handle(writer, request)
}

// listAlerts returns live alerts filtered by state and receiverId.
func (h *Handler) listAlerts(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	state := strings.TrimSpace(query.Get("state"))
	receiverID := strings.TrimSpace(query.Get("receiverId"))

	records := make([]alert.Record, 0)
	for _, a := range h.queue.Alerts() {
		if state != "" && string(a.State()) != state {
			continue
		}
		if receiverID != "" && len(a.DispatchLogFor(receiverID)) == 0 {
			continue
		}
		records = append(records, a.Record())
	}
	writeJSON(writer, http.StatusOK, listEnvelope{Status: statusSuccess, Alerts: records})
}

// createAlerts decodes one alert or a batch and queues each.
func (h *Handler) createAlerts(writer http.ResponseWriter, request *http.Request) {
	body, ok := h.readBody(writer, request)
	if !ok {
		return
	}
	alerts, err := alert.DecodeBatch(body, alert.DecodeDefaults{Expiry: h.opts.DefaultExpiry, Now: h.opts.Clock.Now()})
	if err != nil {
		writeJSON(writer, http.StatusBadRequest, envelope{Status: statusError, Message: err.Error()})
		return
	}

	var errs []error
	for _, a := range alerts {
		if err := h.queue.Add(request.Context(), a); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		h.opts.Logger.Error("api enqueue failed", "error", err.Error())
		writeJSON(writer, http.StatusInternalServerError, envelope{Status: statusError, Message: "enqueue failed"})
		return
	}
	writeJSON(writer, http.StatusCreated, envelope{Status: statusSuccess})
}

// quiesce suspends routing for the requested number of seconds.
func (h *Handler) quiesce(writer http.ResponseWriter, request *http.Request) {
	body, ok := h.readBody(writer, request)
	if !ok {
		return
	}
	var payload quiesceRequest
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil || payload.Duration == nil {
		writeJSON(writer, http.StatusBadRequest, envelope{Status: statusError, Message: "duration is required"})
		return
	}
	seconds, err := payload.Duration.Float64()
	if err != nil || seconds <= 0 {
		writeJSON(writer, http.StatusBadRequest, envelope{Status: statusError, Message: "duration must be a positive number of seconds"})
		return
	}
	if !h.queue.Quiesce(time.Duration(seconds * float64(time.Second))) {
		writeJSON(writer, http.StatusTooManyRequests, envelope{Status: statusError, Message: "already quiesced"})
		return
	}
	writeJSON(writer, http.StatusOK, envelope{Status: statusSuccess})
}

func (h *Handler) readBody(writer http.ResponseWriter, request *http.Request) ([]byte, bool) {
	request.Body = http.MaxBytesReader(writer, request.Body, h.opts.MaxBodyBytes)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		writeJSON(writer, http.StatusBadRequest, envelope{Status: statusError, Message: "read body: " + err.Error()})
		return nil, false
	}
	return body, true
}

func writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
