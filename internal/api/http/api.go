package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domain "github.com/oshokin/alarm-relay/internal/domain/alarm"
	"github.com/oshokin/alarm-relay/internal/logger"
	alarmsvc "github.com/oshokin/alarm-relay/internal/service/alarm"
)

// maxBodyBytes caps the size of an ingested alarm.
const maxBodyBytes = 1 << 20

// Service defines the business operations the HTTP API needs.
type Service interface {
	Submit(ctx context.Context, alarmType, message string, severity domain.Severity, metadata map[string]any) error
	Recent(limit int) []*domain.Record
	Stats() alarmsvc.Stats
	Enabled() bool
	Running() bool
}

// API holds dependencies for HTTP handlers.
type API struct {
	svc      Service
	gatherer prometheus.Gatherer
}

// New creates a new API handler. A nil gatherer leaves /metrics unregistered.
func New(svc Service, gatherer prometheus.Gatherer) *API {
	return &API{
		svc:      svc,
		gatherer: gatherer,
	}
}

// Handler returns a router with all routes and the middleware stack.
func (a *API) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(withLogger(logger.WithName(ctx, "http")))

	a.RegisterRoutes(r)

	return r
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", a.handleHealth)

	if a.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/alarms", a.handleSubmit)
		r.Get("/alarms/recent", a.handleRecent)
		r.Get("/stats", a.handleStats)
	})
}

// submitRequest is the body of POST /api/v1/alarms.
type submitRequest struct {
	Type     string          `json:"type"`
	Message  string          `json:"message"`
	Severity domain.Severity `json:"severity"`
	Metadata map[string]any  `json:"metadata"`
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	err := a.svc.Submit(r.Context(), req.Type, req.Message, req.Severity, req.Metadata)

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrEmptyType), errors.Is(err, domain.ErrInvalidMetadata):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		logger.ErrorKV(r.Context(), "Failed to submit alarm", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"queued": a.svc.Enabled(),
	})
}

// recentAlarm is one entry of GET /api/v1/alarms/recent.
type recentAlarm struct {
	ID string `json:"id"`
	domain.Payload
}

func (a *API) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}

		limit = n
	}

	records := a.svc.Recent(limit)
	out := make([]recentAlarm, 0, len(records))

	for _, rec := range records {
		out = append(out, recentAlarm{
			ID:      rec.ID.String(),
			Payload: rec.Payload(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alarms": out,
	})
}

func (a *API) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Stats())
}

// handleHealth reports 503 while an enabled service has no running worker.
func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if a.svc.Enabled() && !a.svc.Running() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopped"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withLogger puts the base logger into every request context, tagged with
// the chi request id.
func withLogger(base context.Context) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ctx := logger.ToContext(r.Context(),
				logger.FromContext(base).With("request_id", middleware.GetReqID(r.Context())))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			logger.DebugKV(ctx, "HTTP request served",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(started))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
