package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/private-sauna-availability/internal/availability"
	"github.com/JakeFAU/private-sauna-availability/internal/config"
	"github.com/JakeFAU/private-sauna-availability/internal/metrics"
	"github.com/JakeFAU/private-sauna-availability/internal/orchestrator"
)

const requestTimeout = 60 * time.Second

// Service is the orchestrator surface the handlers need.
type Service interface {
	Run(ctx context.Context, trigger orchestrator.Trigger) (orchestrator.RunSummary, error)
	Availability(date availability.DateKey) []orchestrator.Facility
	Status() orchestrator.Status
}

// Server wires HTTP handlers to the orchestrator.
type Server struct {
	router  chi.Router
	service Service
	clock   availability.Clock
	cfg     config.Config
	loc     *time.Location
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service Service, clock availability.Clock, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		clock:   clock,
		cfg:     cfg,
		loc:     cfg.Location(),
		logger:  logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/metrics", metrics.Handler().ServeHTTP)

	// Refresh waits for a whole run, which may outlast the request timeout.
	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/api/refresh", s.refresh)
		r.Post("/api/refresh", s.refresh)
	})

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(requestTimeout))
		r.Get("/healthz", s.healthz)
		r.Get("/readyz", s.readyz)
		r.Get("/api/health", s.health)
		r.Get("/api/availability", s.availability)
		r.Get("/api/status", s.status)
		r.Get("/api/pricing", s.pricing)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// State is in memory; the service is ready as soon as it serves.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.clock.Now().In(s.loc).Format(time.RFC3339),
	})
}

type refreshResponse struct {
	Success bool                        `json:"success"`
	Message string                      `json:"message"`
	RunID   string                      `json:"run_id,omitempty"`
	Sources []orchestrator.SourceResult `json:"sources"`
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	// A client that hangs up must not abort the run for everyone else.
	summary, err := s.service.Run(context.WithoutCancel(r.Context()), orchestrator.TriggerExternal)
	switch {
	case errors.Is(err, orchestrator.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, refreshResponse{
			Message: err.Error(),
			Sources: []orchestrator.SourceResult{},
		})
		return
	case err != nil && summary.RunID == "":
		writeJSON(w, http.StatusInternalServerError, refreshResponse{
			Message: err.Error(),
			Sources: []orchestrator.SourceResult{},
		})
		return
	}
	status := http.StatusOK
	if !summary.Success {
		status = http.StatusInternalServerError
	}
	sources := summary.Sources
	if sources == nil {
		sources = []orchestrator.SourceResult{}
	}
	writeJSON(w, status, refreshResponse{
		Success: summary.Success,
		Message: summary.Message,
		RunID:   summary.RunID,
		Sources: sources,
	})
}

type availabilityResponse struct {
	Date       string                  `json:"date"`
	Facilities []orchestrator.Facility `json:"facilities"`
}

func (s *Server) availability(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		raw = string(availability.NewDateKey(s.clock.Now().In(s.loc)))
	}
	resp := availabilityResponse{Date: raw, Facilities: []orchestrator.Facility{}}
	date, err := availability.ParseDateKey(raw)
	if err != nil {
		s.logger.Debug("unparseable availability date", zap.String("date", raw), zap.Error(err))
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if facilities := s.service.Availability(date); len(facilities) > 0 {
		resp.Facilities = facilities
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Status())
}

func (s *Server) pricing(w http.ResponseWriter, _ *http.Request) {
	pricing := s.cfg.Pricing
	if pricing == nil {
		pricing = map[string]any{}
	}
	writeJSON(w, http.StatusOK, pricing)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request ID assigned by the server, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
