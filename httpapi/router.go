// Package httpapi exposes a ModuleManager over a small JSON admin API.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GoCodeAlone/blueprint"
	"github.com/GoCodeAlone/blueprint/health"
)

// Server holds the dependencies of the admin API.
type Server struct {
	manager    *blueprint.ModuleManager
	aggregator *health.Aggregator
	metrics    http.Handler
	logger     blueprint.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithHealth mounts GET /health over the aggregator.
func WithHealth(aggregator *health.Aggregator) Option {
	return func(s *Server) { s.aggregator = aggregator }
}

// WithMetricsHandler mounts handler at /metrics.
func WithMetricsHandler(handler http.Handler) Option {
	return func(s *Server) { s.metrics = handler }
}

// WithLogger sets the request logger.
func WithLogger(logger blueprint.Logger) Option {
	return func(s *Server) { s.logger = blueprint.WithSource(logger, "httpapi") }
}

// NewServer creates the API over a manager.
func NewServer(manager *blueprint.ModuleManager, opts ...Option) *Server {
	s := &Server{manager: manager, logger: blueprint.NopLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	if s.aggregator != nil {
		r.Get("/health", s.health)
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/blueprints/{blueprintID}", func(r chi.Router) {
		r.Use(s.requireBlueprint)
		r.Post("/activate", s.activate)
		r.Post("/deactivate", s.deactivate)

		r.Route("/modules", func(r chi.Router) {
			r.Get("/", s.listModules)
			r.Post("/", s.registerModule)
			r.Post("/batch/enabled", s.batchEnabled)

			r.Route("/{moduleID}", func(r chi.Router) {
				r.Delete("/", s.deleteModule)
				r.Post("/enable", s.enableModule)
				r.Post("/disable", s.disableModule)
				r.Put("/config", s.updateConfig)
				r.Post("/activate", s.activateModule)
				r.Post("/deactivate", s.deactivateModule)
			})
		})
	})
	return r
}

func (s *Server) requireBlueprint(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "blueprintID") != s.manager.BlueprintID() {
			writeError(w, http.StatusNotFound, "blueprint is not loaded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start), "requestId", middleware.GetReqID(r.Context()))
	})
}

// statusFor maps framework errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, blueprint.ErrValidation),
		errors.Is(err, blueprint.ErrEmptyIDList),
		errors.Is(err, blueprint.ErrInvalidModuleConfig),
		errors.Is(err, blueprint.ErrCircularDependency):
		return http.StatusBadRequest
	case errors.Is(err, blueprint.ErrModuleNotFound),
		errors.Is(err, blueprint.ErrNotFound),
		errors.Is(err, blueprint.ErrNoBlueprintLoaded):
		return http.StatusNotFound
	case errors.Is(err, blueprint.ErrModuleAlreadyRegistered),
		errors.Is(err, blueprint.ErrInvalidTransition),
		errors.Is(err, blueprint.ErrModuleDisabled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
