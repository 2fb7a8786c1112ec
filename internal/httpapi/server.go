package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"vidrepo/internal/logging"
	"vidrepo/internal/metrics"
	"vidrepo/internal/repository"
	"vidrepo/internal/services"
)

const maxUploadBytes = 2 << 30

// Server exposes the repository facade over HTTP.
type Server struct {
	svc      *repository.Service
	hub      *logging.StreamHub
	metrics  *metrics.Metrics
	logger   *slog.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader
	health   func(context.Context) error
}

// Option customizes a Server.
type Option func(*Server)

// WithHealthCheck sets the probe behind /health.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(s *Server) {
		s.health = check
	}
}

// New builds a Server. hub and m may be nil.
func New(svc *repository.Service, hub *logging.StreamHub, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		hub:      hub,
		metrics:  m,
		logger:   logging.NewComponentLogger(logger, "api-server"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestID)
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/events", s.handleEvents)

		r.Get("/repositories", s.handleListRepositories)
		r.Post("/repositories", s.handleCreateRepository)
		r.Route("/repositories/{repoID}", func(r chi.Router) {
			r.Get("/", s.handleGetRepository)
			r.Delete("/", s.handleDeleteRepository)
			r.Get("/tree", s.handleTree)

			r.Post("/nodes", s.handleCreateNode)
			r.Delete("/nodes/{nodeID}", s.handleDeleteNode)
			r.Put("/nodes/{nodeID}/content", s.handleUpdateContent)
			r.Post("/nodes/{nodeID}/rename", s.handleRenameNode)
			r.Post("/nodes/{nodeID}/toggle", s.handleToggleNode)

			r.Get("/assets", s.handleListAssets)
			r.Post("/assets", s.handleUploadAssets)
			r.Post("/assets/{assetID}/reingest", s.handleReingest)

			r.Get("/commits", s.handleListCommits)
			r.Get("/commits/{commitID}", s.handleGetCommit)
		})
	})
	return r
}

// Serve listens on bind until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, bind string) error {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestID tags every request with a correlation id, reusing X-Request-ID
// when the caller supplied one.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = services.NewRequestID()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(started)
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
			s.metrics.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		}
		logging.WithContext(r.Context(), s.logger).Debug("request served",
			logging.String("method", r.Method),
			logging.String("route", route),
			logging.Int("status", status),
			logging.Duration("elapsed", elapsed),
		)
	})
}

// statusFor maps error markers to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrTypeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrLocked), errors.Is(err, services.ErrDuplicateID):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "request failed", "api_error",
			logging.String("path", r.URL.Path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
		)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

// decode reads a JSON body into dst and validates its struct tags.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return services.Wrap(services.ErrValidation, "api", "decode", "invalid request body", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return services.Wrap(services.ErrValidation, "api", "validate", err.Error(), nil)
	}
	return nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, services.Wrap(services.ErrValidation, "api", "params", fmt.Sprintf("invalid %s %q", name, raw), nil)
	}
	return id, nil
}
