package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tasksync/internal/config"
	"tasksync/internal/metrics"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// HTTPServer exposes the task CRUD and the sync surface over HTTP. All
// decisions live below it; routes are thin pass-throughs.
type HTTPServer struct {
	cfg      *config.Config
	handlers *Handlers
	server   *http.Server
	logger   zerolog.Logger
}

func NewHTTPServer(cfg *config.Config, handlers *Handlers, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		handlers: handlers,
		logger:   logger.With().Str("component", "http_server").Logger(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/tasks", handlers.CreateTask).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks", handlers.ListTasks).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{id}", handlers.GetTask).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{id}", handlers.UpdateTask).Methods(http.MethodPut)
	r.HandleFunc("/api/tasks/{id}", handlers.DeleteTask).Methods(http.MethodDelete)
	r.HandleFunc("/api/sync", handlers.TriggerSync).Methods(http.MethodPost)
	r.HandleFunc("/api/sync/failed", handlers.FailedItems).Methods(http.MethodGet)
	r.HandleFunc("/api/status", handlers.Status).Methods(http.MethodGet)
	r.HandleFunc("/api/health", handlers.Health).Methods(http.MethodGet)

	guard := newGuard(&cfg.API)
	handler := srv.loggingMiddleware(guard.Wrap(r))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// A sync run spans several batch timeouts; the write deadline has to
		// outlast the slowest realistic run.
		WriteTimeout: 2 * time.Minute,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(r.URL.Path)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("dur", time.Since(start)).
			Msg("http")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
