package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/alejandrodnm/bnplbot/internal/application/engine"
	"github.com/alejandrodnm/bnplbot/internal/domain"
)

const (
	requestTimeout     = 30 * time.Second
	shutdownTimeout    = 5 * time.Second
	defaultHistorySpan = 24 * time.Hour
	defaultSummaryDays = 7
)

// Controller is the subset of the engine the HTTP surface drives.
type Controller interface {
	Status(ctx context.Context) domain.StatusReport
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	RunScenario(ctx context.Context, t domain.ScenarioType) (domain.ScenarioResult, error)
	History(ctx context.Context, from, to time.Time) ([]domain.ActivityEntry, error)
	Summary(ctx context.Context, from, to time.Time) ([]domain.ActivitySummaryRow, error)
}

// Server expone control y estado del bot por HTTP.
type Server struct {
	ctrl    Controller
	router  *mux.Router
	metrics http.Handler
	now     func() time.Time
}

// NewServer arma el router. metrics puede ser nil.
func NewServer(ctrl Controller, metrics http.Handler) *Server {
	s := &Server{ctrl: ctrl, router: mux.NewRouter(), metrics: metrics, now: time.Now}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestID, s.logging)

	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/pause", s.handlePause).Methods(http.MethodPost)
	s.router.HandleFunc("/resume", s.handleResume).Methods(http.MethodPost)
	s.router.HandleFunc("/scenarios/{type}", s.handleRunScenario).Methods(http.MethodPost)
	s.router.HandleFunc("/activity", s.handleActivity).Methods(http.MethodGet)
	s.router.HandleFunc("/activity/summary", s.handleSummary).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe bloquea hasta que ctx se cancela y luego hace shutdown ordenado.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("api: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api.ListenAndServe: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api.ListenAndServe: shutdown: %w", err)
	}
	slog.Info("api: stopped")
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status(r.Context()))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Pause(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Resume(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func (s *Server) handleRunScenario(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["type"]
	t, ok := domain.ParseScenarioType(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown scenario %q", name))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := s.ctrl.RunScenario(ctx, t)
	switch {
	case errors.Is(err, engine.ErrCannotRun):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	to := s.now()
	from := to.Add(-defaultHistorySpan)
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("from: %w", err))
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("to: %w", err))
			return
		}
	}

	rows, err := s.ctrl.History(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rows == nil {
		rows = []domain.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	days := defaultSummaryDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("days must be a positive integer"))
			return
		}
		days = n
	}

	to := s.now()
	rows, err := s.ctrl.Summary(r.Context(), to.AddDate(0, 0, -days), to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if rows == nil {
		rows = []domain.ActivitySummaryRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// --- middleware ---

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString()[:8])
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		slog.Debug("api: request",
			"id", w.Header().Get("X-Request-ID"),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
