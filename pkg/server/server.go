// Package server exposes a model over HTTP and WebSocket: path reads
// and writes through the tracked accessors, a change-stream for live
// bindings, change history, and snapshots.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reflow-dev/reflow/internal/history"
	"github.com/reflow-dev/reflow/pkg/middleware"
	"github.com/reflow-dev/reflow/pkg/model"
	"github.com/reflow-dev/reflow/pkg/reflow"
	"github.com/reflow-dev/reflow/pkg/snapshot"
)

// Server is the HTTP/WebSocket sync server for one model.
type Server struct {
	model  *model.Model
	config *Config
	logger *slog.Logger

	// history, when set, journals every change.
	history *history.Store

	// snaps, when set, backs the snapshot endpoints.
	snaps snapshot.Store

	upgrader websocket.Upgrader
	router   chi.Router

	httpServer *http.Server

	// cancelFeeds releases change-feed subscriptions on Shutdown.
	cancelFeeds []func()
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHistory journals every model change into the store and mounts
// GET /history/{path}.
func WithHistory(h *history.Store) Option {
	return func(s *Server) {
		s.history = h
	}
}

// WithSnapshots mounts the snapshot endpoints backed by the store.
func WithSnapshots(st snapshot.Store) Option {
	return func(s *Server) {
		s.snaps = st
	}
}

// New creates a sync server for the model.
func New(m *model.Model, config *Config, opts ...Option) *Server {
	config = config.withDefaults()

	s := &Server{
		model:  m,
		config: config,
		logger: slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     config.CheckOrigin,
	}

	if s.history != nil {
		cancel := m.Subscribe(func(c reflow.Change) {
			if err := s.history.Record(c); err != nil {
				s.logger.Error("history record failed", "path", c.Path, "error", err)
			}
		})
		s.cancelFeeds = append(s.cancelFeeds, cancel)
	}

	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	if s.config.EnableMetrics {
		r.Use(middleware.Prometheus())
		r.Handle("/metrics", promhttp.Handler())
		s.cancelFeeds = append(s.cancelFeeds, middleware.TrackModel(s.model))
	}
	if s.config.EnableTracing {
		r.Use(middleware.OTel())
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/model", s.handleSnapshot)
	r.Get("/model/{path}", s.handleGet)
	r.Put("/model/{path}", s.handleSet)
	r.Post("/model/{path}", s.handleDefine)
	r.Get("/live", s.handleLive)

	if s.history != nil {
		r.Get("/history/{path}", s.handleHistory)
	}
	if s.snaps != nil {
		r.Get("/snapshots", s.handleSnapshotList)
		r.Post("/snapshots/{name}", s.handleSnapshotSave)
		r.Post("/snapshots/{name}/restore", s.handleSnapshotRestore)
	}

	return r
}

// ServeHTTP implements http.Handler, so the server can be mounted in a
// larger router or driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start runs the HTTP server until Shutdown or a listener error.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("sync server listening", "address", s.config.Address)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server and releases feed
// subscriptions.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, cancel := range s.cancelFeeds {
		cancel()
	}
	s.cancelFeeds = nil

	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// valueEnvelope is the JSON body for writes and the response for
// reads.
type valueEnvelope struct {
	Path  string `json:"path,omitempty"`
	Value any    `json:"value"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.model.Snapshot())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "path")

	v, err := s.model.Get(path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, valueEnvelope{Path: path, Value: v})
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "path")

	var body valueEnvelope
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := s.model.Set(path, body.Value); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDefine(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "path")

	var body valueEnvelope
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := s.model.Define(path, body.Value); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "path")

	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.history.ByPath(path, limit)
	if err != nil {
		s.logger.Error("history query failed", "path", path, "error", err)
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSnapshotList(w http.ResponseWriter, r *http.Request) {
	names, err := s.snaps.List(r.Context())
	if err != nil {
		s.logger.Error("snapshot list failed", "error", err)
		http.Error(w, "snapshot list failed", http.StatusInternalServerError)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleSnapshotSave(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := snapshot.Save(r.Context(), s.snaps, name, s.model); err != nil {
		s.logger.Error("snapshot save failed", "name", name, "error", err)
		http.Error(w, "snapshot save failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleSnapshotRestore(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	err := snapshot.Restore(r.Context(), s.snaps, name, s.model)
	if errors.Is(err, snapshot.ErrNotFound) {
		http.Error(w, "snapshot not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("snapshot restore failed", "name", name, "error", err)
		http.Error(w, "snapshot restore failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps core errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var pe *reflow.PathError
	if errors.As(err, &pe) {
		middleware.CountPathError()

		status := http.StatusBadRequest
		switch {
		case errors.Is(err, reflow.ErrPathNotFound), errors.Is(err, reflow.ErrNotTracked):
			status = http.StatusNotFound
		case errors.Is(err, reflow.ErrSlotExists):
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]string{"error": pe.Error()})
		return
	}

	s.logger.Error("request failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
