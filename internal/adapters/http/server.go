// Package http exposes runtime sessions over a chi router. The
// program bundles live server-side; clients drive sessions through a
// small JSON protocol that mirrors the engine lifecycle.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skald-lang/skald/internal/logging"
	"github.com/skald-lang/skald/pkg/engine"
	"github.com/skald-lang/skald/pkg/ports"
	"github.com/skald-lang/skald/pkg/script"
)

// Config wires the server's collaborators.
type Config struct {
	Bundles ports.BundleLoader
	Store   ports.SnapshotStore

	// Locker, when set, serializes snapshot and resume of one session
	// across multiple server instances sharing a store.
	Locker ports.DistributedLocker

	// HostFunctions is shared by every session.
	HostFunctions engine.HostFunctionRegistry

	// StepLimit bounds silent work per request. Zero disables the
	// guard, which is unwise for a network-facing host.
	StepLimit int

	Logger *slog.Logger
}

// Server hosts interactive sessions over HTTP.
type Server struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session

	registry        *prometheus.Registry
	eventsTotal     *prometheus.CounterVec
	boundaryErrors  prometheus.Counter
	sessionsStarted prometheus.Counter
}

// session serializes access to one engine. Engines are not safe for
// concurrent advancement.
type session struct {
	mu     sync.Mutex
	bundle string
	eng    *engine.Engine
}

// NewServer creates a Server. A nil Logger discards logs.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	registry := prometheus.NewRegistry()
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*session),
		registry: registry,
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skald_events_total",
			Help: "Events emitted to clients, by type.",
		}, []string{"type"}),
		boundaryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skald_boundary_violations_total",
			Help: "Rejected choose/input/snapshot requests.",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skald_sessions_started_total",
			Help: "Sessions created or resumed.",
		}),
	}
	registry.MustRegister(s.eventsTotal, s.boundaryErrors, s.sessionsStarted)
	return s
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.createSession)
		r.Get("/", s.listSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Delete("/", s.deleteSession)
			r.Post("/next", s.nextOutput)
			r.Post("/choose", s.choose)
			r.Post("/input", s.submitInput)
			r.Post("/snapshot", s.snapshot)
			r.Post("/resume", s.resume)
		})
	})

	return r
}

type createRequest struct {
	Bundle string `json:"bundle"`
	Script string `json:"script,omitempty"`
	Seed   uint32 `json:"seed,omitempty"`
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	Bundle    string `json:"bundle"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	eng, err := s.newEngine(req.Bundle, req.Seed)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := eng.Start(req.Script, nil); err != nil {
		s.writeError(w, err)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &session{bundle: req.Bundle, eng: eng}
	s.mu.Unlock()

	s.sessionsStarted.Inc()
	s.logger.Info("session started", "session", id, "bundle", req.Bundle)
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: id, Bundle: req.Bundle})
}

type resumeRequest struct {
	Bundle string `json:"bundle"`
	Seed   uint32 `json:"seed,omitempty"`
}

// resume rebuilds the session's engine from its stored snapshot.
func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	unlock, err := s.lockSession(r, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer unlock(r.Context())

	snap, err := s.cfg.Store.Load(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	opts, err := s.engineOptions(req.Bundle, req.Seed)
	if err != nil {
		s.writeError(w, err)
		return
	}
	eng, err := engine.Resume(opts, snap)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.mu.Lock()
	s.sessions[id] = &session{bundle: req.Bundle, eng: eng}
	s.mu.Unlock()

	s.sessionsStarted.Inc()
	s.logger.Info("session resumed", "session", id, "bundle", req.Bundle)
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, Bundle: req.Bundle})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	active := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		active = append(active, id)
	}
	s.mu.Unlock()

	saved, err := s.cfg.Store.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{
		"active": active,
		"saved":  saved,
	})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if err := s.cfg.Store.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		s.logger.Debug("delete for unknown session", "session", id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// eventResponse is the wire form of one engine output.
type eventResponse struct {
	Type        string              `json:"type"`
	Text        string              `json:"text,omitempty"`
	Prompt      string              `json:"prompt,omitempty"`
	Items       []engine.ChoiceItem `json:"items,omitempty"`
	DefaultText string              `json:"defaultText,omitempty"`
}

func (s *Server) nextOutput(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.mu.Lock()
	out, err := sess.eng.NextOutput()
	sess.mu.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}

	var resp eventResponse
	switch o := out.(type) {
	case engine.TextOutput:
		resp = eventResponse{Type: "text", Text: o.Text}
	case engine.ChoicesOutput:
		resp = eventResponse{Type: "choices", Prompt: o.PromptText, Items: o.Items}
	case engine.InputOutput:
		resp = eventResponse{Type: "input", Prompt: o.PromptText, DefaultText: o.DefaultText}
	case engine.EndOutput:
		resp = eventResponse{Type: "end"}
	}

	s.eventsTotal.WithLabelValues(resp.Type).Inc()
	writeJSON(w, http.StatusOK, resp)
}

type chooseRequest struct {
	Index int `json:"index"`
}

func (s *Server) choose(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req chooseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sess.mu.Lock()
	err := sess.eng.Choose(req.Index)
	sess.mu.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inputRequest struct {
	Text string `json:"text"`
}

func (s *Server) submitInput(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sess.mu.Lock()
	err := sess.eng.SubmitInput(req.Text)
	sess.mu.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// snapshot persists the session at its current boundary and echoes
// the document.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	sess.mu.Lock()
	snap, err := sess.eng.Snapshot()
	sess.mu.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}

	unlock, err := s.lockSession(r, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer unlock(r.Context())

	if err := s.cfg.Store.Save(r.Context(), id, snap); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("session saved", "session", id)
	writeJSON(w, http.StatusOK, snap)
}

// lockSession takes the cross-instance lock for a session when a
// locker is configured. The returned func is always safe to call.
func (s *Server) lockSession(r *http.Request, id string) (ports.UnlockFunc, error) {
	if s.cfg.Locker == nil {
		return func(context.Context) error { return nil }, nil
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	return s.cfg.Locker.Lock(ctx, id, 30*time.Second)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session, bool) {
	id := chi.URLParam(r, "sessionID")
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func (s *Server) newEngine(bundle string, seed uint32) (*engine.Engine, error) {
	opts, err := s.engineOptions(bundle, seed)
	if err != nil {
		return nil, err
	}
	return engine.New(opts)
}

func (s *Server) engineOptions(bundle string, seed uint32) (engine.Options, error) {
	data, err := s.cfg.Bundles.GetBundle(bundle)
	if err != nil {
		return engine.Options{}, err
	}
	program, err := script.DecodeProgram(data)
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		Program:       program,
		HostFunctions: s.cfg.HostFunctions,
		RandomSeed:    seed,
		StepLimit:     s.cfg.StepLimit,
	}, nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps runtime errors onto HTTP statuses: boundary
// protocol violations are 409, missing things are 404, everything
// else is 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := script.ErrorCode(err)

	switch code {
	case script.CodeNoPendingChoice, script.CodeNoPendingInput,
		script.CodeChoiceIndex, script.CodeChoiceNotFound,
		script.CodeSnapshotNotAllowed:
		status = http.StatusConflict
		s.boundaryErrors.Inc()
	case script.CodeScriptNotFound:
		status = http.StatusNotFound
	}
	if errors.Is(err, ports.ErrSnapshotNotFound) || errors.Is(err, ports.ErrBundleNotFound) {
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
