// Package server exposes the pipeline's HTTP control surface: status,
// configuration, manual runs, scheduling, and a live log event stream.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"postforge/internal/config"
	"postforge/internal/logbus"
	"postforge/internal/schedule"
	"postforge/internal/stage"
	"postforge/internal/supervisor"
)

// Server wires the control-plane handlers to the supervisor, loop, bus and
// config store. All state lives in the injected collaborators; the server
// itself is stateless.
type Server struct {
	cfg      *config.Store
	registry *stage.Registry
	sup      *supervisor.Supervisor
	loop     *schedule.Loop
	bus      *logbus.Bus
}

func New(cfg *config.Store, registry *stage.Registry, sup *supervisor.Supervisor, loop *schedule.Loop, bus *logbus.Bus) *Server {
	return &Server{cfg: cfg, registry: registry, sup: sup, loop: loop, bus: bus}
}

// Router builds the chi router for the control surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/config", s.handleConfig)
		r.Post("/run", s.handleRun)
		r.Post("/logout", s.handleLogout)
		r.Post("/schedule", s.handleSchedule)
		r.Post("/stop", s.handleStop)
		r.Get("/events", s.handleEvents)
	})
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	values, err := s.cfg.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	active, interval := s.loop.Status()
	running, isRunning := s.sup.Active()

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated":   s.cfg.HasCredentials(),
		"config":          values,
		"scheduled":       active,
		"intervalMinutes": int(interval / time.Minute),
		"running":         isRunning,
		"runningStage":    running,
		"stages":          s.registry.Names(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid config body: %w", err))
		return
	}
	if err := s.cfg.Save(values); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stage string   `json:"stage"`
		Args  []string `json:"args"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid run body: %w", err))
		return
	}

	output, err := s.sup.Run(r.Context(), req.Stage, req.Args)
	switch {
	case errors.Is(err, stage.ErrUnknown):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, supervisor.ErrBusy):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"output": output})
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Logout(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Interval int `json:"interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid schedule body: %w", err))
		return
	}
	if req.Interval <= 0 {
		s.loop.Stop()
		writeJSON(w, http.StatusOK, map[string]any{"scheduled": false})
		return
	}
	s.loop.Start(time.Duration(req.Interval) * time.Minute)
	writeJSON(w, http.StatusOK, map[string]any{"scheduled": true, "intervalMinutes": req.Interval})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.loop.Stop()
	terminated := s.sup.Terminate()
	msg := "terminated active process"
	if !terminated {
		msg = "no active process"
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": true, "terminated": terminated, "message": msg})
}

// handleEvents streams bus events over SSE for the connection's lifetime and
// unsubscribes when the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case e, open := <-sub.C:
			if !open {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				log.Printf("server: cannot encode event: %v", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
