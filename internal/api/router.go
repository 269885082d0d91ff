package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mqtt2graphite/internal/bridge"
)

// Event listing limits.
const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// handleHealth reports 200 only while the broker session is up. When a
// broker checker is configured the transport must agree with the session
// state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.status.State()
	healthy := state == bridge.StateConnected
	body := map[string]any{
		"state":   state.String(),
		"version": s.version,
	}
	if s.broker != nil {
		if err := s.broker.HealthCheck(r.Context()); err != nil {
			healthy = false
			body["broker"] = err.Error()
		} else {
			body["broker"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

// statsResponse is the body of GET /api/v1/stats.
type statsResponse struct {
	ClientID       string `json:"client_id"`
	State          string `json:"state"`
	Version        string `json:"version"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	Messages       uint64 `json:"messages"`
	LinesWritten   uint64 `json:"lines_written"`
	DecodeFailures uint64 `json:"decode_failures"`
	FlushFailures  uint64 `json:"flush_failures"`
	Reconnects     uint64 `json:"reconnects"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.status.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		ClientID:       s.clientID,
		State:          s.status.State().String(),
		Version:        s.version,
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
		Messages:       stats.Messages,
		LinesWritten:   stats.LinesWritten,
		DecodeFailures: stats.DecodeFailures,
		FlushFailures:  stats.FlushFailures,
		Reconnects:     stats.Reconnects,
	})
}

// eventResponse is one entry of GET /api/v1/events.
type eventResponse struct {
	ID         int64     `json:"id"`
	ClientID   string    `json:"client_id"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session journal is disabled")
		return
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := s.events.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing session events failed", "error", err)
		writeInternalError(w, "failed to read session journal")
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			ID:         e.ID,
			ClientID:   e.ClientID,
			Kind:       string(e.Kind),
			Detail:     e.Detail,
			OccurredAt: e.OccurredAt.UTC(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": out,
		"count":  len(out),
	})
}
