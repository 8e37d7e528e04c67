package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"signalhub/internal/call"
	"signalhub/internal/gateway"
	"signalhub/internal/history"
	"signalhub/internal/presence"
	"signalhub/pkg/types"
)

// Server exposes the operational HTTP surface: health, runtime stats
// and archived call history. The websocket endpoint is mounted
// separately by the application.
type Server struct {
	presence *presence.Registry
	calls    *call.Coordinator
	gateway  *gateway.Registry
	history  *history.Manager
	router   chi.Router
}

func NewServer(pres *presence.Registry, calls *call.Coordinator, gw *gateway.Registry, hist *history.Manager) *Server {
	s := &Server{
		presence: pres,
		calls:    calls,
		gateway:  gw,
		history:  hist,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/calls", s.handleCalls)
	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.history.HealthCheck(ctx); err != nil {
		log.Warn().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]map[string]int{
		"presence": s.presence.Stats(),
		"calls":    s.calls.Stats(),
		"gateway":  s.gateway.Stats(),
	})
}

// handleCalls returns a user's archived call history, newest first.
func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if !types.IsValidUserID(userID) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "missing or invalid user_id",
		})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	calls, err := s.history.CallsForUser(r.Context(), userID, limit)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to query call history")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to query call history",
		})
		return
	}
	if calls == nil {
		calls = []*history.ArchivedCall{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"calls": calls,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("failed to encode response")
	}
}
