package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/models"
)

// healthHandler reports liveness (GET /health).
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status":    string(models.APIStatusOK),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// StatsResult is the payload of GET /stats.
type StatsResult struct {
	ActiveSessions int `json:"active_sessions"`
	SessionsInFlow int `json:"sessions_in_flow"`
	ActiveWorkers  int `json:"active_workers"`
}

// statsHandler reports session counts (GET /stats).
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	stats := s.engine.Sessions().Stats()
	result := StatsResult{
		ActiveSessions: stats.ActiveSessions,
		SessionsInFlow: stats.SessionsInFlow,
		ActiveWorkers:  s.router.ActiveWorkers(),
	}
	slog.Debug("Server.statsHandler: stats computed", "active_sessions", result.ActiveSessions, "sessions_in_flow", result.SessionsInFlow)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}
