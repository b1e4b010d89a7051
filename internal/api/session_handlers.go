// Package api provides session lifecycle management handlers for Present Agent endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/presentagent/present-agent/internal/models"
	"github.com/presentagent/present-agent/internal/store"
)

// completeSessionRequest is the body of POST /sessions/{id}/complete.
type completeSessionRequest struct {
	FinalChoice  string `json:"final_choice,omitempty"`
	Satisfaction *int   `json:"satisfaction,omitempty"`
}

// completeSessionHandler handles POST /sessions/{id}/complete
func (s *Server) completeSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	sessionID := r.PathValue("id")
	slog.Debug("Server.completeSessionHandler: invoked", "session_id", sessionID)

	var req completeSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.completeSessionHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Satisfaction != nil && (*req.Satisfaction < models.MinSatisfactionScore || *req.Satisfaction > models.MaxSatisfactionScore) {
		slog.Warn("Server.completeSessionHandler: invalid satisfaction score", "satisfaction", *req.Satisfaction)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrInvalidSatisfaction.Error()))
		return
	}

	if err := store.CompleteSession(s.st, sessionID, req.FinalChoice, req.Satisfaction); err != nil {
		s.writeSessionError(w, "completeSessionHandler", sessionID, err)
		return
	}

	slog.Info("Server.completeSessionHandler: session completed", "session_id", sessionID, "final_choice_set", req.FinalChoice != "")
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session completed", nil))
}

// abandonSessionHandler handles POST /sessions/{id}/abandon
func (s *Server) abandonSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	sessionID := r.PathValue("id")
	slog.Debug("Server.abandonSessionHandler: invoked", "session_id", sessionID)

	if err := store.AbandonSession(s.st, sessionID); err != nil {
		s.writeSessionError(w, "abandonSessionHandler", sessionID, err)
		return
	}

	slog.Info("Server.abandonSessionHandler: session abandoned", "session_id", sessionID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session abandoned", nil))
}

// writeSessionError maps session lifecycle errors to HTTP statuses.
func (s *Server) writeSessionError(w http.ResponseWriter, handler, sessionID string, err error) {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		slog.Warn("Server."+handler+": session not found", "session_id", sessionID)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
	case errors.Is(err, models.ErrSessionNotActive):
		slog.Warn("Server."+handler+": session not active", "session_id", sessionID)
		writeJSONResponse(w, http.StatusConflict, models.Error("Session is not active"))
	case errors.Is(err, models.ErrInvalidSatisfaction):
		slog.Warn("Server."+handler+": invalid satisfaction score", "session_id", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrInvalidSatisfaction.Error()))
	default:
		slog.Error("Server."+handler+": store error", "error", err, "session_id", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update session"))
	}
}
