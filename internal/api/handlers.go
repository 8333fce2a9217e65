// Package api provides HTTP handlers for the eligibility agent endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carelinq/eligibility-agent/internal/models"
)

// messageRequest is the body of a conversation message turn.
type messageRequest struct {
	Message string `json:"message"`
}

// startRequest is the body of a conversation start.
type startRequest struct {
	InitialMessage string `json:"initial_message"`
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

func (s *Server) startConversationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.startConversationHandler: processing start request")

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.startConversationHandler: failed to decode JSON", "error", err)
		writeJSON(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.InitialMessage == "" {
		writeJSON(w, http.StatusBadRequest, models.Error("initial_message is required"))
		return
	}

	result, err := s.engine.Start(r.Context(), req.InitialMessage)
	if err != nil {
		if errors.Is(err, models.ErrEmptyMessage) || errors.Is(err, models.ErrMessageTooLong) {
			writeJSON(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.startConversationHandler: failed to start conversation", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to start conversation"))
		return
	}
	writeJSON(w, http.StatusCreated, models.Success(result))
}

func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	conversationID := chi.URLParam(r, "conversationID")
	slog.Debug("Server.messageHandler: processing message", "conversationID", conversationID)

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.messageHandler: failed to decode JSON", "error", err)
		writeJSON(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	result, err := s.engine.Advance(r.Context(), conversationID, req.Message)
	if err != nil {
		s.writeEngineError(w, "messageHandler", conversationID, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Success(result))
}

func (s *Server) getConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	slog.Debug("Server.getConversationHandler: fetching conversation", "conversationID", conversationID)

	state, err := s.engine.Get(conversationID)
	if err != nil {
		s.writeEngineError(w, "getConversationHandler", conversationID, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Success(state))
}

func (s *Server) endConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	slog.Debug("Server.endConversationHandler: ending conversation", "conversationID", conversationID)

	if err := s.engine.End(conversationID); err != nil {
		slog.Error("Server.endConversationHandler: failed to end conversation", "error", err, "conversationID", conversationID)
		writeJSON(w, http.StatusInternalServerError, models.Error("Failed to end conversation"))
		return
	}
	writeJSON(w, http.StatusOK, models.SuccessWithMessage("Conversation ended", nil))
}

func (s *Server) directCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.directCheckHandler: processing direct check")

	var params models.CheckEligibilityParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		slog.Warn("Server.directCheckHandler: failed to decode JSON", "error", err)
		writeJSON(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	result, err := s.engine.DirectCheck(r.Context(), params)
	if err != nil {
		slog.Warn("Server.directCheckHandler: validation failed", "error", err)
		writeJSON(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	slog.Info("Server.directCheckHandler: check complete", "memberID", params.MemberID, "outcome", result.Outcome)
	writeJSON(w, http.StatusOK, models.Success(result))
}

func (s *Server) testMembersHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.Success(s.engine.Gateway().ListTestMembers()))
}

func (s *Server) proceduresHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.Success(s.engine.Gateway().ListProcedures()))
}

func (s *Server) medicationsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.Success(s.engine.Gateway().ListMedications()))
}

// writeEngineError maps engine errors to HTTP status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, handler, conversationID string, err error) {
	switch {
	case errors.Is(err, models.ErrConversationNotFound):
		slog.Warn("Server."+handler+": conversation not found", "conversationID", conversationID)
		writeJSON(w, http.StatusNotFound, models.Error("Conversation not found"))
	case errors.Is(err, models.ErrEmptyMessage), errors.Is(err, models.ErrMessageTooLong):
		slog.Warn("Server."+handler+": invalid message", "error", err, "conversationID", conversationID)
		writeJSON(w, http.StatusBadRequest, models.Error(err.Error()))
	default:
		slog.Error("Server."+handler+": internal error", "error", err, "conversationID", conversationID)
		writeJSON(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}
