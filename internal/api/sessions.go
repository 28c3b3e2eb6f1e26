package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nl2sqlchat/nl2sqlchat/internal/auth"
	"github.com/nl2sqlchat/nl2sqlchat/internal/chat"
)

type askRequest struct {
	Question string `json:"question"`
}

type sessionResponse struct {
	SessionID string      `json:"session_id"`
	CreatedAt time.Time   `json:"created_at"`
	Turns     []chat.Turn `json:"turns"`
}

func handleStartSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "chat sessions are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	session := deps.Sessions.Start(auth.PrincipalFromContext(r.Context()))
	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID: session.ID,
		CreatedAt: session.CreatedAt,
		Turns:     []chat.Turn{},
	})
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: session.ID,
		CreatedAt: session.CreatedAt,
		Turns:     session.Turns(),
	})
}

func handleEndSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "chat sessions are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	if err := deps.Sessions.End(r.PathValue("id"), auth.PrincipalFromContext(r.Context())); err != nil {
		writeSessionNotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "chat assistant is not configured", false, nil)
		return
	}
	session, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}

	var req askRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	exchange, err := deps.Assistant.Ask(r.Context(), session, req.Question)
	if err != nil {
		writeAskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"question":   exchange.Question,
		"answer":     exchange.Answer,
	})
}

// writeAskError maps each failure kind to its own status and code so the
// caller can tell a bad generation from a failed query or an outage.
func writeAskError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyQuestion):
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), false, nil)
		return
	case errors.Is(err, chat.ErrSessionClosed), errors.Is(err, chat.ErrSessionNotFound):
		writeSessionNotFound(w, r)
		return
	}

	var chatErr *chat.Error
	if !errors.As(err, &chatErr) {
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", "failed to answer question", false, nil)
		return
	}
	extra := map[string]any{"kind": chatErr.Kind, "stage": chatErr.Stage}
	switch chatErr.Kind {
	case chat.KindMalformedOutput:
		addDetails(extra, chatErr.Err)
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "MALFORMED_SQL", chatErr.Message, false, extra)
	case chat.KindExecution:
		addDetails(extra, chatErr.Err)
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "QUERY_EXECUTION_FAILED", chatErr.Message, false, extra)
	default:
		status := http.StatusBadGateway
		if chatErr.Timeout() {
			status = http.StatusGatewayTimeout
		}
		writeError(r.Context(), w, status, "UPSTREAM_FAILED", chatErr.Message, true, extra)
	}
}

func addDetails(extra map[string]any, err error) {
	if err != nil {
		extra["details"] = err.Error()
	}
}

func sessionFromRequest(deps Dependencies, w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "chat sessions are not configured", false, nil)
		return nil, false
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return nil, false
	}
	id := strings.TrimSpace(r.PathValue("id"))
	session, err := deps.Sessions.Get(id, auth.PrincipalFromContext(r.Context()))
	if err != nil {
		writeSessionNotFound(w, r)
		return nil, false
	}
	return session, true
}

func writeSessionNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "chat session was not found or has expired", false, nil)
}
