package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/maerai/maer/internal/auth"
	"github.com/maerai/maer/internal/conversation"
	"github.com/maerai/maer/internal/schema"
	"github.com/maerai/maer/internal/session"
)

type handlers struct {
	sessions SessionManager
	analyst  Analyst
	logger   *slog.Logger
}

type sessionResponse struct {
	SessionID     string    `json:"session_id"`
	Owner         string    `json:"owner"`
	CreatedAt     time.Time `json:"created_at"`
	ShowReasoning bool      `json:"show_reasoning"`
}

type memoryResponse struct {
	Turns []conversation.Turn `json:"turns"`
	Limit int                 `json:"limit"`
}

type schemaResponse struct {
	Tables []schema.Table `json:"tables"`
	Text   string         `json:"text"`
}

type reasoningRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *handlers) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", h.createSession)
	mux.HandleFunc("DELETE /v1/sessions/{session}", h.closeSession)
	mux.HandleFunc("POST /v1/sessions/{session}/reload", h.withSession("", h.reloadSession))
	mux.HandleFunc("GET /v1/sessions/{session}/memory", h.withSession(auth.RoleAnalyst, h.getMemory))
	mux.HandleFunc("DELETE /v1/sessions/{session}/memory", h.withSession(auth.RoleAnalyst, h.resetMemory))
	mux.HandleFunc("PUT /v1/sessions/{session}/reasoning", h.withSession(auth.RoleAnalyst, h.setReasoning))
	mux.HandleFunc("GET /v1/sessions/{session}/schema", h.withSession("", h.getSchema))
	mux.HandleFunc("GET /v1/sessions/{session}/overview", h.withSession(auth.RoleAnalyst, h.getOverview))
	mux.HandleFunc("POST /v1/sessions/{session}/questions", h.withSession(auth.RoleAnalyst, h.submitQuestion))
	mux.HandleFunc("POST /v1/sessions/{session}/query", h.withSession(auth.RoleSQLLab, h.runQuery))
	mux.HandleFunc("POST /v1/sessions/{session}/presets/{preset}", h.withSession(auth.RoleAnalyst, h.runPreset))
	mux.HandleFunc("GET /v1/presets", h.listPresets)
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

// withSession resolves the {session} path value for the calling principal.
// An empty role only requires authentication.
func (h *handlers) withSession(role string, next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r, role)
		if !ok {
			return
		}
		sess, err := h.sessions.Get(r.PathValue("session"), identity.Principal)
		if err != nil {
			writeSessionError(w, r, err)
			return
		}
		next(w, r, sess)
	}
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, "")
	if !ok {
		return
	}
	sess, err := h.sessions.Create(r.Context(), identity.Principal)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (h *handlers) closeSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, "")
	if !ok {
		return
	}
	if err := h.sessions.Close(r.PathValue("session"), identity.Principal); err != nil {
		writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) reloadSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := h.sessions.Reload(r.Context(), sess); err != nil {
		if errors.Is(err, session.ErrClosed) {
			writeSessionError(w, r, err)
			return
		}
		if h.logger != nil {
			h.logger.WarnContext(r.Context(), "dataset reload failed", slog.String("session_id", sess.ID), slog.String("error", err.Error()))
		}
		writeError(r.Context(), w, http.StatusServiceUnavailable, "DATASET_RELOAD_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (h *handlers) getMemory(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, memoryResponse{Turns: sess.Memory.Turns(), Limit: sess.Memory.Limit()})
}

func (h *handlers) resetMemory(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	h.analyst.ResetMemory(sess)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setReasoning(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var request reasoningRequest
	if !decodeBody(w, r, &request) {
		return
	}
	if request.Enabled == nil {
		writeError(r.Context(), w, http.StatusBadRequest, "ENABLED_REQUIRED", "enabled is required", false, nil)
		return
	}
	h.analyst.SetReasoningDisplay(sess, *request.Enabled)
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (h *handlers) getSchema(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	tables, text, err := h.analyst.Schema(r.Context(), sess)
	if err != nil {
		writeEngineError(w, r, "SCHEMA_UNAVAILABLE", err)
		return
	}
	writeJSON(w, http.StatusOK, schemaResponse{Tables: tables, Text: text})
}

func (h *handlers) getOverview(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	overview, err := h.analyst.Overview(r.Context(), sess)
	if err != nil {
		writeEngineError(w, r, "QUERY_FAILED", err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func toSessionResponse(sess *session.Session) sessionResponse {
	return sessionResponse{
		SessionID:     sess.ID,
		Owner:         sess.Owner,
		CreatedAt:     sess.CreatedAt,
		ShowReasoning: sess.ShowReasoning(),
	}
}

func requireIdentity(w http.ResponseWriter, r *http.Request, role string) (auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication is required", false, nil)
		return auth.Identity{}, false
	}
	if role != "" && !identity.HasRole(role) {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", "missing required role "+role, false, map[string]any{"role": role})
		return auth.Identity{}, false
	}
	return identity, true
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", err.Error(), false, nil)
	case errors.Is(err, session.ErrForbidden):
		writeError(r.Context(), w, http.StatusForbidden, "SESSION_FORBIDDEN", err.Error(), false, nil)
	case errors.Is(err, session.ErrLimitReached):
		writeError(r.Context(), w, http.StatusTooManyRequests, "SESSION_LIMIT_REACHED", err.Error(), true, nil)
	case errors.Is(err, session.ErrClosed):
		writeError(r.Context(), w, http.StatusConflict, "SESSION_CLOSED", err.Error(), false, nil)
	default:
		writeError(r.Context(), w, http.StatusServiceUnavailable, "DATASET_UNAVAILABLE", err.Error(), true, nil)
	}
}

func writeEngineError(w http.ResponseWriter, r *http.Request, code string, err error) {
	if errors.Is(err, session.ErrClosed) {
		writeSessionError(w, r, err)
		return
	}
	writeError(r.Context(), w, http.StatusBadRequest, code, err.Error(), false, nil)
}
