package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/maerai/maer/internal/analyst"
	"github.com/maerai/maer/internal/query"
	"github.com/maerai/maer/internal/session"
)

type questionRequest struct {
	Question string `json:"question"`
}

type queryRequest struct {
	SQL string `json:"sql"`
}

type resultResponse struct {
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	Truncated  bool     `json:"truncated"`
	DurationMs int64    `json:"duration_ms"`
}

type presetResultResponse struct {
	Preset analyst.Preset `json:"preset"`
	resultResponse
}

func (h *handlers) submitQuestion(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var request questionRequest
	if !decodeBody(w, r, &request) {
		return
	}
	answer, err := h.analyst.SubmitQuestion(r.Context(), sess, request.Question)
	switch {
	case errors.Is(err, analyst.ErrEmptyQuestion):
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", err.Error(), false, nil)
		return
	case err != nil:
		writeSessionError(w, r, err)
		return
	}
	if answer.Rows == nil {
		answer.Rows = [][]any{}
	}
	if answer.Columns == nil {
		answer.Columns = []string{}
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *handlers) runQuery(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var request queryRequest
	if !decodeBody(w, r, &request) {
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	result, err := h.analyst.RunManualQuery(r.Context(), sess, request.SQL)
	switch {
	case errors.Is(err, analyst.ErrEmptyStatement):
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", err.Error(), false, nil)
		return
	case errors.Is(err, analyst.ErrStatementNotAllowed):
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", err.Error(), false, nil)
		return
	case err != nil:
		writeEngineError(w, r, "QUERY_FAILED", err)
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(result))
}

func (h *handlers) listPresets(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r, ""); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"presets": h.analyst.Presets()})
}

func (h *handlers) runPreset(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	preset, result, err := h.analyst.RunPreset(r.Context(), sess, r.PathValue("preset"))
	switch {
	case errors.Is(err, analyst.ErrUnknownPreset):
		writeError(r.Context(), w, http.StatusNotFound, "PRESET_NOT_FOUND", err.Error(), false, nil)
		return
	case err != nil:
		writeEngineError(w, r, "QUERY_FAILED", err)
		return
	}
	writeJSON(w, http.StatusOK, presetResultResponse{Preset: preset, resultResponse: toResultResponse(result)})
}

func toResultResponse(result query.Result) resultResponse {
	rows := result.Rows
	if rows == nil {
		rows = [][]any{}
	}
	columns := result.Columns
	if columns == nil {
		columns = []string{}
	}
	return resultResponse{
		Columns:    columns,
		Rows:       rows,
		Truncated:  result.Truncated,
		DurationMs: result.Duration.Milliseconds(),
	}
}
