package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nl2sqlchat/nl2sqlchat/internal/auth"
	"github.com/nl2sqlchat/nl2sqlchat/internal/chat"
	"github.com/nl2sqlchat/nl2sqlchat/internal/export"
	"github.com/nl2sqlchat/nl2sqlchat/internal/observability"
)

func handleDownloadResult(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}
	turn, ok := answerTurnFromRequest(session, w, r)
	if !ok {
		return
	}

	payload, err := export.EncodeParquet(turn.Columns, turn.Rows)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "EXPORT_FAILED", "result cannot be exported", false, map[string]any{"details": err.Error()})
		return
	}
	observability.ObserveExport("download")
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("turn-%d.parquet", turn.Index)))
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func handleExportResult(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "result export is not enabled", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleResultExporter); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	session, ok := sessionFromRequest(deps, w, r)
	if !ok {
		return
	}
	turn, ok := answerTurnFromRequest(session, w, r)
	if !ok {
		return
	}

	receipt, err := deps.Exporter.Export(r.Context(), session.ID, turn.Index, turn.Columns, turn.Rows)
	if err != nil {
		if errors.Is(err, export.ErrStoreNotConfigured) {
			writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "result export is not enabled", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "EXPORT_FAILED", "failed to export result", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func answerTurnFromRequest(session *chat.Session, w http.ResponseWriter, r *http.Request) (chat.Turn, bool) {
	index, err := strconv.Atoi(r.PathValue("turn"))
	if err != nil || index < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", "turn must be a non-negative integer", false, nil)
		return chat.Turn{}, false
	}
	turn, ok := session.Turn(index)
	if !ok || turn.Role != chat.RoleAssistant {
		writeError(r.Context(), w, http.StatusNotFound, "RESULT_NOT_FOUND", "turn has no result table", false, map[string]any{"turn": index})
		return chat.Turn{}, false
	}
	return turn, true
}
