package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/nl2sqlchat/nl2sqlchat/internal/auth"
	"github.com/nl2sqlchat/nl2sqlchat/internal/query"
	"github.com/nl2sqlchat/nl2sqlchat/internal/schooldb"
)

type tablePreview struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func handleListTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.QueryEngine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TABLES_NOT_CONFIGURED", "query engine is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	tables := schooldb.Tables()
	items := make([]tablePreview, 0, len(tables))
	for _, table := range tables {
		preview, err := loadPreview(r.Context(), deps.QueryEngine, table)
		if err != nil {
			writeError(r.Context(), w, http.StatusInternalServerError, "PREVIEW_FAILED", "failed to load table preview", true, map[string]any{"table": table, "details": err.Error()})
			return
		}
		items = append(items, preview)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": items})
}

func handleGetTable(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.QueryEngine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TABLES_NOT_CONFIGURED", "query engine is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	table := r.PathValue("table")
	preview, err := loadPreview(r.Context(), deps.QueryEngine, table)
	if err != nil {
		if errors.Is(err, schooldb.ErrUnknownTable) {
			writeError(r.Context(), w, http.StatusNotFound, "TABLE_NOT_FOUND", "table was not found", false, map[string]any{"table": table})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "PREVIEW_FAILED", "failed to load table preview", true, map[string]any{"table": table, "details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func loadPreview(ctx context.Context, engine query.Engine, table string) (tablePreview, error) {
	sqlText, err := schooldb.PreviewSQL(table)
	if err != nil {
		return tablePreview{}, err
	}
	result, err := engine.Execute(ctx, query.Request{SQL: sqlText})
	if err != nil {
		return tablePreview{}, err
	}
	return tablePreview{Name: table, Columns: result.Columns, Rows: result.Rows}, nil
}
