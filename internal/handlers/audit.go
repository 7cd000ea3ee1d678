package handlers

import (
	"net/http"
	"strconv"

	"github.com/anyclaw/anyclaw/internal/database"
	"github.com/anyclaw/anyclaw/internal/middleware"
)

type AuditHandler struct {
	db *database.DB
}

func NewAuditHandler(db *database.DB) *AuditHandler {
	return &AuditHandler{db: db}
}

// List returns the session tenant's recent events. ?limit caps the page at
// 500 and defaults to 100.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.db.ListAudit(r.Context(), middleware.GetUserID(r.Context()), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
