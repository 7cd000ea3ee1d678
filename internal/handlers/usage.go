package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/anyclaw/anyclaw/internal/database"
	"github.com/go-chi/chi/v5"
)

const usageWindowDays = 30

type UsageHandler struct {
	db     *database.DB
	agents *AgentsHandler
	now    func() time.Time
}

func NewUsageHandler(db *database.DB, agents *AgentsHandler) *UsageHandler {
	return &UsageHandler{db: db, agents: agents, now: time.Now}
}

// Record adds message and token counts to today's row. The runtime calls it
// as a webhook, so it carries no session.
func (h *UsageHandler) Record(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		MessagesIn  int `json:"messages_in"`
		MessagesOut int `json:"messages_out"`
		TokensUsed  int `json:"tokens_used"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MessagesIn < 0 || req.MessagesOut < 0 || req.TokensUsed < 0 {
		writeError(w, http.StatusBadRequest, "counts must not be negative")
		return
	}

	if _, err := h.db.GetAgent(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load agent")
		return
	}

	today := h.now().UTC().Format(time.DateOnly)
	if err := h.db.RecordUsage(r.Context(), id, today, req.MessagesIn, req.MessagesOut, req.TokensUsed); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record usage")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Get returns the last 30 days plus all-time totals.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.agents.ownedAgent(w, r)
	if !ok {
		return
	}

	since := h.now().UTC().AddDate(0, 0, -usageWindowDays).Format(time.DateOnly)
	daily, err := h.db.UsageSince(r.Context(), agent.ID, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load usage")
		return
	}
	totals, err := h.db.UsageTotals(r.Context(), agent.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load usage")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agentId": agent.ID,
		"daily":   daily,
		"totals":  totals,
	})
}
