package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/anyclaw/anyclaw/internal/database"
	"github.com/anyclaw/anyclaw/internal/netutil"
	"github.com/anyclaw/anyclaw/internal/openclaw"
)

var startTime = time.Now()

// AppVersion is set from main at startup via ldflags.
var AppVersion = "dev"

// RuntimeReader reports on the shared runtime install.
type RuntimeReader interface {
	GlobalStatus(ctx context.Context) (openclaw.RuntimeStatus, error)
	ListAgents(ctx context.Context, profile string) (string, error)
}

type SystemHandler struct {
	db      *database.DB
	runtime RuntimeReader
}

func NewSystemHandler(db *database.DB, rt RuntimeReader) *SystemHandler {
	return &SystemHandler{db: db, runtime: rt}
}

// Health is unauthenticated and only checks the database.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": AppVersion})
}

func (h *SystemHandler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":    AppVersion,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     time.Since(startTime).Round(time.Second).String(),
		"lan_ip":     netutil.LANIP(),
		"tailnet_ip": netutil.TailscaleIP(),
	})
}

// Runtime reports the shared install's health. A failing probe is reported
// in the body rather than as an HTTP error.
func (h *SystemHandler) Runtime(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{}
	status, err := h.runtime.GlobalStatus(r.Context())
	if err != nil {
		resp["running"] = false
		resp["error"] = err.Error()
	} else {
		resp["running"] = status.Running
		resp["agents"] = status.Agents
		resp["sessions"] = status.Sessions
	}
	if list, err := h.runtime.ListAgents(r.Context(), ""); err == nil {
		resp["agentList"] = list
	}
	writeJSON(w, http.StatusOK, resp)
}
