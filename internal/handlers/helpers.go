package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/anyclaw/anyclaw/internal/gateway"
	"github.com/anyclaw/anyclaw/internal/logger"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps orchestration errors onto status codes. Unknown
// errors carry their full message so the runtime's diagnostics reach the
// dashboard.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, gateway.ErrAgentActive):
		writeError(w, http.StatusBadRequest, "agent already active")
	case errors.Is(err, gateway.ErrAlreadyConnected):
		writeError(w, http.StatusConflict, "gateway already connected; retry with force=1 to restart it")
	default:
		logger.Error("%v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1MB limit
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
