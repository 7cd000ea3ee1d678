package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/anyclaw/anyclaw/internal/database"
	"github.com/anyclaw/anyclaw/internal/gateway"
	"github.com/anyclaw/anyclaw/internal/middleware"
	"github.com/anyclaw/anyclaw/internal/models"
	"github.com/go-chi/chi/v5"
	"rsc.io/qr"
)

// GatewayService is the slice of *gateway.Orchestrator the HTTP layer drives.
type GatewayService interface {
	GetOrCreate(ctx context.Context, userID string) (*models.Gateway, bool, error)
	Start(ctx context.Context, gatewayID string, force bool) error
	Status(ctx context.Context, gatewayID string) (*gateway.StatusReport, error)
	QRCode(ctx context.Context, gatewayID string) (*gateway.QRResult, error)
	Remove(ctx context.Context, gatewayID string) error
}

type GatewaysHandler struct {
	db       *database.DB
	gateways GatewayService
}

func NewGatewaysHandler(db *database.DB, gateways GatewayService) *GatewaysHandler {
	return &GatewaysHandler{db: db, gateways: gateways}
}

// Create returns the tenant's gateway, allocating one on first call. An
// existing gateway comes back with 200.
func (h *GatewaysHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	gw, created, err := h.gateways.GetOrCreate(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		h.db.LogAudit(r.Context(), userID, database.AuditGatewayCreated, "gateway", gw.ID, gw.Profile)
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{"gateway": gw})
}

// List returns the session tenant's gateways. There is at most one.
func (h *GatewaysHandler) List(w http.ResponseWriter, r *http.Request) {
	gateways := []models.Gateway{}
	gw, err := h.db.GetGatewayByUser(r.Context(), middleware.GetUserID(r.Context()))
	switch {
	case err == nil:
		gateways = append(gateways, *gw)
	case !errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusInternalServerError, "failed to list gateways")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"gateways": gateways})
}

// Get merges the stored record with a live status probe. A failed probe
// still returns the stored record.
func (h *GatewaysHandler) Get(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.ownedGateway(w, r)
	if !ok {
		return
	}
	resp := map[string]interface{}{"gateway": gw}
	if rep, err := h.gateways.Status(r.Context(), gw.ID); err == nil {
		resp["gateway"] = rep.Gateway
		resp["status"] = rep.Status
		resp["phone"] = rep.Phone
		resp["serviceActive"] = rep.ServiceActive
		resp["serviceState"] = rep.ServiceState
	} else {
		resp["statusError"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Start installs and starts the unit. It is also the retry path for a
// gateway in error. A connected gateway is only restarted with ?force=1.
func (h *GatewaysHandler) Start(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.ownedGateway(w, r)
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if err := h.gateways.Start(r.Context(), gw.ID, force); err != nil {
		writeServiceError(w, err)
		return
	}
	h.db.LogAudit(r.Context(), gw.UserID, database.AuditGatewayStarted, "gateway", gw.ID, "")
	writeJSON(w, http.StatusOK, map[string]string{"message": "gateway started", "status": models.GatewayPairing})
}

func (h *GatewaysHandler) QR(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.ownedGateway(w, r)
	if !ok {
		return
	}
	res, err := h.gateways.QRCode(r.Context(), gw.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var code interface{}
	if res.QR != "" {
		code = res.QR
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"qr": code, "status": res.Status})
}

// QRImage renders the pending pairing payload as a PNG.
func (h *GatewaysHandler) QRImage(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.ownedGateway(w, r)
	if !ok {
		return
	}
	res, err := h.gateways.QRCode(r.Context(), gw.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if res.QR == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no QR code available", "status": res.Status})
		return
	}
	code, err := qr.Encode(res.QR, qr.M)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode QR code")
		return
	}
	code.Scale = 6
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(code.PNG())
}

func (h *GatewaysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	gw, ok := h.ownedGateway(w, r)
	if !ok {
		return
	}
	if err := h.gateways.Remove(r.Context(), gw.ID); err != nil {
		writeServiceError(w, err)
		return
	}
	h.db.LogAudit(r.Context(), gw.UserID, database.AuditGatewayRemoved, "gateway", gw.ID, gw.Profile)
	writeJSON(w, http.StatusOK, map[string]string{"message": "gateway removed"})
}

func (h *GatewaysHandler) ownedGateway(w http.ResponseWriter, r *http.Request) (*models.Gateway, bool) {
	gw, err := h.db.GetGateway(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "gateway not found")
		} else {
			writeError(w, http.StatusInternalServerError, "failed to load gateway")
		}
		return nil, false
	}
	if gw.UserID != middleware.GetUserID(r.Context()) {
		writeError(w, http.StatusNotFound, "gateway not found")
		return nil, false
	}
	return gw, true
}
