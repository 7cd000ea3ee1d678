package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/anyclaw/anyclaw/internal/auth"
	"github.com/anyclaw/anyclaw/internal/database"
	"github.com/anyclaw/anyclaw/internal/logger"
	"github.com/anyclaw/anyclaw/internal/middleware"
)

const minPhoneDigits = 8

type AuthHandler struct {
	db      *database.DB
	auth    *auth.Service
	otps    *auth.OTPs
	devMode bool
}

func NewAuthHandler(db *database.DB, authService *auth.Service, otps *auth.OTPs, devMode bool) *AuthHandler {
	return &AuthHandler{db: db, auth: authService, otps: otps, devMode: devMode}
}

// Login issues a one-time code for a phone number. Delivery is out of band;
// in dev mode the code is echoed back.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	phone := auth.NormalizePhone(req.Phone)
	if len(phone) < minPhoneDigits {
		writeError(w, http.StatusBadRequest, "valid phone number required")
		return
	}

	code, err := h.otps.Issue(r.Context(), phone)
	if err != nil {
		logger.Error("Issue code for %s: %v", phone, err)
		writeError(w, http.StatusInternalServerError, "failed to issue code")
		return
	}

	resp := map[string]string{"message": "OTP sent"}
	if h.devMode {
		logger.Info("OTP for %s: %s", phone, code)
		resp["otp"] = code
	}
	writeJSON(w, http.StatusOK, resp)
}

// Verify consumes a code, upserts the tenant and starts a session.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
		OTP   string `json:"otp"`
		Name  string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	phone := auth.NormalizePhone(req.Phone)
	if phone == "" || req.OTP == "" {
		writeError(w, http.StatusBadRequest, "phone and otp required")
		return
	}

	if err := h.otps.Verify(r.Context(), phone, strings.TrimSpace(req.OTP)); err != nil {
		if errors.Is(err, auth.ErrInvalidCode) {
			writeError(w, http.StatusUnauthorized, "invalid or expired OTP")
			return
		}
		logger.Error("Verify code for %s: %v", phone, err)
		writeError(w, http.StatusInternalServerError, "failed to verify code")
		return
	}

	user, err := h.db.GetUserByPhone(r.Context(), phone)
	switch {
	case err == nil:
		if name := strings.TrimSpace(req.Name); name != "" && name != user.Name {
			user, err = h.db.UpsertUser(r.Context(), phone, name)
		} else {
			err = h.db.TouchUser(r.Context(), user.ID)
		}
	case errors.Is(err, database.ErrNotFound):
		user, err = h.db.UpsertUser(r.Context(), phone, strings.TrimSpace(req.Name))
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	token, err := h.auth.GenerateToken(user.ID, user.Phone)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !h.devMode,
		MaxAge:   int(h.auth.TokenTTL().Seconds()),
	})

	h.db.LogAudit(r.Context(), user.ID, database.AuditLogin, "auth", user.ID, "")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	h.db.LogAudit(r.Context(), userID, database.AuditLogout, "auth", userID, "")
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.db.GetUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}
