package handler

import (
	"log/slog"
	"net/http"

	"github.com/ravenhacks/backend/internal/auth"
	"github.com/ravenhacks/backend/internal/service"
)

// AuthHandler exposes the password-based authentication endpoints:
// login, refresh, reset request/completion, logout, and invalidate-all.
type AuthHandler struct {
	svc    *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// HandleLogin authenticates an email/password pair.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleRefresh exchanges a refresh token for a new access token.
//
// HTTP: POST /api/auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	accessToken, err := h.svc.Refresh(r.Context(), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accessToken": accessToken})
}

// HandleResetRequest starts a password reset. Always responds 200;
// the service obfuscates whether the email exists.
//
// HTTP: POST /api/auth/reset
func (h *AuthHandler) HandleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.svc.RequestReset(r.Context(), req.Email); err != nil {
		// Internal failures only; they must not reveal anything either.
		h.logger.Error("reset request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// HandlePerformReset completes a password reset with a reset token.
//
// HTTP: POST /api/auth/performReset
func (h *AuthHandler) HandlePerformReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.svc.PerformReset(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// HandleLogout revokes the caller's presented refresh token. Requires a
// valid access token; the refresh token travels in the body.
//
// HTTP: POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "authentication required"})
		return
	}

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.svc.Logout(r.Context(), user.UUID, req.RefreshToken); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleInvalidate revokes every access and refresh token of the
// caller's account.
//
// HTTP: POST /api/auth/invalidate
func (h *AuthHandler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "authentication required"})
		return
	}

	if err := h.svc.InvalidateAll(r.Context(), user.UUID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "all sessions invalidated"})
}
