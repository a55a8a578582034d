package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ravenhacks/backend/internal/auth"
	"github.com/ravenhacks/backend/internal/model"
	"github.com/ravenhacks/backend/internal/service"
)

// UserHandler exposes registration, email confirmation, the current
// account, and the Organizer-only admin surface.
type UserHandler struct {
	authSvc *service.AuthService
	userSvc *service.UserService
	logger  *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(authSvc *service.AuthService, userSvc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{authSvc: authSvc, userSvc: userSvc, logger: logger}
}

// HandleRegister creates an email/password account and logs it in.
//
// HTTP: POST /api/users
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.authSvc.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// HandleConfirm redeems a single-use email confirmation token.
//
// HTTP: POST /api/users/confirm
func (h *UserHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.authSvc.Confirm(r.Context(), req.Token); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "email confirmed"})
}

// HandleMe returns the authenticated caller's account. The middleware
// already loaded it into the context; no second lookup.
//
// HTTP: GET /api/users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "authentication required"})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleList returns every account. Organizer-only.
//
// HTTP: GET /api/users
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.userSvc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleGet returns a single account by uuid. Organizer-only.
//
// HTTP: GET /api/users/{uuid}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.userSvc.Get(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleSetRole changes an account's role. Organizer-only.
//
// HTTP: PATCH /api/users/{uuid}/role
func (h *UserHandler) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role model.Role `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.userSvc.SetRole(r.Context(), chi.URLParam(r, "uuid"), req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleDelete removes an account and everything owned by it.
// Organizer-only.
//
// HTTP: DELETE /api/users/{uuid}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.userSvc.Delete(r.Context(), chi.URLParam(r, "uuid")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
}
