package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ravenhacks/backend/internal/auth"
	"github.com/ravenhacks/backend/internal/model"
	"github.com/ravenhacks/backend/internal/service"
)

// OAuthHandler exposes the provider signin/link flows. The provider
// name is a chi URL parameter, so GitHub and Discord share handlers.
type OAuthHandler struct {
	svc    *service.OAuthService
	logger *slog.Logger
}

// NewOAuthHandler creates an OAuthHandler.
func NewOAuthHandler(svc *service.OAuthService, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{svc: svc, logger: logger}
}

func providerParam(r *http.Request) model.Provider {
	return model.Provider(chi.URLParam(r, "provider"))
}

// HandleBeginSignin redirects the user-agent to the provider's
// authorization page with a fresh state nonce.
//
// HTTP: GET /api/auth/{provider}
func (h *OAuthHandler) HandleBeginSignin(w http.ResponseWriter, r *http.Request) {
	url, err := h.svc.BeginSignin(r.Context(), providerParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// HandleBeginLink is HandleBeginSignin for an authenticated caller who
// wants to attach the provider identity to their existing account.
//
// HTTP: GET /api/auth/{provider}/link
func (h *OAuthHandler) HandleBeginLink(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "authentication required"})
		return
	}

	url, err := h.svc.BeginLink(r.Context(), providerParam(r), user.UUID)
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// HandleSigninCallback is the provider's redirect target for the
// signin flow. Not directly callable by clients.
//
// HTTP: GET /api/auth/{provider}/callback/signin
func (h *OAuthHandler) HandleSigninCallback(w http.ResponseWriter, r *http.Request) {
	provider := providerParam(r)
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")

	result, err := h.svc.CompleteSignin(r.Context(), provider, state, code)
	if err != nil {
		h.logger.Warn("oauth signin callback rejected",
			slog.String("provider", string(provider)),
			slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleLinkCallback is the provider's redirect target for the link
// flow. The target account is recovered from the state nonce; no new
// tokens are issued.
//
// HTTP: GET /api/auth/{provider}/callback/link
func (h *OAuthHandler) HandleLinkCallback(w http.ResponseWriter, r *http.Request) {
	provider := providerParam(r)
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")

	if err := h.svc.CompleteLink(r.Context(), provider, state, code); err != nil {
		h.logger.Warn("oauth link callback rejected",
			slog.String("provider", string(provider)),
			slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "account linked"})
}

// HandleUnlink clears the provider id on the caller's account.
//
// HTTP: DELETE /api/auth/{provider}/link
func (h *OAuthHandler) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "authentication required"})
		return
	}

	if err := h.svc.Unlink(r.Context(), providerParam(r), user.UUID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "account unlinked"})
}
