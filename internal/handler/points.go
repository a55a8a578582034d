package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ravenhacks/backend/internal/auth"
	"github.com/ravenhacks/backend/internal/service"
)

// PointsHandler exposes the points balance endpoints.
type PointsHandler struct {
	svc    *service.PointsService
	logger *slog.Logger
}

// NewPointsHandler creates a PointsHandler.
func NewPointsHandler(svc *service.PointsService, logger *slog.Logger) *PointsHandler {
	return &PointsHandler{svc: svc, logger: logger}
}

// HandleAward credits points to an account. Sponsor or above.
//
// HTTP: POST /api/points/award
func (h *PointsHandler) HandleAward(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UUID   string `json:"uuid"`
		Amount int    `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	entry, err := h.svc.Award(r.Context(), req.UUID, req.Amount, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleRedeem debits points from the caller's own balance.
//
// HTTP: POST /api/points/redeem
func (h *PointsHandler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "authentication required"})
		return
	}

	var req struct {
		Amount int    `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	entry, err := h.svc.Redeem(r.Context(), user.UUID, req.Amount, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleLeaderboard returns the top balances. Accepts ?limit=N.
//
// HTTP: GET /api/points/leaderboard
func (h *PointsHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	entries, err := h.svc.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
