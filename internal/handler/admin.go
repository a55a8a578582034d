package handler

import (
	"log/slog"
	"net/http"

	"github.com/ravenhacks/backend/internal/config"
)

// AdminHandler exposes the event-settings endpoints. All routes are
// Organizer-only.
type AdminHandler struct {
	settings *config.SettingsStore
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(settings *config.SettingsStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{settings: settings, logger: logger}
}

// HandleGetSettings returns the current event settings.
//
// HTTP: GET /api/admin/settings
func (h *AdminHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Current())
}

// HandleReload re-reads the settings file and swaps the store. On
// failure the previous settings remain in effect.
//
// HTTP: POST /api/admin/settings/reload
func (h *AdminHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.settings.Reload(); err != nil {
		h.logger.Error("settings reload failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "settings reload failed; previous settings still active",
		})
		return
	}
	writeJSON(w, http.StatusOK, h.settings.Current())
}
