package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetworks/fleetgate/internal/auth"
	"github.com/fleetworks/fleetgate/internal/db/models"
	"github.com/fleetworks/fleetgate/internal/repository"
	"github.com/fleetworks/fleetgate/internal/services/settings"
)

// SettingService defines the per-user settings operations the handlers need.
type SettingService interface {
	Save(ctx context.Context, userID int64, serial string, doc models.SettingsDoc) (*models.RobotSetting, error)
	Get(ctx context.Context, userID int64, serial string) (*models.RobotSetting, error)
	ListForUser(ctx context.Context, userID int64) ([]repository.SettingWithRobot, error)
}

// SaveSettingsRequest carries the settings document to persist.
type SaveSettingsRequest struct {
	Settings models.SettingsDoc `json:"settings"`
}

// SettingHandlers wires the robot settings endpoints.
type SettingHandlers struct {
	settings SettingService
}

// NewSettingHandlers creates the handler set for settings endpoints.
func NewSettingHandlers(settingService SettingService) *SettingHandlers {
	return &SettingHandlers{settings: settingService}
}

// Save handles POST /api/settings/{serialNumber}
func (h *SettingHandlers) Save(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	serial := chi.URLParam(r, "serialNumber")

	var req SaveSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Settings == nil {
		writeError(w, http.StatusBadRequest, "Settings payload must be an object")
		return
	}

	setting, err := h.settings.Save(r.Context(), principal.UserID, serial, req.Settings)
	if err != nil {
		switch {
		case errors.Is(err, settings.ErrRobotNotFound):
			writeError(w, http.StatusNotFound, "Robot not found")
		case errors.Is(err, settings.ErrForbidden):
			writeError(w, http.StatusForbidden, "Insufficient permissions to modify settings")
		default:
			writeInternalError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, setting)
}

// Get handles GET /api/settings/{serialNumber}
func (h *SettingHandlers) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	serial := chi.URLParam(r, "serialNumber")

	setting, err := h.settings.Get(r.Context(), principal.UserID, serial)
	if err != nil {
		switch {
		case errors.Is(err, settings.ErrRobotNotFound):
			writeError(w, http.StatusNotFound, "Robot not found")
		case errors.Is(err, settings.ErrSettingsNotFound):
			writeError(w, http.StatusNotFound, "Settings not found")
		default:
			writeInternalError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, setting)
}

// ListMine handles GET /api/settings/user/all
func (h *SettingHandlers) ListMine(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	rows, err := h.settings.ListForUser(r.Context(), principal.UserID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if rows == nil {
		rows = []repository.SettingWithRobot{}
	}

	writeJSON(w, http.StatusOK, rows)
}
