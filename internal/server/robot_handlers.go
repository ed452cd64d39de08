package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetworks/fleetgate/internal/access"
	"github.com/fleetworks/fleetgate/internal/auth"
	"github.com/fleetworks/fleetgate/internal/db/models"
	"github.com/fleetworks/fleetgate/internal/repository"
	"github.com/fleetworks/fleetgate/internal/services/robots"
)

// RobotService defines the robot operations the handlers need.
type RobotService interface {
	Create(ctx context.Context, callerID int64, in robots.CreateInput) (*models.Robot, error)
	List(ctx context.Context, userID int64) ([]robots.View, error)
	GetBySerial(ctx context.Context, userID int64, serial string) (*robots.View, error)
	GrantPermission(ctx context.Context, callerID, robotID int64, target robots.TargetUser, permissionType string) (*models.RobotPermission, error)
	RevokePermission(ctx context.Context, callerID, robotID, userID int64) error
	ListPermissions(ctx context.Context, callerID int64, serial string) ([]repository.PermissionDetail, error)
	Assign(ctx context.Context, callerID, robotID int64, target robots.TargetUser, permissionType string) (*models.RobotPermission, error)
}

// CreateRobotRequest carries the robot registration payload.
type CreateRobotRequest struct {
	SerialNumber string  `json:"serial_number"`
	Name         string  `json:"name"`
	Model        *string `json:"model"`
	OwnerType    string  `json:"owner_type"`
	OwnerGroupID *int64  `json:"owner_group_id"`
}

// GrantRequest identifies a grantee by id or email and the permission to give.
type GrantRequest struct {
	UserID         *int64 `json:"user_id"`
	Email          string `json:"email"`
	PermissionType string `json:"permission_type"`
}

// RobotHandlers wires the robot, permission, and assignment endpoints.
type RobotHandlers struct {
	robots RobotService
}

// NewRobotHandlers creates the handler set for robot endpoints.
func NewRobotHandlers(robotService RobotService) *RobotHandlers {
	return &RobotHandlers{robots: robotService}
}

// Create handles POST /api/robots
func (h *RobotHandlers) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	var req CreateRobotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SerialNumber == "" || req.Name == "" || req.OwnerType == "" {
		writeError(w, http.StatusBadRequest, "Serial number, name, and owner_type are required")
		return
	}

	robot, err := h.robots.Create(r.Context(), principal.UserID, robots.CreateInput{
		SerialNumber: req.SerialNumber,
		Name:         req.Name,
		Model:        req.Model,
		OwnerType:    models.OwnerType(req.OwnerType),
		OwnerGroupID: req.OwnerGroupID,
	})
	if err != nil {
		switch {
		case errors.Is(err, access.ErrInvalidOwnerType):
			writeError(w, http.StatusBadRequest, "Owner type must be either user or group")
		case errors.Is(err, access.ErrGroupRequired):
			writeError(w, http.StatusBadRequest, "Group ID is required for group-owned robots")
		case errors.Is(err, robots.ErrGroupAdminOnly):
			writeError(w, http.StatusForbidden, "Only group admins can create group-owned robots")
		case errors.Is(err, robots.ErrDuplicateSerial):
			writeError(w, http.StatusConflict, "Robot with this serial number already exists")
		default:
			writeInternalError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, robot)
}

// List handles GET /api/robots
func (h *RobotHandlers) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	views, err := h.robots.List(r.Context(), principal.UserID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if views == nil {
		views = []robots.View{}
	}

	writeJSON(w, http.StatusOK, views)
}

// Get handles GET /api/robots/{serialNumber}
func (h *RobotHandlers) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	serial := chi.URLParam(r, "serialNumber")

	view, err := h.robots.GetBySerial(r.Context(), principal.UserID, serial)
	if err != nil {
		switch {
		case errors.Is(err, robots.ErrRobotNotFound):
			writeError(w, http.StatusNotFound, "Robot not found")
		case errors.Is(err, robots.ErrForbidden):
			writeError(w, http.StatusForbidden, "Insufficient permissions")
		default:
			writeInternalError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// GrantPermission handles POST /api/robots/{robotID}/permissions
func (h *RobotHandlers) GrantPermission(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	robotID, err := pathID(r, "robotID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid robot ID")
		return
	}

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == nil && req.Email == "" {
		writeError(w, http.StatusBadRequest, "User ID or email is required")
		return
	}
	if _, err := access.ParseGrant(req.PermissionType); err != nil {
		writeError(w, http.StatusBadRequest, "Permission type must be either usage or admin")
		return
	}

	target := robots.TargetUser{ID: req.UserID, Email: req.Email}
	perm, err := h.robots.GrantPermission(r.Context(), principal.UserID, robotID, target, req.PermissionType)
	if err != nil {
		h.writePermissionError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, perm)
}

// RevokePermission handles DELETE /api/robots/{robotID}/permissions/{userID}
func (h *RobotHandlers) RevokePermission(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	robotID, err := pathID(r, "robotID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid robot ID")
		return
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	if err := h.robots.RevokePermission(r.Context(), principal.UserID, robotID, userID); err != nil {
		h.writePermissionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Permission revoked"})
}

// ListPermissions handles GET /api/robots/{serialNumber}/permissions
func (h *RobotHandlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	serial := chi.URLParam(r, "serialNumber")

	perms, err := h.robots.ListPermissions(r.Context(), principal.UserID, serial)
	if err != nil {
		h.writePermissionError(w, err)
		return
	}
	if perms == nil {
		perms = []repository.PermissionDetail{}
	}

	writeJSON(w, http.StatusOK, perms)
}

// Assign handles POST /api/robots/{robotID}/assign
func (h *RobotHandlers) Assign(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	robotID, err := pathID(r, "robotID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid robot ID")
		return
	}

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == nil && req.Email == "" {
		writeError(w, http.StatusBadRequest, "User ID or email is required")
		return
	}
	if req.PermissionType != "" {
		if _, err := access.ParseGrant(req.PermissionType); err != nil {
			writeError(w, http.StatusBadRequest, "Permission type must be either usage or admin")
			return
		}
	}

	target := robots.TargetUser{ID: req.UserID, Email: req.Email}
	perm, err := h.robots.Assign(r.Context(), principal.UserID, robotID, target, req.PermissionType)
	if err != nil {
		switch {
		case errors.Is(err, robots.ErrRobotNotFound):
			writeError(w, http.StatusNotFound, "Robot not found")
		case errors.Is(err, robots.ErrNotAssignable):
			writeError(w, http.StatusBadRequest, "Only group-owned robots can be assigned")
		case errors.Is(err, robots.ErrGroupAdminOnly):
			writeError(w, http.StatusForbidden, "Only group admins can assign robots")
		case errors.Is(err, robots.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			writeInternalError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, perm)
}

// writePermissionError maps the shared failure modes of the permission
// endpoints.
func (h *RobotHandlers) writePermissionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, robots.ErrRobotNotFound):
		writeError(w, http.StatusNotFound, "Robot not found")
	case errors.Is(err, robots.ErrForbidden):
		writeError(w, http.StatusForbidden, "Insufficient permissions")
	case errors.Is(err, robots.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	default:
		writeInternalError(w, err)
	}
}
