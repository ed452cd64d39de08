package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fleetworks/fleetgate/internal/access"
	"github.com/fleetworks/fleetgate/internal/auth"
	"github.com/fleetworks/fleetgate/internal/db/models"
	"github.com/fleetworks/fleetgate/internal/repository"
	"github.com/fleetworks/fleetgate/internal/services/groups"
)

// GroupService defines the group operations the handlers need.
type GroupService interface {
	ListForUser(ctx context.Context, userID int64) ([]repository.GroupWithRole, error)
	Create(ctx context.Context, creatorID int64, name string) (*models.Group, error)
	Members(ctx context.Context, groupID int64) ([]repository.GroupMemberDetail, error)
	UpsertMember(ctx context.Context, callerID, groupID int64, target groups.TargetUser, role string) (*repository.GroupMemberDetail, error)
	RemoveMember(ctx context.Context, callerID, groupID, userID int64) error
}

// CreateGroupRequest carries the group creation payload.
type CreateGroupRequest struct {
	Name string `json:"name"`
}

// UpsertMemberRequest identifies the member to add or update, by id or email,
// and the role to give them.
type UpsertMemberRequest struct {
	UserID *int64 `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// GroupHandlers wires the group and membership endpoints.
type GroupHandlers struct {
	groups GroupService
}

// NewGroupHandlers creates the handler set for group endpoints.
func NewGroupHandlers(groupService GroupService) *GroupHandlers {
	return &GroupHandlers{groups: groupService}
}

// List handles GET /api/groups
func (h *GroupHandlers) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	memberships, err := h.groups.ListForUser(r.Context(), principal.UserID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if memberships == nil {
		memberships = []repository.GroupWithRole{}
	}

	writeJSON(w, http.StatusOK, memberships)
}

// Create handles POST /api/groups
func (h *GroupHandlers) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Group name is required")
		return
	}

	group, err := h.groups.Create(r.Context(), principal.UserID, req.Name)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, group)
}

// Members handles GET /api/groups/{groupID}/members
func (h *GroupHandlers) Members(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r, "groupID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid group ID")
		return
	}

	members, err := h.groups.Members(r.Context(), groupID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if members == nil {
		members = []repository.GroupMemberDetail{}
	}

	writeJSON(w, http.StatusOK, members)
}

// UpsertMember handles POST /api/groups/{groupID}/members
func (h *GroupHandlers) UpsertMember(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	groupID, err := pathID(r, "groupID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid group ID")
		return
	}

	var req UpsertMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == nil && req.Email == "" {
		writeError(w, http.StatusBadRequest, "User ID or email is required")
		return
	}
	if _, err := access.ParseRole(req.Role); err != nil {
		writeError(w, http.StatusBadRequest, "Role must be either admin or member")
		return
	}

	target := groups.TargetUser{ID: req.UserID, Email: req.Email}
	member, err := h.groups.UpsertMember(r.Context(), principal.UserID, groupID, target, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, groups.ErrNotAdmin):
			writeError(w, http.StatusForbidden, "Only group admins can manage members")
		case errors.Is(err, groups.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			writeInternalError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, member)
}

// RemoveMember handles DELETE /api/groups/{groupID}/members/{userID}
func (h *GroupHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	groupID, err := pathID(r, "groupID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid group ID")
		return
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	if err := h.groups.RemoveMember(r.Context(), principal.UserID, groupID, userID); err != nil {
		if errors.Is(err, groups.ErrNotAdmin) {
			writeError(w, http.StatusForbidden, "Only group admins can manage members")
			return
		}
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Member removed"})
}

// pathID parses a numeric id from a chi route parameter.
func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
