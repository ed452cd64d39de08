// Package robots implements robot registration, visibility, delegated
// permissions, and assignment. Authorization decisions are delegated to the
// access package; this service only fetches the rows a decision needs.
package robots

import (
	"context"
	"errors"
	"fmt"

	"github.com/fleetworks/fleetgate/internal/access"
	"github.com/fleetworks/fleetgate/internal/db/models"
	"github.com/fleetworks/fleetgate/internal/repository"
)

var (
	// ErrRobotNotFound is returned when the referenced robot does not exist.
	// Distinct from ErrForbidden: callers must be able to tell a mistyped
	// serial from a real robot they cannot touch.
	ErrRobotNotFound = errors.New("robot not found")

	// ErrForbidden is returned when the robot exists but the caller lacks
	// standing for the requested action.
	ErrForbidden = errors.New("insufficient permissions")

	// ErrGroupAdminOnly is returned when an action requires admin role in the
	// robot's owning group (or the target group, for creation).
	ErrGroupAdminOnly = errors.New("group admin role required")

	// ErrNotAssignable is returned when assigning a robot that is not
	// group-owned.
	ErrNotAssignable = errors.New("only group-owned robots can be assigned")

	// ErrUserNotFound is returned when a grant target (by id or email) does
	// not exist.
	ErrUserNotFound = errors.New("user with provided identifier not found")

	// ErrDuplicateSerial is returned when a robot's serial number is already
	// registered.
	ErrDuplicateSerial = errors.New("serial number already exists")
)

// TargetUser identifies a grantee either by user id or by email. The id wins
// when both are set.
type TargetUser struct {
	ID    *int64
	Email string
}

// CreateInput carries the fields for robot registration.
type CreateInput struct {
	SerialNumber string
	Name         string
	Model        *string
	OwnerType    models.OwnerType
	OwnerGroupID *int64
}

// View is a robot annotated with the requesting user's computed access. The
// classification is re-evaluated on every request, never persisted.
type View struct {
	models.Robot

	// PermissionLevel is the combinator's output for the requesting user.
	PermissionLevel access.Level `json:"permission_level"`
	// OwnershipType is "personal" when the requesting user is the owner,
	// otherwise "group".
	OwnershipType string `json:"ownership_type"`
	// IsGroupAdmin reports admin role in the owning group, relevant for
	// group-owned robots only.
	IsGroupAdmin bool `json:"is_group_admin"`
}

// Service implements robot operations.
type Service struct {
	robots repository.RobotRepository
	perms  repository.PermissionRepository
	groups repository.GroupRepository
	users  repository.UserRepository
	rules  access.Ruleset
}

// NewService creates a robots service with the given access ruleset.
func NewService(
	robots repository.RobotRepository,
	perms repository.PermissionRepository,
	groups repository.GroupRepository,
	users repository.UserRepository,
	rules access.Ruleset,
) *Service {
	return &Service{robots: robots, perms: perms, groups: groups, users: users, rules: rules}
}

// Create registers a robot. User-owned robots belong to the caller;
// group-owned robots require the caller to be an admin of the target group.
func (s *Service) Create(ctx context.Context, callerID int64, in CreateInput) (*models.Robot, error) {
	if err := access.ValidateOwnership(in.OwnerType, in.OwnerGroupID); err != nil {
		return nil, err
	}

	robot := &models.Robot{
		SerialNumber: in.SerialNumber,
		Name:         in.Name,
		Model:        in.Model,
		OwnerType:    in.OwnerType,
	}

	switch in.OwnerType {
	case models.OwnerTypeUser:
		owner := callerID
		robot.OwnerUserID = &owner
	case models.OwnerTypeGroup:
		role, err := s.memberRole(ctx, *in.OwnerGroupID, callerID)
		if err != nil {
			return nil, err
		}
		if role == nil || *role != access.RoleAdmin {
			return nil, ErrGroupAdminOnly
		}
		robot.OwnerGroupID = in.OwnerGroupID
	}

	if err := s.robots.Create(ctx, robot); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicateSerial
		}
		return nil, err
	}
	return robot, nil
}

// List returns every robot visible to the user with computed access
// annotations: owned robots, robots of groups the user belongs to, and robots
// with an explicit grant, one row each.
func (s *Service) List(ctx context.Context, userID int64) ([]View, error) {
	visible, err := s.robots.ListVisible(ctx, userID)
	if err != nil {
		return nil, err
	}

	grants, err := s.perms.GetForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	memberships, err := s.groups.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	roleByGroup := make(map[int64]access.Role, len(memberships))
	for _, m := range memberships {
		role, err := access.ParseRole(m.Role)
		if err != nil {
			return nil, fmt.Errorf("membership row for group %d: %w", m.Group.ID, err)
		}
		roleByGroup[m.Group.ID] = role
	}

	views := make([]View, 0, len(visible))
	for i := range visible {
		robot := &visible[i]

		var grant *access.Grant
		if row, ok := grants[robot.ID]; ok {
			g, err := access.ParseGrant(row.PermissionType)
			if err != nil {
				return nil, fmt.Errorf("permission row %d: %w", row.ID, err)
			}
			grant = &g
		}

		var memberRole *access.Role
		if robot.OwnerGroupID != nil {
			if role, ok := roleByGroup[*robot.OwnerGroupID]; ok {
				memberRole = &role
			}
		}

		views = append(views, s.view(userID, robot, grant, memberRole))
	}
	return views, nil
}

// GetBySerial fetches one robot by serial number. The two failure modes stay
// distinct: ErrRobotNotFound when no such serial exists, ErrForbidden when it
// exists but the computed level is none.
func (s *Service) GetBySerial(ctx context.Context, userID int64, serial string) (*View, error) {
	robot, err := s.getBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}

	grant, memberRole, err := s.standing(ctx, userID, robot)
	if err != nil {
		return nil, err
	}

	view := s.view(userID, robot, grant, memberRole)
	if view.PermissionLevel == access.LevelNone {
		return nil, ErrForbidden
	}
	return &view, nil
}

// GrantPermission creates or overwrites a delegated grant. The caller needs
// manage-permissions standing: owner, owning-group admin, or explicit admin
// grant.
func (s *Service) GrantPermission(ctx context.Context, callerID, robotID int64, target TargetUser, permissionType string) (*models.RobotPermission, error) {
	grantType, err := access.ParseGrant(permissionType)
	if err != nil {
		return nil, err
	}

	robot, err := s.getByID(ctx, robotID)
	if err != nil {
		return nil, err
	}

	if err := s.requireManageStanding(ctx, callerID, robot); err != nil {
		return nil, err
	}

	grantee, err := s.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	perm := &models.RobotPermission{
		UserID:         grantee.ID,
		RobotID:        robot.ID,
		PermissionType: string(grantType),
		GrantedBy:      callerID,
	}
	if err := s.perms.Upsert(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

// RevokePermission removes a delegated grant, gated like GrantPermission.
func (s *Service) RevokePermission(ctx context.Context, callerID, robotID, userID int64) error {
	robot, err := s.getByID(ctx, robotID)
	if err != nil {
		return err
	}

	if err := s.requireManageStanding(ctx, callerID, robot); err != nil {
		return err
	}

	return s.perms.Delete(ctx, robot.ID, userID)
}

// ListPermissions returns all grants on a robot, gated like GrantPermission.
func (s *Service) ListPermissions(ctx context.Context, callerID int64, serial string) ([]repository.PermissionDetail, error) {
	robot, err := s.getBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}

	if err := s.requireManageStanding(ctx, callerID, robot); err != nil {
		return nil, err
	}

	return s.perms.ListForRobot(ctx, robot.ID)
}

// Assign attaches a group-owned robot to a member as a permission upsert.
// Only admins of the owning group may assign; the permission type defaults to
// usage when unspecified.
func (s *Service) Assign(ctx context.Context, callerID, robotID int64, target TargetUser, permissionType string) (*models.RobotPermission, error) {
	if permissionType == "" {
		permissionType = string(access.GrantUsage)
	}
	grantType, err := access.ParseGrant(permissionType)
	if err != nil {
		return nil, err
	}

	robot, err := s.getByID(ctx, robotID)
	if err != nil {
		return nil, err
	}

	if robot.OwnerType != models.OwnerTypeGroup || robot.OwnerGroupID == nil {
		return nil, ErrNotAssignable
	}

	role, err := s.memberRole(ctx, *robot.OwnerGroupID, callerID)
	if err != nil {
		return nil, err
	}
	if !access.CanAssign(role) {
		return nil, ErrGroupAdminOnly
	}

	grantee, err := s.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	perm := &models.RobotPermission{
		UserID:         grantee.ID,
		RobotID:        robot.ID,
		PermissionType: string(grantType),
		GrantedBy:      callerID,
	}
	if err := s.perms.Upsert(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

// view assembles the per-viewer annotations for a robot.
func (s *Service) view(userID int64, robot *models.Robot, grant *access.Grant, memberRole *access.Role) View {
	ownership := "group"
	if access.Owns(userID, robot) {
		ownership = "personal"
	}
	return View{
		Robot:           *robot,
		PermissionLevel: s.rules.Decide(userID, robot, grant, memberRole),
		OwnershipType:   ownership,
		IsGroupAdmin:    memberRole != nil && *memberRole == access.RoleAdmin,
	}
}

// standing fetches the caller's explicit grant and owning-group role for a
// robot, the two inputs every access decision needs besides ownership.
func (s *Service) standing(ctx context.Context, userID int64, robot *models.Robot) (*access.Grant, *access.Role, error) {
	var grant *access.Grant
	perm, err := s.perms.GetForUserRobot(ctx, userID, robot.ID)
	switch {
	case err == nil:
		g, parseErr := access.ParseGrant(perm.PermissionType)
		if parseErr != nil {
			return nil, nil, fmt.Errorf("permission row %d: %w", perm.ID, parseErr)
		}
		grant = &g
	case !errors.Is(err, repository.ErrNotFound):
		return nil, nil, err
	}

	var memberRole *access.Role
	if robot.OwnerType == models.OwnerTypeGroup && robot.OwnerGroupID != nil {
		memberRole, err = s.memberRole(ctx, *robot.OwnerGroupID, userID)
		if err != nil {
			return nil, nil, err
		}
	}

	return grant, memberRole, nil
}

func (s *Service) requireManageStanding(ctx context.Context, callerID int64, robot *models.Robot) error {
	grant, memberRole, err := s.standing(ctx, callerID, robot)
	if err != nil {
		return err
	}
	if !access.CanManagePermissions(callerID, robot, grant, memberRole) {
		return ErrForbidden
	}
	return nil
}

// memberRole returns the user's role in a group, nil when not a member.
func (s *Service) memberRole(ctx context.Context, groupID, userID int64) (*access.Role, error) {
	member, err := s.groups.GetMember(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	role, err := access.ParseRole(member.Role)
	if err != nil {
		return nil, fmt.Errorf("membership row %d: %w", member.ID, err)
	}
	return &role, nil
}

func (s *Service) getByID(ctx context.Context, robotID int64) (*models.Robot, error) {
	robot, err := s.robots.GetByID(ctx, robotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRobotNotFound
		}
		return nil, err
	}
	return robot, nil
}

func (s *Service) getBySerial(ctx context.Context, serial string) (*models.Robot, error) {
	robot, err := s.robots.GetBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRobotNotFound
		}
		return nil, err
	}
	return robot, nil
}

// resolveTarget looks up the grantee by id or email.
func (s *Service) resolveTarget(ctx context.Context, target TargetUser) (*models.User, error) {
	if target.ID != nil {
		user, err := s.users.GetByID(ctx, *target.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, err
		}
		return user, nil
	}

	user, err := s.users.GetByEmail(ctx, target.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
