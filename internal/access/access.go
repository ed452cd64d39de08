// Package access contains the authorization decision logic for robots.
//
// Every function here is pure: it operates on rows fetched beforehand and
// holds no store handle, so the decision rules are testable without a
// database. Callers (the robot and settings services) fetch the robot, the
// caller's explicit grant, and the caller's membership in the owning group,
// then invoke one of the predicates below.
package access

import (
	"errors"
	"fmt"

	"github.com/fleetworks/fleetgate/internal/db/models"
)

// Level classifies a user's computed standing over a robot. It is not
// persisted; it is re-evaluated per request.
type Level string

const (
	LevelOwner Level = "owner"
	LevelAdmin Level = "admin"
	LevelUsage Level = "usage"
	LevelNone  Level = "none"
)

// Grant is the type of an explicit per-user, per-robot permission row.
type Grant string

const (
	GrantUsage Grant = "usage"
	GrantAdmin Grant = "admin"
)

// Role is a user's role within a group.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

var (
	// ErrInvalidOwnerType is returned when owner_type is neither "user" nor "group".
	ErrInvalidOwnerType = errors.New(`invalid owner_type, expected "user" or "group"`)

	// ErrGroupRequired is returned when a group-owned robot is created without a group.
	ErrGroupRequired = errors.New("group id is required for group-owned robots")
)

// ParseGrant validates a permission type string from a request or a store row.
func ParseGrant(s string) (Grant, error) {
	switch Grant(s) {
	case GrantUsage, GrantAdmin:
		return Grant(s), nil
	}
	return "", fmt.Errorf(`invalid permission type %q, expected "usage" or "admin"`, s)
}

// ParseRole validates a group role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleMember:
		return Role(s), nil
	}
	return "", fmt.Errorf(`invalid role %q, expected "admin" or "member"`, s)
}

// ValidateOwnership checks the creation-time ownership invariant: owner_type
// must be exactly "user" or "group", and group ownership requires a group id.
func ValidateOwnership(ownerType models.OwnerType, ownerGroupID *int64) error {
	switch ownerType {
	case models.OwnerTypeUser:
		return nil
	case models.OwnerTypeGroup:
		if ownerGroupID == nil {
			return ErrGroupRequired
		}
		return nil
	}
	return ErrInvalidOwnerType
}

// Owns reports whether the user is the literal user-owner of the robot.
// Group ownership never makes an individual user the owner.
func Owns(userID int64, robot *models.Robot) bool {
	return robot.OwnerType == models.OwnerTypeUser &&
		robot.OwnerUserID != nil && *robot.OwnerUserID == userID
}

// InOwningGroup reports whether the membership belongs to the robot's owning
// group. The membership argument is the caller's row in that group, nil when
// not a member.
func InOwningGroup(robot *models.Robot, memberRole *Role) bool {
	return robot.OwnerType == models.OwnerTypeGroup && memberRole != nil
}

// Ruleset carries the policy switches that alter access decisions.
type Ruleset struct {
	// GroupMemberUsage grants implicit usage-level access to members of a
	// robot's owning group when they hold no explicit permission. When false,
	// membership alone confers visibility but no access level.
	GroupMemberUsage bool
}

// Decide computes the access level for (user, robot). Precedence:
//
//  1. user-owner of the robot -> owner, overriding everything else
//  2. explicit grant          -> the grant's type
//  3. owning-group membership -> usage, only under GroupMemberUsage
//  4. none
//
// grant is the user's explicit permission row (nil when absent); memberRole
// is the user's role in the robot's owning group (nil when not a member or
// when the robot is user-owned).
func (rs Ruleset) Decide(userID int64, robot *models.Robot, grant *Grant, memberRole *Role) Level {
	if Owns(userID, robot) {
		return LevelOwner
	}
	if grant != nil {
		switch *grant {
		case GrantAdmin:
			return LevelAdmin
		case GrantUsage:
			return LevelUsage
		}
	}
	if rs.GroupMemberUsage && InOwningGroup(robot, memberRole) {
		return LevelUsage
	}
	return LevelNone
}

// CanManagePermissions is the standing check gating permission grants and
// revocations: the user-owner, an admin of the owning group, or a holder of
// an explicit admin grant. Plain group membership is never sufficient.
func CanManagePermissions(userID int64, robot *models.Robot, grant *Grant, memberRole *Role) bool {
	if Owns(userID, robot) {
		return true
	}
	if robot.OwnerType == models.OwnerTypeGroup && memberRole != nil && *memberRole == RoleAdmin {
		return true
	}
	return grant != nil && *grant == GrantAdmin
}

// CanEditSettings is the deliberately weaker check for settings writes: the
// owner or any explicit grant, usage included. Group-admin standing without
// an explicit grant does not qualify; settings belong to operators, and an
// admin who never received access has nothing to tune.
func CanEditSettings(userID int64, robot *models.Robot, grant *Grant) bool {
	if robot.OwnerUserID != nil && *robot.OwnerUserID == userID {
		return true
	}
	return grant != nil
}

// CanAssign gates attaching a group-owned robot to a member: only admins of
// the owning group may assign. The group-owned precondition is checked by the
// caller, which has the robot row.
func CanAssign(memberRole *Role) bool {
	return memberRole != nil && *memberRole == RoleAdmin
}
