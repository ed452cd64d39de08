package repository

import (
	"context"
	"errors"

	"github.com/fleetworks/fleetgate/internal/db/models"
)

// ErrNotFound is returned when a referenced row does not exist. Services
// translate it into their own not-found errors.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates a uniqueness constraint
// (duplicate email, duplicate serial number).
var ErrConflict = errors.New("conflict")

// UserRepository exposes persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// GroupMemberDetail is a membership row joined with the member's profile.
type GroupMemberDetail struct {
	UserID int64  `bun:"user_id"`
	Role   string `bun:"role"`
	Name   string `bun:"name"`
	Email  string `bun:"email"`
}

// GroupWithRole is a group annotated with the requesting user's role in it.
type GroupWithRole struct {
	models.Group
	Role string `bun:"role"`
}

// GroupRepository exposes persistence operations for groups and memberships.
type GroupRepository interface {
	// Create inserts the group and the creator's admin membership in one
	// transaction.
	Create(ctx context.Context, group *models.Group) error
	GetByID(ctx context.Context, id int64) (*models.Group, error)
	ListForUser(ctx context.Context, userID int64) ([]GroupWithRole, error)
	Members(ctx context.Context, groupID int64) ([]GroupMemberDetail, error)

	// GetMember returns the membership row for (group, user), or ErrNotFound.
	GetMember(ctx context.Context, groupID, userID int64) (*models.GroupMember, error)
	// UpsertMember inserts a membership or updates the role on conflict.
	UpsertMember(ctx context.Context, member *models.GroupMember) error
	RemoveMember(ctx context.Context, groupID, userID int64) error
}

// RobotRepository exposes persistence operations for robots.
type RobotRepository interface {
	Create(ctx context.Context, robot *models.Robot) error
	GetByID(ctx context.Context, id int64) (*models.Robot, error)
	GetBySerial(ctx context.Context, serial string) (*models.Robot, error)

	// ListVisible returns robots the user owns, robots of groups the user
	// belongs to, and robots the user holds any explicit permission on, one
	// row per robot. Access levels are computed by the caller, not here.
	ListVisible(ctx context.Context, userID int64) ([]models.Robot, error)
}

// PermissionDetail is a grant row joined with the grantee's profile.
type PermissionDetail struct {
	ID             int64  `bun:"id"`
	UserID         int64  `bun:"user_id"`
	PermissionType string `bun:"permission_type"`
	Name           string `bun:"name"`
	Email          string `bun:"email"`
}

// PermissionRepository exposes persistence operations for delegated grants.
type PermissionRepository interface {
	// Upsert inserts a grant or, on the (user, robot) unique key, overwrites
	// permission_type and granted_by.
	Upsert(ctx context.Context, perm *models.RobotPermission) error
	// GetForUserRobot returns the grant for (user, robot), or ErrNotFound.
	GetForUserRobot(ctx context.Context, userID, robotID int64) (*models.RobotPermission, error)
	// GetForUser returns all grants held by the user, keyed by robot id.
	GetForUser(ctx context.Context, userID int64) (map[int64]models.RobotPermission, error)
	ListForRobot(ctx context.Context, robotID int64) ([]PermissionDetail, error)
	Delete(ctx context.Context, robotID, userID int64) error
}

// SettingWithRobot is a settings row joined with its robot's identity.
type SettingWithRobot struct {
	models.RobotSetting
	SerialNumber string `bun:"serial_number" json:"serial_number"`
	RobotName    string `bun:"robot_name" json:"name"`
}

// SettingRepository exposes persistence operations for per-user robot settings.
type SettingRepository interface {
	// Upsert inserts the settings document or replaces it on the
	// (user, robot) unique key.
	Upsert(ctx context.Context, setting *models.RobotSetting) error
	// Get returns the user's settings row for the robot, or ErrNotFound.
	Get(ctx context.Context, userID, robotID int64) (*models.RobotSetting, error)
	ListForUser(ctx context.Context, userID int64) ([]SettingWithRobot, error)
}
