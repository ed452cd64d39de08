package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// OwnerType discriminates who owns a robot: a single user or a group.
type OwnerType string

const (
	OwnerTypeUser  OwnerType = "user"
	OwnerTypeGroup OwnerType = "group"
)

// User represents a human principal. Identity fields are immutable after
// registration; the password hash is opaque to everything but the iam service.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           int64     `bun:"id,pk,autoincrement"`
	Name         string    `bun:"name,notnull"`
	Email        string    `bun:"email,notnull,unique"`
	PasswordHash string    `bun:"password_hash,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Group is a named collection of users. Groups are never auto-deleted.
type Group struct {
	bun.BaseModel `bun:"table:groups,alias:g"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull"`
	CreatedBy int64     `bun:"created_by,notnull"` // FK to users(id)
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// GroupMember binds a user to a group with a role. Unique per (group, user);
// re-adding an existing member updates the role instead of duplicating.
type GroupMember struct {
	bun.BaseModel `bun:"table:group_members,alias:gm"`

	ID        int64     `bun:"id,pk,autoincrement"`
	GroupID   int64     `bun:"group_id,notnull"` // FK to groups(id)
	UserID    int64     `bun:"user_id,notnull"`  // FK to users(id)
	Role      string    `bun:"role,notnull"`     // "admin" or "member"
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Robot is the protected resource. Exactly one of OwnerUserID/OwnerGroupID is
// set, consistent with OwnerType; the access package enforces the invariant at
// creation time.
type Robot struct {
	bun.BaseModel `bun:"table:robots,alias:r"`

	ID           int64     `bun:"id,pk,autoincrement"`
	SerialNumber string    `bun:"serial_number,notnull,unique"`
	Name         string    `bun:"name,notnull"`
	Model        *string   `bun:"model"`
	OwnerType    OwnerType `bun:"owner_type,notnull"`
	OwnerUserID  *int64    `bun:"owner_user_id"`  // FK to users(id), set iff owner_type = user
	OwnerGroupID *int64    `bun:"owner_group_id"` // FK to groups(id), set iff owner_type = group
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// RobotPermission is a delegated grant on a robot. This is the only way a
// non-owner gains access, including members of the owning group. Unique per
// (user, robot); re-granting overwrites type and grantor.
type RobotPermission struct {
	bun.BaseModel `bun:"table:robot_permissions,alias:rp"`

	ID             int64     `bun:"id,pk,autoincrement"`
	UserID         int64     `bun:"user_id,notnull"`         // FK to users(id)
	RobotID        int64     `bun:"robot_id,notnull"`        // FK to robots(id)
	PermissionType string    `bun:"permission_type,notnull"` // "usage" or "admin"
	GrantedBy      int64     `bun:"granted_by,notnull"`      // FK to users(id)
	GrantedAt      time.Time `bun:"granted_at,notnull,default:current_timestamp"`
}

// SettingsDoc is an opaque key-value document stored as JSON.
type SettingsDoc map[string]any

// Scan implements sql.Scanner for reading from the database.
func (d *SettingsDoc) Scan(value any) error {
	if value == nil {
		*d = make(SettingsDoc)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to scan SettingsDoc: expected []byte or string, got %T", value)
	}
	return json.Unmarshal(bytes, d)
}

// Value implements driver.Valuer for writing to the database.
func (d SettingsDoc) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	bytes, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// RobotSetting holds one user's private settings document for one robot.
// Unique per (user, robot); saves upsert in place.
type RobotSetting struct {
	bun.BaseModel `bun:"table:robot_settings,alias:rs"`

	ID        int64       `bun:"id,pk,autoincrement"`
	UserID    int64       `bun:"user_id,notnull"`  // FK to users(id)
	RobotID   int64       `bun:"robot_id,notnull"` // FK to robots(id)
	Settings  SettingsDoc `bun:"settings,type:jsonb,notnull,default:'{}'"`
	UpdatedAt time.Time   `bun:"updated_at,notnull,default:current_timestamp"`
}
