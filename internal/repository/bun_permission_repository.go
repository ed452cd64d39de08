package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/fleetworks/fleetgate/internal/db/models"
)

// BunPermissionRepository implements PermissionRepository using Bun ORM
type BunPermissionRepository struct {
	db *bun.DB
}

// NewBunPermissionRepository creates a new Bun-based permission repository
func NewBunPermissionRepository(db *bun.DB) *BunPermissionRepository {
	return &BunPermissionRepository{db: db}
}

// Upsert inserts a grant or overwrites permission_type and granted_by on the
// (user, robot) unique key. Concurrent re-grants converge to last-write-wins
// at the store.
func (r *BunPermissionRepository) Upsert(ctx context.Context, perm *models.RobotPermission) error {
	_, err := r.db.NewInsert().
		Model(perm).
		On("CONFLICT (user_id, robot_id) DO UPDATE").
		Set("permission_type = EXCLUDED.permission_type").
		Set("granted_by = EXCLUDED.granted_by").
		Returning("id, granted_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert robot permission: %w", err)
	}
	return nil
}

// GetForUserRobot returns the grant for (user, robot), or ErrNotFound.
func (r *BunPermissionRepository) GetForUserRobot(ctx context.Context, userID, robotID int64) (*models.RobotPermission, error) {
	perm := new(models.RobotPermission)
	err := r.db.NewSelect().
		Model(perm).
		Where("rp.user_id = ?", userID).
		Where("rp.robot_id = ?", robotID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("permission for user %d on robot %d: %w", userID, robotID, ErrNotFound)
		}
		return nil, fmt.Errorf("get robot permission: %w", err)
	}
	return perm, nil
}

// GetForUser returns all grants held by the user, keyed by robot id.
func (r *BunPermissionRepository) GetForUser(ctx context.Context, userID int64) (map[int64]models.RobotPermission, error) {
	var perms []models.RobotPermission
	err := r.db.NewSelect().
		Model(&perms).
		Where("rp.user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list permissions for user: %w", err)
	}

	byRobot := make(map[int64]models.RobotPermission, len(perms))
	for _, p := range perms {
		byRobot[p.RobotID] = p
	}
	return byRobot, nil
}

// ListForRobot returns all grants on a robot with grantee profiles.
func (r *BunPermissionRepository) ListForRobot(ctx context.Context, robotID int64) ([]PermissionDetail, error) {
	var details []PermissionDetail
	err := r.db.NewSelect().
		Model((*models.RobotPermission)(nil)).
		ColumnExpr("rp.id, rp.user_id, rp.permission_type, u.name, u.email").
		Join("JOIN users AS u ON u.id = rp.user_id").
		Where("rp.robot_id = ?", robotID).
		Order("u.name ASC").
		Scan(ctx, &details)
	if err != nil {
		return nil, fmt.Errorf("list permissions for robot: %w", err)
	}
	return details, nil
}

// Delete removes the grant for (robot, user). Deleting an absent grant is not
// an error; revocation is idempotent.
func (r *BunPermissionRepository) Delete(ctx context.Context, robotID, userID int64) error {
	_, err := r.db.NewDelete().
		Model((*models.RobotPermission)(nil)).
		Where("robot_id = ?", robotID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete robot permission: %w", err)
	}
	return nil
}
