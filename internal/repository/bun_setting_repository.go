package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/fleetworks/fleetgate/internal/db/models"
)

// BunSettingRepository implements SettingRepository using Bun ORM
type BunSettingRepository struct {
	db *bun.DB
}

// NewBunSettingRepository creates a new Bun-based settings repository
func NewBunSettingRepository(db *bun.DB) *BunSettingRepository {
	return &BunSettingRepository{db: db}
}

// Upsert inserts the settings document or replaces it on the (user, robot)
// unique key, refreshing updated_at.
func (r *BunSettingRepository) Upsert(ctx context.Context, setting *models.RobotSetting) error {
	setting.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().
		Model(setting).
		On("CONFLICT (user_id, robot_id) DO UPDATE").
		Set("settings = EXCLUDED.settings").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert robot settings: %w", err)
	}
	return nil
}

// Get returns the user's settings row for the robot, or ErrNotFound.
func (r *BunSettingRepository) Get(ctx context.Context, userID, robotID int64) (*models.RobotSetting, error) {
	setting := new(models.RobotSetting)
	err := r.db.NewSelect().
		Model(setting).
		Where("rs.user_id = ?", userID).
		Where("rs.robot_id = ?", robotID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("settings for user %d on robot %d: %w", userID, robotID, ErrNotFound)
		}
		return nil, fmt.Errorf("get robot settings: %w", err)
	}
	return setting, nil
}

// ListForUser returns all of the user's settings rows joined with robot
// identity, most recently updated first.
func (r *BunSettingRepository) ListForUser(ctx context.Context, userID int64) ([]SettingWithRobot, error) {
	var settings []SettingWithRobot
	err := r.db.NewSelect().
		Model((*models.RobotSetting)(nil)).
		ColumnExpr("rs.*, r.serial_number, r.name AS robot_name").
		Join("JOIN robots AS r ON r.id = rs.robot_id").
		Where("rs.user_id = ?", userID).
		Order("rs.updated_at DESC").
		Scan(ctx, &settings)
	if err != nil {
		return nil, fmt.Errorf("list settings for user: %w", err)
	}
	return settings, nil
}
