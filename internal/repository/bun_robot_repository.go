package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/fleetworks/fleetgate/internal/db/models"
)

// BunRobotRepository implements RobotRepository using Bun ORM
type BunRobotRepository struct {
	db *bun.DB
}

// NewBunRobotRepository creates a new Bun-based robot repository
func NewBunRobotRepository(db *bun.DB) *BunRobotRepository {
	return &BunRobotRepository{db: db}
}

// Create inserts a new robot. Returns ErrConflict when the serial number is
// already registered.
func (r *BunRobotRepository) Create(ctx context.Context, robot *models.Robot) error {
	_, err := r.db.NewInsert().
		Model(robot).
		Returning("id, created_at").
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("serial number %s: %w", robot.SerialNumber, ErrConflict)
		}
		return fmt.Errorf("create robot: %w", err)
	}
	return nil
}

// GetByID retrieves a robot by its ID
func (r *BunRobotRepository) GetByID(ctx context.Context, id int64) (*models.Robot, error) {
	robot := new(models.Robot)
	err := r.db.NewSelect().
		Model(robot).
		Where("r.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("robot %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get robot by ID: %w", err)
	}
	return robot, nil
}

// GetBySerial retrieves a robot by its serial number
func (r *BunRobotRepository) GetBySerial(ctx context.Context, serial string) (*models.Robot, error) {
	robot := new(models.Robot)
	err := r.db.NewSelect().
		Model(robot).
		Where("r.serial_number = ?", serial).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("robot %s: %w", serial, ErrNotFound)
		}
		return nil, fmt.Errorf("get robot by serial: %w", err)
	}
	return robot, nil
}

// ListVisible returns one row per robot reachable by the user: owned
// personally, owned by a group the user belongs to, or carrying an explicit
// grant for the user. The query decides visibility only; access levels are
// computed in the access package from separately fetched rows.
func (r *BunRobotRepository) ListVisible(ctx context.Context, userID int64) ([]models.Robot, error) {
	var robots []models.Robot
	err := r.db.NewSelect().
		Model(&robots).
		Where(
			"r.owner_user_id = ? OR "+
				"r.owner_group_id IN (SELECT group_id FROM group_members WHERE user_id = ?) OR "+
				"r.id IN (SELECT robot_id FROM robot_permissions WHERE user_id = ?)",
			userID, userID, userID,
		).
		Order("r.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list visible robots: %w", err)
	}
	return robots, nil
}
