package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/fleetworks/fleetgate/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20250812000000, down_20250812000000)
}

// up_20250812000000 initializes the full database schema: users, groups,
// group memberships, robots, robot permissions, and robot settings.
func up_20250812000000(ctx context.Context, db *bun.DB) error {
	// 1. users
	fmt.Print(" [up] creating users table...")
	_, err := db.NewCreateTable().
		Model((*models.User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	fmt.Println(" OK")

	// 2. groups
	fmt.Print(" [up] creating groups table...")
	q := db.NewCreateTable().
		Model((*models.Group)(nil)).
		IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(created_by) REFERENCES users(id)`)
	}
	if _, err = q.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create groups table: %w", err)
	}
	fmt.Println(" OK")

	// 3. group_members
	fmt.Print(" [up] creating group_members table...")
	q = db.NewCreateTable().
		Model((*models.GroupMember)(nil)).
		IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(group_id) REFERENCES groups(id) ON DELETE CASCADE`)
		q = q.ForeignKey(`(user_id) REFERENCES users(id) ON DELETE CASCADE`)
	}
	if _, err = q.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create group_members table: %w", err)
	}

	// Membership is unique per (group, user); member upserts key on this.
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_group_members_group_user
		ON group_members(group_id, user_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create unique index on (group_id, user_id): %w", err)
	}
	fmt.Println(" OK")

	// 4. robots
	fmt.Print(" [up] creating robots table...")
	q = db.NewCreateTable().
		Model((*models.Robot)(nil)).
		IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(owner_user_id) REFERENCES users(id)`)
		q = q.ForeignKey(`(owner_group_id) REFERENCES groups(id)`)
	}
	if _, err = q.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create robots table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_robots_owner_user ON robots(owner_user_id)`)
	if err != nil {
		return fmt.Errorf("failed to create index on owner_user_id: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_robots_owner_group ON robots(owner_group_id)`)
	if err != nil {
		return fmt.Errorf("failed to create index on owner_group_id: %w", err)
	}
	fmt.Println(" OK")

	// 5. robot_permissions
	fmt.Print(" [up] creating robot_permissions table...")
	q = db.NewCreateTable().
		Model((*models.RobotPermission)(nil)).
		IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(user_id) REFERENCES users(id) ON DELETE CASCADE`)
		q = q.ForeignKey(`(robot_id) REFERENCES robots(id) ON DELETE CASCADE`)
		q = q.ForeignKey(`(granted_by) REFERENCES users(id)`)
	}
	if _, err = q.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create robot_permissions table: %w", err)
	}

	// One grant per (user, robot); re-grants upsert onto this key.
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_robot_permissions_user_robot
		ON robot_permissions(user_id, robot_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create unique index on (user_id, robot_id): %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_robot_permissions_robot ON robot_permissions(robot_id)`)
	if err != nil {
		return fmt.Errorf("failed to create index on robot_id: %w", err)
	}
	fmt.Println(" OK")

	// 6. robot_settings
	fmt.Print(" [up] creating robot_settings table...")
	q = db.NewCreateTable().
		Model((*models.RobotSetting)(nil)).
		IfNotExists()
	if IsSQLite(db) {
		q = q.ForeignKey(`(user_id) REFERENCES users(id) ON DELETE CASCADE`)
		q = q.ForeignKey(`(robot_id) REFERENCES robots(id) ON DELETE CASCADE`)
	}
	if _, err = q.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create robot_settings table: %w", err)
	}

	// One settings document per (user, robot); saves upsert onto this key.
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_robot_settings_user_robot
		ON robot_settings(user_id, robot_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create unique index on (user_id, robot_id): %w", err)
	}

	// Ensure settings is JSONB for Postgres
	if IsPostgreSQL(db) {
		_, err = db.Exec(`ALTER TABLE robot_settings ALTER COLUMN settings TYPE JSONB USING settings::jsonb`)
		if err != nil {
			return fmt.Errorf("failed to ensure settings column is jsonb: %w", err)
		}
	}
	fmt.Println(" OK")

	return nil
}

// down_20250812000000 drops all tables in reverse dependency order
func down_20250812000000(ctx context.Context, db *bun.DB) error {
	tables := []string{
		"robot_settings",
		"robot_permissions",
		"robots",
		"group_members",
		"groups",
		"users",
	}
	for _, table := range tables {
		fmt.Printf(" [down] dropping %s table...", table)
		if _, err := db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table, err)
		}
		fmt.Println(" OK")
	}
	return nil
}
