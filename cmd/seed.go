package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/fleetworks/fleetgate/internal/auth"
	"github.com/fleetworks/fleetgate/internal/db/bunx"
	"github.com/fleetworks/fleetgate/internal/db/models"
)

const (
	seedAdminEmail    = "admin@example.com"
	seedAdminPassword = "AdminPass123!"
	seedAdminName     = "Admin Operator"

	seedMemberEmail    = "member@example.com"
	seedMemberPassword = "MemberPass123!"
	seedMemberName     = "Regular Operator"

	seedGroupName       = "Apex Operators"
	seedPersonalRobotSN = "PRS-001"
	seedGroupRobotSN    = "GRP-9000"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load development fixture data",
	Long: `Wipes the fleet tables and inserts a small development dataset: two
users, one group, a personal robot, a group robot, delegated permissions,
and per-user settings. Intended for local development only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		if err := runSeed(cmd.Context(), db); err != nil {
			return err
		}

		log.Printf("Seed data inserted successfully")
		return nil
	},
}

func runSeed(ctx context.Context, db *bun.DB) error {
	adminHash, err := auth.HashPassword(seedAdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	memberHash, err := auth.HashPassword(seedMemberPassword)
	if err != nil {
		return fmt.Errorf("hash member password: %w", err)
	}

	return db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		// Child tables first so foreign keys never dangle mid-wipe.
		for _, model := range []any{
			(*models.RobotSetting)(nil),
			(*models.RobotPermission)(nil),
			(*models.Robot)(nil),
			(*models.GroupMember)(nil),
			(*models.Group)(nil),
			(*models.User)(nil),
		} {
			if _, err := tx.NewDelete().Model(model).Where("1 = 1").Exec(ctx); err != nil {
				return fmt.Errorf("wipe table: %w", err)
			}
		}

		admin := &models.User{Name: seedAdminName, Email: seedAdminEmail, PasswordHash: adminHash}
		member := &models.User{Name: seedMemberName, Email: seedMemberEmail, PasswordHash: memberHash}
		for _, u := range []*models.User{admin, member} {
			if _, err := tx.NewInsert().Model(u).Returning("id").Exec(ctx); err != nil {
				return fmt.Errorf("insert user %s: %w", u.Email, err)
			}
		}

		group := &models.Group{Name: seedGroupName, CreatedBy: admin.ID}
		if _, err := tx.NewInsert().Model(group).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("insert group: %w", err)
		}

		memberships := []*models.GroupMember{
			{GroupID: group.ID, UserID: admin.ID, Role: "admin"},
			{GroupID: group.ID, UserID: member.ID, Role: "member"},
		}
		for _, m := range memberships {
			if _, err := tx.NewInsert().Model(m).Exec(ctx); err != nil {
				return fmt.Errorf("insert membership: %w", err)
			}
		}

		roverModel := "XR-200"
		personal := &models.Robot{
			SerialNumber: seedPersonalRobotSN,
			Name:         "Personal Rover",
			Model:        &roverModel,
			OwnerType:    models.OwnerTypeUser,
			OwnerUserID:  &admin.ID,
		}
		haulerModel := "GX-500"
		shared := &models.Robot{
			SerialNumber: seedGroupRobotSN,
			Name:         "Atlas Hauler",
			Model:        &haulerModel,
			OwnerType:    models.OwnerTypeGroup,
			OwnerGroupID: &group.ID,
		}
		for _, r := range []*models.Robot{personal, shared} {
			if _, err := tx.NewInsert().Model(r).Returning("id").Exec(ctx); err != nil {
				return fmt.Errorf("insert robot %s: %w", r.SerialNumber, err)
			}
		}

		perms := []*models.RobotPermission{
			{UserID: member.ID, RobotID: shared.ID, PermissionType: "usage", GrantedBy: admin.ID},
			{UserID: admin.ID, RobotID: shared.ID, PermissionType: "admin", GrantedBy: admin.ID},
		}
		for _, p := range perms {
			if _, err := tx.NewInsert().Model(p).Exec(ctx); err != nil {
				return fmt.Errorf("insert permission: %w", err)
			}
		}

		settings := []*models.RobotSetting{
			{UserID: admin.ID, RobotID: personal.ID, Settings: models.SettingsDoc{"theme": "dark", "language": "en-US"}},
			{UserID: member.ID, RobotID: shared.ID, Settings: models.SettingsDoc{"theme": "light", "language": "en-GB"}},
		}
		for _, s := range settings {
			if _, err := tx.NewInsert().Model(s).Exec(ctx); err != nil {
				return fmt.Errorf("insert settings: %w", err)
			}
		}

		return nil
	})
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
