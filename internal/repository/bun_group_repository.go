package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/fleetworks/fleetgate/internal/access"
	"github.com/fleetworks/fleetgate/internal/db/models"
)

// BunGroupRepository implements GroupRepository using Bun ORM
type BunGroupRepository struct {
	db *bun.DB
}

// NewBunGroupRepository creates a new Bun-based group repository
func NewBunGroupRepository(db *bun.DB) *BunGroupRepository {
	return &BunGroupRepository{db: db}
}

// Create inserts the group and its creator's admin membership atomically.
// The creator is always the first admin.
func (r *BunGroupRepository) Create(ctx context.Context, group *models.Group) error {
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().
			Model(group).
			Returning("id, created_at").
			Exec(ctx); err != nil {
			return fmt.Errorf("insert group: %w", err)
		}

		member := &models.GroupMember{
			GroupID: group.ID,
			UserID:  group.CreatedBy,
			Role:    string(access.RoleAdmin),
		}
		if _, err := tx.NewInsert().Model(member).Exec(ctx); err != nil {
			return fmt.Errorf("insert creator membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// GetByID retrieves a group by its ID
func (r *BunGroupRepository) GetByID(ctx context.Context, id int64) (*models.Group, error) {
	group := new(models.Group)
	err := r.db.NewSelect().
		Model(group).
		Where("g.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("group %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get group by ID: %w", err)
	}
	return group, nil
}

// ListForUser returns the groups the user belongs to with their role in each.
func (r *BunGroupRepository) ListForUser(ctx context.Context, userID int64) ([]GroupWithRole, error) {
	var groups []GroupWithRole
	err := r.db.NewSelect().
		Model((*models.Group)(nil)).
		ColumnExpr("g.*, gm.role AS role").
		Join("JOIN group_members AS gm ON gm.group_id = g.id").
		Where("gm.user_id = ?", userID).
		Order("g.name ASC").
		Scan(ctx, &groups)
	if err != nil {
		return nil, fmt.Errorf("list groups for user: %w", err)
	}
	return groups, nil
}

// Members returns the group's membership roster with member profiles.
func (r *BunGroupRepository) Members(ctx context.Context, groupID int64) ([]GroupMemberDetail, error) {
	var members []GroupMemberDetail
	err := r.db.NewSelect().
		Model((*models.GroupMember)(nil)).
		ColumnExpr("gm.user_id, gm.role, u.name, u.email").
		Join("JOIN users AS u ON u.id = gm.user_id").
		Where("gm.group_id = ?", groupID).
		Order("u.name ASC").
		Scan(ctx, &members)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	return members, nil
}

// GetMember returns the membership row for (group, user), or ErrNotFound.
func (r *BunGroupRepository) GetMember(ctx context.Context, groupID, userID int64) (*models.GroupMember, error) {
	member := new(models.GroupMember)
	err := r.db.NewSelect().
		Model(member).
		Where("gm.group_id = ?", groupID).
		Where("gm.user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("membership of user %d in group %d: %w", userID, groupID, ErrNotFound)
		}
		return nil, fmt.Errorf("get group member: %w", err)
	}
	return member, nil
}

// UpsertMember inserts a membership, updating the role when (group, user)
// already exists. Re-inviting never duplicates a row.
func (r *BunGroupRepository) UpsertMember(ctx context.Context, member *models.GroupMember) error {
	_, err := r.db.NewInsert().
		Model(member).
		On("CONFLICT (group_id, user_id) DO UPDATE").
		Set("role = EXCLUDED.role").
		Returning("id, role, created_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert group member: %w", err)
	}
	return nil
}

// RemoveMember deletes the membership row for (group, user).
func (r *BunGroupRepository) RemoveMember(ctx context.Context, groupID, userID int64) error {
	_, err := r.db.NewDelete().
		Model((*models.GroupMember)(nil)).
		Where("group_id = ?", groupID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	return nil
}
