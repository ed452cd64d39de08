// Package groups manages groups and their memberships. All member mutations
// are gated on the caller holding the admin role in the group.
package groups

import (
	"context"
	"errors"
	"fmt"

	"github.com/fleetworks/fleetgate/internal/access"
	"github.com/fleetworks/fleetgate/internal/db/models"
	"github.com/fleetworks/fleetgate/internal/repository"
)

var (
	// ErrGroupNotFound is returned when the referenced group does not exist.
	ErrGroupNotFound = errors.New("group not found")

	// ErrUserNotFound is returned when a target user (by id or email) does
	// not exist.
	ErrUserNotFound = errors.New("user with provided identifier not found")

	// ErrNotAdmin is returned when the caller is not an admin of the group.
	ErrNotAdmin = errors.New("only group admins can manage members")
)

// TargetUser identifies a member either by user id or by email. Exactly one
// field is expected to be set; the id wins when both are.
type TargetUser struct {
	ID    *int64
	Email string
}

// Service implements group and membership operations.
type Service struct {
	groups repository.GroupRepository
	users  repository.UserRepository
}

// NewService creates a groups service.
func NewService(groups repository.GroupRepository, users repository.UserRepository) *Service {
	return &Service{groups: groups, users: users}
}

// ListForUser returns the caller's groups with their role in each.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]repository.GroupWithRole, error) {
	return s.groups.ListForUser(ctx, userID)
}

// Create makes a new group with the caller as its first admin.
func (s *Service) Create(ctx context.Context, creatorID int64, name string) (*models.Group, error) {
	group := &models.Group{
		Name:      name,
		CreatedBy: creatorID,
	}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// Members returns the group's roster.
func (s *Service) Members(ctx context.Context, groupID int64) ([]repository.GroupMemberDetail, error) {
	return s.groups.Members(ctx, groupID)
}

// UpsertMember adds a user to the group or updates their role. The caller
// must be a group admin. Re-inviting an existing member overwrites the role
// rather than erroring.
func (s *Service) UpsertMember(ctx context.Context, callerID, groupID int64, target TargetUser, role string) (*repository.GroupMemberDetail, error) {
	parsedRole, err := access.ParseRole(role)
	if err != nil {
		return nil, err
	}

	if err := s.requireAdmin(ctx, groupID, callerID); err != nil {
		return nil, err
	}

	user, err := s.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	member := &models.GroupMember{
		GroupID: groupID,
		UserID:  user.ID,
		Role:    string(parsedRole),
	}
	if err := s.groups.UpsertMember(ctx, member); err != nil {
		return nil, err
	}

	return &repository.GroupMemberDetail{
		UserID: user.ID,
		Role:   member.Role,
		Name:   user.Name,
		Email:  user.Email,
	}, nil
}

// RemoveMember removes a user from the group. The caller must be a group
// admin. Removing an absent member is a no-op.
func (s *Service) RemoveMember(ctx context.Context, callerID, groupID, userID int64) error {
	if err := s.requireAdmin(ctx, groupID, callerID); err != nil {
		return err
	}
	return s.groups.RemoveMember(ctx, groupID, userID)
}

// requireAdmin fails with ErrNotAdmin unless the caller holds the admin role
// in the group. A missing membership is the same as a non-admin one.
func (s *Service) requireAdmin(ctx context.Context, groupID, callerID int64) error {
	member, err := s.groups.GetMember(ctx, groupID, callerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotAdmin
		}
		return fmt.Errorf("check group role: %w", err)
	}
	if member.Role != string(access.RoleAdmin) {
		return ErrNotAdmin
	}
	return nil
}

// resolveTarget looks up the subject user by id or email.
func (s *Service) resolveTarget(ctx context.Context, target TargetUser) (*models.User, error) {
	if target.ID != nil {
		user, err := s.users.GetByID(ctx, *target.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, fmt.Errorf("resolve target user: %w", err)
		}
		return user, nil
	}

	user, err := s.users.GetByEmail(ctx, target.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("resolve target user: %w", err)
	}
	return user, nil
}
