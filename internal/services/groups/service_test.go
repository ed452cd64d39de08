package groups

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetworks/fleetgate/internal/db/models"
	"github.com/fleetworks/fleetgate/internal/repository"
)

type stubGroupRepository struct {
	groups  []models.Group
	members []models.GroupMember
	nextID  int64
}

func (s *stubGroupRepository) Create(ctx context.Context, group *models.Group) error {
	s.nextID++
	group.ID = s.nextID
	s.groups = append(s.groups, *group)
	// Mirror the transactional insert of the creator's admin membership.
	s.members = append(s.members, models.GroupMember{
		ID:      int64(len(s.members) + 1),
		GroupID: group.ID,
		UserID:  group.CreatedBy,
		Role:    "admin",
	})
	return nil
}

func (s *stubGroupRepository) GetByID(ctx context.Context, id int64) (*models.Group, error) {
	for i := range s.groups {
		if s.groups[i].ID == id {
			group := s.groups[i]
			return &group, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubGroupRepository) ListForUser(ctx context.Context, userID int64) ([]repository.GroupWithRole, error) {
	var result []repository.GroupWithRole
	for _, m := range s.members {
		if m.UserID != userID {
			continue
		}
		for _, g := range s.groups {
			if g.ID == m.GroupID {
				result = append(result, repository.GroupWithRole{Group: g, Role: m.Role})
			}
		}
	}
	return result, nil
}

func (s *stubGroupRepository) Members(ctx context.Context, groupID int64) ([]repository.GroupMemberDetail, error) {
	var result []repository.GroupMemberDetail
	for _, m := range s.members {
		if m.GroupID == groupID {
			result = append(result, repository.GroupMemberDetail{UserID: m.UserID, Role: m.Role})
		}
	}
	return result, nil
}

func (s *stubGroupRepository) GetMember(ctx context.Context, groupID, userID int64) (*models.GroupMember, error) {
	for i := range s.members {
		if s.members[i].GroupID == groupID && s.members[i].UserID == userID {
			member := s.members[i]
			return &member, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubGroupRepository) UpsertMember(ctx context.Context, member *models.GroupMember) error {
	for i := range s.members {
		if s.members[i].GroupID == member.GroupID && s.members[i].UserID == member.UserID {
			s.members[i].Role = member.Role
			member.ID = s.members[i].ID
			return nil
		}
	}
	member.ID = int64(len(s.members) + 1)
	s.members = append(s.members, *member)
	return nil
}

func (s *stubGroupRepository) RemoveMember(ctx context.Context, groupID, userID int64) error {
	for i := range s.members {
		if s.members[i].GroupID == groupID && s.members[i].UserID == userID {
			s.members = append(s.members[:i], s.members[i+1:]...)
			return nil
		}
	}
	return nil
}

type stubUserRepository struct {
	users []models.User
}

func (s *stubUserRepository) Create(ctx context.Context, user *models.User) error {
	s.users = append(s.users, *user)
	return nil
}

func (s *stubUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	for i := range s.users {
		if s.users[i].ID == id {
			user := s.users[i]
			return &user, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for i := range s.users {
		if s.users[i].Email == email {
			user := s.users[i]
			return &user, nil
		}
	}
	return nil, repository.ErrNotFound
}

func newTestService() (*Service, *stubGroupRepository) {
	groupRepo := &stubGroupRepository{}
	userRepo := &stubUserRepository{
		users: []models.User{
			{ID: 1, Name: "Ada", Email: "ada@example.com"},
			{ID: 2, Name: "Grace", Email: "grace@example.com"},
			{ID: 3, Name: "Lin", Email: "lin@example.com"},
		},
	}
	return NewService(groupRepo, userRepo), groupRepo
}

func TestCreateMakesCreatorAdmin(t *testing.T) {
	t.Parallel()

	svc, repo := newTestService()

	group, err := svc.Create(context.Background(), 1, "Apex Operators")
	require.NoError(t, err)
	require.NotZero(t, group.ID)

	member, err := repo.GetMember(context.Background(), group.ID, 1)
	require.NoError(t, err)
	require.Equal(t, "admin", member.Role)

	mine, err := svc.ListForUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "admin", mine[0].Role)
}

func TestUpsertMemberRequiresAdmin(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()

	group, err := svc.Create(context.Background(), 1, "Apex Operators")
	require.NoError(t, err)

	two := int64(2)
	_, err = svc.UpsertMember(context.Background(), 1, group.ID, TargetUser{ID: &two}, "member")
	require.NoError(t, err)

	// A plain member cannot invite.
	three := int64(3)
	_, err = svc.UpsertMember(context.Background(), 2, group.ID, TargetUser{ID: &three}, "member")
	require.ErrorIs(t, err, ErrNotAdmin)

	// Neither can a non-member.
	_, err = svc.UpsertMember(context.Background(), 3, group.ID, TargetUser{ID: &three}, "member")
	require.ErrorIs(t, err, ErrNotAdmin)
}

func TestUpsertMemberOverwritesRole(t *testing.T) {
	t.Parallel()

	svc, repo := newTestService()

	group, err := svc.Create(context.Background(), 1, "Apex Operators")
	require.NoError(t, err)

	detail, err := svc.UpsertMember(context.Background(), 1, group.ID, TargetUser{Email: "grace@example.com"}, "member")
	require.NoError(t, err)
	require.Equal(t, int64(2), detail.UserID)
	require.Equal(t, "member", detail.Role)

	// Re-inviting promotes instead of erroring.
	detail, err = svc.UpsertMember(context.Background(), 1, group.ID, TargetUser{Email: "grace@example.com"}, "admin")
	require.NoError(t, err)
	require.Equal(t, "admin", detail.Role)

	members, err := repo.Members(context.Background(), group.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
}

func TestUpsertMemberValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService()

	group, err := svc.Create(context.Background(), 1, "Apex Operators")
	require.NoError(t, err)

	_, err = svc.UpsertMember(context.Background(), 1, group.ID, TargetUser{Email: "grace@example.com"}, "owner")
	require.Error(t, err)

	_, err = svc.UpsertMember(context.Background(), 1, group.ID, TargetUser{Email: "nobody@example.com"}, "member")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestRemoveMember(t *testing.T) {
	t.Parallel()

	svc, repo := newTestService()

	group, err := svc.Create(context.Background(), 1, "Apex Operators")
	require.NoError(t, err)

	two := int64(2)
	_, err = svc.UpsertMember(context.Background(), 1, group.ID, TargetUser{ID: &two}, "member")
	require.NoError(t, err)

	// The member cannot remove themselves; only admins manage the roster.
	err = svc.RemoveMember(context.Background(), 2, group.ID, 2)
	require.ErrorIs(t, err, ErrNotAdmin)

	require.NoError(t, svc.RemoveMember(context.Background(), 1, group.ID, 2))
	_, err = repo.GetMember(context.Background(), group.ID, 2)
	require.ErrorIs(t, err, repository.ErrNotFound)

	// Removing an absent member is a no-op.
	require.NoError(t, svc.RemoveMember(context.Background(), 1, group.ID, 2))
}
