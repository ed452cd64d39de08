package robots

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetworks/fleetgate/internal/access"
	"github.com/fleetworks/fleetgate/internal/db/models"
	"github.com/fleetworks/fleetgate/internal/repository"
)

type stubRobotRepository struct {
	robots    []models.Robot
	createErr error
	nextID    int64
}

func (s *stubRobotRepository) Create(ctx context.Context, robot *models.Robot) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	robot.ID = s.nextID
	s.robots = append(s.robots, *robot)
	return nil
}

func (s *stubRobotRepository) GetByID(ctx context.Context, id int64) (*models.Robot, error) {
	for i := range s.robots {
		if s.robots[i].ID == id {
			robot := s.robots[i]
			return &robot, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubRobotRepository) GetBySerial(ctx context.Context, serial string) (*models.Robot, error) {
	for i := range s.robots {
		if s.robots[i].SerialNumber == serial {
			robot := s.robots[i]
			return &robot, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubRobotRepository) ListVisible(ctx context.Context, userID int64) ([]models.Robot, error) {
	result := make([]models.Robot, len(s.robots))
	copy(result, s.robots)
	return result, nil
}

type stubPermissionRepository struct {
	perms []models.RobotPermission
}

func (s *stubPermissionRepository) Upsert(ctx context.Context, perm *models.RobotPermission) error {
	for i := range s.perms {
		if s.perms[i].UserID == perm.UserID && s.perms[i].RobotID == perm.RobotID {
			s.perms[i].PermissionType = perm.PermissionType
			s.perms[i].GrantedBy = perm.GrantedBy
			perm.ID = s.perms[i].ID
			return nil
		}
	}
	perm.ID = int64(len(s.perms) + 1)
	s.perms = append(s.perms, *perm)
	return nil
}

func (s *stubPermissionRepository) GetForUserRobot(ctx context.Context, userID, robotID int64) (*models.RobotPermission, error) {
	for i := range s.perms {
		if s.perms[i].UserID == userID && s.perms[i].RobotID == robotID {
			perm := s.perms[i]
			return &perm, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubPermissionRepository) GetForUser(ctx context.Context, userID int64) (map[int64]models.RobotPermission, error) {
	result := make(map[int64]models.RobotPermission)
	for _, p := range s.perms {
		if p.UserID == userID {
			result[p.RobotID] = p
		}
	}
	return result, nil
}

func (s *stubPermissionRepository) ListForRobot(ctx context.Context, robotID int64) ([]repository.PermissionDetail, error) {
	var result []repository.PermissionDetail
	for _, p := range s.perms {
		if p.RobotID == robotID {
			result = append(result, repository.PermissionDetail{
				ID:             p.ID,
				UserID:         p.UserID,
				PermissionType: p.PermissionType,
			})
		}
	}
	return result, nil
}

func (s *stubPermissionRepository) Delete(ctx context.Context, robotID, userID int64) error {
	for i := range s.perms {
		if s.perms[i].RobotID == robotID && s.perms[i].UserID == userID {
			s.perms = append(s.perms[:i], s.perms[i+1:]...)
			return nil
		}
	}
	return nil
}

type stubGroupRepository struct {
	groups  []models.Group
	members []models.GroupMember
}

func (s *stubGroupRepository) Create(ctx context.Context, group *models.Group) error {
	return errors.New("not implemented")
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
	return nil, errors.New("not implemented")
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
	return errors.New("not implemented")
}

func (s *stubGroupRepository) RemoveMember(ctx context.Context, groupID, userID int64) error {
	return errors.New("not implemented")
}

type stubUserRepository struct {
	users []models.User
}

func (s *stubUserRepository) Create(ctx context.Context, user *models.User) error {
	return errors.New("not implemented")
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

// fixture ids used throughout: user 1 owns robot "PR-1" (id 1); group 10 owns
// robot "GR-1" (id 2); user 2 is admin of group 10, user 3 is a plain member,
// user 4 is an outsider.
func newFixture(rules access.Ruleset) (*Service, *stubRobotRepository, *stubPermissionRepository, *stubGroupRepository) {
	owner := int64(1)
	groupID := int64(10)

	robotRepo := &stubRobotRepository{
		nextID: 2,
		robots: []models.Robot{
			{ID: 1, SerialNumber: "PR-1", Name: "Personal Rover", OwnerType: models.OwnerTypeUser, OwnerUserID: &owner},
			{ID: 2, SerialNumber: "GR-1", Name: "Atlas Hauler", OwnerType: models.OwnerTypeGroup, OwnerGroupID: &groupID},
		},
	}
	permRepo := &stubPermissionRepository{}
	groupRepo := &stubGroupRepository{
		groups: []models.Group{{ID: groupID, Name: "Apex Operators", CreatedBy: 2}},
		members: []models.GroupMember{
			{ID: 1, GroupID: groupID, UserID: 2, Role: "admin"},
			{ID: 2, GroupID: groupID, UserID: 3, Role: "member"},
		},
	}
	userRepo := &stubUserRepository{
		users: []models.User{
			{ID: 1, Name: "Owner", Email: "owner@example.com"},
			{ID: 2, Name: "Admin", Email: "admin@example.com"},
			{ID: 3, Name: "Member", Email: "member@example.com"},
			{ID: 4, Name: "Outsider", Email: "outsider@example.com"},
		},
	}

	svc := NewService(robotRepo, permRepo, groupRepo, userRepo, rules)
	return svc, robotRepo, permRepo, groupRepo
}

func TestCreatePersonalRobotOwnedByCaller(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newFixture(access.Ruleset{GroupMemberUsage: true})

	robot, err := svc.Create(context.Background(), 4, CreateInput{
		SerialNumber: "NEW-1",
		Name:         "Scout",
		OwnerType:    models.OwnerTypeUser,
	})
	require.NoError(t, err)
	require.NotNil(t, robot.OwnerUserID)
	require.Equal(t, int64(4), *robot.OwnerUserID)
	require.Nil(t, robot.OwnerGroupID)
}

func TestCreateGroupRobotRequiresAdminRole(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newFixture(access.Ruleset{GroupMemberUsage: true})
	groupID := int64(10)

	// Plain member cannot register a group-owned robot.
	_, err := svc.Create(context.Background(), 3, CreateInput{
		SerialNumber: "NEW-2",
		Name:         "Scout",
		OwnerType:    models.OwnerTypeGroup,
		OwnerGroupID: &groupID,
	})
	require.ErrorIs(t, err, ErrGroupAdminOnly)

	// Group admin can.
	robot, err := svc.Create(context.Background(), 2, CreateInput{
		SerialNumber: "NEW-2",
		Name:         "Scout",
		OwnerType:    models.OwnerTypeGroup,
		OwnerGroupID: &groupID,
	})
	require.NoError(t, err)
	require.Equal(t, groupID, *robot.OwnerGroupID)
	require.Nil(t, robot.OwnerUserID)
}

func TestCreateValidatesOwnership(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newFixture(access.Ruleset{GroupMemberUsage: true})

	_, err := svc.Create(context.Background(), 1, CreateInput{
		SerialNumber: "NEW-3",
		Name:         "Scout",
		OwnerType:    "fleet",
	})
	require.ErrorIs(t, err, access.ErrInvalidOwnerType)

	_, err = svc.Create(context.Background(), 1, CreateInput{
		SerialNumber: "NEW-3",
		Name:         "Scout",
		OwnerType:    models.OwnerTypeGroup,
	})
	require.ErrorIs(t, err, access.ErrGroupRequired)
}

func TestCreateDuplicateSerial(t *testing.T) {
	t.Parallel()

	svc, robotRepo, _, _ := newFixture(access.Ruleset{GroupMemberUsage: true})
	robotRepo.createErr = repository.ErrConflict

	_, err := svc.Create(context.Background(), 1, CreateInput{
		SerialNumber: "PR-1",
		Name:         "Clone",
		OwnerType:    models.OwnerTypeUser,
	})
	require.ErrorIs(t, err, ErrDuplicateSerial)
}

func TestListAnnotatesPerViewerLevels(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newFixture(access.Ruleset{GroupMemberUsage: true})

	// The owner of PR-1, not in group 10.
	views, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, views, 2)

	bySerial := make(map[string]View)
	for _, v := range views {
		bySerial[v.SerialNumber] = v
	}

	require.Equal(t, access.LevelOwner, bySerial["PR-1"].PermissionLevel)
	require.Equal(t, "personal", bySerial["PR-1"].OwnershipType)
	require.Equal(t, access.LevelNone, bySerial["GR-1"].PermissionLevel)
	require.False(t, bySerial["GR-1"].IsGroupAdmin)
}

func TestListGroupMemberGetsImplicitUsage(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newFixture(access.Ruleset{GroupMemberUsage: true})

	views, err := svc.List(context.Background(), 3)
	require.NoError(t, err)

	for _, v := range views {
		if v.SerialNumber == "GR-1" {
			require.Equal(t, access.LevelUsage, v.PermissionLevel)
			require.False(t, v.IsGroupAdmin)
			return
		}
	}
	t.Fatal("group robot missing from list")
}

func TestListMembershipAloneWithoutImplicitUsage(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newFixture(access.Ruleset{GroupMemberUsage: false})

	views, err := svc.List(context.Background(), 3)
	require.NoError(t, err)

	for _, v := range views {
		if v.SerialNumber == "GR-1" {
			require.Equal(t, access.LevelNone, v.PermissionLevel)
			return
		}
	}
	t.Fatal("group robot missing from list")
}

func TestListExplicitGrantBeatsMembership(t *testing.T) {
	t.Parallel()

	svc, _, permRepo, _ := newFixture(access.Ruleset{GroupMemberUsage: true})
	require.NoError(t, permRepo.Upsert(context.Background(), &models.RobotPermission{
		UserID: 3, RobotID: 2, PermissionType: "admin", GrantedBy: 2,
	}))

	views, err := svc.List(context.Background(), 3)
	require.NoError(t, err)

	for _, v := range views {
		if v.SerialNumber == "GR-1" {
			require.Equal(t, access.LevelAdmin, v.PermissionLevel)
			return
		}
	}
	t.Fatal("group robot missing from list")
}

func TestGetBySerialSplitsNotFoundAndForbidden(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newFixture(access.Ruleset{GroupMemberUsage: true})

	_, err := svc.GetBySerial(context.Background(), 1, "NO-SUCH")
	require.ErrorIs(t, err, ErrRobotNotFound)

	// Outsider: robot exists but the level is none.
	_, err = svc.GetBySerial(context.Background(), 4, "PR-1")
	require.ErrorIs(t, err, ErrForbidden)

	view, err := svc.GetBySerial(context.Background(), 1, "PR-1")
	require.NoError(t, err)
	require.Equal(t, access.LevelOwner, view.PermissionLevel)
}

func TestGetBySerialGroupAdminSeesAdminFlag(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newFixture(access.Ruleset{GroupMemberUsage: true})

	view, err := svc.GetBySerial(context.Background(), 2, "GR-1")
	require.NoError(t, err)
	require.Equal(t, access.LevelUsage, view.PermissionLevel)
	require.True(t, view.IsGroupAdmin)
	require.Equal(t, "group", view.OwnershipType)
}

func TestGrantPermissionStanding(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newFixture(access.Ruleset{GroupMemberUsage: true})
	target := TargetUser{Email: "outsider@example.com"}

	// Owner grants on their own robot.
	perm, err := svc.GrantPermission(context.Background(), 1, 1, target, "usage")
	require.NoError(t, err)
	require.Equal(t, int64(4), perm.UserID)
	require.Equal(t, int64(1), perm.GrantedBy)

	// A usage grantee has no standing to grant further.
	_, err = svc.GrantPermission(context.Background(), 4, 1, TargetUser{Email: "member@example.com"}, "usage")
	require.ErrorIs(t, err, ErrForbidden)

	// Group admin grants on the group robot without an explicit grant.
	_, err = svc.GrantPermission(context.Background(), 2, 2, target, "admin")
	require.NoError(t, err)

	// Plain group member cannot.
	_, err = svc.GrantPermission(context.Background(), 3, 2, target, "usage")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestGrantPermissionAdminGranteeCanDelegate(t *testing.T) {
	t.Parallel()

	svc, _, permRepo, _ := newFixture(access.Ruleset{GroupMemberUsage: true})
	require.NoError(t, permRepo.Upsert(context.Background(), &models.RobotPermission{
		UserID: 4, RobotID: 1, PermissionType: "admin", GrantedBy: 1,
	}))

	_, err := svc.GrantPermission(context.Background(), 4, 1, TargetUser{Email: "member@example.com"}, "usage")
	require.NoError(t, err)
}

func TestGrantPermissionOverwritesExisting(t *testing.T) {
	t.Parallel()

	svc, _, permRepo, _ := newFixture(access.Ruleset{GroupMemberUsage: true})

	_, err := svc.GrantPermission(context.Background(), 1, 1, TargetUser{Email: "outsider@example.com"}, "usage")
	require.NoError(t, err)
	_, err = svc.GrantPermission(context.Background(), 1, 1, TargetUser{Email: "outsider@example.com"}, "admin")
	require.NoError(t, err)

	stored, err := permRepo.GetForUserRobot(context.Background(), 4, 1)
	require.NoError(t, err)
	require.Equal(t, "admin", stored.PermissionType)
}

func TestGrantPermissionUnknownTarget(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newFixture(access.Ruleset{GroupMemberUsage: true})

	_, err := svc.GrantPermission(context.Background(), 1, 1, TargetUser{Email: "nobody@example.com"}, "usage")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestRevokePermission(t *testing.T) {
	t.Parallel()

	svc, _, permRepo, _ := newFixture(access.Ruleset{GroupMemberUsage: true})
	require.NoError(t, permRepo.Upsert(context.Background(), &models.RobotPermission{
		UserID: 4, RobotID: 1, PermissionType: "usage", GrantedBy: 1,
	}))

	// Member without standing cannot revoke.
	err := svc.RevokePermission(context.Background(), 3, 1, 4)
	require.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.RevokePermission(context.Background(), 1, 1, 4))
	_, err = permRepo.GetForUserRobot(context.Background(), 4, 1)
	require.ErrorIs(t, err, repository.ErrNotFound)

	// Revoking an absent grant stays a no-op.
	require.NoError(t, svc.RevokePermission(context.Background(), 1, 1, 4))
}

func TestListPermissionsGated(t *testing.T) {
	t.Parallel()

	svc, _, permRepo, _ := newFixture(access.Ruleset{GroupMemberUsage: true})
	require.NoError(t, permRepo.Upsert(context.Background(), &models.RobotPermission{
		UserID: 3, RobotID: 2, PermissionType: "usage", GrantedBy: 2,
	}))

	_, err := svc.ListPermissions(context.Background(), 3, "GR-1")
	require.ErrorIs(t, err, ErrForbidden)

	perms, err := svc.ListPermissions(context.Background(), 2, "GR-1")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	require.Equal(t, int64(3), perms[0].UserID)
}

func TestAssignGroupRobot(t *testing.T) {
	t.Parallel()

	svc, _, permRepo, _ := newFixture(access.Ruleset{GroupMemberUsage: true})
	target := TargetUser{Email: "member@example.com"}

	// Personal robots cannot be assigned.
	_, err := svc.Assign(context.Background(), 1, 1, target, "")
	require.ErrorIs(t, err, ErrNotAssignable)

	// Plain members cannot assign.
	_, err = svc.Assign(context.Background(), 3, 2, target, "")
	require.ErrorIs(t, err, ErrGroupAdminOnly)

	// Admin assigns; the permission type defaults to usage.
	perm, err := svc.Assign(context.Background(), 2, 2, target, "")
	require.NoError(t, err)
	require.Equal(t, "usage", perm.PermissionType)
	require.Equal(t, int64(2), perm.GrantedBy)

	stored, err := permRepo.GetForUserRobot(context.Background(), 3, 2)
	require.NoError(t, err)
	require.Equal(t, "usage", stored.PermissionType)
}

func TestAssignUnknownRobot(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newFixture(access.Ruleset{GroupMemberUsage: true})

	_, err := svc.Assign(context.Background(), 2, 99, TargetUser{Email: "member@example.com"}, "")
	require.ErrorIs(t, err, ErrRobotNotFound)
}
