package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetworks/fleetgate/internal/db/models"
)

func int64Ptr(v int64) *int64 { return &v }

func grantPtr(g Grant) *Grant { return &g }

func rolePtr(r Role) *Role { return &r }

func userRobot(ownerID int64) *models.Robot {
	return &models.Robot{
		ID:           1,
		SerialNumber: "SN-100",
		OwnerType:    models.OwnerTypeUser,
		OwnerUserID:  int64Ptr(ownerID),
	}
}

func groupRobot(groupID int64) *models.Robot {
	return &models.Robot{
		ID:           2,
		SerialNumber: "GRP-1",
		OwnerType:    models.OwnerTypeGroup,
		OwnerGroupID: int64Ptr(groupID),
	}
}

func TestValidateOwnership(t *testing.T) {
	t.Run("user owned", func(t *testing.T) {
		require.NoError(t, ValidateOwnership(models.OwnerTypeUser, nil))
	})

	t.Run("group owned with group", func(t *testing.T) {
		require.NoError(t, ValidateOwnership(models.OwnerTypeGroup, int64Ptr(7)))
	})

	t.Run("group owned without group", func(t *testing.T) {
		err := ValidateOwnership(models.OwnerTypeGroup, nil)
		require.ErrorIs(t, err, ErrGroupRequired)
	})

	t.Run("unknown owner type", func(t *testing.T) {
		err := ValidateOwnership(models.OwnerType("fleet"), nil)
		require.ErrorIs(t, err, ErrInvalidOwnerType)
	})
}

func TestParseGrant(t *testing.T) {
	for _, valid := range []string{"usage", "admin"} {
		g, err := ParseGrant(valid)
		require.NoError(t, err)
		assert.Equal(t, Grant(valid), g)
	}

	_, err := ParseGrant("owner")
	require.Error(t, err)
}

func TestParseRole(t *testing.T) {
	for _, valid := range []string{"admin", "member"} {
		r, err := ParseRole(valid)
		require.NoError(t, err)
		assert.Equal(t, Role(valid), r)
	}

	_, err := ParseRole("superuser")
	require.Error(t, err)
}

func TestDecide(t *testing.T) {
	const alice, bob = int64(1), int64(2)

	tests := []struct {
		name       string
		rules      Ruleset
		userID     int64
		robot      *models.Robot
		grant      *Grant
		memberRole *Role
		want       Level
	}{
		{
			name:   "user owner is owner",
			userID: alice,
			robot:  userRobot(alice),
			want:   LevelOwner,
		},
		{
			name:   "owner precedence beats explicit grant",
			userID: alice,
			robot:  userRobot(alice),
			grant:  grantPtr(GrantUsage),
			want:   LevelOwner,
		},
		{
			name:   "stranger on user robot has none",
			userID: bob,
			robot:  userRobot(alice),
			want:   LevelNone,
		},
		{
			name:   "explicit admin grant",
			userID: bob,
			robot:  userRobot(alice),
			grant:  grantPtr(GrantAdmin),
			want:   LevelAdmin,
		},
		{
			name:   "explicit usage grant",
			userID: bob,
			robot:  groupRobot(10),
			grant:  grantPtr(GrantUsage),
			want:   LevelUsage,
		},
		{
			name:       "explicit grant wins over membership",
			rules:      Ruleset{GroupMemberUsage: true},
			userID:     bob,
			robot:      groupRobot(10),
			grant:      grantPtr(GrantAdmin),
			memberRole: rolePtr(RoleMember),
			want:       LevelAdmin,
		},
		{
			name:       "plain membership with implicit usage enabled",
			rules:      Ruleset{GroupMemberUsage: true},
			userID:     bob,
			robot:      groupRobot(10),
			memberRole: rolePtr(RoleMember),
			want:       LevelUsage,
		},
		{
			name:       "plain membership with implicit usage disabled",
			rules:      Ruleset{GroupMemberUsage: false},
			userID:     bob,
			robot:      groupRobot(10),
			memberRole: rolePtr(RoleMember),
			want:       LevelNone,
		},
		{
			name:       "group admin without grant is not admin of robot",
			rules:      Ruleset{GroupMemberUsage: false},
			userID:     bob,
			robot:      groupRobot(10),
			memberRole: rolePtr(RoleAdmin),
			want:       LevelNone,
		},
		{
			name:   "group robot never has a user owner",
			userID: bob,
			robot:  groupRobot(10),
			want:   LevelNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rules.Decide(tt.userID, tt.robot, tt.grant, tt.memberRole)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanManagePermissions(t *testing.T) {
	const alice, bob = int64(1), int64(2)

	t.Run("user owner", func(t *testing.T) {
		assert.True(t, CanManagePermissions(alice, userRobot(alice), nil, nil))
	})

	t.Run("stranger", func(t *testing.T) {
		assert.False(t, CanManagePermissions(bob, userRobot(alice), nil, nil))
	})

	t.Run("group admin", func(t *testing.T) {
		assert.True(t, CanManagePermissions(bob, groupRobot(10), nil, rolePtr(RoleAdmin)))
	})

	t.Run("group member is insufficient", func(t *testing.T) {
		assert.False(t, CanManagePermissions(bob, groupRobot(10), nil, rolePtr(RoleMember)))
	})

	t.Run("explicit admin grant", func(t *testing.T) {
		assert.True(t, CanManagePermissions(bob, groupRobot(10), grantPtr(GrantAdmin), nil))
	})

	t.Run("usage grant is insufficient", func(t *testing.T) {
		assert.False(t, CanManagePermissions(bob, groupRobot(10), grantPtr(GrantUsage), nil))
	})

	t.Run("admin role on a user robot is meaningless", func(t *testing.T) {
		assert.False(t, CanManagePermissions(bob, userRobot(alice), nil, rolePtr(RoleAdmin)))
	})
}

func TestCanEditSettings(t *testing.T) {
	const alice, bob = int64(1), int64(2)

	t.Run("owner", func(t *testing.T) {
		assert.True(t, CanEditSettings(alice, userRobot(alice), nil))
	})

	t.Run("usage grant suffices", func(t *testing.T) {
		assert.True(t, CanEditSettings(bob, groupRobot(10), grantPtr(GrantUsage)))
	})

	t.Run("admin grant suffices", func(t *testing.T) {
		assert.True(t, CanEditSettings(bob, userRobot(alice), grantPtr(GrantAdmin)))
	})

	t.Run("no grant, no access", func(t *testing.T) {
		assert.False(t, CanEditSettings(bob, groupRobot(10), nil))
	})
}

func TestCanAssign(t *testing.T) {
	assert.True(t, CanAssign(rolePtr(RoleAdmin)))
	assert.False(t, CanAssign(rolePtr(RoleMember)))
	assert.False(t, CanAssign(nil))
}
