// Package settings stores per-user, per-robot settings documents. Each user
// attached to a robot keeps a private document; there is no sharing.
//
// The write gate is deliberately weaker than permission management: the owner
// or any explicit grant (usage included) may save, but group-admin standing
// without a grant may not. Operators with access tune their own settings;
// administration of the robot is a separate concern.
package settings

import (
	"context"
	"errors"

	"github.com/fleetworks/fleetgate/internal/access"
	"github.com/fleetworks/fleetgate/internal/db/models"
	"github.com/fleetworks/fleetgate/internal/repository"
)

var (
	// ErrRobotNotFound is returned when the referenced robot does not exist.
	ErrRobotNotFound = errors.New("robot not found")

	// ErrSettingsNotFound is returned when the caller has no settings row for
	// the robot.
	ErrSettingsNotFound = errors.New("settings not found")

	// ErrForbidden is returned when the caller lacks standing to modify
	// settings for the robot.
	ErrForbidden = errors.New("insufficient permissions to modify settings")
)

// Service implements settings operations.
type Service struct {
	settings repository.SettingRepository
	robots   repository.RobotRepository
	perms    repository.PermissionRepository
}

// NewService creates a settings service.
func NewService(
	settings repository.SettingRepository,
	robots repository.RobotRepository,
	perms repository.PermissionRepository,
) *Service {
	return &Service{settings: settings, robots: robots, perms: perms}
}

// Save upserts the caller's settings document for the robot identified by
// serial number. Requires ownership or any explicit grant.
func (s *Service) Save(ctx context.Context, userID int64, serial string, doc models.SettingsDoc) (*models.RobotSetting, error) {
	robot, err := s.getBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}

	var grant *access.Grant
	perm, err := s.perms.GetForUserRobot(ctx, userID, robot.ID)
	switch {
	case err == nil:
		g, parseErr := access.ParseGrant(perm.PermissionType)
		if parseErr != nil {
			return nil, parseErr
		}
		grant = &g
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	if !access.CanEditSettings(userID, robot, grant) {
		return nil, ErrForbidden
	}

	setting := &models.RobotSetting{
		UserID:   userID,
		RobotID:  robot.ID,
		Settings: doc,
	}
	if err := s.settings.Upsert(ctx, setting); err != nil {
		return nil, err
	}
	return setting, nil
}

// Get returns the caller's own settings row for the robot. Reads need no
// standing check: the row is private to the caller and absent rows are a
// plain not-found.
func (s *Service) Get(ctx context.Context, userID int64, serial string) (*models.RobotSetting, error) {
	robot, err := s.getBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}

	setting, err := s.settings.Get(ctx, userID, robot.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}
	return setting, nil
}

// ListForUser returns all of the caller's settings rows with robot identity.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]repository.SettingWithRobot, error) {
	return s.settings.ListForUser(ctx, userID)
}

func (s *Service) getBySerial(ctx context.Context, serial string) (*models.Robot, error) {
	robot, err := s.robots.GetBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRobotNotFound
		}
		return nil, err
	}
	return robot, nil
}
