// Package iam owns registration, login, and identity lookup. It is the only
// code that sees password hashes; everything downstream works with verified
// principals.
package iam

import (
	"context"
	"errors"
	"fmt"

	"github.com/fleetworks/fleetgate/internal/auth"
	"github.com/fleetworks/fleetgate/internal/db/models"
	"github.com/fleetworks/fleetgate/internal/repository"
)

var (
	// ErrEmailTaken is returned when registering with an address that
	// already has an account.
	ErrEmailTaken = errors.New("user already exists")

	// ErrInvalidCredentials is returned for any login failure. Unknown email
	// and wrong password deliberately collapse to this one error so callers
	// cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// Service implements registration, login, and profile lookup.
type Service struct {
	users  repository.UserRepository
	tokens *auth.TokenIssuer
}

// NewService creates an iam service backed by the given user repository and
// token issuer.
func NewService(users repository.UserRepository, tokens *auth.TokenIssuer) *Service {
	return &Service{users: users, tokens: tokens}
}

// Register creates a user with a hashed credential and issues a bearer token.
func (s *Service) Register(ctx context.Context, name, email, password string) (*models.User, string, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("register: %w", err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", fmt.Errorf("register: %w", err)
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, "", fmt.Errorf("register: %w", err)
	}
	return user, token, nil
}

// Login verifies credentials and issues a bearer token. All failure modes
// return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("login: %w", err)
	}

	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, "", fmt.Errorf("login: %w", err)
	}
	return user, token, nil
}

// GetUser returns a user's profile by id.
func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}
