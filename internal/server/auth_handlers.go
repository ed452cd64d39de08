package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fleetworks/fleetgate/internal/auth"
	"github.com/fleetworks/fleetgate/internal/db/models"
	"github.com/fleetworks/fleetgate/internal/services/iam"
)

// IAMService defines the identity operations the auth handlers need.
type IAMService interface {
	Register(ctx context.Context, name, email, password string) (*models.User, string, error)
	Login(ctx context.Context, email, password string) (*models.User, string, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// UserResponse is a user's public profile; the credential hash never leaves
// the iam service.
type UserResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthResponse pairs a profile with a freshly issued bearer token.
type AuthResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

// RegisterRequest carries the registration payload.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest carries login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthHandlers wires the registration, login, and profile endpoints.
type AuthHandlers struct {
	iam IAMService
}

// NewAuthHandlers creates the handler set for identity endpoints.
func NewAuthHandlers(iamService IAMService) *AuthHandlers {
	return &AuthHandlers{iam: iamService}
}

func userResponse(user *models.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
}

// Register handles POST /api/auth/register
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Name, email, and password are required")
		return
	}

	user, token, err := h.iam.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, iam.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "User already exists")
			return
		}
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{User: userResponse(user), Token: token})
}

// Login handles POST /api/auth/login
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, token, err := h.iam.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, iam.ErrInvalidCredentials) {
			// Unknown email and wrong password produce the same response.
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{User: userResponse(user), Token: token})
}

// Me handles GET /api/users/me
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.iam.GetUser(r.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, iam.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse(user))
}
