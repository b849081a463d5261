package handler

import (
	"time"

	"github.com/webapi-identity/identity-api/internal/core/domain"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// --- Auth ---

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Username string `json:"username"  validate:"required,max=256"`
	Email    string `json:"email"     validate:"omitempty,email"`
	FullName string `json:"full_name" validate:"max=256"`
	Password string `json:"password"  validate:"required"`
}

type loginResponse struct {
	Token string             `json:"token"`
	User  *domain.PublicUser `json:"user"`
}

type registerResponse struct {
	Token string `json:"token"`
}

type meResponse struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expires_at"`
}

// --- Roles ---

type createRoleRequest struct {
	Name string `json:"name" validate:"required,max=256"`
}

type updateUserRoleRequest struct {
	Email  string `json:"email"  validate:"required"`
	Role   string `json:"role"   validate:"required"`
	Delete bool   `json:"delete"`
}

type updateUserRoleResponse struct {
	Found   bool   `json:"found"`
	Changed bool   `json:"changed"`
	Message string `json:"message"`
}

type listRolesResponse struct {
	Roles []domain.Role `json:"roles"`
}
