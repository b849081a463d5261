package ports

import (
	"context"

	"github.com/webapi-identity/identity-api/internal/core/domain"
)

// UpdateUserRoleInput selects an identity by username (or email) and the
// assignment to add or remove.
type UpdateUserRoleInput struct {
	Email  string
	Role   string
	Delete bool
}

type RoleService interface {
	CreateRole(ctx context.Context, name string) (*domain.Role, error)
	GetRole(ctx context.Context, id string) (*domain.Role, error)
	ListRoles(ctx context.Context) ([]domain.Role, error)
	UpdateUserRole(ctx context.Context, in UpdateUserRoleInput) (domain.RoleUpdateResult, error)
}
