package ports

import (
	"context"

	"github.com/webapi-identity/identity-api/internal/core/domain"
)

// AuditRepository records applied role-assignment changes.
type AuditRepository interface {
	InsertRoleChange(ctx context.Context, change *domain.RoleChange) error
}
