package ports

import (
	"context"

	"github.com/webapi-identity/identity-api/internal/core/domain"
)

// CredentialStore persists identities and roles and owns password hashing.
// Username, email and role-name lookups are case-insensitive.
type CredentialStore interface {
	// FindByUsername returns domain.ErrUserNotFound when no identity matches.
	FindByUsername(ctx context.Context, username string) (*domain.Identity, error)
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	FindByID(ctx context.Context, id string) (*domain.Identity, error)

	VerifyPassword(ctx context.Context, identity *domain.Identity, plaintext string) (bool, error)

	// CreateIdentity hashes plaintext and inserts the identity. It returns
	// *domain.PolicyError when the password is rejected and
	// domain.ErrUserExists when the username or email is taken. Usernames and
	// emails share one namespace.
	CreateIdentity(ctx context.Context, identity *domain.Identity, plaintext string) (*domain.Identity, error)
	// DeleteIdentity removes an identity; unknown ids are not an error.
	DeleteIdentity(ctx context.Context, id string) error

	GetRoles(ctx context.Context, identity *domain.Identity) ([]string, error)

	// AddRole and RemoveRole are idempotent; changed reports whether the
	// assignment set was modified. AddRole returns domain.ErrRoleNotFound for
	// an unknown role.
	AddRole(ctx context.Context, identity *domain.Identity, roleName string) (changed bool, err error)
	RemoveRole(ctx context.Context, identity *domain.Identity, roleName string) (changed bool, err error)

	// CreateRole returns domain.ErrRoleExists on a name collision.
	CreateRole(ctx context.Context, name string) (*domain.Role, error)
	FindRoleByID(ctx context.Context, id string) (*domain.Role, error)
	ListRoles(ctx context.Context) ([]domain.Role, error)
}
