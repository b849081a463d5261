package ports

import (
	"context"

	"github.com/webapi-identity/identity-api/internal/core/domain"
)

// RegisterInput carries the fields accepted at registration. Email defaults
// to Username when empty.
type RegisterInput struct {
	Username string
	Email    string
	FullName string
	Password string
}

type AuthService interface {
	Login(ctx context.Context, username, password string) (string, *domain.PublicUser, error)
	Register(ctx context.Context, in RegisterInput) (string, error)
}
