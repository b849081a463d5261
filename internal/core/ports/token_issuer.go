package ports

import (
	"time"

	"github.com/webapi-identity/identity-api/internal/core/domain"
)

// TokenClaims is the decoded content of a bearer token.
type TokenClaims struct {
	UserID    string
	Username  string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasAnyRole reports whether the claims carry at least one of roles.
func (c *TokenClaims) HasAnyRole(roles ...string) bool {
	for _, held := range c.Roles {
		for _, r := range roles {
			if held == r {
				return true
			}
		}
	}
	return false
}

type TokenIssuer interface {
	IssueToken(identity *domain.Identity, roles []string) (string, error)
	ParseToken(token string) (*TokenClaims, error)
}
