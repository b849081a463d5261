package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/webapi-identity/identity-api/internal/core/ports"
)

// Context keys populated by Auth.
const (
	ClaimsKey   = "claims"
	UserIDKey   = "user_id"
	UsernameKey = "username"
	RolesKey    = "roles"
)

// TokenParser verifies a raw bearer token.
type TokenParser interface {
	ParseToken(token string) (*ports.TokenClaims, error)
}

// Auth validates the bearer token and injects its claims into the context.
func Auth(parser TokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims, err := parser.ParseToken(strings.TrimSpace(parts[1]))
			if err != nil || claims == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(ClaimsKey, claims)
			c.Set(UserIDKey, claims.UserID)
			c.Set(UsernameKey, claims.Username)
			c.Set(RolesKey, claims.Roles)

			return next(c)
		}
	}
}
