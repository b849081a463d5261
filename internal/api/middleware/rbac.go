package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/webapi-identity/identity-api/internal/core/ports"
)

// RBAC lets the request through when the caller holds any of allowedRoles.
// It must run after Auth.
func RBAC(allowedRoles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, _ := c.Get(ClaimsKey).(*ports.TokenClaims)
			if claims == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
			}
			if !claims.HasAnyRole(allowedRoles...) {
				return echo.NewHTTPError(http.StatusForbidden, "forbidden")
			}
			return next(c)
		}
	}
}
