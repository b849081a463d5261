package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/webapi-identity/identity-api/internal/api/middleware"
	"github.com/webapi-identity/identity-api/internal/core/ports"
)

// ctxClaims returns the claims injected by the auth middleware. Their absence
// means the route was mounted without it.
func ctxClaims(c echo.Context) (*ports.TokenClaims, error) {
	claims, _ := c.Get(middleware.ClaimsKey).(*ports.TokenClaims)
	if claims == nil || claims.UserID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return claims, nil
}
