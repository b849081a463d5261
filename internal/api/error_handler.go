package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/webapi-identity/identity-api/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps service error kinds to their HTTP status codes.
//   - Logs unexpected and configuration faults without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, middleware rejections).
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)}
	}

	switch {
	case errors.Is(err, domain.ErrRoleNotFound):
		return http.StatusNotFound, errorResponse{Error: "role not found"}
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, errorResponse{Error: "user not found"}
	}

	var derr *domain.Error
	if errors.As(err, &derr) {
		switch derr.Kind {
		case domain.KindAuthenticationFailed:
			// Reason stays internal: unknown user, bad password and taken
			// username all look the same from outside.
			log.Debug().Str("reason", derr.Reason).Str("path", c.Path()).Msg("authentication failed")
			return http.StatusUnauthorized, errorResponse{Error: "unauthorized"}
		case domain.KindValidationFailed:
			return http.StatusBadRequest, errorResponse{Error: "validation failed", Details: derr.Details}
		case domain.KindDuplicateRole:
			return http.StatusConflict, errorResponse{Error: strings.Join(derr.Details, "; ")}
		case domain.KindConfiguration:
			log.Error().
				Err(err).
				Bool("alert", true).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Msg("configuration error")
			return http.StatusInternalServerError, errorResponse{Error: "server misconfigured"}
		}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
}
