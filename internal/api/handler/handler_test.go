package handler

import (
	"context"
	"net/http/httptest"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/webapi-identity/identity-api/internal/core/domain"
	"github.com/webapi-identity/identity-api/internal/core/ports"
)

type stubAuthService struct {
	loginFn    func(ctx context.Context, username, password string) (string, *domain.PublicUser, error)
	registerFn func(ctx context.Context, in ports.RegisterInput) (string, error)
}

func (s *stubAuthService) Login(ctx context.Context, username, password string) (string, *domain.PublicUser, error) {
	return s.loginFn(ctx, username, password)
}

func (s *stubAuthService) Register(ctx context.Context, in ports.RegisterInput) (string, error) {
	return s.registerFn(ctx, in)
}

type stubRoleService struct {
	createFn func(ctx context.Context, name string) (*domain.Role, error)
	getFn    func(ctx context.Context, id string) (*domain.Role, error)
	listFn   func(ctx context.Context) ([]domain.Role, error)
	updateFn func(ctx context.Context, in ports.UpdateUserRoleInput) (domain.RoleUpdateResult, error)
}

func (s *stubRoleService) CreateRole(ctx context.Context, name string) (*domain.Role, error) {
	return s.createFn(ctx, name)
}

func (s *stubRoleService) GetRole(ctx context.Context, id string) (*domain.Role, error) {
	return s.getFn(ctx, id)
}

func (s *stubRoleService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return s.listFn(ctx)
}

func (s *stubRoleService) UpdateUserRole(ctx context.Context, in ports.UpdateUserRoleInput) (domain.RoleUpdateResult, error) {
	return s.updateFn(ctx, in)
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func jsonContext(e *echo.Echo, method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// httpCode extracts the status from an echo.HTTPError, or 0.
func httpCode(err error) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return 0
}

