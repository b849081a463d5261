package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/webapi-identity/identity-api/internal/core/domain"
	"github.com/webapi-identity/identity-api/internal/core/ports"
)

const (
	msgRoleUpdated  = "success"
	msgUserNotFound = "user not found"
)

// RoleHandler exposes role administration. Access control is applied by the
// router before these handlers run.
type RoleHandler struct {
	roleService ports.RoleService
}

func NewRoleHandler(roleService ports.RoleService) *RoleHandler {
	return &RoleHandler{roleService: roleService}
}

// List returns every role.
//
// @Summary      List roles
// @Tags         role
// @Produce      json
// @Security     BearerAuth
// @Success      200   {object}  listRolesResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /api/role [get]
func (h *RoleHandler) List(c echo.Context) error {
	roles, err := h.roleService.ListRoles(c.Request().Context())
	if err != nil {
		return err
	}
	if roles == nil {
		roles = []domain.Role{}
	}
	return c.JSON(http.StatusOK, listRolesResponse{Roles: roles})
}

// Get returns a single role by id.
//
// @Summary      Get role
// @Tags         role
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Role id"
// @Success      200  {object}  domain.Role
// @Failure      404  {object}  errorResponse
// @Router       /api/role/{id} [get]
func (h *RoleHandler) Get(c echo.Context) error {
	role, err := h.roleService.GetRole(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, role)
}

// Create adds a new role.
//
// @Summary      Create role
// @Tags         role
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createRoleRequest  true  "Role"
// @Success      201   {object}  domain.Role
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /api/role [post]
func (h *RoleHandler) Create(c echo.Context) error {
	var req createRoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	role, err := h.roleService.CreateRole(c.Request().Context(), req.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, role)
}

// UpdateUserRoles adds or removes a role on a user. An unknown user is
// reported in the body with a 200, not as an error status.
//
// @Summary      Add or remove a user's role
// @Tags         role
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      updateUserRoleRequest  true  "Assignment change"
// @Success      200   {object}  updateUserRoleResponse
// @Failure      404   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /api/role/user-roles [post]
func (h *RoleHandler) UpdateUserRoles(c echo.Context) error {
	var req updateUserRoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	res, err := h.roleService.UpdateUserRole(c.Request().Context(), ports.UpdateUserRoleInput{
		Email:  req.Email,
		Role:   req.Role,
		Delete: req.Delete,
	})
	if err != nil {
		return err
	}

	msg := msgRoleUpdated
	if !res.Found() {
		msg = msgUserNotFound
	}
	return c.JSON(http.StatusOK, updateUserRoleResponse{
		Found:   res.Found(),
		Changed: res.Changed,
		Message: msg,
	})
}
