package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type changeRoleReq struct {
	NewRole string `json:"newRole"`
}

// ChangeUserRole: PUT /users/:id/role (admin only, enforced by the router).
func (h *AuthHandler) ChangeUserRole(c echo.Context) error {
	var req changeRoleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Auth.ChangeUserRole(ctx, c.Param("id"), req.NewRole); err != nil {
		return h.fail(c, "change role", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteUser: DELETE /users/:id (admin only).
func (h *AuthHandler) DeleteUser(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Auth.DeleteUser(ctx, c.Param("id")); err != nil {
		return h.fail(c, "delete user", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListUsers: GET /users (admin only).
func (h *AuthHandler) ListUsers(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()

	users, err := h.Auth.ListUsers(ctx)
	if err != nil {
		return h.fail(c, "list users", err)
	}
	out := make([]userView, 0, len(users))
	for i := range users {
		out = append(out, toUserView(&users[i]))
	}
	return c.JSON(http.StatusOK, out)
}
