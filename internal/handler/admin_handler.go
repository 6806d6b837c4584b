package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"library/internal/model"
	"library/internal/service"
)

// AdminHandler handles user administration and the dashboard.
type AdminHandler struct {
	userService         service.UserService
	notificationService service.NotificationService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(userService service.UserService, notificationService service.NotificationService) *AdminHandler {
	return &AdminHandler{userService: userService, notificationService: notificationService}
}

// RoleRequest changes a user's role.
type RoleRequest struct {
	Role string `json:"role" validate:"required,oneof=USER ADMIN user admin"`
}

// TestEmailRequest names the address for a mail check.
type TestEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// TestEmailResponse reports which test emails were accepted by the mail server.
type TestEmailResponse struct {
	Message string                   `json:"message"`
	Results service.TestEmailResults `json:"results"`
}

// Stats godoc
// @Summary Dashboard counters
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.Stats
// @Failure 403 {object} errors.ErrorResponse
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(c echo.Context) error {
	stats, err := h.userService.Stats(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// ListUsers godoc
// @Summary List users
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.User
// @Failure 403 {object} errors.ErrorResponse
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c echo.Context) error {
	users, err := h.userService.ListUsers(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

// UpdateRole godoc
// @Summary Change a user's role
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body RoleRequest true "New role"
// @Success 200 {object} model.User
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /admin/users/{id}/role [put]
func (h *AdminHandler) UpdateRole(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req RoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	user, err := h.userService.UpdateRole(c.Request().Context(), actor, id, model.Role(strings.ToUpper(req.Role)))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// DeleteUser godoc
// @Summary Delete a user
// @Tags admin
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 204
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /admin/users/{id} [delete]
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.userService.DeleteUser(c.Request().Context(), actor, id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// TestEmail godoc
// @Summary Send one email of every kind
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TestEmailRequest true "Recipient"
// @Success 200 {object} TestEmailResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /admin/test-email [post]
func (h *AdminHandler) TestEmail(c echo.Context) error {
	var req TestEmailRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	results := h.notificationService.SendTestEmails(c.Request().Context(), req.Email)
	return c.JSON(http.StatusOK, TestEmailResponse{Message: "Email tests completed", Results: results})
}
