package handler

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"library/internal/model"
	"library/internal/service"
)

// BorrowingHandler handles borrow and return endpoints.
type BorrowingHandler struct {
	borrowingService service.BorrowingService
	sweepService     service.SweepService
}

// NewBorrowingHandler creates a new borrowing handler.
func NewBorrowingHandler(borrowingService service.BorrowingService, sweepService service.SweepService) *BorrowingHandler {
	return &BorrowingHandler{borrowingService: borrowingService, sweepService: sweepService}
}

// BorrowRequest represents a borrow request. The book may be named by
// either book_id or bookId.
type BorrowRequest struct {
	BookID      string `json:"book_id" validate:"omitempty,uuid"`
	BookIDCamel string `json:"bookId" validate:"omitempty,uuid"`
}

func (r BorrowRequest) bookID() string {
	if r.BookID != "" {
		return r.BookID
	}
	return r.BookIDCamel
}

// Borrow godoc
// @Summary Borrow a book
// @Description Lends one copy for 14 days.
// @Tags borrowings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BorrowRequest true "Book to borrow"
// @Success 201 {object} model.Borrowing
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /borrowings [post]
func (h *BorrowingHandler) Borrow(c echo.Context) error {
	var req BorrowRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if req.bookID() == "" {
		return badRequest("book_id is required", "VALIDATION_ERROR")
	}
	bookID, err := uuid.Parse(req.bookID())
	if err != nil {
		return badRequest("invalid book_id", "INVALID_UUID")
	}
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}

	borrowing, err := h.borrowingService.Borrow(c.Request().Context(), actor.UserID, bookID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, borrowing)
}

// Return godoc
// @Summary Return a borrowed book
// @Tags borrowings
// @Produce json
// @Security BearerAuth
// @Param id path string true "Borrowing ID"
// @Success 200 {object} model.Borrowing
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /borrowings/{id}/return [post]
func (h *BorrowingHandler) Return(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	// owners only, even for admins; admins use the admin route
	actor.Admin = false
	return h.doReturn(c, actor)
}

// AdminReturn godoc
// @Summary Return any borrowing
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Borrowing ID"
// @Success 200 {object} model.Borrowing
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /admin/borrowings/{id}/return [post]
func (h *BorrowingHandler) AdminReturn(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	actor.Admin = true
	return h.doReturn(c, actor)
}

func (h *BorrowingHandler) doReturn(c echo.Context, actor service.Actor) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	borrowing, err := h.borrowingService.Return(c.Request().Context(), id, actor)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, borrowing)
}

// ListMine godoc
// @Summary List my borrowings
// @Tags borrowings
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.Borrowing
// @Failure 401 {object} errors.ErrorResponse
// @Router /borrowings [get]
func (h *BorrowingHandler) ListMine(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	borrowings, err := h.borrowingService.ListMine(c.Request().Context(), actor.UserID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, borrowings)
}

// Get godoc
// @Summary Get a borrowing
// @Tags borrowings
// @Produce json
// @Security BearerAuth
// @Param id path string true "Borrowing ID"
// @Success 200 {object} model.Borrowing
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /borrowings/{id} [get]
func (h *BorrowingHandler) Get(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	borrowing, err := h.borrowingService.Get(c.Request().Context(), id, actor)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, borrowing)
}

// ListAll godoc
// @Summary List all borrowings
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param status query string false "BORROWED, OVERDUE or RETURNED"
// @Success 200 {array} model.Borrowing
// @Failure 400 {object} errors.ErrorResponse
// @Router /admin/borrowings [get]
func (h *BorrowingHandler) ListAll(c echo.Context) error {
	status := model.BorrowingStatus(strings.ToUpper(c.QueryParam("status")))
	borrowings, err := h.borrowingService.ListAll(c.Request().Context(), status)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, borrowings)
}

// Sweep godoc
// @Summary Run the overdue sweep
// @Description Marks past-due borrowings OVERDUE and sends overdue and due-soon notices. Called by an external scheduler with the cron secret.
// @Tags admin
// @Produce json
// @Param Authorization header string true "Bearer CRON_SECRET"
// @Success 200 {object} service.SweepReport
// @Failure 401 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /admin/borrowings/sweep [get]
func (h *BorrowingHandler) Sweep(c echo.Context) error {
	report, err := h.sweepService.Sweep(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
