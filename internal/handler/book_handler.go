package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"library/internal/repository"
	"library/internal/service"
)

// BookHandler handles catalog endpoints.
type BookHandler struct {
	bookService service.BookService
}

// NewBookHandler creates a new book handler.
func NewBookHandler(bookService service.BookService) *BookHandler {
	return &BookHandler{bookService: bookService}
}

// BookRequest is the body of create and update calls.
type BookRequest struct {
	Title         string `json:"title" validate:"required,max=255"`
	Author        string `json:"author" validate:"required,max=255"`
	ISBN          string `json:"isbn" validate:"required,max=32"`
	PublishedYear int    `json:"published_year" validate:"required,gte=0,lte=9999"`
	Genre         string `json:"genre" validate:"required,max=100"`
	Description   string `json:"description"`
	CoverImage    string `json:"cover_image" validate:"omitempty,url,max=512"`
	TotalCopies   *int   `json:"total_copies" validate:"required,gte=0"`
}

func (r BookRequest) input() service.BookInput {
	return service.BookInput{
		Title:         r.Title,
		Author:        r.Author,
		ISBN:          r.ISBN,
		PublishedYear: r.PublishedYear,
		Genre:         r.Genre,
		Description:   r.Description,
		CoverImage:    r.CoverImage,
		TotalCopies:   *r.TotalCopies,
	}
}

// List godoc
// @Summary List books
// @Tags books
// @Produce json
// @Param q query string false "Search title, author or ISBN"
// @Param genre query string false "Exact genre"
// @Success 200 {array} model.Book
// @Failure 500 {object} errors.ErrorResponse
// @Router /books [get]
func (h *BookHandler) List(c echo.Context) error {
	books, err := h.bookService.List(c.Request().Context(), repository.BookFilter{
		Query: c.QueryParam("q"),
		Genre: c.QueryParam("genre"),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, books)
}

// Get godoc
// @Summary Get a book
// @Tags books
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} model.Book
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /books/{id} [get]
func (h *BookHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	book, err := h.bookService.Get(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, book)
}

// Create godoc
// @Summary Add a book
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BookRequest true "Book"
// @Success 201 {object} model.Book
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /admin/books [post]
func (h *BookHandler) Create(c echo.Context) error {
	var req BookRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	book, err := h.bookService.Create(c.Request().Context(), req.input())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, book)
}

// Update godoc
// @Summary Edit a book
// @Description Changing total_copies moves available_copies by the same amount.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param request body BookRequest true "Book"
// @Success 200 {object} model.Book
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /admin/books/{id} [put]
func (h *BookHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req BookRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	book, err := h.bookService.Update(c.Request().Context(), id, req.input())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, book)
}

// Delete godoc
// @Summary Delete a book
// @Tags admin
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Success 204
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /admin/books/{id} [delete]
func (h *BookHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.bookService.Delete(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
