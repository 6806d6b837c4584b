package errors

import (
	"errors"
	"net/http"
)

var (
	// ErrBookNotFound is returned when a book is not found.
	ErrBookNotFound = errors.New("book not found")
	// ErrBorrowingNotFound is returned when a borrowing is not found.
	ErrBorrowingNotFound = errors.New("borrowing not found")
	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrNotificationNotFound is returned when a notification is not found.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrBookUnavailable is returned when no copy of the book is left.
	ErrBookUnavailable = errors.New("book is not available for borrowing")
	// ErrDuplicateActiveBorrowing is returned when the user already holds the book.
	ErrDuplicateActiveBorrowing = errors.New("you have already borrowed this book")
	// ErrAlreadyReturned is returned when returning a returned borrowing.
	ErrAlreadyReturned = errors.New("book has already been returned")
	// ErrBookHasActiveBorrowings blocks deleting or shrinking a book that is lent out.
	ErrBookHasActiveBorrowings = errors.New("book has active borrowings")
	// ErrUserHasActiveBorrowings blocks deleting a user that still holds books.
	ErrUserHasActiveBorrowings = errors.New("user has active borrowings")
	// ErrDuplicateISBN is returned when another book uses the same ISBN.
	ErrDuplicateISBN = errors.New("a book with this ISBN already exists")
	// ErrSweepInProgress is returned when another overdue sweep holds the lock.
	ErrSweepInProgress = errors.New("overdue sweep already in progress")

	// ErrNotOwner is returned when a user acts on someone else's borrowing.
	ErrNotOwner = errors.New("borrowing belongs to another user")
	// ErrForbidden is returned when the caller lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized is returned when the caller is not authenticated.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned when email or password is incorrect.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidRefreshToken is returned when refresh token is invalid or expired.
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	// ErrEmailTaken is returned when registering an email that is already in use.
	ErrEmailTaken = errors.New("email is already registered")

	// ErrValidation is returned when request data is invalid.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidRole is returned for roles other than USER and ADMIN.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidResetToken is returned for unknown or expired reset tokens.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

type mapping struct {
	target error
	status int
	code   string
}

var mappings = []mapping{
	{ErrBookNotFound, http.StatusNotFound, "BOOK_NOT_FOUND"},
	{ErrBorrowingNotFound, http.StatusNotFound, "BORROWING_NOT_FOUND"},
	{ErrUserNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
	{ErrNotificationNotFound, http.StatusNotFound, "NOTIFICATION_NOT_FOUND"},
	{ErrBookUnavailable, http.StatusConflict, "BOOK_UNAVAILABLE"},
	{ErrDuplicateActiveBorrowing, http.StatusConflict, "DUPLICATE_ACTIVE_BORROWING"},
	{ErrAlreadyReturned, http.StatusConflict, "ALREADY_RETURNED"},
	{ErrBookHasActiveBorrowings, http.StatusConflict, "BOOK_HAS_ACTIVE_BORROWINGS"},
	{ErrUserHasActiveBorrowings, http.StatusConflict, "USER_HAS_ACTIVE_BORROWINGS"},
	{ErrDuplicateISBN, http.StatusConflict, "DUPLICATE_ISBN"},
	{ErrSweepInProgress, http.StatusConflict, "SWEEP_IN_PROGRESS"},
	{ErrNotOwner, http.StatusForbidden, "NOT_OWNER"},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{ErrInvalidRefreshToken, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN"},
	{ErrEmailTaken, http.StatusConflict, "EMAIL_TAKEN"},
	{ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
	{ErrInvalidRole, http.StatusBadRequest, "INVALID_ROLE"},
	{ErrInvalidResetToken, http.StatusBadRequest, "INVALID_RESET_TOKEN"},
}

// MapErrorToHTTP maps domain errors to HTTP errors.
// Unknown errors become a generic 500 so internals never leak.
func MapErrorToHTTP(err error) *HTTPError {
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return NewHTTPError(m.status, err.Error(), m.code)
		}
	}
	return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
}
