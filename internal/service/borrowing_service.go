package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"library/internal/db"
	"library/internal/errors"
	"library/internal/model"
	"library/internal/notify"
	"library/internal/repository"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uuid.UUID
	Admin  bool
}

// BorrowingService implements the borrow and return workflows.
type BorrowingService interface {
	Borrow(ctx context.Context, userID, bookID uuid.UUID) (*model.Borrowing, error)
	Return(ctx context.Context, borrowingID uuid.UUID, actor Actor) (*model.Borrowing, error)
	Get(ctx context.Context, borrowingID uuid.UUID, actor Actor) (*model.Borrowing, error)
	ListMine(ctx context.Context, userID uuid.UUID) ([]model.Borrowing, error)
	ListAll(ctx context.Context, status model.BorrowingStatus) ([]model.Borrowing, error)
}

// BorrowingOptions tunes a BorrowingService.
type BorrowingOptions struct {
	LateFeePerDay decimal.Decimal
	Retry         db.RetryConfig
	// Now defaults to time.Now in UTC.
	Now    func() time.Time
	Logger *slog.Logger
}

type borrowingService struct {
	repos      repository.Repositories
	transactor repository.Transactor
	emitter    notify.Emitter
	lateFee    decimal.Decimal
	retry      db.RetryConfig
	now        func() time.Time
	logger     *slog.Logger
}

// NewBorrowingService creates a new borrowing service.
func NewBorrowingService(
	repos repository.Repositories,
	transactor repository.Transactor,
	emitter notify.Emitter,
	opts BorrowingOptions,
) BorrowingService {
	s := &borrowingService{
		repos:      repos,
		transactor: transactor,
		emitter:    emitter,
		lateFee:    opts.LateFeePerDay,
		retry:      opts.Retry,
		now:        opts.Now,
		logger:     opts.Logger,
	}
	if s.retry.MaxAttempts == 0 {
		s.retry = db.DefaultRetryConfig()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Borrow lends one copy of a book to a user. The borrowing row and the
// counter decrement commit together or not at all. The borrower's row is
// locked first so the account cannot be deleted under the new loan.
func (s *borrowingService) Borrow(ctx context.Context, userID, bookID uuid.UUID) (*model.Borrowing, error) {
	var (
		user      *model.User
		borrowing *model.Borrowing
	)
	err := db.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.transactor.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
			u, err := repos.Users.FindByIDForUpdate(ctx, userID)
			if err != nil {
				if db.IsNotFound(err) {
					return errors.ErrUserNotFound
				}
				return fmt.Errorf("lock user: %w", err)
			}

			book, err := repos.Books.FindByIDForUpdate(ctx, bookID)
			if err != nil {
				if db.IsNotFound(err) {
					return errors.ErrBookNotFound
				}
				return fmt.Errorf("lock book: %w", err)
			}
			if book.AvailableCopies <= 0 {
				return errors.ErrBookUnavailable
			}

			active, err := repos.Borrowings.CountActive(ctx, userID, bookID)
			if err != nil {
				return fmt.Errorf("count active borrowings: %w", err)
			}
			if active > 0 {
				return errors.ErrDuplicateActiveBorrowing
			}

			if err := repos.Books.DecrementAvailable(ctx, bookID); err != nil {
				if stderrors.Is(err, repository.ErrNoRowsAffected) || db.IsCheckViolation(err) {
					return errors.ErrBookUnavailable
				}
				return fmt.Errorf("decrement available copies: %w", err)
			}

			b := model.NewBorrowing(userID, bookID, s.now())
			if err := repos.Borrowings.Create(ctx, b); err != nil {
				return fmt.Errorf("create borrowing: %w", err)
			}
			book.AvailableCopies--
			b.Book = book
			user, borrowing = u, b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("book borrowed", "borrowing_id", borrowing.ID, "user_id", userID, "book_id", bookID)

	recipient := notify.Recipient{UserID: user.ID, Name: user.Name, Email: user.Email}
	if !s.emitter.Emit(ctx, recipient, notify.BorrowConfirmed{BookTitle: borrowing.Book.Title, DueDate: borrowing.DueDate}) {
		s.logger.Warn("borrow confirmation not delivered", "borrowing_id", borrowing.ID)
	}
	return borrowing, nil
}

// Return closes an active borrowing and puts the copy back on the shelf.
// Non-admin actors may only return their own borrowings.
func (s *borrowingService) Return(ctx context.Context, borrowingID uuid.UUID, actor Actor) (*model.Borrowing, error) {
	var bookID uuid.UUID
	err := db.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.transactor.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
			b, err := repos.Borrowings.FindByIDForUpdate(ctx, borrowingID)
			if err != nil {
				if db.IsNotFound(err) {
					return errors.ErrBorrowingNotFound
				}
				return fmt.Errorf("lock borrowing: %w", err)
			}
			if !actor.Admin && b.UserID != actor.UserID {
				return errors.ErrNotOwner
			}
			if !b.Status.IsActive() {
				return errors.ErrAlreadyReturned
			}

			now := s.now()
			if err := repos.Borrowings.MarkReturned(ctx, b.ID, now, b.LateFeeAt(now, s.lateFee)); err != nil {
				if stderrors.Is(err, repository.ErrNoRowsAffected) {
					return errors.ErrAlreadyReturned
				}
				return fmt.Errorf("mark returned: %w", err)
			}
			if err := repos.Books.IncrementAvailable(ctx, b.BookID); err != nil {
				// every copy already on the shelf means the ledger is broken
				return fmt.Errorf("increment available copies: %w", err)
			}
			bookID = b.BookID
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	returned, err := s.repos.Borrowings.FindByID(ctx, borrowingID)
	if err != nil {
		return nil, fmt.Errorf("reload borrowing: %w", err)
	}
	s.logger.Info("book returned", "borrowing_id", borrowingID, "book_id", bookID, "late_fee", returned.LateFee.StringFixed(2))
	return returned, nil
}

// Get returns one borrowing visible to the actor.
func (s *borrowingService) Get(ctx context.Context, borrowingID uuid.UUID, actor Actor) (*model.Borrowing, error) {
	b, err := s.repos.Borrowings.FindByID(ctx, borrowingID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, errors.ErrBorrowingNotFound
		}
		return nil, fmt.Errorf("find borrowing: %w", err)
	}
	if !actor.Admin && b.UserID != actor.UserID {
		return nil, errors.ErrNotOwner
	}
	return b, nil
}

func (s *borrowingService) ListMine(ctx context.Context, userID uuid.UUID) ([]model.Borrowing, error) {
	return s.repos.Borrowings.ListByUser(ctx, userID)
}

func (s *borrowingService) ListAll(ctx context.Context, status model.BorrowingStatus) ([]model.Borrowing, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", errors.ErrValidation, status)
	}
	return s.repos.Borrowings.ListAll(ctx, status)
}

