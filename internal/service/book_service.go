package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"library/internal/cache"
	"library/internal/db"
	"library/internal/errors"
	"library/internal/model"
	"library/internal/repository"
)

const bookCacheTTL = 5 * time.Minute

func bookCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("book:%s", id.String())
}

// BookInput carries the editable catalog fields of a book.
type BookInput struct {
	Title         string
	Author        string
	ISBN          string
	PublishedYear int
	Genre         string
	Description   string
	CoverImage    string
	TotalCopies   int
}

// BookService handles catalog operations.
type BookService interface {
	List(ctx context.Context, filter repository.BookFilter) ([]model.Book, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Book, error)
	Create(ctx context.Context, in BookInput) (*model.Book, error)
	Update(ctx context.Context, id uuid.UUID, in BookInput) (*model.Book, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type bookService struct {
	repo       repository.BookRepository
	transactor repository.Transactor
	cache      *cache.Client
	logger     *slog.Logger
}

// NewBookService creates a new book service.
func NewBookService(repo repository.BookRepository, transactor repository.Transactor, cache *cache.Client, logger *slog.Logger) BookService {
	if logger == nil {
		logger = slog.Default()
	}
	return &bookService{repo: repo, transactor: transactor, cache: cache, logger: logger}
}

func (s *bookService) List(ctx context.Context, filter repository.BookFilter) ([]model.Book, error) {
	return s.repo.List(ctx, filter)
}

// Get retrieves a book by ID. The catalog fields may come from the cache;
// the copy counters are always read from the database.
func (s *bookService) Get(ctx context.Context, id uuid.UUID) (*model.Book, error) {
	stock, err := s.repo.FindStock(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, errors.ErrBookNotFound
		}
		return nil, fmt.Errorf("find book stock: %w", err)
	}

	var cached model.Book
	if s.cache.GetJSON(ctx, bookCacheKey(id), &cached) && cached.UpdatedAt.Equal(stock.UpdatedAt) {
		cached.TotalCopies = stock.TotalCopies
		cached.AvailableCopies = stock.AvailableCopies
		return &cached, nil
	}

	book, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, errors.ErrBookNotFound
		}
		return nil, fmt.Errorf("find book: %w", err)
	}

	entry := *book
	entry.TotalCopies, entry.AvailableCopies = 0, 0
	_ = s.cache.SetJSON(ctx, bookCacheKey(id), entry, bookCacheTTL)
	return book, nil
}

// Create adds a book with every copy available. An ISBN that belonged to a
// deleted book brings that record back instead of inserting a new one.
func (s *bookService) Create(ctx context.Context, in BookInput) (*model.Book, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	book := &model.Book{}
	in.apply(book)
	book.AvailableCopies = in.TotalCopies

	err := s.repo.Create(ctx, book)
	if err != nil && db.IsDuplicateKey(err) {
		return s.restore(ctx, in)
	}
	if err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	s.logger.Info("book created", "book_id", book.ID, "isbn", book.ISBN)
	return book, nil
}

// restore revives the soft-deleted holder of in.ISBN. A deleted book never
// has copies lent out, so all of them go back on the shelf.
func (s *bookService) restore(ctx context.Context, in BookInput) (*model.Book, error) {
	book, err := s.repo.FindDeletedByISBN(ctx, in.ISBN)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, errors.ErrDuplicateISBN
		}
		return nil, fmt.Errorf("find deleted book: %w", err)
	}
	in.apply(book)
	book.AvailableCopies = in.TotalCopies
	if err := s.repo.Restore(ctx, book); err != nil {
		if db.IsNotFound(err) {
			// restored by a concurrent create
			return nil, errors.ErrDuplicateISBN
		}
		return nil, fmt.Errorf("restore book: %w", err)
	}
	_ = s.cache.Delete(ctx, bookCacheKey(book.ID))
	s.logger.Info("book restored", "book_id", book.ID, "isbn", book.ISBN)
	return book, nil
}

// Update edits a book. A change of TotalCopies moves AvailableCopies by the
// same amount and may not drop below the copies currently lent out.
func (s *bookService) Update(ctx context.Context, id uuid.UUID, in BookInput) (*model.Book, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	var updated *model.Book
	err := db.Retry(ctx, db.DefaultRetryConfig(), func(ctx context.Context) error {
		return s.transactor.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
			book, err := repos.Books.FindByIDForUpdate(ctx, id)
			if err != nil {
				if db.IsNotFound(err) {
					return errors.ErrBookNotFound
				}
				return fmt.Errorf("lock book: %w", err)
			}
			lent, err := repos.Borrowings.CountActiveByBook(ctx, id)
			if err != nil {
				return fmt.Errorf("count active borrowings: %w", err)
			}
			if int64(in.TotalCopies) < lent {
				return errors.ErrBookHasActiveBorrowings
			}

			delta := in.TotalCopies - book.TotalCopies
			in.apply(book)
			book.AvailableCopies += delta
			if err := repos.Books.Update(ctx, book); err != nil {
				if db.IsDuplicateKey(err) {
					return errors.ErrDuplicateISBN
				}
				return fmt.Errorf("update book: %w", err)
			}
			updated = book
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	_ = s.cache.Delete(ctx, bookCacheKey(id))
	return updated, nil
}

// Delete soft-deletes a book that has no copy lent out.
func (s *bookService) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.transactor.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Books.FindByIDForUpdate(ctx, id); err != nil {
			if db.IsNotFound(err) {
				return errors.ErrBookNotFound
			}
			return fmt.Errorf("lock book: %w", err)
		}
		lent, err := repos.Borrowings.CountActiveByBook(ctx, id)
		if err != nil {
			return fmt.Errorf("count active borrowings: %w", err)
		}
		if lent > 0 {
			return errors.ErrBookHasActiveBorrowings
		}
		return repos.Books.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	_ = s.cache.Delete(ctx, bookCacheKey(id))
	s.logger.Info("book deleted", "book_id", id)
	return nil
}

func (in *BookInput) normalize() error {
	if in.TotalCopies < 0 {
		return fmt.Errorf("%w: total copies must not be negative", errors.ErrValidation)
	}
	isbn, err := NormalizeISBN(in.ISBN)
	if err != nil {
		return err
	}
	in.ISBN = isbn
	return nil
}

func (in BookInput) apply(book *model.Book) {
	book.Title = in.Title
	book.Author = in.Author
	book.ISBN = in.ISBN
	book.PublishedYear = in.PublishedYear
	book.Genre = in.Genre
	book.Description = in.Description
	book.CoverImage = in.CoverImage
	book.TotalCopies = in.TotalCopies
}
