package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"library/internal/model"
)

// ErrNoRowsAffected is returned by guarded updates whose condition matched nothing.
var ErrNoRowsAffected = errors.New("conditional update matched no rows")

// BookFilter narrows catalog listings.
type BookFilter struct {
	// Query matches title, author or ISBN as a substring.
	Query string
	Genre string
}

// BookStock is the copy ledger of a book as currently stored.
type BookStock struct {
	TotalCopies     int
	AvailableCopies int
	UpdatedAt       time.Time
}

var catalogueColumns = []string{
	"title", "author", "isbn", "published_year", "genre", "description", "cover_image",
}

// BookRepository defines book persistence operations.
type BookRepository interface {
	Create(ctx context.Context, book *model.Book) error
	Update(ctx context.Context, book *model.Book) error
	UpdateCatalogue(ctx context.Context, book *model.Book) error
	Restore(ctx context.Context, book *model.Book) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Book, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Book, error)
	FindByISBN(ctx context.Context, isbn string) (*model.Book, error)
	FindDeletedByISBN(ctx context.Context, isbn string) (*model.Book, error)
	FindStock(ctx context.Context, id uuid.UUID) (*BookStock, error)
	List(ctx context.Context, filter BookFilter) ([]model.Book, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DecrementAvailable(ctx context.Context, id uuid.UUID) error
	IncrementAvailable(ctx context.Context, id uuid.UUID) error
}

type bookRepository struct {
	db *gorm.DB
}

// NewBookRepository creates a new book repository.
func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

// Create creates a new book.
func (r *bookRepository) Create(ctx context.Context, book *model.Book) error {
	return r.db.WithContext(ctx).Create(book).Error
}

// Update writes the catalog columns and both counters of an existing book.
// Callers must hold the row lock so the counters they write are current.
func (r *bookRepository) Update(ctx context.Context, book *model.Book) error {
	cols := append(append([]string{}, catalogueColumns...), "total_copies", "available_copies", "updated_at")
	return r.db.WithContext(ctx).Model(book).Select(cols).Updates(book).Error
}

// UpdateCatalogue writes the descriptive columns only and leaves the copy
// counters to the borrowing workflow.
func (r *bookRepository) UpdateCatalogue(ctx context.Context, book *model.Book) error {
	cols := append(append([]string{}, catalogueColumns...), "updated_at")
	return r.db.WithContext(ctx).Model(book).Select(cols).Updates(book).Error
}

// Restore brings a soft-deleted book back with the given catalog fields and counters.
func (r *bookRepository) Restore(ctx context.Context, book *model.Book) error {
	book.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).Unscoped().Model(&model.Book{}).
		Where("id = ? AND deleted_at IS NOT NULL", book.ID).
		Updates(map[string]interface{}{
			"title":            book.Title,
			"author":           book.Author,
			"isbn":             book.ISBN,
			"published_year":   book.PublishedYear,
			"genre":            book.Genre,
			"description":      book.Description,
			"cover_image":      book.CoverImage,
			"total_copies":     book.TotalCopies,
			"available_copies": book.AvailableCopies,
			"updated_at":       book.UpdatedAt,
			"deleted_at":       nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	book.DeletedAt = gorm.DeletedAt{}
	return nil
}

// FindByID finds a book by ID.
func (r *bookRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Book, error) {
	var book model.Book
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&book).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// FindByIDForUpdate finds a book by ID with row-level lock for update.
func (r *bookRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Book, error) {
	var book model.Book
	if err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&book).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// FindByISBN finds a live book by ISBN.
func (r *bookRepository) FindByISBN(ctx context.Context, isbn string) (*model.Book, error) {
	var book model.Book
	if err := r.db.WithContext(ctx).Where("isbn = ?", isbn).First(&book).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// FindDeletedByISBN finds a soft-deleted book still holding an ISBN.
func (r *bookRepository) FindDeletedByISBN(ctx context.Context, isbn string) (*model.Book, error) {
	var book model.Book
	if err := r.db.WithContext(ctx).Unscoped().
		Where("isbn = ? AND deleted_at IS NOT NULL", isbn).First(&book).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// FindStock reads the counters of a live book.
func (r *bookRepository) FindStock(ctx context.Context, id uuid.UUID) (*BookStock, error) {
	var stock BookStock
	if err := r.db.WithContext(ctx).Model(&model.Book{}).
		Select("total_copies", "available_copies", "updated_at").
		Where("id = ?", id).Take(&stock).Error; err != nil {
		return nil, err
	}
	return &stock, nil
}

// List returns books ordered by title.
func (r *bookRepository) List(ctx context.Context, filter BookFilter) ([]model.Book, error) {
	q := r.db.WithContext(ctx).Model(&model.Book{})
	if term := strings.TrimSpace(filter.Query); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ? OR isbn LIKE ?", like, like, like)
	}
	if filter.Genre != "" {
		q = q.Where("genre = ?", filter.Genre)
	}
	var books []model.Book
	if err := q.Order("title ASC").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

// Count counts books that are not deleted.
func (r *bookRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Book{}).Count(&n).Error
	return n, err
}

// Delete soft-deletes a book.
func (r *bookRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Book{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DecrementAvailable takes one copy off the shelf. It fails with
// ErrNoRowsAffected when no copy is left.
func (r *bookRepository) DecrementAvailable(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&model.Book{}).
		Where("id = ? AND available_copies > 0", id).
		UpdateColumn("available_copies", gorm.Expr("available_copies - 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// IncrementAvailable puts one copy back. It fails with ErrNoRowsAffected
// when every copy is already on the shelf.
func (r *bookRepository) IncrementAvailable(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Unscoped().Model(&model.Book{}).
		Where("id = ? AND available_copies < total_copies", id).
		UpdateColumn("available_copies", gorm.Expr("available_copies + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}
