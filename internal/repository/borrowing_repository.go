package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"library/internal/model"
)

// BorrowingRepository defines borrowing persistence operations.
// Borrowings are never deleted, so there is no Delete.
type BorrowingRepository interface {
	Create(ctx context.Context, borrowing *model.Borrowing) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Borrowing, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Borrowing, error)
	CountActive(ctx context.Context, userID, bookID uuid.UUID) (int64, error)
	CountActiveByBook(ctx context.Context, bookID uuid.UUID) (int64, error)
	CountActiveByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	CountByStatus(ctx context.Context, status model.BorrowingStatus) (int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Borrowing, error)
	ListAll(ctx context.Context, status model.BorrowingStatus) ([]model.Borrowing, error)
	ListActive(ctx context.Context) ([]model.Borrowing, error)
	MarkOverdue(ctx context.Context, id uuid.UUID) (bool, error)
	MarkReturned(ctx context.Context, id uuid.UUID, at time.Time, lateFee decimal.Decimal) error
}

type borrowingRepository struct {
	db *gorm.DB
}

// NewBorrowingRepository creates a new borrowing repository.
func NewBorrowingRepository(db *gorm.DB) BorrowingRepository {
	return &borrowingRepository{db: db}
}

// withBook preloads the book even after it was soft-deleted so history stays readable.
func withBook(db *gorm.DB) *gorm.DB {
	return db.Preload("Book", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped() })
}

func withUser(db *gorm.DB) *gorm.DB {
	return db.Preload("User", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped() })
}

// Create creates a new borrowing.
func (r *borrowingRepository) Create(ctx context.Context, borrowing *model.Borrowing) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(borrowing).Error
}

// FindByID finds a borrowing by ID together with its book.
func (r *borrowingRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Borrowing, error) {
	var borrowing model.Borrowing
	if err := withBook(r.db.WithContext(ctx)).Where("id = ?", id).First(&borrowing).Error; err != nil {
		return nil, err
	}
	return &borrowing, nil
}

// FindByIDForUpdate finds a borrowing by ID with row-level lock for update.
func (r *borrowingRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Borrowing, error) {
	var borrowing model.Borrowing
	if err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&borrowing).Error; err != nil {
		return nil, err
	}
	return &borrowing, nil
}

// CountActive counts active borrowings of one book by one user.
func (r *borrowingRepository) CountActive(ctx context.Context, userID, bookID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Borrowing{}).
		Where("user_id = ? AND book_id = ? AND status IN ?", userID, bookID, model.ActiveBorrowingStatuses).
		Count(&n).Error
	return n, err
}

// CountActiveByBook counts copies of a book currently lent out.
func (r *borrowingRepository) CountActiveByBook(ctx context.Context, bookID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Borrowing{}).
		Where("book_id = ? AND status IN ?", bookID, model.ActiveBorrowingStatuses).
		Count(&n).Error
	return n, err
}

// CountActiveByUser counts books a user currently holds.
func (r *borrowingRepository) CountActiveByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Borrowing{}).
		Where("user_id = ? AND status IN ?", userID, model.ActiveBorrowingStatuses).
		Count(&n).Error
	return n, err
}

func (r *borrowingRepository) CountByStatus(ctx context.Context, status model.BorrowingStatus) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Borrowing{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

// ListByUser lists a user's borrowings, newest first.
func (r *borrowingRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Borrowing, error) {
	var borrowings []model.Borrowing
	if err := withBook(r.db.WithContext(ctx)).
		Where("user_id = ?", userID).
		Order("borrow_date DESC").
		Find(&borrowings).Error; err != nil {
		return nil, err
	}
	return borrowings, nil
}

// ListAll lists every borrowing, newest first. An empty status lists all states.
func (r *borrowingRepository) ListAll(ctx context.Context, status model.BorrowingStatus) ([]model.Borrowing, error) {
	q := withUser(withBook(r.db.WithContext(ctx)))
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var borrowings []model.Borrowing
	if err := q.Order("borrow_date DESC").Find(&borrowings).Error; err != nil {
		return nil, err
	}
	return borrowings, nil
}

// ListActive lists BORROWED and OVERDUE records with user and book loaded.
func (r *borrowingRepository) ListActive(ctx context.Context) ([]model.Borrowing, error) {
	var borrowings []model.Borrowing
	if err := withUser(withBook(r.db.WithContext(ctx))).
		Where("status IN ?", model.ActiveBorrowingStatuses).
		Order("due_date ASC").
		Find(&borrowings).Error; err != nil {
		return nil, err
	}
	return borrowings, nil
}

// MarkOverdue moves a BORROWED record to OVERDUE. It reports whether this
// call performed the transition; records in any other state are left alone.
func (r *borrowingRepository) MarkOverdue(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Borrowing{}).
		Where("id = ? AND status = ?", id, model.BorrowingStatusBorrowed).
		Update("status", model.BorrowingStatusOverdue)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkReturned closes an active borrowing. It fails with ErrNoRowsAffected
// when the record is no longer active.
func (r *borrowingRepository) MarkReturned(ctx context.Context, id uuid.UUID, at time.Time, lateFee decimal.Decimal) error {
	res := r.db.WithContext(ctx).Model(&model.Borrowing{}).
		Where("id = ? AND status IN ?", id, model.ActiveBorrowingStatuses).
		Updates(map[string]interface{}{
			"status":      model.BorrowingStatusReturned,
			"return_date": at,
			"late_fee":    lateFee,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}
