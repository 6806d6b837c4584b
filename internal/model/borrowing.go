package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LoanPeriod is the time a borrower keeps a book before it is due.
const LoanPeriod = 14 * 24 * time.Hour

// BorrowingStatus represents the lifecycle state of a borrowing.
type BorrowingStatus string

const (
	BorrowingStatusBorrowed BorrowingStatus = "BORROWED"
	BorrowingStatusOverdue  BorrowingStatus = "OVERDUE"
	BorrowingStatusReturned BorrowingStatus = "RETURNED"
)

// ActiveBorrowingStatuses are the states that hold a copy of the book.
var ActiveBorrowingStatuses = []BorrowingStatus{BorrowingStatusBorrowed, BorrowingStatusOverdue}

// IsActive reports whether the status still holds a copy.
func (s BorrowingStatus) IsActive() bool {
	return s == BorrowingStatusBorrowed || s == BorrowingStatusOverdue
}

// Valid reports whether s is a known status.
func (s BorrowingStatus) Valid() bool {
	return s.IsActive() || s == BorrowingStatusReturned
}

// Borrowing records one user holding one copy of one book.
// Rows are append-only history: they are never deleted.
type Borrowing struct {
	ID         uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	UserID     uuid.UUID       `json:"user_id" gorm:"type:char(36);not null;index:idx_borrowings_user_book_status,priority:1"`
	BookID     uuid.UUID       `json:"book_id" gorm:"type:char(36);not null;index:idx_borrowings_user_book_status,priority:2;index"`
	BorrowDate time.Time       `json:"borrow_date" gorm:"not null"`
	DueDate    time.Time       `json:"due_date" gorm:"not null;index"`
	ReturnDate *time.Time      `json:"return_date"`
	Status     BorrowingStatus `json:"status" gorm:"type:varchar(20);not null;default:'BORROWED';index:idx_borrowings_user_book_status,priority:3;index"`
	LateFee    decimal.Decimal `json:"late_fee" gorm:"type:decimal(10,2);not null;default:0"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`

	// Relations
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Book *Book `json:"book,omitempty" gorm:"foreignKey:BookID"`
}

// BeforeCreate sets UUID before creating the record.
func (b *Borrowing) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// NewBorrowing opens a loan starting at now.
func NewBorrowing(userID, bookID uuid.UUID, now time.Time) *Borrowing {
	return &Borrowing{
		UserID:     userID,
		BookID:     bookID,
		BorrowDate: now,
		DueDate:    now.Add(LoanPeriod),
		Status:     BorrowingStatusBorrowed,
		LateFee:    decimal.Zero,
	}
}

// IsPastDue reports whether the due date lies strictly before now.
func (b *Borrowing) IsPastDue(now time.Time) bool {
	return b.DueDate.Before(now)
}

// LateFeeAt charges perDay for every started day past the due date.
func (b *Borrowing) LateFeeAt(now time.Time, perDay decimal.Decimal) decimal.Decimal {
	if !b.IsPastDue(now) || perDay.IsZero() {
		return decimal.Zero
	}
	late := now.Sub(b.DueDate)
	days := int64(late / (24 * time.Hour))
	if late%(24*time.Hour) != 0 {
		days++
	}
	return perDay.Mul(decimal.NewFromInt(days))
}
