package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories groups the repositories that share one database handle.
type Repositories struct {
	Users         UserRepository
	Books         BookRepository
	Borrowings    BorrowingRepository
	Notifications NotificationRepository
}

// NewRepositories builds every repository on db.
func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:         NewUserRepository(db),
		Books:         NewBookRepository(db),
		Borrowings:    NewBorrowingRepository(db),
		Notifications: NewNotificationRepository(db),
	}
}

// Transactor runs a unit of work inside one database transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

type transactor struct {
	db *gorm.DB
}

// NewTransactor creates a transactor backed by db.
func NewTransactor(db *gorm.DB) Transactor {
	return &transactor{db: db}
}

// WithTransaction executes fn with repositories bound to a fresh transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
func (t *transactor) WithTransaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewRepositories(tx))
	})
}
