// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"library/internal/db"
	"library/internal/model"
)

// NewDB opens a private in-memory SQLite database with the schema migrated.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	gdb, err := db.Open(db.DriverSQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(model.All()...))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

// CreateUser inserts a user whose password is "password123".
func CreateUser(t testing.TB, gdb *gorm.DB, email string, role model.Role) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &model.User{Name: email, Email: email, PasswordHash: string(hash), Role: role}
	require.NoError(t, gdb.Create(user).Error)
	return user
}

// CreateBook inserts a book with every copy on the shelf.
func CreateBook(t testing.TB, gdb *gorm.DB, title string, copies int) *model.Book {
	t.Helper()
	book := &model.Book{
		Title:           title,
		Author:          "Test Author",
		ISBN:            RandomISBN(),
		PublishedYear:   2020,
		Genre:           "Fiction",
		TotalCopies:     copies,
		AvailableCopies: copies,
	}
	require.NoError(t, gdb.Create(book).Error)
	return book
}

// RandomISBN returns a unique-enough ISBN-13 with a valid check digit.
func RandomISBN() string {
	digits := []byte("978")
	for _, b := range uuid.New() {
		if len(digits) == 12 {
			break
		}
		digits = append(digits, '0'+b%10)
	}
	sum := 0
	for i, d := range digits {
		n := int(d - '0')
		if i%2 == 1 {
			n *= 3
		}
		sum += n
	}
	return string(append(digits, byte('0'+(10-sum%10)%10)))
}

// ReloadBook reads the current ledger state of a book.
func ReloadBook(t testing.TB, gdb *gorm.DB, id uuid.UUID) *model.Book {
	t.Helper()
	var book model.Book
	require.NoError(t, gdb.Unscoped().Where("id = ?", id).First(&book).Error)
	return &book
}

// CountActive counts active borrowings of a book.
func CountActive(t testing.TB, gdb *gorm.DB, bookID uuid.UUID) int {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(&model.Borrowing{}).
		Where("book_id = ? AND status IN ?", bookID, model.ActiveBorrowingStatuses).
		Count(&n).Error)
	return int(n)
}
