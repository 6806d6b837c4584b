// Package notify delivers borrowing and account notifications by email and in-app.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a notification variant.
type Kind string

const (
	KindBorrowConfirmed Kind = "borrow_confirmed"
	KindDueSoon         Kind = "due_soon"
	KindOverdue         Kind = "overdue"
	KindPasswordReset   Kind = "password_reset"
)

// dateLayout is how due dates are printed to readers.
const dateLayout = "Jan 2, 2006"

// Notification is one of BorrowConfirmed, DueSoon, Overdue or PasswordReset.
type Notification interface {
	Kind() Kind
	Subject() string
	Summary() string
}

// Recipient identifies who a notification goes to. UserID is empty for
// addresses that do not belong to an account.
type Recipient struct {
	UserID uuid.UUID
	Name   string
	Email  string
}

// Emitter delivers a notification and reports whether delivery succeeded.
// Failures are never fatal to the caller.
type Emitter interface {
	Emit(ctx context.Context, to Recipient, n Notification) bool
}

// BorrowConfirmed is sent after a successful borrow.
type BorrowConfirmed struct {
	BookTitle string
	DueDate   time.Time
}

func (BorrowConfirmed) Kind() Kind      { return KindBorrowConfirmed }
func (BorrowConfirmed) Subject() string { return "Book Borrowing Confirmation" }
func (n BorrowConfirmed) Summary() string {
	return fmt.Sprintf("You borrowed %q. Please return it by %s.", n.BookTitle, n.DueDate.Format(dateLayout))
}

// DueSoon reminds a borrower that a loan ends within three days.
type DueSoon struct {
	BookTitle string
	DueDate   time.Time
}

func (DueSoon) Kind() Kind      { return KindDueSoon }
func (DueSoon) Subject() string { return "Book Due Date Reminder" }
func (n DueSoon) Summary() string {
	return fmt.Sprintf("%q is due on %s.", n.BookTitle, n.DueDate.Format(dateLayout))
}

// Overdue tells a borrower that a loan has passed its due date.
type Overdue struct {
	BookTitle string
	DueDate   time.Time
}

func (Overdue) Kind() Kind      { return KindOverdue }
func (Overdue) Subject() string { return "Overdue Book Notice" }
func (n Overdue) Summary() string {
	return fmt.Sprintf("%q was due on %s. Please return it as soon as possible.", n.BookTitle, n.DueDate.Format(dateLayout))
}

// PasswordReset carries a single-use reset link.
type PasswordReset struct {
	ResetLink string
	ExpiresAt time.Time
}

func (PasswordReset) Kind() Kind      { return KindPasswordReset }
func (PasswordReset) Subject() string { return "Reset Your Password" }
func (PasswordReset) Summary() string {
	return "Use the link in your email to choose a new password."
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, to Recipient, n Notification) bool

func (f EmitterFunc) Emit(ctx context.Context, to Recipient, n Notification) bool {
	return f(ctx, to, n)
}

// Multi fans a notification out to every emitter. It reports true only
// when all of them succeeded.
func Multi(emitters ...Emitter) Emitter {
	return EmitterFunc(func(ctx context.Context, to Recipient, n Notification) bool {
		ok := true
		for _, e := range emitters {
			if !e.Emit(ctx, to, n) {
				ok = false
			}
		}
		return ok
	})
}
