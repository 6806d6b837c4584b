package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"library/internal/db"
	"library/internal/errors"
	"library/internal/model"
	"library/internal/notify"
	"library/internal/repository"
)

const notificationListLimit = 50

// TestEmailResults reports per-kind delivery of a test email run.
type TestEmailResults struct {
	PasswordReset         bool `json:"passwordReset"`
	BorrowingConfirmation bool `json:"borrowingConfirmation"`
	DueDateReminder       bool `json:"dueDateReminder"`
	OverdueNotification   bool `json:"overdueNotification"`
}

// NotificationService serves the in-app inbox and the admin mail check.
type NotificationService interface {
	List(ctx context.Context, userID uuid.UUID) ([]model.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	SendTestEmails(ctx context.Context, email string) TestEmailResults
}

type notificationService struct {
	repo   repository.NotificationRepository
	mailer notify.Emitter
	appURL string
}

// NewNotificationService creates the service. mailer should deliver
// synchronously so SendTestEmails can report real results.
func NewNotificationService(repo repository.NotificationRepository, mailer notify.Emitter, appURL string) NotificationService {
	return &notificationService{repo: repo, mailer: mailer, appURL: appURL}
}

func (s *notificationService) List(ctx context.Context, userID uuid.UUID) ([]model.Notification, error) {
	return s.repo.ListByUser(ctx, userID, notificationListLimit)
}

func (s *notificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		if db.IsNotFound(err) {
			return errors.ErrNotificationNotFound
		}
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// SendTestEmails sends one email of every kind with sample data.
func (s *notificationService) SendTestEmails(ctx context.Context, email string) TestEmailResults {
	now := time.Now().UTC()
	to := notify.Recipient{Email: email}
	const title = "Test Book Title"
	return TestEmailResults{
		PasswordReset: s.mailer.Emit(ctx, to, notify.PasswordReset{
			ResetLink: s.appURL + "/auth/reset-password?token=test-reset-token",
			ExpiresAt: now.Add(ResetTokenTTL),
		}),
		BorrowingConfirmation: s.mailer.Emit(ctx, to, notify.BorrowConfirmed{BookTitle: title, DueDate: now.Add(model.LoanPeriod)}),
		DueDateReminder:       s.mailer.Emit(ctx, to, notify.DueSoon{BookTitle: title, DueDate: now.Add(DueSoonWindow)}),
		OverdueNotification:   s.mailer.Emit(ctx, to, notify.Overdue{BookTitle: title, DueDate: now.Add(-24 * time.Hour)}),
	}
}
