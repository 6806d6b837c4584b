package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"library/internal/cache"
	"library/internal/errors"
	"library/internal/model"
	"library/internal/notify"
	"library/internal/repository"
)

const (
	// DueSoonWindow is how far ahead of the due date reminders start.
	DueSoonWindow = 3 * 24 * time.Hour

	sweepLockKey = "lock:overdue_sweep"
	sweepLockTTL = 10 * time.Minute
	// A pass gives up before its lock can expire under it.
	sweepTimeout = 5 * time.Minute
)

// SweepReport summarises one overdue sweep.
type SweepReport struct {
	StartedAt      time.Time `json:"started_at"`
	Scanned        int       `json:"scanned"`
	MarkedOverdue  int       `json:"marked_overdue"`
	RemindersSent  int       `json:"reminders_sent"`
	NotifyFailures int       `json:"notify_failures"`
	Errors         int       `json:"errors"`
}

// SweepService flags overdue borrowings and reminds borrowers of upcoming due dates.
// It is the only code path that moves a borrowing to OVERDUE.
type SweepService interface {
	Sweep(ctx context.Context) (*SweepReport, error)
}

type sweepService struct {
	borrowings repository.BorrowingRepository
	cache      *cache.Client
	emitter    notify.Emitter
	now        func() time.Time
	logger     *slog.Logger
}

// NewSweepService creates a sweeper. A nil now uses time.Now in UTC.
func NewSweepService(
	borrowings repository.BorrowingRepository,
	cache *cache.Client,
	emitter notify.Emitter,
	now func() time.Time,
	logger *slog.Logger,
) SweepService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &sweepService{
		borrowings: borrowings,
		cache:      cache,
		emitter:    emitter,
		now:        now,
		logger:     logger,
	}
}

// Sweep runs one pass over every active borrowing. Failures on one record
// are logged and counted; the pass carries on with the rest.
func (s *sweepService) Sweep(ctx context.Context) (*SweepReport, error) {
	token, ok := s.cache.Acquire(ctx, sweepLockKey, sweepLockTTL)
	if !ok {
		return nil, errors.ErrSweepInProgress
	}
	defer s.cache.Release(context.WithoutCancel(ctx), sweepLockKey, token)

	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	now := s.now()
	report := &SweepReport{StartedAt: now}

	active, err := s.borrowings.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active borrowings: %w", err)
	}
	report.Scanned = len(active)

	horizon := now.Add(DueSoonWindow)
	for i := range active {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("overdue sweep stopped early", "err", err, "remaining", len(active)-i)
			break
		}
		b := &active[i]
		switch {
		case b.IsPastDue(now):
			if b.Status != model.BorrowingStatusBorrowed {
				continue
			}
			changed, err := s.borrowings.MarkOverdue(ctx, b.ID)
			if err != nil {
				report.Errors++
				s.logger.Error("mark overdue failed", "borrowing_id", b.ID, "err", err)
				continue
			}
			if !changed {
				// returned or flagged by someone else since we listed it
				continue
			}
			report.MarkedOverdue++
			if !s.emit(ctx, b, notify.Overdue{BookTitle: bookTitle(b), DueDate: b.DueDate}) {
				report.NotifyFailures++
			}
		case b.DueDate.After(now) && !b.DueDate.After(horizon):
			if s.emit(ctx, b, notify.DueSoon{BookTitle: bookTitle(b), DueDate: b.DueDate}) {
				report.RemindersSent++
			} else {
				report.NotifyFailures++
			}
		}
	}

	s.logger.Info("overdue sweep finished",
		"scanned", report.Scanned,
		"marked_overdue", report.MarkedOverdue,
		"reminders_sent", report.RemindersSent,
		"notify_failures", report.NotifyFailures,
		"errors", report.Errors,
	)
	return report, nil
}

func (s *sweepService) emit(ctx context.Context, b *model.Borrowing, n notify.Notification) bool {
	if b.User == nil {
		s.logger.Warn("borrowing has no user, notification skipped", "borrowing_id", b.ID, "kind", n.Kind())
		return false
	}
	to := notify.Recipient{UserID: b.User.ID, Name: b.User.Name, Email: b.User.Email}
	return s.emitter.Emit(ctx, to, n)
}

func bookTitle(b *model.Borrowing) string {
	if b.Book == nil {
		return "your book"
	}
	return b.Book.Title
}
