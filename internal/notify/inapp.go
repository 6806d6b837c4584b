package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"library/internal/model"
	"library/internal/repository"
)

// InAppEmitter mirrors notifications into the user's in-app inbox.
// Password reset links and recipients without an account are not stored.
type InAppEmitter struct {
	repo   repository.NotificationRepository
	logger *slog.Logger
}

// NewInAppEmitter creates an in-app emitter.
func NewInAppEmitter(repo repository.NotificationRepository, logger *slog.Logger) *InAppEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InAppEmitter{repo: repo, logger: logger}
}

func (e *InAppEmitter) Emit(ctx context.Context, to Recipient, n Notification) bool {
	if to.UserID == uuid.Nil || n.Kind() == KindPasswordReset {
		return true
	}
	row := &model.Notification{
		UserID:  to.UserID,
		Kind:    string(n.Kind()),
		Title:   n.Subject(),
		Message: n.Summary(),
	}
	if err := e.repo.Create(ctx, row); err != nil {
		e.logger.Error("store in-app notification failed", "kind", n.Kind(), "user_id", to.UserID, "err", err)
		return false
	}
	return true
}
