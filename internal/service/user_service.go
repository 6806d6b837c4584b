package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"library/internal/db"
	"library/internal/errors"
	"library/internal/model"
	"library/internal/repository"
)

// Stats is the admin dashboard summary.
type Stats struct {
	TotalBooks        int64 `json:"total_books"`
	TotalUsers        int64 `json:"total_users"`
	ActiveBorrowings  int64 `json:"active_borrowings"`
	OverdueBorrowings int64 `json:"overdue_borrowings"`
}

// UserService exposes user administration.
type UserService interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateRole(ctx context.Context, actor Actor, id uuid.UUID, role model.Role) (*model.User, error)
	DeleteUser(ctx context.Context, actor Actor, id uuid.UUID) error
	Stats(ctx context.Context) (*Stats, error)
}

type userService struct {
	repos      repository.Repositories
	transactor repository.Transactor
	logger     *slog.Logger
}

// NewUserService builds a UserService.
func NewUserService(repos repository.Repositories, transactor repository.Transactor, logger *slog.Logger) UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &userService{repos: repos, transactor: transactor, logger: logger}
}

func (s *userService) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.repos.Users.List(ctx)
}

// UpdateRole changes a user's role. Admins cannot demote themselves.
func (s *userService) UpdateRole(ctx context.Context, actor Actor, id uuid.UUID, role model.Role) (*model.User, error) {
	if role != model.RoleUser && role != model.RoleAdmin {
		return nil, errors.ErrInvalidRole
	}
	if id == actor.UserID && role != model.RoleAdmin {
		return nil, fmt.Errorf("%w: you cannot remove your own admin role", errors.ErrForbidden)
	}
	if err := s.repos.Users.UpdateRole(ctx, id, role); err != nil {
		if db.IsNotFound(err) {
			return nil, errors.ErrUserNotFound
		}
		return nil, fmt.Errorf("update role: %w", err)
	}
	s.logger.Info("user role changed", "user_id", id, "role", role, "by", actor.UserID)
	return s.repos.Users.FindByID(ctx, id)
}

// DeleteUser soft-deletes a user who holds no books.
func (s *userService) DeleteUser(ctx context.Context, actor Actor, id uuid.UUID) error {
	if id == actor.UserID {
		return fmt.Errorf("%w: you cannot delete your own account", errors.ErrForbidden)
	}
	err := s.transactor.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		// Borrow locks the same row, so no loan can start between the count and the delete.
		if _, err := repos.Users.FindByIDForUpdate(ctx, id); err != nil {
			if db.IsNotFound(err) {
				return errors.ErrUserNotFound
			}
			return fmt.Errorf("lock user: %w", err)
		}
		active, err := repos.Borrowings.CountActiveByUser(ctx, id)
		if err != nil {
			return fmt.Errorf("count active borrowings: %w", err)
		}
		if active > 0 {
			return errors.ErrUserHasActiveBorrowings
		}
		return repos.Users.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("user deleted", "user_id", id, "by", actor.UserID)
	return nil
}

func (s *userService) Stats(ctx context.Context) (*Stats, error) {
	var (
		st  Stats
		err error
	)
	if st.TotalBooks, err = s.repos.Books.Count(ctx); err != nil {
		return nil, fmt.Errorf("count books: %w", err)
	}
	if st.TotalUsers, err = s.repos.Users.Count(ctx); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if st.ActiveBorrowings, err = s.repos.Borrowings.CountByStatus(ctx, model.BorrowingStatusBorrowed); err != nil {
		return nil, fmt.Errorf("count borrowed: %w", err)
	}
	if st.OverdueBorrowings, err = s.repos.Borrowings.CountByStatus(ctx, model.BorrowingStatusOverdue); err != nil {
		return nil, fmt.Errorf("count overdue: %w", err)
	}
	return &st, nil
}
