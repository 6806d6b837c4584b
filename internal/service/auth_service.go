package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"library/internal/auth"
	"library/internal/db"
	"library/internal/errors"
	"library/internal/model"
	"library/internal/notify"
	"library/internal/repository"
)

const (
	bcryptCost = 10

	// ResetTokenTTL is how long a password reset link stays valid.
	ResetTokenTTL = time.Hour
)

// AuthService handles authentication operations.
type AuthService interface {
	Register(ctx context.Context, name, email, password string) (*model.User, error)
	Login(ctx context.Context, email, password string) (accessToken, refreshToken string, user *model.User, err error)
	RefreshToken(ctx context.Context, refreshToken string) (accessToken string, err error)
	Logout(ctx context.Context, refreshToken string, access *auth.Claims) error
	Me(ctx context.Context, userID uuid.UUID) (*model.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
}

type authService struct {
	users      repository.UserRepository
	jwtService *auth.JWTService
	tokenStore auth.TokenStoreInterface
	emitter    notify.Emitter
	appURL     string
	logger     *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	users repository.UserRepository,
	jwtService *auth.JWTService,
	tokenStore auth.TokenStoreInterface,
	emitter notify.Emitter,
	appURL string,
	logger *slog.Logger,
) AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &authService{
		users:      users,
		jwtService: jwtService,
		tokenStore: tokenStore,
		emitter:    emitter,
		appURL:     strings.TrimRight(appURL, "/"),
		logger:     logger,
	}
}

// Register creates a new user with hashed password.
func (s *authService) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	email = normalizeEmail(email)

	// Check if user already exists
	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil && existing != nil {
		return nil, errors.ErrEmailTaken
	}
	if err != nil && !db.IsNotFound(err) {
		return nil, fmt.Errorf("check user existence: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: string(hashedPassword),
		Role:         model.RoleUser,
	}
	err = s.users.Create(ctx, user)
	if err != nil && db.IsDuplicateKey(err) {
		return s.reactivate(ctx, user)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// reactivate gives a deleted account back to whoever registers its email
// again. The account starts over as a plain member.
func (s *authService) reactivate(ctx context.Context, in *model.User) (*model.User, error) {
	user, err := s.users.FindDeletedByEmail(ctx, in.Email)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, errors.ErrEmailTaken
		}
		return nil, fmt.Errorf("find deleted user: %w", err)
	}
	user.Name = in.Name
	user.PasswordHash = in.PasswordHash
	user.Role = model.RoleUser
	if err := s.users.Restore(ctx, user); err != nil {
		if db.IsNotFound(err) {
			return nil, errors.ErrEmailTaken
		}
		return nil, fmt.Errorf("restore user: %w", err)
	}
	s.logger.Info("user reactivated", "user_id", user.ID)
	return user, nil
}

// Login authenticates a user and returns access and refresh tokens.
func (s *authService) Login(ctx context.Context, email, password string) (accessToken, refreshToken string, user *model.User, err error) {
	user, err = s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", "", nil, errors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", "", nil, errors.ErrInvalidCredentials
	}

	accessToken, err = s.jwtService.GenerateAccessToken(user)
	if err != nil {
		return "", "", nil, fmt.Errorf("generate access token: %w", err)
	}

	tokenID, refreshToken, err := s.jwtService.GenerateRefreshToken(user)
	if err != nil {
		return "", "", nil, fmt.Errorf("generate refresh token: %w", err)
	}

	if err := s.tokenStore.StoreRefreshToken(ctx, tokenID, user.ID, user.Email, auth.RefreshTokenExpiry); err != nil {
		return "", "", nil, fmt.Errorf("store refresh token: %w", err)
	}

	return accessToken, refreshToken, user, nil
}

// RefreshToken validates a refresh token and returns a new access token
// carrying the user's current role.
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil || claims.ID == "" {
		return "", errors.ErrInvalidRefreshToken
	}

	storedUserID, storedEmail, err := s.tokenStore.GetRefreshToken(ctx, claims.ID)
	if err != nil {
		return "", errors.ErrInvalidRefreshToken
	}
	if storedUserID != claims.UserID || storedEmail != claims.Email {
		return "", errors.ErrInvalidRefreshToken
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if db.IsNotFound(err) {
			return "", errors.ErrInvalidRefreshToken
		}
		return "", fmt.Errorf("load user: %w", err)
	}

	accessToken, err := s.jwtService.GenerateAccessToken(user)
	if err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return accessToken, nil
}

// Logout invalidates a refresh token and, when given, the access token in use.
func (s *authService) Logout(ctx context.Context, refreshToken string, access *auth.Claims) error {
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil || claims.ID == "" {
		return errors.ErrInvalidRefreshToken
	}

	if err := s.tokenStore.DeleteRefreshToken(ctx, claims.ID); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}

	if access != nil && access.ID != "" && access.ExpiresAt != nil {
		if err := s.tokenStore.BlacklistAccessToken(ctx, access.ID, time.Until(access.ExpiresAt.Time)); err != nil {
			return fmt.Errorf("blacklist access token: %w", err)
		}
	}
	return nil
}

func (s *authService) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, errors.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// ForgotPassword emails a reset link when the address belongs to a user.
// Unknown addresses succeed silently so callers cannot tell which accounts exist.
func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if db.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}

	token, err := newResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	expiresAt := time.Now().UTC().Add(ResetTokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, hashResetToken(token), expiresAt); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := s.appURL + "/auth/reset-password?token=" + url.QueryEscape(token)
	to := notify.Recipient{UserID: user.ID, Name: user.Name, Email: user.Email}
	if !s.emitter.Emit(ctx, to, notify.PasswordReset{ResetLink: link, ExpiresAt: expiresAt}) {
		s.logger.Warn("password reset email not delivered", "user_id", user.ID)
	}
	return nil
}

// ResetPassword sets a new password for the owner of a valid reset token.
// The token is single use.
func (s *authService) ResetPassword(ctx context.Context, token, password string) error {
	if token == "" {
		return errors.ErrInvalidResetToken
	}
	user, err := s.users.FindByResetTokenHash(ctx, hashResetToken(token))
	if err != nil {
		if db.IsNotFound(err) {
			return errors.ErrInvalidResetToken
		}
		return fmt.Errorf("find reset token: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.ResetPassword(ctx, user.ID, string(hashedPassword)); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	s.logger.Info("password reset", "user_id", user.ID)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// hashResetToken returns the form of a reset token kept in the database.
func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
