package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/freelancer-expense-classifier/internal/domain/user"
)

// authService implements AuthService on the user repository
type authService struct {
	userRepo user.Repository
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(logger *slog.Logger, userRepo user.Repository, tokenTTL time.Duration) AuthService {
	return &authService{
		userRepo: userRepo,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// Register creates an account and opens its first session
func (s *authService) Register(ctx context.Context, email, password, fullName string) (*user.User, string, error) {
	u, err := user.NewUser(email, password)
	if err != nil {
		return nil, "", err
	}
	u.FullName = fullName

	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, "", err
	}

	token, err := s.openSession(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("Registered new account", "user_id", u.ID.String())
	return u, token, nil
}

// Login verifies the credentials and opens a session. A missing account and
// a wrong password produce the same error so the endpoint doesn't leak which
// emails are registered.
func (s *authService) Login(ctx context.Context, email, password string) (*user.User, string, error) {
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up account: %w", err)
	}
	if u == nil || !u.CheckPassword(password) {
		return nil, "", user.ErrInvalidPassword
	}

	token, err := s.openSession(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("Account logged in", "user_id", u.ID.String())
	return u, token, nil
}

// Logout revokes the session token
func (s *authService) Logout(ctx context.Context, token string) error {
	return s.userRepo.DeleteSession(ctx, token)
}

// Authenticate resolves a bearer token to its account. Expired sessions are
// deleted on sight.
func (s *authService) Authenticate(ctx context.Context, token string) (*user.User, error) {
	session, err := s.userRepo.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.Expired() {
		if err := s.userRepo.DeleteSession(ctx, token); err != nil {
			s.logger.Warn("Failed to delete expired session", "error", err)
		}
		return nil, user.ErrSessionNotFound{}
	}

	return s.userRepo.GetByID(ctx, session.UserID)
}

// GetProfile retrieves the account's profile
func (s *authService) GetProfile(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// UpdateProfile applies a partial profile edit
func (s *authService) UpdateProfile(ctx context.Context, userID uuid.UUID, update user.ProfileUpdate) (*user.User, error) {
	return s.userRepo.UpdateProfile(ctx, userID, update)
}

func (s *authService) openSession(ctx context.Context, userID uuid.UUID) (string, error) {
	session, err := user.NewSession(userID, s.tokenTTL)
	if err != nil {
		return "", fmt.Errorf("failed to issue session token: %w", err)
	}
	if err := s.userRepo.CreateSession(ctx, session); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return session.Token, nil
}
