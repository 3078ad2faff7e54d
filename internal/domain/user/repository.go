package user

import (
	"context"

	"github.com/google/uuid"
)

// ProfileUpdate carries a partial profile edit. Nil fields are untouched
type ProfileUpdate struct {
	FullName     *string
	BusinessType *string
	BusinessName *string
}

// Repository manages account and session persistence
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) (*User, error)

	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// ErrUserNotFound indicates a missing account
type ErrUserNotFound struct {
	ID uuid.UUID
}

func (e ErrUserNotFound) Error() string {
	return "user not found: " + e.ID.String()
}

// Is implements the errors.Is interface for ErrUserNotFound
func (e ErrUserNotFound) Is(target error) bool {
	t, ok := target.(ErrUserNotFound)
	if !ok {
		return false
	}
	if t.ID == uuid.Nil {
		return true
	}
	return e.ID == t.ID
}

// ErrDuplicateEmail indicates email uniqueness violation
type ErrDuplicateEmail struct {
	Email string
}

func (e ErrDuplicateEmail) Error() string {
	return "account with email already exists: " + e.Email
}

// ErrSessionNotFound indicates a missing or expired session token
type ErrSessionNotFound struct{}

func (e ErrSessionNotFound) Error() string {
	return "session not found"
}
