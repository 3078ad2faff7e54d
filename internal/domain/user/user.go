// Package user models the identity collaborator: accounts, profile fields
// used to enrich classification prompts, and opaque bearer sessions.
package user

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrWeakPassword    = errors.New("password must be at least 8 characters")
	ErrInvalidPassword = errors.New("invalid credentials")
)

// User is a registered account. BusinessType and BusinessName feed the
// classification prompt as optional context.
type User struct {
	ID           uuid.UUID `bson:"user_id" json:"id"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	Salt         string    `bson:"salt" json:"-"`
	FullName     string    `bson:"full_name" json:"full_name,omitempty"`
	BusinessType string    `bson:"business_type" json:"business_type,omitempty"`
	BusinessName string    `bson:"business_name" json:"business_name,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// NewUser creates an account with a salted password hash
func NewUser(email, password string) (*User, error) {
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	saltHex := hex.EncodeToString(salt)

	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hashPassword(password, saltHex),
		Salt:         saltHex,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CheckPassword verifies a login attempt in constant time
func (u *User) CheckPassword(password string) bool {
	expected := hashPassword(password, u.Salt)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(u.PasswordHash)) == 1
}

func hashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(salt + ":" + password))
	return hex.EncodeToString(sum[:])
}

func validEmail(email string) bool {
	at := -1
	for i, r := range email {
		if r == '@' {
			if at != -1 {
				return false
			}
			at = i
		}
	}
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	dot := false
	for i, r := range domain {
		if r == '.' && i > 0 && i < len(domain)-1 {
			dot = true
		}
	}
	return dot
}

// Session is an opaque bearer token with an expiry
type Session struct {
	Token     string    `bson:"token"`
	UserID    uuid.UUID `bson:"user_id"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}

// NewSession issues a fresh random token valid for ttl
func NewSession(userID uuid.UUID, ttl time.Duration) (*Session, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Session{
		Token:     hex.EncodeToString(raw),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, nil
}

// Expired reports whether the session is past its expiry
func (s *Session) Expired() bool {
	return time.Now().UTC().After(s.ExpiresAt)
}
