// Package mongo provides MongoDB implementations of the identity and
// upload-audit repositories.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/freelancer-expense-classifier/internal/domain/user"
)

const (
	// UserCollectionName is the name of the users collection in MongoDB
	UserCollectionName = "users"
	// SessionCollectionName is the name of the sessions collection in MongoDB
	SessionCollectionName = "sessions"
)

// UserRepository implements the user.Repository interface for MongoDB
type UserRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewUserRepository creates a new MongoDB user repository
func NewUserRepository(logger *slog.Logger, db *mongo.Database) user.Repository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a new account after checking for a duplicate email.
// Returns ErrDuplicateEmail if the address is already registered.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	collection := r.db.Collection(UserCollectionName)

	existing, err := r.GetByEmail(ctx, u.Email)
	if err != nil {
		r.logger.Error("Failed to check for existing user", "email", u.Email, "error", err)
		return fmt.Errorf("failed to check for existing user: %w", err)
	}
	if existing != nil {
		return user.ErrDuplicateEmail{Email: u.Email}
	}

	if _, err := collection.InsertOne(ctx, u); err != nil {
		r.logger.Error("Failed to create user", "email", u.Email, "error", err)
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its ID.
// Returns ErrUserNotFound if no account exists.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	collection := r.db.Collection(UserCollectionName)

	var u user.User
	err := collection.FindOne(ctx, bson.M{"user_id": id}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, user.ErrUserNotFound{ID: id}
		}
		r.logger.Error("Failed to get user", "user_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &u, nil
}

// GetByEmail retrieves an account by its email address.
// Returns nil when no account exists, enabling duplicate checks.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	collection := r.db.Collection(UserCollectionName)

	var u user.User
	err := collection.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // No account registered with this email
		}
		r.logger.Error("Failed to get user by email", "email", email, "error", err)
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return &u, nil
}

// UpdateProfile applies a partial profile edit and returns the updated account.
// Returns ErrUserNotFound if the account doesn't exist.
func (r *UserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, update user.ProfileUpdate) (*user.User, error) {
	collection := r.db.Collection(UserCollectionName)

	set := bson.M{"updated_at": time.Now().UTC()}
	if update.FullName != nil {
		set["full_name"] = *update.FullName
	}
	if update.BusinessType != nil {
		set["business_type"] = *update.BusinessType
	}
	if update.BusinessName != nil {
		set["business_name"] = *update.BusinessName
	}

	result, err := collection.UpdateOne(ctx, bson.M{"user_id": id}, bson.M{"$set": set})
	if err != nil {
		r.logger.Error("Failed to update profile", "user_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if result.MatchedCount == 0 {
		return nil, user.ErrUserNotFound{ID: id}
	}

	return r.GetByID(ctx, id)
}

// CreateSession stores a bearer session token
func (r *UserRepository) CreateSession(ctx context.Context, s *user.Session) error {
	collection := r.db.Collection(SessionCollectionName)

	if _, err := collection.InsertOne(ctx, s); err != nil {
		r.logger.Error("Failed to create session", "user_id", s.UserID.String(), "error", err)
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSession resolves a bearer token to its session.
// Returns ErrSessionNotFound for unknown tokens.
func (r *UserRepository) GetSession(ctx context.Context, token string) (*user.Session, error) {
	collection := r.db.Collection(SessionCollectionName)

	var s user.Session
	err := collection.FindOne(ctx, bson.M{"token": token}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, user.ErrSessionNotFound{}
		}
		r.logger.Error("Failed to get session", "error", err)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &s, nil
}

// DeleteSession removes a bearer token, logging the user out
func (r *UserRepository) DeleteSession(ctx context.Context, token string) error {
	collection := r.db.Collection(SessionCollectionName)

	if _, err := collection.DeleteOne(ctx, bson.M{"token": token}); err != nil {
		r.logger.Error("Failed to delete session", "error", err)
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}
