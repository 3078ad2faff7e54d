package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/freelancer-expense-classifier/internal/domain/upload"
)

const (
	// UploadCollectionName is the name of the upload audit collection in MongoDB
	UploadCollectionName = "upload_records"
)

// UploadRecordRepository implements the upload.RecordRepository interface for MongoDB
type UploadRecordRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewUploadRecordRepository creates a new MongoDB upload audit repository
func NewUploadRecordRepository(logger *slog.Logger, db *mongo.Database) upload.RecordRepository {
	return &UploadRecordRepository{
		db:     db,
		logger: logger,
	}
}

// Save stores the final summary of a finished upload run
func (r *UploadRecordRepository) Save(ctx context.Context, record *upload.Record) error {
	collection := r.db.Collection(UploadCollectionName)

	if _, err := collection.InsertOne(ctx, record); err != nil {
		r.logger.Error("Failed to save upload record",
			"batch_id", record.BatchID.String(),
			"error", err)
		return fmt.Errorf("failed to save upload record: %w", err)
	}

	return nil
}

// ListByUser retrieves paginated upload summaries for a user, newest first
func (r *UploadRecordRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*upload.Record, error) {
	collection := r.db.Collection(UploadCollectionName)

	filter := bson.M{"user_id": userID}
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list upload records",
			"user_id", userID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to list upload records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*upload.Record
	if err := cursor.All(ctx, &records); err != nil {
		r.logger.Error("Failed to decode upload records",
			"user_id", userID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode upload records: %w", err)
	}

	return records, nil
}
