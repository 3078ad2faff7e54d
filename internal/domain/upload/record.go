package upload

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is the persisted summary of a finished upload run, kept for audit
// and so statistics can reference historical uploads.
type Record struct {
	BatchID        uuid.UUID  `bson:"batch_id"`
	UserID         uuid.UUID  `bson:"user_id"`
	Filename       string     `bson:"filename"`
	Status         Status     `bson:"status"`
	ProcessedCount int        `bson:"processed_count"`
	Errors         []string   `bson:"errors,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"`
	CompletedAt    *time.Time `bson:"completed_at,omitempty"`
}

// RecordOf snapshots a finished batch into its persistable form
func RecordOf(b *Batch) *Record {
	return &Record{
		BatchID:        b.ID,
		UserID:         b.UserID,
		Filename:       b.Filename,
		Status:         b.Status,
		ProcessedCount: b.ProcessedCount,
		Errors:         b.Errors,
		CreatedAt:      b.CreatedAt,
		CompletedAt:    b.CompletedAt,
	}
}

// RecordRepository persists upload summaries
type RecordRepository interface {
	Save(ctx context.Context, record *Record) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Record, error)
}
