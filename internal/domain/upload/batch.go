// Package upload models one statement-upload processing run: its state
// machine, accumulated row errors, and the cooperative cancellation token
// checked between classification batches.
package upload

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Status is the processing state of an upload run
type Status string

const (
	StatusReceived    Status = "RECEIVED"
	StatusParsing     Status = "PARSING"
	StatusClassifying Status = "CLASSIFYING"
	StatusCompleted   Status = "COMPLETED"
	StatusCancelled   Status = "CANCELLED"
	StatusFailed      Status = "FAILED"
)

// Batch tracks one file upload through the processing pipeline. It lives for
// the duration of the HTTP request; its final summary is persisted separately
// as an audit record.
type Batch struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Filename       string
	Status         Status
	ProcessedCount int
	Errors         []string
	CreatedAt      time.Time
	CompletedAt    *time.Time

	cancelled atomic.Bool
}

// NewBatch creates a tracking record for one upload request
func NewBatch(userID uuid.UUID, filename string) *Batch {
	return &Batch{
		ID:        uuid.New(),
		UserID:    userID,
		Filename:  filename,
		Status:    StatusReceived,
		CreatedAt: time.Now().UTC(),
	}
}

// Cancel sets the cooperative cancellation flag. The processing loop reads it
// at batch boundaries; an in-flight model call is allowed to finish.
func (b *Batch) Cancel() {
	b.cancelled.Store(true)
}

// Cancelled reports whether cancellation was requested
func (b *Batch) Cancelled() bool {
	return b.cancelled.Load()
}

// RecordError appends a row- or batch-level error string
func (b *Batch) RecordError(msg string) {
	b.Errors = append(b.Errors, msg)
}

// Finish transitions to a terminal state and stamps the completion time
func (b *Batch) Finish(status Status) {
	now := time.Now().UTC()
	b.Status = status
	b.CompletedAt = &now
}
