package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/freelancer-expense-classifier/internal/domain/transaction"
	"github.com/freelancer-expense-classifier/internal/domain/upload"
	"github.com/freelancer-expense-classifier/internal/domain/user"
	"github.com/freelancer-expense-classifier/internal/export"
	"github.com/freelancer-expense-classifier/internal/ingest/processor"
)

// AuthService defines account and session operations
type AuthService interface {
	// Register creates an account and opens a session
	// Returns ErrDuplicateEmail if the address is already registered
	Register(ctx context.Context, email, password, fullName string) (*user.User, string, error)

	// Login verifies credentials and opens a session
	// Returns user.ErrInvalidPassword on a bad email/password pair
	Login(ctx context.Context, email, password string) (*user.User, string, error)

	// Logout revokes the session token
	Logout(ctx context.Context, token string) error

	// Authenticate resolves a bearer token to its account, rejecting
	// expired sessions
	Authenticate(ctx context.Context, token string) (*user.User, error)

	// GetProfile retrieves the account's profile
	GetProfile(ctx context.Context, userID uuid.UUID) (*user.User, error)

	// UpdateProfile applies a partial profile edit
	UpdateProfile(ctx context.Context, userID uuid.UUID, update user.ProfileUpdate) (*user.User, error)
}

// TransactionService defines statement processing and transaction CRUD
type TransactionService interface {
	// ProcessUpload runs one statement file through the processing pipeline.
	// The returned summary carries per-row errors; the error is non-nil only
	// when the whole upload failed.
	ProcessUpload(ctx context.Context, u *user.User, filename string, data []byte) (*processor.Summary, error)

	// CancelProcessing flags the user's in-flight run for cancellation.
	// Returns false when nothing is processing.
	CancelProcessing(userID uuid.UUID) bool

	// Reclassify re-runs classification over stored transactions,
	// skipping manually overridden ones
	Reclassify(ctx context.Context, u *user.User) (*processor.Summary, error)

	// List retrieves a filtered page of transactions plus the total count
	List(ctx context.Context, userID uuid.UUID, filter transaction.ListFilter, page, perPage int) ([]*transaction.Transaction, int64, error)

	// Get retrieves one transaction
	// Returns ErrTransactionNotFound if missing or owned by someone else
	Get(ctx context.Context, userID, id uuid.UUID) (*transaction.Transaction, error)

	// Update applies a partial edit and marks the transaction as
	// manually overridden
	Update(ctx context.Context, userID, id uuid.UUID, fields transaction.UpdateFields) (*transaction.Transaction, error)

	// Delete removes one transaction
	Delete(ctx context.Context, userID, id uuid.UUID) error

	// DeleteAll removes every transaction the user owns and reports the count
	DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error)

	// Statistics aggregates the user's classification counts and monthly totals
	Statistics(ctx context.Context, userID uuid.UUID) (*transaction.Statistics, []transaction.MonthlyTotal, error)

	// UploadHistory retrieves past upload summaries, newest first
	UploadHistory(ctx context.Context, userID uuid.UUID, page, perPage int) ([]*upload.Record, error)
}

// ExportService defines the downloadable report operations. The export
// generator satisfies it directly.
type ExportService interface {
	TransactionsCSV(ctx context.Context, userID uuid.UUID, start, end *time.Time) (string, error)
	BusinessExpensesCSV(ctx context.Context, userID uuid.UUID, start, end *time.Time) (string, error)
	TaxReportCSV(ctx context.Context, userID uuid.UUID, taxYear int) (string, error)
	SummaryReport(ctx context.Context, userID uuid.UUID, start, end *time.Time) (*export.SummaryReport, error)
}
