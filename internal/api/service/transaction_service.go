package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/freelancer-expense-classifier/internal/domain/transaction"
	"github.com/freelancer-expense-classifier/internal/domain/upload"
	"github.com/freelancer-expense-classifier/internal/domain/user"
	"github.com/freelancer-expense-classifier/internal/ingest/processor"
	"github.com/freelancer-expense-classifier/internal/ingest/prompt"
)

// transactionService implements TransactionService on the processing
// controller and the transaction store
type transactionService struct {
	controller *processor.Controller
	txRepo     transaction.Repository
	records    upload.RecordRepository
	registry   *upload.Registry
	logger     *slog.Logger
}

// NewTransactionService creates a new transaction service
func NewTransactionService(
	logger *slog.Logger,
	controller *processor.Controller,
	txRepo transaction.Repository,
	records upload.RecordRepository,
	registry *upload.Registry,
) TransactionService {
	return &transactionService{
		controller: controller,
		txRepo:     txRepo,
		records:    records,
		registry:   registry,
		logger:     logger,
	}
}

// ProcessUpload runs one uploaded statement through the pipeline, enriching
// the classification prompt with the uploader's business profile
func (s *transactionService) ProcessUpload(ctx context.Context, u *user.User, filename string, data []byte) (*processor.Summary, error) {
	return s.controller.Process(ctx, u.ID, filename, data, promptContext(u))
}

// CancelProcessing flags the user's in-flight run for cancellation
func (s *transactionService) CancelProcessing(userID uuid.UUID) bool {
	return s.registry.Cancel(userID)
}

// Reclassify re-runs classification over the user's stored transactions
func (s *transactionService) Reclassify(ctx context.Context, u *user.User) (*processor.Summary, error) {
	return s.controller.Reclassify(ctx, u.ID, promptContext(u))
}

// List retrieves a filtered page plus the total count for pagination
func (s *transactionService) List(ctx context.Context, userID uuid.UUID, filter transaction.ListFilter, page, perPage int) ([]*transaction.Transaction, int64, error) {
	offset := (page - 1) * perPage
	txns, err := s.txRepo.ListByUser(ctx, userID, filter, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.txRepo.CountByUser(ctx, userID, filter)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// Get retrieves one transaction scoped to its owner
func (s *transactionService) Get(ctx context.Context, userID, id uuid.UUID) (*transaction.Transaction, error) {
	return s.txRepo.GetByID(ctx, userID, id)
}

// Update applies a manual edit; the store marks the row overridden
func (s *transactionService) Update(ctx context.Context, userID, id uuid.UUID, fields transaction.UpdateFields) (*transaction.Transaction, error) {
	return s.txRepo.Update(ctx, userID, id, fields)
}

// Delete removes one transaction
func (s *transactionService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.txRepo.Delete(ctx, userID, id)
}

// DeleteAll clears the user's transactions
func (s *transactionService) DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.txRepo.DeleteAllByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Cleared all transactions", "user_id", userID.String(), "deleted", count)
	return count, nil
}

// Statistics aggregates classification counts and the monthly breakdown
func (s *transactionService) Statistics(ctx context.Context, userID uuid.UUID) (*transaction.Statistics, []transaction.MonthlyTotal, error) {
	stats, err := s.txRepo.Statistics(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	monthly, err := s.txRepo.MonthlyBreakdown(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return stats, monthly, nil
}

// UploadHistory retrieves past upload summaries, newest first
func (s *transactionService) UploadHistory(ctx context.Context, userID uuid.UUID, page, perPage int) ([]*upload.Record, error) {
	offset := (page - 1) * perPage
	return s.records.ListByUser(ctx, userID, perPage, offset)
}

func promptContext(u *user.User) prompt.Context {
	return prompt.Context{
		BusinessType: u.BusinessType,
		BusinessName: u.BusinessName,
	}
}
