// Package postgres provides PostgreSQL implementations of the domain repositories.
// It handles all database operations while maintaining transaction safety and
// proper error handling for the expense classifier.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/freelancer-expense-classifier/internal/domain/transaction"
	"github.com/freelancer-expense-classifier/internal/platform/persistence"
)

const transactionColumns = `id, user_id, date, description, amount, currency, merchant, category,
		is_business_expense, confidence_score, manually_overridden, llm_reasoning, created_at, updated_at`

// txBeginner opens database transactions; satisfied by *pgxpool.Pool and pgxmock pools
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TransactionRepository implements the transaction.Repository interface for PostgreSQL
type TransactionRepository struct {
	querier  persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	beginner txBeginner
	logger   *slog.Logger
}

// NewTransactionRepository creates a new PostgreSQL transaction repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) transaction.Repository {
	return &TransactionRepository{
		querier:  db.Pool(),
		beginner: db.Pool(),
		logger:   logger,
	}
}

// Create stores a single transaction
func (r *TransactionRepository) Create(ctx context.Context, txn *transaction.Transaction) error {
	return r.insert(ctx, r.querier, txn)
}

// BulkCreate writes a classification batch's rows in one database transaction.
// Either every row lands or none do, so a failed batch never leaves
// partially-classified duplicates behind.
func (r *TransactionRepository) BulkCreate(ctx context.Context, txns []*transaction.Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	tx, err := r.beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, txn := range txns {
		if err := r.insert(ctx, tx, txn); err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				r.logger.Error("Failed to rollback bulk create", "error", rbErr)
			}
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit bulk create: %w", err)
	}

	return nil
}

func (r *TransactionRepository) insert(ctx context.Context, q persistence.Querier, txn *transaction.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := q.Exec(ctx, query,
		txn.ID,
		txn.UserID,
		txn.Date,
		txn.Description,
		txn.Amount,
		txn.Currency,
		txn.Merchant,
		txn.Category,
		txn.IsBusinessExpense,
		txn.ConfidenceScore,
		txn.ManuallyOverridden,
		txn.LLMReasoning,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create transaction", "id", txn.ID.String(), "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a transaction owned by the given user
func (r *TransactionRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = $1 AND user_id = $2
	`

	txn, err := r.scanRow(r.querier.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{ID: id}
		}
		r.logger.Error("Failed to get transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return txn, nil
}

// Update applies a partial edit and marks the row manually overridden.
// Returns the updated transaction or ErrTransactionNotFound.
func (r *TransactionRepository) Update(ctx context.Context, userID, id uuid.UUID, fields transaction.UpdateFields) (*transaction.Transaction, error) {
	set := []string{"manually_overridden = TRUE", "updated_at = NOW()"}
	args := []interface{}{id, userID}
	idx := 3

	appendSet := func(column string, value interface{}) {
		set = append(set, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}

	if fields.Date != nil {
		appendSet("date", *fields.Date)
	}
	if fields.Description != nil {
		appendSet("description", *fields.Description)
	}
	if fields.Amount != nil {
		appendSet("amount", *fields.Amount)
	}
	if fields.Category != nil {
		appendSet("category", *fields.Category)
	}
	if fields.IsBusinessExpense != nil {
		appendSet("is_business_expense", *fields.IsBusinessExpense)
		// A manual classification carries full confidence
		appendSet("confidence_score", 1.0)
		appendSet("llm_reasoning", "Manually overridden by user")
	}

	query := `
		UPDATE transactions
		SET ` + strings.Join(set, ", ") + `
		WHERE id = $1 AND user_id = $2
		RETURNING ` + transactionColumns + `
	`

	txn, err := r.scanRow(r.querier.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{ID: id}
		}
		r.logger.Error("Failed to update transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	return txn, nil
}

// UpdateClassification rewrites the model-produced fields of a row that has
// not been manually overridden. Overridden rows are left untouched.
func (r *TransactionRepository) UpdateClassification(ctx context.Context, userID, id uuid.UUID, txn *transaction.Transaction) error {
	query := `
		UPDATE transactions
		SET is_business_expense = $3, confidence_score = $4, llm_reasoning = $5, category = $6, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND manually_overridden = FALSE
	`

	result, err := r.querier.Exec(ctx, query,
		id,
		userID,
		txn.IsBusinessExpense,
		txn.ConfidenceScore,
		txn.LLMReasoning,
		txn.Category,
	)
	if err != nil {
		r.logger.Error("Failed to update classification", "id", id.String(), "error", err)
		return fmt.Errorf("failed to update classification: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either missing or pinned by a manual override; callers treat both as a no-op
		return transaction.ErrTransactionNotFound{ID: id}
	}

	return nil
}

// Delete removes a single transaction owned by the given user
func (r *TransactionRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	query := `DELETE FROM transactions WHERE id = $1 AND user_id = $2`

	result, err := r.querier.Exec(ctx, query, id, userID)
	if err != nil {
		r.logger.Error("Failed to delete transaction", "id", id.String(), "error", err)
		return fmt.Errorf("failed to delete transaction: %w", err)
	}

	if result.RowsAffected() == 0 {
		return transaction.ErrTransactionNotFound{ID: id}
	}

	return nil
}

// DeleteAllByUser removes every transaction owned by the user and reports the count
func (r *TransactionRepository) DeleteAllByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `DELETE FROM transactions WHERE user_id = $1`

	result, err := r.querier.Exec(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to delete transactions", "user_id", userID.String(), "error", err)
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}

	return result.RowsAffected(), nil
}

// ListByUser retrieves a filtered, paginated page of the user's transactions,
// newest first
func (r *TransactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, filter transaction.ListFilter, limit, offset int) ([]*transaction.Transaction, error) {
	where, args := buildFilter(userID, filter)
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE %s
		ORDER BY date DESC, created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list transactions", "user_id", userID.String(), "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*transaction.Transaction
	for rows.Next() {
		txn, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}

	return txns, nil
}

// CountByUser counts the user's transactions matching the filter
func (r *TransactionRepository) CountByUser(ctx context.Context, userID uuid.UUID, filter transaction.ListFilter) (int64, error) {
	where, args := buildFilter(userID, filter)

	query := `SELECT COUNT(*) FROM transactions WHERE ` + where

	var count int64
	if err := r.querier.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		r.logger.Error("Failed to count transactions", "user_id", userID.String(), "error", err)
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return count, nil
}

// Statistics aggregates classification counts and average confidence for a user
func (r *TransactionRepository) Statistics(ctx context.Context, userID uuid.UUID) (*transaction.Statistics, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_business_expense),
			COUNT(*) FILTER (WHERE NOT is_business_expense),
			COUNT(*) FILTER (WHERE manually_overridden),
			COALESCE(AVG(confidence_score), 0)
		FROM transactions
		WHERE user_id = $1
	`

	var stats transaction.Statistics
	err := r.querier.QueryRow(ctx, query, userID).Scan(
		&stats.TotalTransactions,
		&stats.BusinessTransactions,
		&stats.PersonalTransactions,
		&stats.OverriddenTransactions,
		&stats.AverageConfidence,
	)
	if err != nil {
		r.logger.Error("Failed to aggregate statistics", "user_id", userID.String(), "error", err)
		return nil, fmt.Errorf("failed to aggregate statistics: %w", err)
	}

	if stats.TotalTransactions > 0 {
		stats.BusinessPercentage = float64(stats.BusinessTransactions) / float64(stats.TotalTransactions) * 100
	}

	return &stats, nil
}

// MonthlyBreakdown aggregates per-month totals for a user, oldest first
func (r *TransactionRepository) MonthlyBreakdown(ctx context.Context, userID uuid.UUID) ([]transaction.MonthlyTotal, error) {
	query := `
		SELECT
			TO_CHAR(date, 'YYYY-MM'),
			COUNT(*),
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(amount) FILTER (WHERE is_business_expense), 0)
		FROM transactions
		WHERE user_id = $1
		GROUP BY 1
		ORDER BY 1
	`

	rows, err := r.querier.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to aggregate monthly breakdown", "user_id", userID.String(), "error", err)
		return nil, fmt.Errorf("failed to aggregate monthly breakdown: %w", err)
	}
	defer rows.Close()

	var breakdown []transaction.MonthlyTotal
	for rows.Next() {
		var m transaction.MonthlyTotal
		if err := rows.Scan(&m.Month, &m.Count, &m.TotalAmount, &m.BusinessAmount); err != nil {
			return nil, fmt.Errorf("failed to scan monthly total: %w", err)
		}
		breakdown = append(breakdown, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read monthly breakdown: %w", err)
	}

	return breakdown, nil
}

// buildFilter renders the user scope plus optional filters as a WHERE clause
func buildFilter(userID uuid.UUID, filter transaction.ListFilter) (string, []interface{}) {
	clauses := []string{"user_id = $1"}
	args := []interface{}{userID}
	idx := 2

	if filter.IsBusiness != nil {
		clauses = append(clauses, fmt.Sprintf("is_business_expense = $%d", idx))
		args = append(args, *filter.IsBusiness)
		idx++
	}
	if filter.Category != "" {
		clauses = append(clauses, fmt.Sprintf("category = $%d", idx))
		args = append(args, filter.Category)
		idx++
	}
	if filter.StartDate != nil {
		clauses = append(clauses, fmt.Sprintf("date >= $%d", idx))
		args = append(args, *filter.StartDate)
		idx++
	}
	if filter.EndDate != nil {
		clauses = append(clauses, fmt.Sprintf("date <= $%d", idx))
		args = append(args, *filter.EndDate)
		idx++
	}

	return strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *TransactionRepository) scanRow(row rowScanner) (*transaction.Transaction, error) {
	var txn transaction.Transaction
	var amount decimal.Decimal
	err := row.Scan(
		&txn.ID,
		&txn.UserID,
		&txn.Date,
		&txn.Description,
		&amount,
		&txn.Currency,
		&txn.Merchant,
		&txn.Category,
		&txn.IsBusinessExpense,
		&txn.ConfidenceScore,
		&txn.ManuallyOverridden,
		&txn.LLMReasoning,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	txn.Amount = amount
	return &txn, nil
}
