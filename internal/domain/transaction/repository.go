package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListFilter narrows ListByUser results. Zero values mean "no constraint".
type ListFilter struct {
	IsBusiness *bool
	Category   string
	StartDate  *time.Time
	EndDate    *time.Time
}

// UpdateFields carries a partial update. Nil fields are left untouched.
// Any non-nil field marks the transaction as manually overridden.
type UpdateFields struct {
	Date              *time.Time
	Description       *string
	Amount            *decimal.Decimal
	Category          *string
	IsBusinessExpense *bool
}

// Statistics aggregates per-user classification counts
type Statistics struct {
	TotalTransactions      int64   `json:"total_transactions"`
	BusinessTransactions   int64   `json:"business_transactions"`
	PersonalTransactions   int64   `json:"personal_transactions"`
	OverriddenTransactions int64   `json:"overridden_transactions"`
	AverageConfidence      float64 `json:"average_confidence"`
	BusinessPercentage     float64 `json:"business_percentage"`
}

// MonthlyTotal is one month's aggregate in a breakdown, keyed "YYYY-MM"
type MonthlyTotal struct {
	Month          string          `json:"month"`
	Count          int64           `json:"count"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	BusinessAmount decimal.Decimal `json:"business_amount"`
}

// Repository manages transaction persistence. Every query is scoped to a user
type Repository interface {
	Create(ctx context.Context, txn *Transaction) error
	// BulkCreate writes all rows in one database transaction: a classification
	// batch is persisted all-or-nothing
	BulkCreate(ctx context.Context, txns []*Transaction) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*Transaction, error)
	Update(ctx context.Context, userID, id uuid.UUID, fields UpdateFields) (*Transaction, error)
	// UpdateClassification rewrites the model-produced fields only; used by
	// reclassification runs and never touches manually overridden rows
	UpdateClassification(ctx context.Context, userID, id uuid.UUID, txn *Transaction) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	// DeleteAllByUser removes every transaction owned by the user and
	// reports how many rows were removed
	DeleteAllByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter, limit, offset int) ([]*Transaction, error)
	CountByUser(ctx context.Context, userID uuid.UUID, filter ListFilter) (int64, error)
	Statistics(ctx context.Context, userID uuid.UUID) (*Statistics, error)
	MonthlyBreakdown(ctx context.Context, userID uuid.UUID) ([]MonthlyTotal, error)
}

// ErrTransactionNotFound indicates a missing or foreign-owned transaction
type ErrTransactionNotFound struct {
	ID uuid.UUID
}

func (e ErrTransactionNotFound) Error() string {
	return "transaction not found: " + e.ID.String()
}

// Is implements the errors.Is interface for ErrTransactionNotFound
func (e ErrTransactionNotFound) Is(target error) bool {
	t, ok := target.(ErrTransactionNotFound)
	if !ok {
		return false
	}
	// An empty target ID matches any ErrTransactionNotFound
	if t.ID == uuid.Nil {
		return true
	}
	return e.ID == t.ID
}
