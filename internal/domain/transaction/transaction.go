package transaction

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrEmptyDescription      = errors.New("description cannot be empty")
	ErrInvalidCurrencyFormat = errors.New("currency must be a 3-letter code")
	ErrInvalidConfidence     = errors.New("confidence score must be within [0,1]")
)

// Transaction is a classified bank-statement row owned by a single user.
// Amount keeps the source sign convention: negative = outflow, positive = inflow.
type Transaction struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             uuid.UUID       `json:"user_id"`
	Date               time.Time       `json:"date"`
	Description        string          `json:"description"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Merchant           string          `json:"merchant,omitempty"`
	Category           string          `json:"category,omitempty"`
	IsBusinessExpense  bool            `json:"is_business_expense"`
	ConfidenceScore    *float64        `json:"confidence_score,omitempty"` // nil when a fallback classification was used
	ManuallyOverridden bool            `json:"manually_overridden"`
	LLMReasoning       string          `json:"llm_reasoning,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// New creates a transaction with a fresh ID and creation timestamps.
// The classification fields start at their zero values; the processing
// pipeline or a manual edit fills them in.
func New(userID uuid.UUID, date time.Time, description string, amount decimal.Decimal, currency string) (*Transaction, error) {
	if description == "" {
		return nil, ErrEmptyDescription
	}
	if len(currency) != 3 {
		return nil, ErrInvalidCurrencyFormat
	}

	now := time.Now().UTC()
	return &Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Date:        date,
		Description: description,
		Amount:      amount,
		Currency:    currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Classify applies a model-produced classification. Confidence is clamped
// to [0,1] rather than rejected; the model is an untrusted source.
func (t *Transaction) Classify(isBusiness bool, confidence float64, reasoning, category string) {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	t.IsBusinessExpense = isBusiness
	t.ConfidenceScore = &confidence
	t.LLMReasoning = reasoning
	if category != "" {
		t.Category = category
	}
	t.UpdatedAt = time.Now().UTC()
}

// ClassifyFallback marks the transaction with the low-confidence default used
// when model output could not be parsed or matched.
func (t *Transaction) ClassifyFallback(reason string) {
	zero := 0.0
	t.IsBusinessExpense = false
	t.ConfidenceScore = &zero
	t.LLMReasoning = reason
	t.UpdatedAt = time.Now().UTC()
}

// Override pins the classification against future automated re-runs.
func (t *Transaction) Override(isBusiness bool) {
	full := 1.0
	t.IsBusinessExpense = isBusiness
	t.ConfidenceScore = &full
	t.ManuallyOverridden = true
	t.LLMReasoning = "Manually overridden by user"
	t.UpdatedAt = time.Now().UTC()
}
