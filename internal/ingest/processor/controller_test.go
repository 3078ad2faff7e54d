package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freelancer-expense-classifier/internal/domain/transaction"
	"github.com/freelancer-expense-classifier/internal/domain/upload"
	"github.com/freelancer-expense-classifier/internal/ingest"
	"github.com/freelancer-expense-classifier/internal/ingest/prompt"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeGateway scripts model responses per call and lets tests hook each call,
// e.g. to request cancellation while a batch is in flight
type fakeGateway struct {
	mu      sync.Mutex
	calls   int
	respond func(call int, userPrompt string) (string, error)
	onCall  func(call int)
}

func (g *fakeGateway) Complete(_ context.Context, _, userPrompt string) (string, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.mu.Unlock()

	if g.onCall != nil {
		g.onCall(call)
	}
	return g.respond(call, userPrompt)
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// classificationResponse builds a valid model response marking every row a
// business expense with the given confidence
func classificationResponse(n int, confidence float64) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"is_business_expense": true, "confidence_score": %.2f, "reasoning": "test", "category": "software"}`, confidence)
	}
	return "[" + strings.Join(items, ",") + "]"
}

// memTxRepo is an in-memory transaction.Repository for pipeline tests
type memTxRepo struct {
	mu      sync.Mutex
	txns    []*transaction.Transaction
	bulkErr error
}

func (m *memTxRepo) Create(_ context.Context, txn *transaction.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txns = append(m.txns, txn)
	return nil
}

func (m *memTxRepo) BulkCreate(_ context.Context, txns []*transaction.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bulkErr != nil {
		return m.bulkErr
	}
	m.txns = append(m.txns, txns...)
	return nil
}

func (m *memTxRepo) GetByID(_ context.Context, userID, id uuid.UUID) (*transaction.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, txn := range m.txns {
		if txn.ID == id && txn.UserID == userID {
			return txn, nil
		}
	}
	return nil, transaction.ErrTransactionNotFound{ID: id}
}

func (m *memTxRepo) Update(_ context.Context, userID, id uuid.UUID, _ transaction.UpdateFields) (*transaction.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (m *memTxRepo) UpdateClassification(_ context.Context, userID, id uuid.UUID, txn *transaction.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.txns {
		if existing.ID == id && existing.UserID == userID && !existing.ManuallyOverridden {
			m.txns[i] = txn
			return nil
		}
	}
	return transaction.ErrTransactionNotFound{ID: id}
}

func (m *memTxRepo) Delete(_ context.Context, _, id uuid.UUID) error {
	return errors.New("not implemented")
}

func (m *memTxRepo) DeleteAllByUser(_ context.Context, _ uuid.UUID) (int64, error) {
	return 0, errors.New("not implemented")
}

func (m *memTxRepo) ListByUser(_ context.Context, userID uuid.UUID, _ transaction.ListFilter, limit, offset int) ([]*transaction.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var owned []*transaction.Transaction
	for _, txn := range m.txns {
		if txn.UserID == userID {
			owned = append(owned, txn)
		}
	}
	if offset >= len(owned) {
		return nil, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return owned[offset:end], nil
}

func (m *memTxRepo) CountByUser(_ context.Context, userID uuid.UUID, _ transaction.ListFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, txn := range m.txns {
		if txn.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *memTxRepo) Statistics(_ context.Context, _ uuid.UUID) (*transaction.Statistics, error) {
	return &transaction.Statistics{}, nil
}

func (m *memTxRepo) MonthlyBreakdown(_ context.Context, _ uuid.UUID) ([]transaction.MonthlyTotal, error) {
	return nil, nil
}

func (m *memTxRepo) stored() []*transaction.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*transaction.Transaction(nil), m.txns...)
}

// memRecordRepo collects saved upload audit records
type memRecordRepo struct {
	mu    sync.Mutex
	saved []*upload.Record
}

func (m *memRecordRepo) Save(_ context.Context, record *upload.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, record)
	return nil
}

func (m *memRecordRepo) ListByUser(_ context.Context, _ uuid.UUID, _, _ int) ([]*upload.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*upload.Record(nil), m.saved...), nil
}

func (m *memRecordRepo) last() *upload.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil
	}
	return m.saved[len(m.saved)-1]
}

type pipeline struct {
	controller *Controller
	gateway    *fakeGateway
	txRepo     *memTxRepo
	records    *memRecordRepo
	registry   *upload.Registry
}

func newPipeline(t *testing.T, gateway *fakeGateway, batchSize int) *pipeline {
	t.Helper()
	logger := newTestLogger()
	txRepo := &memTxRepo{}
	records := &memRecordRepo{}
	registry := upload.NewRegistry()

	// The PDF path needs the gateway too; these tests drive CSV uploads
	csvParser := newCSVTestParser(logger)
	controller := NewController(logger, csvParser, csvParser, gateway, txRepo, records, registry, batchSize, 100)

	return &pipeline{
		controller: controller,
		gateway:    gateway,
		txRepo:     txRepo,
		records:    records,
		registry:   registry,
	}
}

// newCSVTestParser builds rows from a tiny CSV-ish fixture format used by
// these tests: one "desc,amount" pair per line, with "BAD" marking a row error
type testParser struct {
	logger *slog.Logger
}

func newCSVTestParser(logger *slog.Logger) *testParser {
	return &testParser{logger: logger}
}

func (p *testParser) Parse(_ context.Context, data []byte) (*ingest.ParseResult, error) {
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	result := &ingest.ParseResult{}
	for i, line := range lines {
		if line == "" {
			continue
		}
		if line == "BAD" {
			result.RowErrors = append(result.RowErrors, ingest.RowError{Row: i + 1, Reason: "invalid date/amount"})
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		amount, err := decimal.NewFromString(parts[1])
		if err != nil {
			return nil, err
		}
		result.Rows = append(result.Rows, ingest.Row{
			Date:        time.Date(2024, 3, i+1, 0, 0, 0, 0, time.UTC),
			Description: parts[0],
			Amount:      amount,
			Currency:    "USD",
		})
	}
	if len(result.Rows) == 0 {
		return nil, ingest.ValidationError{Reason: "no usable rows"}
	}
	return result, nil
}

func TestController_Process(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("ClassifiesAndPersistsInBatches", func(t *testing.T) {
		gateway := &fakeGateway{respond: func(call int, userPrompt string) (string, error) {
			// Batch size 2 over 3 rows: first call sees 2 rows, second 1
			if call == 1 {
				return classificationResponse(2, 0.9), nil
			}
			return classificationResponse(1, 0.8), nil
		}}
		p := newPipeline(t, gateway, 2)

		summary, err := p.controller.Process(ctx, userID, "statement.csv", []byte("RENT,-1200\nADOBE,-54.99\nCOFFEE,-4.50"), prompt.Context{})
		require.NoError(t, err)

		assert.Equal(t, upload.StatusCompleted, summary.Status)
		assert.Equal(t, 3, summary.ProcessedCount)
		assert.Empty(t, summary.Errors)
		assert.Len(t, summary.Transactions, 3)
		assert.Equal(t, 2, gateway.callCount())

		stored := p.txRepo.stored()
		require.Len(t, stored, 3)
		for _, txn := range stored {
			assert.Equal(t, userID, txn.UserID)
			assert.True(t, txn.IsBusinessExpense)
			require.NotNil(t, txn.ConfidenceScore)
			assert.Equal(t, "software", txn.Category)
		}

		record := p.records.last()
		require.NotNil(t, record)
		assert.Equal(t, upload.StatusCompleted, record.Status)
		assert.Equal(t, 3, record.ProcessedCount)
		assert.Equal(t, "statement.csv", record.Filename)
	})

	t.Run("CleanRunReportsAnEmptyErrorList", func(t *testing.T) {
		gateway := &fakeGateway{respond: func(_ int, _ string) (string, error) {
			return classificationResponse(1, 0.9), nil
		}}
		p := newPipeline(t, gateway, 10)

		summary, err := p.controller.Process(ctx, userID, "statement.csv", []byte("RENT,-1200"), prompt.Context{})
		require.NoError(t, err)

		require.NotNil(t, summary.Errors)
		body, err := json.Marshal(summary)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"errors":[]`)
	})

	t.Run("RowErrorsAreReportedAndGoodRowsSurvive", func(t *testing.T) {
		gateway := &fakeGateway{respond: func(_ int, _ string) (string, error) {
			return classificationResponse(2, 0.9), nil
		}}
		p := newPipeline(t, gateway, 10)

		summary, err := p.controller.Process(ctx, userID, "statement.csv", []byte("RENT,-1200\nADOBE,-54.99\nBAD"), prompt.Context{})
		require.NoError(t, err)

		assert.Equal(t, 2, summary.ProcessedCount)
		require.Len(t, summary.Errors, 1)
		assert.Equal(t, "row 3: invalid date/amount", summary.Errors[0])
	})

	t.Run("CancellationStopsAtTheBatchBoundary", func(t *testing.T) {
		gateway := &fakeGateway{respond: func(_ int, _ string) (string, error) {
			return classificationResponse(1, 0.9), nil
		}}
		p := newPipeline(t, gateway, 1)
		// Cancel while the first model call is in flight; the batch finishes
		// and the next boundary stops the run
		gateway.onCall = func(call int) {
			if call == 1 {
				assert.True(t, p.registry.Cancel(userID))
			}
		}

		summary, err := p.controller.Process(ctx, userID, "statement.csv", []byte("A,-1\nB,-2\nC,-3"), prompt.Context{})
		require.NoError(t, err)

		assert.Equal(t, upload.StatusCancelled, summary.Status)
		assert.Equal(t, 1, summary.ProcessedCount)
		assert.Equal(t, 1, gateway.callCount())
		assert.Len(t, p.txRepo.stored(), 1)

		record := p.records.last()
		require.NotNil(t, record)
		assert.Equal(t, upload.StatusCancelled, record.Status)
	})

	t.Run("GatewayFailureFallsBackAndContinues", func(t *testing.T) {
		gateway := &fakeGateway{respond: func(call int, _ string) (string, error) {
			if call == 1 {
				return "", errors.New("model unavailable")
			}
			return classificationResponse(1, 0.9), nil
		}}
		p := newPipeline(t, gateway, 1)

		summary, err := p.controller.Process(ctx, userID, "statement.csv", []byte("A,-1\nB,-2"), prompt.Context{})
		require.NoError(t, err)

		assert.Equal(t, upload.StatusCompleted, summary.Status)
		assert.Equal(t, 2, summary.ProcessedCount)
		require.Len(t, summary.Errors, 1)
		assert.Contains(t, summary.Errors[0], "classification failed")

		stored := p.txRepo.stored()
		require.Len(t, stored, 2)
		// First row got the fallback verdict, second a real one
		assert.False(t, stored[0].IsBusinessExpense)
		require.NotNil(t, stored[0].ConfidenceScore)
		assert.Zero(t, *stored[0].ConfidenceScore)
		assert.True(t, stored[1].IsBusinessExpense)
	})

	t.Run("UnparseableFileFailsTheUpload", func(t *testing.T) {
		gateway := &fakeGateway{respond: func(_ int, _ string) (string, error) {
			t.Fatal("gateway must not be called for an unparseable file")
			return "", nil
		}}
		p := newPipeline(t, gateway, 10)

		_, err := p.controller.Process(ctx, userID, "statement.csv", []byte(""), prompt.Context{})
		require.Error(t, err)
		var validation ingest.ValidationError
		assert.ErrorAs(t, err, &validation)

		record := p.records.last()
		require.NotNil(t, record)
		assert.Equal(t, upload.StatusFailed, record.Status)
	})

	t.Run("UnsupportedExtensionFailsTheUpload", func(t *testing.T) {
		gateway := &fakeGateway{respond: func(_ int, _ string) (string, error) { return "", nil }}
		p := newPipeline(t, gateway, 10)

		_, err := p.controller.Process(ctx, userID, "statement.xlsx", []byte("A,-1"), prompt.Context{})
		var validation ingest.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Contains(t, err.Error(), "unsupported file type")
	})

	t.Run("PersistenceFailureSinksTheUpload", func(t *testing.T) {
		gateway := &fakeGateway{respond: func(_ int, _ string) (string, error) {
			return classificationResponse(1, 0.9), nil
		}}
		p := newPipeline(t, gateway, 1)
		p.txRepo.bulkErr = errors.New("connection refused")

		summary, err := p.controller.Process(ctx, userID, "statement.csv", []byte("A,-1\nB,-2"), prompt.Context{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to persist batch")
		assert.Equal(t, upload.StatusFailed, summary.Status)

		record := p.records.last()
		require.NotNil(t, record)
		assert.Equal(t, upload.StatusFailed, record.Status)
	})

	t.Run("DeregistersWhenDone", func(t *testing.T) {
		gateway := &fakeGateway{respond: func(_ int, _ string) (string, error) {
			return classificationResponse(1, 0.9), nil
		}}
		p := newPipeline(t, gateway, 10)

		_, err := p.controller.Process(ctx, userID, "statement.csv", []byte("A,-1"), prompt.Context{})
		require.NoError(t, err)
		assert.False(t, p.registry.Cancel(userID), "no active run should remain registered")
	})
}

func TestController_Reclassify(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	seed := func(t *testing.T, repo *memTxRepo, overridden bool) *transaction.Transaction {
		t.Helper()
		txn, err := transaction.New(userID, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "SEED", decimal.RequireFromString("-10"), "USD")
		require.NoError(t, err)
		txn.ClassifyFallback("seeded")
		if overridden {
			txn.Override(true)
		}
		require.NoError(t, repo.Create(ctx, txn))
		return txn
	}

	t.Run("UpdatesEligibleRowsAndSkipsOverridden", func(t *testing.T) {
		gateway := &fakeGateway{respond: func(_ int, _ string) (string, error) {
			return classificationResponse(2, 0.95), nil
		}}
		p := newPipeline(t, gateway, 10)

		seed(t, p.txRepo, false)
		seed(t, p.txRepo, false)
		pinned := seed(t, p.txRepo, true)

		summary, err := p.controller.Reclassify(ctx, userID, prompt.Context{})
		require.NoError(t, err)

		assert.Equal(t, upload.StatusCompleted, summary.Status)
		assert.Equal(t, 2, summary.ProcessedCount)
		assert.Equal(t, 1, summary.SkippedCount)

		stored, err := p.txRepo.GetByID(ctx, userID, pinned.ID)
		require.NoError(t, err)
		assert.True(t, stored.ManuallyOverridden)
		assert.Equal(t, "Manually overridden by user", stored.LLMReasoning)
	})

	t.Run("FallbackVerdictsLeaveRowsUntouched", func(t *testing.T) {
		gateway := &fakeGateway{respond: func(_ int, _ string) (string, error) {
			return "", errors.New("model unavailable")
		}}
		p := newPipeline(t, gateway, 10)

		txn := seed(t, p.txRepo, false)

		summary, err := p.controller.Reclassify(ctx, userID, prompt.Context{})
		require.NoError(t, err)

		assert.Equal(t, upload.StatusCompleted, summary.Status)
		assert.Zero(t, summary.ProcessedCount)

		stored, err := p.txRepo.GetByID(ctx, userID, txn.ID)
		require.NoError(t, err)
		assert.Equal(t, "seeded", stored.LLMReasoning)
	})
}
