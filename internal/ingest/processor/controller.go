// Package processor orchestrates one statement upload end to end: parse,
// classify in batches, persist each batch atomically, and report a summary.
// It also runs reclassification passes over already stored transactions.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/freelancer-expense-classifier/internal/domain/transaction"
	"github.com/freelancer-expense-classifier/internal/domain/upload"
	"github.com/freelancer-expense-classifier/internal/ingest"
	"github.com/freelancer-expense-classifier/internal/ingest/fileparser"
	"github.com/freelancer-expense-classifier/internal/ingest/llm"
	"github.com/freelancer-expense-classifier/internal/ingest/prompt"
	"github.com/freelancer-expense-classifier/internal/ingest/respparse"
)

// Summary is the outcome of one processing run, returned to the uploader.
// Transactions holds at most the configured sample of created rows; the full
// set is available through the listing endpoints.
type Summary struct {
	BatchID        uuid.UUID                  `json:"batch_id"`
	Status         upload.Status              `json:"status"`
	ProcessedCount int                        `json:"processed_count"`
	SkippedCount   int                        `json:"skipped_count,omitempty"`
	Errors         []string                   `json:"errors"`
	Transactions   []*transaction.Transaction `json:"transactions,omitempty"`
}

// Page size used when walking a user's stored transactions for reclassification
const reclassifyPageSize = 200

// Controller drives the processing pipeline. One instance serves all users;
// per-run state lives in upload.Batch values tracked by the registry.
type Controller struct {
	csvParser fileparser.Parser
	pdfParser fileparser.Parser
	gateway   llm.Gateway
	txRepo    transaction.Repository
	records   upload.RecordRepository
	registry  *upload.Registry
	batchSize int
	sampleCap int
	logger    *slog.Logger
}

// NewController wires the pipeline stages together
func NewController(
	logger *slog.Logger,
	csvParser fileparser.Parser,
	pdfParser fileparser.Parser,
	gateway llm.Gateway,
	txRepo transaction.Repository,
	records upload.RecordRepository,
	registry *upload.Registry,
	batchSize int,
	sampleCap int,
) *Controller {
	return &Controller{
		csvParser: csvParser,
		pdfParser: pdfParser,
		gateway:   gateway,
		txRepo:    txRepo,
		records:   records,
		registry:  registry,
		batchSize: batchSize,
		sampleCap: sampleCap,
		logger:    logger,
	}
}

// Process runs one uploaded statement through parse, classify and persist.
// Row-level and batch-level problems are collected into the summary; the
// returned error is non-nil only for failures that sank the whole upload.
func (c *Controller) Process(ctx context.Context, userID uuid.UUID, filename string, data []byte, uctx prompt.Context) (*Summary, error) {
	batch := upload.NewBatch(userID, filename)
	c.registry.Register(batch)
	defer c.registry.Deregister(batch)

	logger := c.logger.With("batch_id", batch.ID.String(), "user_id", userID.String())
	logger.Info("Processing statement upload", "filename", filename, "size_bytes", len(data))

	batch.Status = upload.StatusParsing
	result, err := c.parse(ctx, filename, data)
	if err != nil {
		batch.RecordError(err.Error())
		batch.Finish(upload.StatusFailed)
		c.saveRecord(ctx, logger, batch)
		return c.summarize(batch, nil), err
	}
	for _, msg := range result.ErrorStrings() {
		batch.RecordError(msg)
	}

	batch.Status = upload.StatusClassifying
	sample, err := c.classifyAndStore(ctx, logger, batch, userID, result.Rows, uctx)
	if err != nil {
		batch.Finish(upload.StatusFailed)
		c.saveRecord(ctx, logger, batch)
		return c.summarize(batch, sample), err
	}

	if batch.Status != upload.StatusCancelled {
		batch.Finish(upload.StatusCompleted)
	}
	c.saveRecord(ctx, logger, batch)

	logger.Info("Statement upload finished",
		"status", batch.Status,
		"processed_count", batch.ProcessedCount,
		"errors", len(batch.Errors))
	return c.summarize(batch, sample), nil
}

// classifyAndStore walks the candidate rows in model-sized batches. Each
// batch is persisted in its own database transaction as soon as its verdicts
// arrive, so a cancelled or crashed run keeps everything processed so far.
func (c *Controller) classifyAndStore(ctx context.Context, logger *slog.Logger, batch *upload.Batch, userID uuid.UUID, rows []ingest.Row, uctx prompt.Context) ([]*transaction.Transaction, error) {
	var sample []*transaction.Transaction

	for start := 0; start < len(rows); start += c.batchSize {
		if batch.Cancelled() {
			logger.Info("Upload cancelled", "processed_count", batch.ProcessedCount)
			batch.Finish(upload.StatusCancelled)
			return sample, nil
		}

		end := start + c.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		verdicts := c.classifyChunk(ctx, logger, batch, chunk, uctx)

		txns := make([]*transaction.Transaction, 0, len(chunk))
		for i, row := range chunk {
			txn, err := transaction.New(userID, row.Date, row.Description, row.Amount, row.Currency)
			if err != nil {
				batch.RecordError(fmt.Sprintf("row %d: %v", start+i+1, err))
				continue
			}
			txn.Merchant = row.Merchant
			txn.Category = row.Category

			v := verdicts[i]
			if v.Fallback {
				txn.ClassifyFallback(v.Reasoning)
			} else {
				txn.Classify(v.IsBusinessExpense, v.ConfidenceScore, v.Reasoning, v.Category)
			}
			txns = append(txns, txn)
		}
		if len(txns) == 0 {
			continue
		}

		if err := c.txRepo.BulkCreate(ctx, txns); err != nil {
			logger.Error("Failed to persist classification batch", "error", err)
			batch.RecordError(fmt.Sprintf("failed to persist batch: %v", err))
			return sample, fmt.Errorf("failed to persist batch: %w", err)
		}

		batch.ProcessedCount += len(txns)
		for _, txn := range txns {
			if len(sample) < c.sampleCap {
				sample = append(sample, txn)
			}
		}
	}
	return sample, nil
}

// classifyChunk asks the model for verdicts on one batch of rows. A failed
// call demotes the whole chunk to fallback verdicts; the upload continues.
func (c *Controller) classifyChunk(ctx context.Context, logger *slog.Logger, batch *upload.Batch, chunk []ingest.Row, uctx prompt.Context) []respparse.Classification {
	raw, err := c.gateway.Complete(ctx, prompt.ClassificationSystem, prompt.Classification(chunk, uctx))
	if err != nil {
		logger.Warn("Classification call failed", "rows", len(chunk), "error", err)
		batch.RecordError(fmt.Sprintf("classification failed for %d rows: %v", len(chunk), err))
		return respparse.FallbackAll(len(chunk), fmt.Sprintf("Classification unavailable: %v", err))
	}
	return respparse.ParseClassifications(raw, len(chunk))
}

// Reclassify re-runs classification over the user's stored transactions.
// Manually overridden rows are skipped; a row deleted or overridden while
// the run is in flight is skipped silently. Cancellation works the same way
// as for uploads.
func (c *Controller) Reclassify(ctx context.Context, userID uuid.UUID, uctx prompt.Context) (*Summary, error) {
	batch := upload.NewBatch(userID, "(reclassification)")
	c.registry.Register(batch)
	defer c.registry.Deregister(batch)

	logger := c.logger.With("batch_id", batch.ID.String(), "user_id", userID.String())
	logger.Info("Starting reclassification run")

	candidates, skipped, err := c.loadReclassifyCandidates(ctx, userID)
	if err != nil {
		batch.RecordError(err.Error())
		batch.Finish(upload.StatusFailed)
		c.saveRecord(ctx, logger, batch)
		return c.summarize(batch, nil), err
	}

	batch.Status = upload.StatusClassifying
	for start := 0; start < len(candidates); start += c.batchSize {
		if batch.Cancelled() {
			logger.Info("Reclassification cancelled", "processed_count", batch.ProcessedCount)
			batch.Finish(upload.StatusCancelled)
			break
		}

		end := start + c.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		chunk := candidates[start:end]

		rows := make([]ingest.Row, len(chunk))
		for i, txn := range chunk {
			rows[i] = ingest.Row{
				Date:        txn.Date,
				Description: txn.Description,
				Amount:      txn.Amount,
				Currency:    txn.Currency,
				Merchant:    txn.Merchant,
				Category:    txn.Category,
			}
		}

		verdicts := c.classifyChunk(ctx, logger, batch, rows, uctx)
		for i, txn := range chunk {
			v := verdicts[i]
			if v.Fallback {
				// A lost model call must not degrade an existing classification
				continue
			}
			txn.Classify(v.IsBusinessExpense, v.ConfidenceScore, v.Reasoning, v.Category)
			if err := c.txRepo.UpdateClassification(ctx, userID, txn.ID, txn); err != nil {
				if errors.Is(err, transaction.ErrTransactionNotFound{}) {
					continue
				}
				logger.Error("Failed to store reclassification", "transaction_id", txn.ID.String(), "error", err)
				batch.RecordError(fmt.Sprintf("failed to store reclassification: %v", err))
				batch.Finish(upload.StatusFailed)
				c.saveRecord(ctx, logger, batch)
				return c.summarize(batch, nil), fmt.Errorf("failed to store reclassification: %w", err)
			}
			batch.ProcessedCount++
		}
	}

	if batch.Status != upload.StatusCancelled {
		batch.Finish(upload.StatusCompleted)
	}
	c.saveRecord(ctx, logger, batch)

	logger.Info("Reclassification finished",
		"status", batch.Status,
		"processed_count", batch.ProcessedCount,
		"skipped_overridden", skipped)

	summary := c.summarize(batch, nil)
	summary.SkippedCount = skipped
	return summary, nil
}

// loadReclassifyCandidates pages through the user's transactions and keeps
// the ones still eligible for automated classification
func (c *Controller) loadReclassifyCandidates(ctx context.Context, userID uuid.UUID) ([]*transaction.Transaction, int, error) {
	var candidates []*transaction.Transaction
	skipped := 0

	for offset := 0; ; offset += reclassifyPageSize {
		page, err := c.txRepo.ListByUser(ctx, userID, transaction.ListFilter{}, reclassifyPageSize, offset)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load transactions: %w", err)
		}
		for _, txn := range page {
			if txn.ManuallyOverridden {
				skipped++
				continue
			}
			candidates = append(candidates, txn)
		}
		if len(page) < reclassifyPageSize {
			break
		}
	}
	return candidates, skipped, nil
}

func (c *Controller) parse(ctx context.Context, filename string, data []byte) (*ingest.ParseResult, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return c.csvParser.Parse(ctx, data)
	case ".pdf":
		return c.pdfParser.Parse(ctx, data)
	default:
		return nil, ingest.ValidationError{Reason: "unsupported file type"}
	}
}

func (c *Controller) summarize(batch *upload.Batch, sample []*transaction.Transaction) *Summary {
	errs := batch.Errors
	if errs == nil {
		// A clean run reports an empty error list, not a missing field
		errs = []string{}
	}
	return &Summary{
		BatchID:        batch.ID,
		Status:         batch.Status,
		ProcessedCount: batch.ProcessedCount,
		Errors:         errs,
		Transactions:   sample,
	}
}

// saveRecord persists the audit summary; a failure is logged, not fatal
func (c *Controller) saveRecord(ctx context.Context, logger *slog.Logger, batch *upload.Batch) {
	if err := c.records.Save(ctx, upload.RecordOf(batch)); err != nil {
		logger.Error("Failed to save upload record", "error", err)
	}
}
