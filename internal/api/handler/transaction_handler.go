package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/freelancer-expense-classifier/internal/api/middleware"
	"github.com/freelancer-expense-classifier/internal/api/service"
	"github.com/freelancer-expense-classifier/internal/config"
	"github.com/freelancer-expense-classifier/internal/domain/transaction"
	"github.com/freelancer-expense-classifier/internal/domain/upload"
	"github.com/freelancer-expense-classifier/internal/ingest"
)

// TransactionHandler handles HTTP requests for statement processing and
// transaction operations
type TransactionHandler struct {
	transactionService service.TransactionService
	uploadCfg          config.UploadConfig
	logger             *slog.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(logger *slog.Logger, transactionService service.TransactionService, uploadCfg config.UploadConfig) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		uploadCfg:          uploadCfg,
		logger:             logger,
	}
}

// Upload accepts a statement file, runs it through the classification
// pipeline synchronously, and returns the processing summary. A run
// cancelled by the client reports status 499.
func (h *TransactionHandler) Upload(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		RespondUnauthorized(c, "")
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondBadRequest(c, "Missing file upload field 'file'")
		return
	}
	defer file.Close()

	if !h.allowedExtension(header.Filename) {
		RespondBadRequest(c, "Unsupported file type; allowed: "+strings.Join(h.uploadCfg.AllowedExtensions, ", "))
		return
	}
	if header.Size > h.uploadCfg.MaxFileSize {
		RespondPayloadTooLarge(c, "File exceeds the maximum upload size")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.uploadCfg.MaxFileSize+1))
	if err != nil {
		h.logger.Error("Failed to read upload", "error", err)
		RespondInternalError(c)
		return
	}
	if int64(len(data)) > h.uploadCfg.MaxFileSize {
		RespondPayloadTooLarge(c, "File exceeds the maximum upload size")
		return
	}

	summary, err := h.transactionService.ProcessUpload(c.Request.Context(), u, header.Filename, data)
	if err != nil {
		var validation ingest.ValidationError
		if errors.As(err, &validation) {
			RespondBadRequest(c, validation.Error())
			return
		}
		h.logger.Error("Upload processing failed", "user_id", u.ID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	if summary.Status == upload.StatusCancelled {
		RespondWithData(c, StatusClientClosedRequest, summary)
		return
	}
	RespondOK(c, summary)
}

// Cancel flags the caller's in-flight processing run for cancellation
func (h *TransactionHandler) Cancel(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		RespondUnauthorized(c, "")
		return
	}

	if !h.transactionService.CancelProcessing(u.ID) {
		RespondNotFound(c, "No processing run in progress")
		return
	}
	RespondOK(c, gin.H{"status": "cancellation_requested"})
}

// Reclassify re-runs classification over the caller's stored transactions
func (h *TransactionHandler) Reclassify(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		RespondUnauthorized(c, "")
		return
	}

	summary, err := h.transactionService.Reclassify(c.Request.Context(), u)
	if err != nil {
		h.logger.Error("Reclassification failed", "user_id", u.ID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	if summary.Status == upload.StatusCancelled {
		RespondWithData(c, StatusClientClosedRequest, summary)
		return
	}
	RespondOK(c, summary)
}

// List retrieves a filtered, paginated view of the caller's transactions
func (h *TransactionHandler) List(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		RespondUnauthorized(c, "")
		return
	}

	var params ListTransactionsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	filter, err := buildListFilter(params)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	txns, total, err := h.transactionService.List(c.Request.Context(), u.ID, filter, params.Page, params.PerPage)
	if err != nil {
		h.logger.Error("Failed to list transactions", "user_id", u.ID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondWithPaginatedData(c, http.StatusOK, txns, params.Page, params.PerPage, int(total))
}

// Get retrieves one transaction, returns 404 if not found
func (h *TransactionHandler) Get(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		RespondUnauthorized(c, "")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid transaction ID")
		return
	}

	txn, err := h.transactionService.Get(c.Request.Context(), u.ID, id)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound{}) {
			RespondNotFound(c, "Transaction not found")
			return
		}
		h.logger.Error("Failed to get transaction", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}
	RespondOK(c, txn)
}

// Update applies a manual edit; the transaction is marked overridden and
// excluded from future automated reclassification
func (h *TransactionHandler) Update(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		RespondUnauthorized(c, "")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid transaction ID")
		return
	}

	var req UpdateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	fields, err := buildUpdateFields(req)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	txn, err := h.transactionService.Update(c.Request.Context(), u.ID, id, fields)
	if err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound{}) {
			RespondNotFound(c, "Transaction not found")
			return
		}
		h.logger.Error("Failed to update transaction", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}
	RespondOK(c, txn)
}

// Delete removes one transaction
func (h *TransactionHandler) Delete(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		RespondUnauthorized(c, "")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid transaction ID")
		return
	}

	if err := h.transactionService.Delete(c.Request.Context(), u.ID, id); err != nil {
		if errors.Is(err, transaction.ErrTransactionNotFound{}) {
			RespondNotFound(c, "Transaction not found")
			return
		}
		h.logger.Error("Failed to delete transaction", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}
	RespondNoContent(c)
}

// DeleteAll clears every transaction the caller owns
func (h *TransactionHandler) DeleteAll(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		RespondUnauthorized(c, "")
		return
	}

	count, err := h.transactionService.DeleteAll(c.Request.Context(), u.ID)
	if err != nil {
		h.logger.Error("Failed to clear transactions", "user_id", u.ID.String(), "error", err)
		RespondInternalError(c)
		return
	}
	RespondOK(c, gin.H{"deleted_count": count})
}

// Statistics reports classification counts plus the monthly breakdown
func (h *TransactionHandler) Statistics(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		RespondUnauthorized(c, "")
		return
	}

	stats, monthly, err := h.transactionService.Statistics(c.Request.Context(), u.ID)
	if err != nil {
		h.logger.Error("Failed to compute statistics", "user_id", u.ID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, gin.H{
		"statistics":        stats,
		"monthly_breakdown": monthly,
	})
}

// UploadHistory lists past upload summaries, newest first
func (h *TransactionHandler) UploadHistory(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		RespondUnauthorized(c, "")
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	records, err := h.transactionService.UploadHistory(c.Request.Context(), u.ID, pagination.Page, pagination.PerPage)
	if err != nil {
		h.logger.Error("Failed to list upload history", "user_id", u.ID.String(), "error", err)
		RespondInternalError(c)
		return
	}
	RespondOK(c, records)
}

func (h *TransactionHandler) allowedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range h.uploadCfg.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func buildListFilter(params ListTransactionsParams) (transaction.ListFilter, error) {
	filter := transaction.ListFilter{
		IsBusiness: params.IsBusiness,
		Category:   params.Category,
	}

	start, err := parseDateParam(params.StartDate)
	if err != nil {
		return filter, errors.New("start_date must be YYYY-MM-DD")
	}
	end, err := parseDateParam(params.EndDate)
	if err != nil {
		return filter, errors.New("end_date must be YYYY-MM-DD")
	}
	filter.StartDate = start
	filter.EndDate = end
	return filter, nil
}

func buildUpdateFields(req UpdateTransactionRequest) (transaction.UpdateFields, error) {
	var fields transaction.UpdateFields

	if req.Date != nil {
		date, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			return fields, errors.New("date must be YYYY-MM-DD")
		}
		fields.Date = &date
	}
	if req.Description != nil {
		if strings.TrimSpace(*req.Description) == "" {
			return fields, errors.New("description cannot be empty")
		}
		fields.Description = req.Description
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			return fields, errors.New("amount must be a decimal number")
		}
		fields.Amount = &amount
	}
	fields.Category = req.Category
	fields.IsBusinessExpense = req.IsBusinessExpense

	if fields.Date == nil && fields.Description == nil && fields.Amount == nil &&
		fields.Category == nil && fields.IsBusinessExpense == nil {
		return fields, errors.New("no fields to update")
	}
	return fields, nil
}
