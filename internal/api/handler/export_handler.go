package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/freelancer-expense-classifier/internal/api/middleware"
	"github.com/freelancer-expense-classifier/internal/api/service"
)

// ExportHandler handles HTTP requests for downloadable reports
type ExportHandler struct {
	exportService service.ExportService
	logger        *slog.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(logger *slog.Logger, exportService service.ExportService) *ExportHandler {
	return &ExportHandler{
		exportService: exportService,
		logger:        logger,
	}
}

// TransactionsCSV downloads all transactions in the optional date range
func (h *ExportHandler) TransactionsCSV(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		RespondUnauthorized(c, "")
		return
	}

	start, end, ok := h.dateRange(c)
	if !ok {
		return
	}

	csvData, err := h.exportService.TransactionsCSV(c.Request.Context(), u.ID, start, end)
	if err != nil {
		h.logger.Error("Failed to export transactions", "user_id", u.ID.String(), "error", err)
		RespondInternalError(c)
		return
	}
	serveCSV(c, "transactions.csv", csvData)
}

// BusinessExpensesCSV downloads business expenses only
func (h *ExportHandler) BusinessExpensesCSV(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		RespondUnauthorized(c, "")
		return
	}

	start, end, ok := h.dateRange(c)
	if !ok {
		return
	}

	csvData, err := h.exportService.BusinessExpensesCSV(c.Request.Context(), u.ID, start, end)
	if err != nil {
		h.logger.Error("Failed to export business expenses", "user_id", u.ID.String(), "error", err)
		RespondInternalError(c)
		return
	}
	serveCSV(c, "business_expenses.csv", csvData)
}

// TaxReportCSV downloads the year's business expenses in tax-preparer format
func (h *ExportHandler) TaxReportCSV(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		RespondUnauthorized(c, "")
		return
	}

	var params TaxReportParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "tax_year is required and must be a valid year")
		return
	}

	csvData, err := h.exportService.TaxReportCSV(c.Request.Context(), u.ID, params.TaxYear)
	if err != nil {
		h.logger.Error("Failed to export tax report", "user_id", u.ID.String(), "error", err)
		RespondInternalError(c)
		return
	}
	serveCSV(c, fmt.Sprintf("tax_report_%d.csv", params.TaxYear), csvData)
}

// SummaryReport returns the JSON aggregate for the optional date range
func (h *ExportHandler) SummaryReport(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		RespondUnauthorized(c, "")
		return
	}

	start, end, ok := h.dateRange(c)
	if !ok {
		return
	}

	report, err := h.exportService.SummaryReport(c.Request.Context(), u.ID, start, end)
	if err != nil {
		h.logger.Error("Failed to build summary report", "user_id", u.ID.String(), "error", err)
		RespondInternalError(c)
		return
	}
	RespondOK(c, report)
}

// dateRange binds and validates the optional start/end query parameters,
// writing the error response itself when they are malformed
func (h *ExportHandler) dateRange(c *gin.Context) (*time.Time, *time.Time, bool) {
	var params DateRangeParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return nil, nil, false
	}

	start, err := parseDateParam(params.StartDate)
	if err != nil {
		RespondBadRequest(c, "start_date must be YYYY-MM-DD")
		return nil, nil, false
	}
	end, err := parseDateParam(params.EndDate)
	if err != nil {
		RespondBadRequest(c, "end_date must be YYYY-MM-DD")
		return nil, nil, false
	}
	return start, end, true
}

func serveCSV(c *gin.Context, filename, csvData string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(csvData))
}
