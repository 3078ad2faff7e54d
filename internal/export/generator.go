// Package export renders a user's classified transactions into downloadable
// CSV files and a JSON summary report.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/freelancer-expense-classifier/internal/domain/transaction"
)

// Page size used when walking a user's transactions for an export
const exportPageSize = 500

// Business purchases above this amount need a receipt kept for tax filing
var receiptThreshold = decimal.NewFromInt(75)

// transactionRow is the full export format, one line per transaction
type transactionRow struct {
	Date               string `csv:"Date"`
	Description        string `csv:"Description"`
	Amount             string `csv:"Amount"`
	Currency           string `csv:"Currency"`
	Merchant           string `csv:"Merchant"`
	Category           string `csv:"Category"`
	BusinessExpense    string `csv:"Business_Expense"`
	ConfidenceScore    string `csv:"Confidence_Score"`
	ManuallyOverridden string `csv:"Manually_Overridden"`
	LLMReasoning       string `csv:"LLM_Reasoning"`
}

// businessExpenseRow is the business-only export format
type businessExpenseRow struct {
	Date            string `csv:"Date"`
	Description     string `csv:"Description"`
	Amount          string `csv:"Amount"`
	Currency        string `csv:"Currency"`
	Merchant        string `csv:"Merchant"`
	Category        string `csv:"Category"`
	ConfidenceScore string `csv:"Confidence_Score"`
	LLMReasoning    string `csv:"LLM_Reasoning"`
}

// taxReportRow is the accountant-friendly format: US-style dates and a
// receipt-needed flag
type taxReportRow struct {
	Date            string `csv:"Date"`
	Description     string `csv:"Description"`
	Amount          string `csv:"Amount"`
	Category        string `csv:"Category"`
	Merchant        string `csv:"Merchant"`
	ReceiptRequired string `csv:"Receipt_Required"`
}

// SummaryReport aggregates a date range of transactions for the dashboard
type SummaryReport struct {
	TotalTransactions  int                        `json:"total_transactions"`
	TotalAmount        decimal.Decimal            `json:"total_amount"`
	BusinessAmount     decimal.Decimal            `json:"business_amount"`
	PersonalAmount     decimal.Decimal            `json:"personal_amount"`
	BusinessPercentage float64                    `json:"business_percentage"`
	CategoryBreakdown  map[string]decimal.Decimal `json:"category_breakdown"`
	DateRange          DateRange                  `json:"date_range"`
	MonthlyBreakdown   []transaction.MonthlyTotal `json:"monthly_breakdown"`
	GeneratedAt        time.Time                  `json:"generated_at"`
}

// DateRange echoes the requested bounds back in the report
type DateRange struct {
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// Generator builds exports straight from the transaction store
type Generator struct {
	txRepo transaction.Repository
	logger *slog.Logger
}

// NewGenerator creates an export generator
func NewGenerator(logger *slog.Logger, txRepo transaction.Repository) *Generator {
	return &Generator{
		txRepo: txRepo,
		logger: logger,
	}
}

// TransactionsCSV exports every transaction in the optional date range
func (g *Generator) TransactionsCSV(ctx context.Context, userID uuid.UUID, start, end *time.Time) (string, error) {
	txns, err := g.collect(ctx, userID, transaction.ListFilter{StartDate: start, EndDate: end})
	if err != nil {
		return "", err
	}

	rows := make([]transactionRow, len(txns))
	for i, t := range txns {
		rows[i] = transactionRow{
			Date:               t.Date.Format("2006-01-02"),
			Description:        t.Description,
			Amount:             t.Amount.StringFixed(2),
			Currency:           t.Currency,
			Merchant:           t.Merchant,
			Category:           t.Category,
			BusinessExpense:    yesNo(t.IsBusinessExpense),
			ConfidenceScore:    formatConfidence(t.ConfidenceScore),
			ManuallyOverridden: yesNo(t.ManuallyOverridden),
			LLMReasoning:       t.LLMReasoning,
		}
	}
	return g.marshal(rows)
}

// BusinessExpensesCSV exports business expenses only
func (g *Generator) BusinessExpensesCSV(ctx context.Context, userID uuid.UUID, start, end *time.Time) (string, error) {
	business := true
	txns, err := g.collect(ctx, userID, transaction.ListFilter{IsBusiness: &business, StartDate: start, EndDate: end})
	if err != nil {
		return "", err
	}

	rows := make([]businessExpenseRow, len(txns))
	for i, t := range txns {
		rows[i] = businessExpenseRow{
			Date:            t.Date.Format("2006-01-02"),
			Description:     t.Description,
			Amount:          t.Amount.StringFixed(2),
			Currency:        t.Currency,
			Merchant:        t.Merchant,
			Category:        t.Category,
			ConfidenceScore: formatConfidence(t.ConfidenceScore),
			LLMReasoning:    t.LLMReasoning,
		}
	}
	return g.marshal(rows)
}

// TaxReportCSV exports the year's business expenses in the format tax
// preparers expect: MM/DD/YYYY dates, oldest first, receipt flag set on
// amounts above the threshold
func (g *Generator) TaxReportCSV(ctx context.Context, userID uuid.UUID, taxYear int) (string, error) {
	business := true
	start := time.Date(taxYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(taxYear, time.December, 31, 0, 0, 0, 0, time.UTC)
	txns, err := g.collect(ctx, userID, transaction.ListFilter{IsBusiness: &business, StartDate: &start, EndDate: &end})
	if err != nil {
		return "", err
	}

	// collect returns newest first; the tax report reads oldest first
	rows := make([]taxReportRow, len(txns))
	for i := range txns {
		t := txns[len(txns)-1-i]
		category := t.Category
		if category == "" {
			category = "Uncategorized"
		}
		rows[i] = taxReportRow{
			Date:            t.Date.Format("01/02/2006"),
			Description:     t.Description,
			Amount:          t.Amount.StringFixed(2),
			Category:        category,
			Merchant:        t.Merchant,
			ReceiptRequired: yesNo(t.Amount.Abs().GreaterThan(receiptThreshold)),
		}
	}
	return g.marshal(rows)
}

// SummaryReport aggregates the date range into dashboard totals
func (g *Generator) SummaryReport(ctx context.Context, userID uuid.UUID, start, end *time.Time) (*SummaryReport, error) {
	txns, err := g.collect(ctx, userID, transaction.ListFilter{StartDate: start, EndDate: end})
	if err != nil {
		return nil, err
	}

	report := &SummaryReport{
		TotalTransactions: len(txns),
		TotalAmount:       decimal.Zero,
		BusinessAmount:    decimal.Zero,
		PersonalAmount:    decimal.Zero,
		CategoryBreakdown: make(map[string]decimal.Decimal),
		DateRange:         DateRange{StartDate: start, EndDate: end},
		GeneratedAt:       time.Now().UTC(),
	}

	for _, t := range txns {
		report.TotalAmount = report.TotalAmount.Add(t.Amount)
		if t.IsBusinessExpense {
			report.BusinessAmount = report.BusinessAmount.Add(t.Amount)
			if t.Category != "" {
				report.CategoryBreakdown[t.Category] = report.CategoryBreakdown[t.Category].Add(t.Amount)
			}
		} else {
			report.PersonalAmount = report.PersonalAmount.Add(t.Amount)
		}
	}

	if !report.TotalAmount.IsZero() {
		pct, _ := report.BusinessAmount.Div(report.TotalAmount).Mul(decimal.NewFromInt(100)).Round(2).Float64()
		report.BusinessPercentage = pct
	}

	monthly, err := g.txRepo.MonthlyBreakdown(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to build monthly breakdown: %w", err)
	}
	report.MonthlyBreakdown = monthly

	return report, nil
}

// collect pages through the store until the filter is exhausted
func (g *Generator) collect(ctx context.Context, userID uuid.UUID, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	var all []*transaction.Transaction
	for offset := 0; ; offset += exportPageSize {
		page, err := g.txRepo.ListByUser(ctx, userID, filter, exportPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to load transactions for export: %w", err)
		}
		all = append(all, page...)
		if len(page) < exportPageSize {
			return all, nil
		}
	}
}

func (g *Generator) marshal(rows interface{}) (string, error) {
	out, err := gocsv.MarshalString(rows)
	if err != nil {
		g.logger.Error("Failed to marshal export CSV", "error", err)
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}
	return out, nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func formatConfidence(score *float64) string {
	if score == nil {
		return "0.00"
	}
	return decimal.NewFromFloat(*score).StringFixed(2)
}
