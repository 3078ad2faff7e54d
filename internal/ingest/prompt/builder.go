// Package prompt builds the model prompts used by the ingestion pipeline.
// Builders are deterministic: the same rows and context always produce the
// same prompt text, so classification runs are reproducible and cacheable.
package prompt

import (
	"fmt"
	"strings"

	"github.com/freelancer-expense-classifier/internal/ingest"
)

// Context carries the profile details used to enrich classification prompts.
// Zero values simply omit the enrichment.
type Context struct {
	BusinessType string
	BusinessName string
}

// ClassificationSystem is the system prompt for transaction classification
const ClassificationSystem = `You are a financial assistant helping freelancers classify their bank transactions.
Your task is to determine for each transaction whether it is a business expense or a personal expense.

Consider these factors:
- Business context (freelancing, consulting, etc.)
- Transaction description and merchant
- Amount and frequency
- Tax implications

Respond with ONLY a JSON array, one object per transaction, in the same order as the input.
Each object must contain exactly these keys:
- is_business_expense: true or false
- confidence_score: number between 0.0 and 1.0
- reasoning: brief explanation
- category: suggested expense category (e.g. "office_supplies", "travel", "meals")

Do not include any text outside the JSON array.`

// ExtractionSystem is the system prompt for pulling transaction rows out of
// statement text extracted from a PDF
const ExtractionSystem = `You are a financial assistant extracting transactions from the text of a bank statement.
Identify every transaction line in the text.

Respond with ONLY a JSON array, one object per transaction, in statement order.
Each object must contain exactly these keys:
- date: transaction date in YYYY-MM-DD format
- description: the transaction description as printed
- amount: number, negative for money leaving the account
- currency: 3-letter currency code
- merchant: merchant name if identifiable, otherwise ""

Do not include any text outside the JSON array. If the text contains no transactions, respond with [].`

// Classification renders the user prompt for one batch of candidate rows.
// Rows are numbered from 1 within the batch; the model answers by position.
func Classification(rows []ingest.Row, uctx Context) string {
	var b strings.Builder

	b.WriteString("Please classify these transactions")
	if uctx.BusinessType != "" || uctx.BusinessName != "" {
		b.WriteString(" for a freelancer")
		if uctx.BusinessType != "" {
			fmt.Fprintf(&b, " working in %s", uctx.BusinessType)
		}
		if uctx.BusinessName != "" {
			fmt.Fprintf(&b, " operating as %q", uctx.BusinessName)
		}
	}
	b.WriteString(":\n")

	for i, row := range rows {
		merchant := row.Merchant
		if merchant == "" {
			merchant = "Unknown"
		}
		fmt.Fprintf(&b, "\n%d. Date: %s | Description: %s | Amount: %s %s | Merchant: %s",
			i+1,
			row.Date.Format("2006-01-02"),
			row.Description,
			row.Amount.StringFixed(2),
			row.Currency,
			merchant)
	}

	fmt.Fprintf(&b, "\n\nRespond with a JSON array of exactly %d objects.", len(rows))
	return b.String()
}

// Extraction renders the user prompt for one chunk of PDF statement text
func Extraction(text, defaultCurrency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract all transactions from this bank statement text. Use %s as the currency when none is printed.\n\n", defaultCurrency)
	b.WriteString("--- STATEMENT TEXT ---\n")
	b.WriteString(text)
	b.WriteString("\n--- END STATEMENT TEXT ---")
	return b.String()
}
