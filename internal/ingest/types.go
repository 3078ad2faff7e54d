// Package ingest defines the candidate-record types shared by the
// statement-ingestion pipeline: file parsing, prompt building, model calls,
// response parsing, and the processing controller that orchestrates them.
package ingest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one candidate transaction extracted from an uploaded statement,
// before classification. The amount keeps the source sign convention:
// negative = outflow, positive = inflow.
type Row struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Currency    string
	Merchant    string
	Category    string
}

// RowError reports a single unusable statement row. The row number is
// 1-based over the data rows (the header does not count).
type RowError struct {
	Row    int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// ParseResult carries the usable rows plus the failures from one file.
// Row errors name a specific data row; batch errors cover failures with no
// single row, like a lost PDF extraction chunk. Neither is fatal; a file
// fails outright only when nothing is usable.
type ParseResult struct {
	Rows        []Row
	RowErrors   []RowError
	BatchErrors []string
}

// ErrorStrings renders all parse errors for an upload summary
func (r *ParseResult) ErrorStrings() []string {
	if len(r.RowErrors) == 0 && len(r.BatchErrors) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.RowErrors)+len(r.BatchErrors))
	for _, e := range r.RowErrors {
		out = append(out, e.Error())
	}
	return append(out, r.BatchErrors...)
}

// ValidationError is a whole-file failure: unsupported content, missing
// headers, or no usable rows at all.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return "invalid statement file: " + e.Reason
}
