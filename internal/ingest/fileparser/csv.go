package fileparser

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/freelancer-expense-classifier/internal/ingest"
)

// Date layouts accepted in statement exports, tried in order
var csvDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
	"02.01.2006",
	"Jan 2, 2006",
}

// csvStatementRow mirrors one data row of a statement export. Only date,
// description and amount are required; the rest are bank-dependent extras.
type csvStatementRow struct {
	Date        string `csv:"date"`
	Description string `csv:"description"`
	Amount      string `csv:"amount"`
	Currency    string `csv:"currency"`
	Merchant    string `csv:"merchant"`
	Category    string `csv:"category"`
}

// CSVParser parses CSV statement exports. Rows with an unparseable date or
// amount are skipped and reported individually; the parse as a whole fails
// only when the header is unusable or no row survives.
type CSVParser struct {
	defaultCurrency string
	logger          *slog.Logger
}

// NewCSVParser creates a CSV statement parser. Rows without a currency
// column fall back to defaultCurrency.
func NewCSVParser(logger *slog.Logger, defaultCurrency string) *CSVParser {
	return &CSVParser{
		defaultCurrency: defaultCurrency,
		logger:          logger,
	}
}

// Parse reads the whole file and returns the usable rows plus per-row errors
func (p *CSVParser) Parse(_ context.Context, data []byte) (*ingest.ParseResult, error) {
	data = normalizeHeader(data)
	if err := checkHeader(data); err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var raw []*csvStatementRow
	if err := gocsv.UnmarshalCSV(reader, &raw); err != nil {
		return nil, ingest.ValidationError{Reason: fmt.Sprintf("malformed CSV: %v", err)}
	}
	if len(raw) == 0 {
		return nil, ingest.ValidationError{Reason: "no data rows"}
	}

	result := &ingest.ParseResult{}
	for i, rec := range raw {
		rowNum := i + 1 // header row excluded

		if strings.TrimSpace(rec.Description) == "" {
			result.RowErrors = append(result.RowErrors, ingest.RowError{Row: rowNum, Reason: "missing description"})
			continue
		}

		date, dateErr := parseStatementDate(rec.Date)
		amount, amountErr := parseStatementAmount(rec.Amount)
		if dateErr != nil || amountErr != nil {
			result.RowErrors = append(result.RowErrors, ingest.RowError{Row: rowNum, Reason: "invalid date/amount"})
			continue
		}

		currency := strings.ToUpper(strings.TrimSpace(rec.Currency))
		if currency == "" {
			currency = p.defaultCurrency
		}

		result.Rows = append(result.Rows, ingest.Row{
			Date:        date,
			Description: strings.TrimSpace(rec.Description),
			Amount:      amount,
			Currency:    currency,
			Merchant:    strings.TrimSpace(rec.Merchant),
			Category:    strings.TrimSpace(rec.Category),
		})
	}

	if len(result.Rows) == 0 {
		return nil, ingest.ValidationError{Reason: "no usable rows"}
	}

	p.logger.Debug("Parsed CSV statement",
		"rows", len(result.Rows),
		"row_errors", len(result.RowErrors))
	return result, nil
}

// normalizeHeader lowercases the header row and strips a UTF-8 BOM so tag
// matching works across the mixed-case headers banks export
func normalizeHeader(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 {
		return bytes.ToLower(data)
	}
	return append(bytes.ToLower(data[:nl]), data[nl:]...)
}

// checkHeader verifies the required columns are present before handing the
// file to the row decoder, so a wrong-format file fails with a clear reason
func checkHeader(data []byte) error {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	header, err := reader.Read()
	if err != nil {
		return ingest.ValidationError{Reason: "missing or malformed header row"}
	}

	seen := make(map[string]bool, len(header))
	for _, col := range header {
		seen[strings.ToLower(strings.TrimSpace(col))] = true
	}
	var missing []string
	for _, required := range []string{"date", "description", "amount"} {
		if !seen[required] {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return ingest.ValidationError{Reason: "missing required columns: " + strings.Join(missing, ", ")}
	}
	return nil
}

func parseStatementDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseStatementAmount accepts the usual bank-export decorations: currency
// symbols, thousands separators, and accounting-style parentheses negatives
func parseStatementAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	cleaner := strings.NewReplacer("$", "", "€", "", "£", "", ",", "", "'", "", " ", "")
	s = cleaner.Replace(s)

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unrecognized amount: %w", err)
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}
