// Package respparse turns raw model output into classifications and
// extracted statement rows. Model output is untrusted: this package never
// errors or panics on malformed text, it degrades to fallback values.
package respparse

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/freelancer-expense-classifier/internal/ingest"
)

// Classification is the parsed verdict for one input row. When Fallback is
// set the model output could not be used and the safe default applies:
// personal expense, confidence 0.
type Classification struct {
	IsBusinessExpense bool
	ConfidenceScore   float64
	Reasoning         string
	Category          string
	Fallback          bool
}

// fallbackFor builds the default verdict applied to unmatched or
// unparseable rows
func fallbackFor(reason string) Classification {
	return Classification{
		IsBusinessExpense: false,
		ConfidenceScore:   0,
		Reasoning:         reason,
		Fallback:          true,
	}
}

// FallbackAll returns want fallback verdicts sharing one reason, used when
// an entire model call was lost
func FallbackAll(want int, reason string) []Classification {
	out := make([]Classification, want)
	for i := range out {
		out[i] = fallbackFor(reason)
	}
	return out
}

type classificationJSON struct {
	IsBusinessExpense bool    `json:"is_business_expense"`
	ConfidenceScore   float64 `json:"confidence_score"`
	Reasoning         string  `json:"reasoning"`
	Category          string  `json:"category"`
}

// ParseClassifications aligns the model's JSON array with the input batch by
// position and always returns exactly want verdicts. A malformed response
// falls back for every row; a short response falls back for the tail; extra
// elements are discarded.
func ParseClassifications(raw string, want int) []Classification {
	out := make([]Classification, want)

	payload, ok := ExtractJSONArray(raw)
	if !ok {
		for i := range out {
			out[i] = fallbackFor("Failed to parse model response: no JSON array found")
		}
		return out
	}

	var parsed []classificationJSON
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		for i := range out {
			out[i] = fallbackFor(fmt.Sprintf("Failed to parse model response: %v", err))
		}
		return out
	}

	for i := range out {
		if i >= len(parsed) {
			out[i] = fallbackFor("No matching model output for this row")
			continue
		}
		out[i] = Classification{
			IsBusinessExpense: parsed[i].IsBusinessExpense,
			ConfidenceScore:   clamp01(parsed[i].ConfidenceScore),
			Reasoning:         parsed[i].Reasoning,
			Category:          parsed[i].Category,
		}
	}
	return out
}

type extractedRowJSON struct {
	Date        string      `json:"date"`
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
	Currency    string      `json:"currency"`
	Merchant    string      `json:"merchant"`
}

// ParseExtractedRows parses the model's statement-extraction output into
// candidate rows. Unusable elements are reported as error strings, not
// failures; a response with no JSON array yields zero rows and one error.
func ParseExtractedRows(raw, defaultCurrency string) ([]ingest.Row, []string) {
	payload, ok := ExtractJSONArray(raw)
	if !ok {
		return nil, []string{"PDF extraction: no JSON array in model response"}
	}

	var parsed []extractedRowJSON
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, []string{fmt.Sprintf("PDF extraction: malformed model response: %v", err)}
	}

	var rows []ingest.Row
	var errs []string
	for i, rec := range parsed {
		date, err := time.Parse("2006-01-02", strings.TrimSpace(rec.Date))
		if err != nil {
			errs = append(errs, fmt.Sprintf("PDF extraction: element %d: invalid date %q", i+1, rec.Date))
			continue
		}
		if strings.TrimSpace(rec.Description) == "" {
			errs = append(errs, fmt.Sprintf("PDF extraction: element %d: missing description", i+1))
			continue
		}
		amount, err := decimal.NewFromString(rec.Amount.String())
		if err != nil {
			errs = append(errs, fmt.Sprintf("PDF extraction: element %d: invalid amount %q", i+1, rec.Amount))
			continue
		}

		currency := strings.ToUpper(strings.TrimSpace(rec.Currency))
		if len(currency) != 3 {
			currency = defaultCurrency
		}

		rows = append(rows, ingest.Row{
			Date:        date,
			Description: strings.TrimSpace(rec.Description),
			Amount:      amount,
			Currency:    currency,
			Merchant:    strings.TrimSpace(rec.Merchant),
		})
	}
	return rows, errs
}

// ExtractJSONArray pulls the JSON array out of model output that may be
// wrapped in code fences or surrounded by prose. Returns false when no
// complete array is present.
func ExtractJSONArray(raw string) (string, bool) {
	s := stripCodeFences(raw)

	// Fast path: the whole (trimmed) response is the array
	if strings.HasPrefix(s, "[") && json.Valid([]byte(s)) {
		return s, true
	}

	start := strings.IndexByte(s, '[')
	if start < 0 {
		return "", false
	}

	// Scan for the matching close bracket, skipping string contents
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, true
				}
				return "", false
			}
		}
	}
	return "", false
}

// stripCodeFences removes a surrounding markdown code fence, with or without
// a language tag, and trims whitespace
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop a language tag like "json" on the fence line
		first := strings.TrimSpace(s[:nl])
		if len(first) <= 10 && !strings.ContainsAny(first, "[]{}") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
