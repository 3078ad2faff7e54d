// Package fileparser turns uploaded statement files into candidate rows.
// CSV statements are parsed directly; PDF statements go through text
// extraction and a model-backed extraction pass.
package fileparser

import (
	"context"

	"github.com/freelancer-expense-classifier/internal/ingest"
)

// Parser extracts candidate transaction rows from one uploaded file.
// Unusable rows are reported in the result, not as an error; a non-nil
// error means the whole file was unusable.
type Parser interface {
	Parse(ctx context.Context, data []byte) (*ingest.ParseResult, error)
}
