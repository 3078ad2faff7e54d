package fileparser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/freelancer-expense-classifier/internal/ingest"
	"github.com/freelancer-expense-classifier/internal/ingest/llm"
	"github.com/freelancer-expense-classifier/internal/ingest/prompt"
	"github.com/freelancer-expense-classifier/internal/ingest/respparse"
)

// TextExtractor pulls the plain text out of a PDF statement
type TextExtractor interface {
	ExtractText(data []byte) (string, error)
}

// Maximum characters of statement text sent to the model per extraction call
const pdfChunkSize = 8000

// PDFParser handles PDF statements: text extraction via pdftotext, then a
// model-backed extraction pass per text chunk.
type PDFParser struct {
	extractor       TextExtractor
	gateway         llm.Gateway
	defaultCurrency string
	logger          *slog.Logger
}

// NewPDFParser creates a PDF statement parser
func NewPDFParser(logger *slog.Logger, extractor TextExtractor, gateway llm.Gateway, defaultCurrency string) *PDFParser {
	return &PDFParser{
		extractor:       extractor,
		gateway:         gateway,
		defaultCurrency: defaultCurrency,
		logger:          logger,
	}
}

// Parse extracts the statement text and asks the model to identify the
// transactions in it, chunk by chunk. A failed model call loses that chunk
// only; it is reported in the result errors.
func (p *PDFParser) Parse(ctx context.Context, data []byte) (*ingest.ParseResult, error) {
	text, err := p.extractor.ExtractText(data)
	if err != nil {
		return nil, ingest.ValidationError{Reason: fmt.Sprintf("PDF text extraction failed: %v", err)}
	}
	if strings.TrimSpace(text) == "" {
		return nil, ingest.ValidationError{Reason: "PDF contains no extractable text"}
	}

	result := &ingest.ParseResult{}
	var batchErrors []string

	chunks := chunkText(text, pdfChunkSize)
	for i, chunk := range chunks {
		raw, err := p.gateway.Complete(ctx, prompt.ExtractionSystem, prompt.Extraction(chunk, p.defaultCurrency))
		if err != nil {
			p.logger.Warn("PDF extraction call failed",
				"chunk", i+1,
				"chunks", len(chunks),
				"error", err)
			batchErrors = append(batchErrors, fmt.Sprintf("PDF extraction: chunk %d/%d: %v", i+1, len(chunks), err))
			continue
		}

		rows, errs := respparse.ParseExtractedRows(raw, p.defaultCurrency)
		result.Rows = append(result.Rows, rows...)
		batchErrors = append(batchErrors, errs...)
	}

	if len(result.Rows) == 0 {
		return nil, ingest.ValidationError{Reason: "no transactions found in PDF"}
	}
	result.BatchErrors = batchErrors

	p.logger.Debug("Parsed PDF statement",
		"chunks", len(chunks),
		"rows", len(result.Rows),
		"errors", len(batchErrors))
	return result, nil
}

// chunkText splits extracted statement text into model-sized pieces on line
// boundaries so a transaction line is never cut in half
func chunkText(text string, size int) []string {
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if current.Len() > 0 && current.Len()+len(line)+1 > size {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// PdftotextExtractor shells out to the pdftotext tool. The PDF is written to
// a temp file because pdftotext does not read from stdin on all platforms.
type PdftotextExtractor struct{}

// ExtractText runs pdftotext in layout mode and returns the text output
func (PdftotextExtractor) ExtractText(data []byte) (string, error) {
	dir := os.TempDir()
	base := filepath.Join(dir, "statement-"+uuid.NewString())
	pdfPath := base + ".pdf"
	txtPath := base + ".txt"
	defer os.Remove(pdfPath)
	defer os.Remove(txtPath)

	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return "", fmt.Errorf("error writing temp PDF: %w", err)
	}

	if err := exec.Command("pdftotext", "-layout", pdfPath, txtPath).Run(); err != nil {
		return "", fmt.Errorf("error running pdftotext: %w", err)
	}

	output, err := os.ReadFile(txtPath)
	if err != nil {
		return "", fmt.Errorf("error reading extracted text: %w", err)
	}
	return string(output), nil
}
