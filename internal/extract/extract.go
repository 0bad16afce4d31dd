// Package extract turns source PDFs into text and discovers documents under
// a source root.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// ErrNoText indicates a document yielded no extractable text.
var ErrNoText = errors.New("no extractable text")

// Result is the outcome of extracting one document.
type Result struct {
	// Text is the concatenated page text.
	Text string

	// Pages is the total page count.
	Pages int

	// ExtractedPages is the number of pages that yielded text.
	ExtractedPages int
}

// Extractor is the text-extraction capability. Production uses the PDF
// implementation; tests substitute canned results.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Result, error)
}

// PDFExtractor extracts text from PDF files page by page. A page that fails
// to extract is logged and skipped; the document fails only when no page
// yields text.
type PDFExtractor struct {
	logger *zap.Logger
}

// NewPDFExtractor creates a PDFExtractor.
func NewPDFExtractor(logger *zap.Logger) *PDFExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDFExtractor{logger: logger}
}

// Extract implements Extractor.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (*Result, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF %s: %w", path, err)
	}
	defer f.Close()

	total := reader.NumPage()
	var parts []string
	extracted := 0

	for num := 1; num <= total; num++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(num)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Warn("failed to extract page",
				zap.String("path", path),
				zap.Int("page", num),
				zap.Error(err),
			)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		parts = append(parts, text)
		extracted++
	}

	if extracted == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoText, path)
	}

	e.logger.Info("extracted document",
		zap.String("path", path),
		zap.Int("pages", total),
		zap.Int("extracted_pages", extracted),
	)

	return &Result{
		Text:           strings.Join(parts, "\n"),
		Pages:          total,
		ExtractedPages: extracted,
	}, nil
}
