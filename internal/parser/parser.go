package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

// Extractor turns raw document bytes into plain text. The bool reports
// whether an OCR fallback produced the text.
type Extractor interface {
	Extract(data []byte) (text string, ocrUsed bool, err error)
}

// PDFExtractor extracts the embedded text layer of a PDF. It has no OCR
// capability; scanned PDFs without a text layer yield empty output, which
// the ingestion layer rejects.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (e *PDFExtractor) Extract(data []byte) (string, bool, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", false, fmt.Errorf("opening pdf: %w", err)
	}

	var parts []string
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the document.
			log.Warn().Int("page", i).Err(err).Msg("Error extracting page text")
			continue
		}
		if strings.TrimSpace(pageText) != "" {
			parts = append(parts, pageText)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), false, nil
}
