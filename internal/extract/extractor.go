// Package extract turns document files into ordered pages of plain text.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/benkyo/internal/models"
)

// ErrUnsupportedFormat is returned for file extensions the extractor does not handle.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extractor extracts page text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// SupportedExtensions returns the extensions ExtractPages accepts, with leading dots.
func SupportedExtensions() []string {
	return []string{".pdf", ".txt", ".md", ".rst", ".docx", ".pptx", ".xlsx", ".odp", ".ods"}
}

// ExtractPages reads the file at path and returns its pages in order.
// PDF yields one page per PDF page, PPTX and ODP one per slide, XLSX and ODS
// one per sheet; plain text and DOCX yield a single page. Page numbers start
// at 1 and pages without text are kept so numbering matches the source.
func (e *Extractor) ExtractPages(path string) ([]models.Page, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supported(ext) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractPagesBytes(content, ext)
}

// ExtractPagesBytes extracts pages from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractPagesBytes(content []byte, ext string) ([]models.Page, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	case ".pptx":
		return extractPPTX(content)
	case ".odp":
		return extractODP(content)
	case ".ods":
		return extractODS(content)
	case ".txt", ".md", ".rst":
		return extractPlain(content), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func supported(ext string) bool {
	for _, s := range SupportedExtensions() {
		if s == ext {
			return true
		}
	}
	return false
}

// singlePage wraps text as page 1.
func singlePage(text string) []models.Page {
	return []models.Page{{Number: 1, Text: text}}
}
