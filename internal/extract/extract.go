// Package extract turns source files into raw document text plus metadata.
// Extraction is the boundary collaborator of the indexing pipeline: the
// pipeline consumes (text, metadata) and never holds on to the source
// bytes afterwards.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Document is the extraction result for one source file.
type Document struct {
	// ID identifies the document across re-ingestions; defaults to the
	// base filename so re-indexing an updated file replaces its chunks.
	ID       string
	Source   string
	Text     string
	Metadata map[string]string
}

// Extractor produces a Document from a source file.
type Extractor interface {
	// Extract reads path and returns the raw text with metadata.
	Extract(ctx context.Context, path string) (*Document, error)
	// Supports reports whether this extractor handles the file.
	Supports(path string) bool
}

// ForPath returns the first extractor claiming path, or an error when the
// file type is not ingestible.
func ForPath(extractors []Extractor, path string) (Extractor, error) {
	for _, e := range extractors {
		if e.Supports(path) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("no extractor for %q (supported: .pdf, .txt, .md)", filepath.Ext(path))
}

// DefaultExtractors returns the built-in extractor set.
func DefaultExtractors() []Extractor {
	return []Extractor{NewPDFExtractor(), NewTextExtractor()}
}

// TextExtractor reads plain-text and markdown files as-is.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor { return &TextExtractor{} }

func (e *TextExtractor) Supports(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}

func (e *TextExtractor) Extract(ctx context.Context, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &Document{
		ID:     filepath.Base(path),
		Source: path,
		Text:   string(data),
		Metadata: map[string]string{
			"source": path,
			"format": "text",
		},
	}, nil
}
