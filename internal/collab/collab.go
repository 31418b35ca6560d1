// Package collab defines the narrow interfaces for the external collaborators
// the ingestion pipeline calls at each stage (OCR engine, document parser,
// classifier, structured extractor, pricing catalog linker) and provides the
// production client implementations.
package collab

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransient marks a collaborator failure as retryable (timeout, connection
// failure, rate limit). The orchestrator retries transient failures with
// backoff; everything else is treated as fatal for the stage.
var ErrTransient = errors.New("transient collaborator error")

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err is a retryable collaborator failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// DocType is the closed set of document types the extraction stage knows
// schemas for. Classifier labels outside the set map to DocTypeGeneric.
type DocType string

const (
	DocTypeInvoice DocType = "invoice"
	DocTypeQuote   DocType = "quote"
	DocTypeGeneric DocType = "generic"
)

// DocTypeFromLabel maps a free-form classifier label onto the closed enum.
func DocTypeFromLabel(label string) DocType {
	switch DocType(label) {
	case DocTypeInvoice:
		return DocTypeInvoice
	case DocTypeQuote:
		return DocTypeQuote
	default:
		return DocTypeGeneric
	}
}

// OCRResult is the output of an OCR pass over a document.
type OCRResult struct {
	Text              string   `json:"text"`
	Confidence        float64  `json:"confidence"`
	LanguagesDetected []string `json:"languages_detected,omitempty"`
}

// OCRClient extracts text from scanned documents.
type OCRClient interface {
	Name() string
	ProcessDocument(ctx context.Context, data []byte, mimeType string, languages []string) (*OCRResult, error)
}

// Element is one structural unit produced by the document parser (a
// paragraph, title, table cell, list item).
type Element struct {
	Type string `json:"type"` // "title", "text", "table", "list_item"
	Text string `json:"text"`
	Page int    `json:"page,omitempty"`
}

// ParseResult is the output of the generic document parser.
type ParseResult struct {
	Elements []Element      `json:"elements"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Parser extracts structural elements from a document.
type Parser interface {
	Name() string
	Parse(ctx context.Context, data []byte, mimeType string, languages []string) (*ParseResult, error)
}

// Alternative is a non-winning classification candidate.
type Alternative struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classification is the classifier's verdict for a document.
type Classification struct {
	Label        string        `json:"label"`
	Confidence   float64       `json:"confidence"`
	Reasoning    string        `json:"reasoning,omitempty"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// Classifier assigns a document type to parsed text.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, text string) (*Classification, error)
}

// Chunk is a group of parsed elements packed for extraction.
type Chunk struct {
	Title    string `json:"title,omitempty"`
	Text     string `json:"text"`
	Elements int    `json:"elements"`
}

// Item is one extracted line item candidate.
type Item struct {
	Title      string  `json:"title"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit,omitempty"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
	Confidence float64 `json:"confidence"`
}

// Extraction is the structured extractor's output.
type Extraction struct {
	Items []Item `json:"items"`
}

// Extractor pulls structured line items out of packed chunks using the
// schema for the given document type.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, chunks []Chunk, docType DocType) (*Extraction, error)
}

// LinkResult is the outcome of matching one item against the pricing catalog.
type LinkResult struct {
	MatchedID  string  `json:"matched_id,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Linker matches extracted items against an external pricing/material
// catalog. Best-effort; an unmatched item is a zero-confidence result, not
// an error.
type Linker interface {
	Name() string
	Link(ctx context.Context, item Item) (*LinkResult, error)
}

// Registry bundles the collaborator set the pipeline runs against.
type Registry struct {
	OCR        OCRClient
	Parser     Parser
	Classifier Classifier
	Extractor  Extractor
	Linker     Linker
}

// Validate checks that all required collaborators are present. The linker is
// optional: link is a best-effort stage.
func (r *Registry) Validate() error {
	if r.OCR == nil {
		return errors.New("ocr client required")
	}
	if r.Parser == nil {
		return errors.New("parser required")
	}
	if r.Classifier == nil {
		return errors.New("classifier required")
	}
	if r.Extractor == nil {
		return errors.New("extractor required")
	}
	return nil
}
