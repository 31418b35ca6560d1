package collab

import (
	"context"
	"sync/atomic"
)

// Mock collaborators for tests. Each mock counts calls and can be configured
// to fail a fixed number of times before succeeding, which exercises the
// orchestrator's retry policy.

// MockOCR is an OCRClient for testing.
type MockOCR struct {
	Result    *OCRResult
	Err       error
	FailTimes int // return Err for the first N calls, then Result

	calls atomic.Int64
}

func (m *MockOCR) Name() string { return "mock-ocr" }

func (m *MockOCR) ProcessDocument(ctx context.Context, data []byte, mimeType string, languages []string) (*OCRResult, error) {
	n := m.calls.Add(1)
	if m.Err != nil && (m.FailTimes == 0 || n <= int64(m.FailTimes)) {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &OCRResult{Text: "mock ocr text", Confidence: 0.9}, nil
}

// Calls returns the number of times ProcessDocument was invoked.
func (m *MockOCR) Calls() int { return int(m.calls.Load()) }

// MockParser is a Parser for testing.
type MockParser struct {
	Result    *ParseResult
	Err       error
	FailTimes int

	calls atomic.Int64
}

func (m *MockParser) Name() string { return "mock-parser" }

func (m *MockParser) Parse(ctx context.Context, data []byte, mimeType string, languages []string) (*ParseResult, error) {
	n := m.calls.Add(1)
	if m.Err != nil && (m.FailTimes == 0 || n <= int64(m.FailTimes)) {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &ParseResult{Elements: []Element{{Type: "text", Text: "mock element", Page: 1}}}, nil
}

func (m *MockParser) Calls() int { return int(m.calls.Load()) }

// MockClassifier is a Classifier for testing.
type MockClassifier struct {
	Result    *Classification
	Err       error
	FailTimes int

	calls atomic.Int64
}

func (m *MockClassifier) Name() string { return "mock-classifier" }

func (m *MockClassifier) Classify(ctx context.Context, text string) (*Classification, error) {
	n := m.calls.Add(1)
	if m.Err != nil && (m.FailTimes == 0 || n <= int64(m.FailTimes)) {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &Classification{Label: "invoice", Confidence: 0.95}, nil
}

func (m *MockClassifier) Calls() int { return int(m.calls.Load()) }

// MockExtractor is an Extractor for testing.
type MockExtractor struct {
	Result    *Extraction
	Err       error
	FailTimes int

	calls atomic.Int64
}

func (m *MockExtractor) Name() string { return "mock-extractor" }

func (m *MockExtractor) Extract(ctx context.Context, chunks []Chunk, docType DocType) (*Extraction, error) {
	n := m.calls.Add(1)
	if m.Err != nil && (m.FailTimes == 0 || n <= int64(m.FailTimes)) {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &Extraction{Items: []Item{{
		Title: "mock item", Quantity: 1, UnitPrice: 10, TotalPrice: 10, Confidence: 0.9,
	}}}, nil
}

func (m *MockExtractor) Calls() int { return int(m.calls.Load()) }

// MockLinker is a Linker for testing.
type MockLinker struct {
	Result    *LinkResult
	Err       error
	FailTimes int

	calls atomic.Int64
}

func (m *MockLinker) Name() string { return "mock-linker" }

func (m *MockLinker) Link(ctx context.Context, item Item) (*LinkResult, error) {
	n := m.calls.Add(1)
	if m.Err != nil && (m.FailTimes == 0 || n <= int64(m.FailTimes)) {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &LinkResult{MatchedID: "mat-1", Confidence: 0.8}, nil
}

func (m *MockLinker) Calls() int { return int(m.calls.Load()) }

// MockRegistry returns a Registry with all mocks wired in.
func MockRegistry() *Registry {
	return &Registry{
		OCR:        &MockOCR{},
		Parser:     &MockParser{},
		Classifier: &MockClassifier{},
		Extractor:  &MockExtractor{},
		Linker:     &MockLinker{},
	}
}
