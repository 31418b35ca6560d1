package collab

import (
	"context"
	"encoding/base64"
	"time"
)

// HTTPParser calls an external document-structure parsing service.
type HTTPParser struct {
	name     string
	strategy string
	svc      *httpService
}

// ParserConfig configures the HTTP parser client.
type ParserConfig struct {
	Name     string
	BaseURL  string
	Strategy string // parsing strategy hint, e.g. "hi_res", "fast"
	Timeout  time.Duration
}

// NewHTTPParser creates a client for an HTTP parsing service.
func NewHTTPParser(cfg ParserConfig) *HTTPParser {
	name := cfg.Name
	if name == "" {
		name = "parser"
	}
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = "hi_res"
	}
	return &HTTPParser{
		name:     name,
		strategy: strategy,
		svc:      newHTTPService(cfg.BaseURL, cfg.Timeout),
	}
}

// Name returns the client identifier.
func (p *HTTPParser) Name() string { return p.name }

type parseRequest struct {
	Document  string   `json:"document"` // base64
	MimeType  string   `json:"mime_type"`
	Strategy  string   `json:"strategy"`
	Languages []string `json:"languages,omitempty"`
}

// Parse extracts structural elements from document bytes.
func (p *HTTPParser) Parse(ctx context.Context, data []byte, mimeType string, languages []string) (*ParseResult, error) {
	req := parseRequest{
		Document:  base64.StdEncoding.EncodeToString(data),
		MimeType:  mimeType,
		Strategy:  p.strategy,
		Languages: languages,
	}
	var result ParseResult
	if err := p.svc.postJSON(ctx, "/v1/parse", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
