package collab

import (
	"context"
	"encoding/base64"
	"time"
)

// HTTPOCRClient calls an external OCR service over HTTP.
type HTTPOCRClient struct {
	name string
	svc  *httpService
}

// OCRConfig configures the HTTP OCR client.
type OCRConfig struct {
	Name    string
	BaseURL string
	Timeout time.Duration
}

// NewHTTPOCRClient creates a client for an HTTP OCR service.
func NewHTTPOCRClient(cfg OCRConfig) *HTTPOCRClient {
	name := cfg.Name
	if name == "" {
		name = "ocr"
	}
	return &HTTPOCRClient{
		name: name,
		svc:  newHTTPService(cfg.BaseURL, cfg.Timeout),
	}
}

// Name returns the client identifier.
func (c *HTTPOCRClient) Name() string { return c.name }

type ocrRequest struct {
	Document  string   `json:"document"` // base64
	MimeType  string   `json:"mime_type"`
	Languages []string `json:"languages,omitempty"`
}

// ProcessDocument runs OCR over document bytes.
func (c *HTTPOCRClient) ProcessDocument(ctx context.Context, data []byte, mimeType string, languages []string) (*OCRResult, error) {
	req := ocrRequest{
		Document:  base64.StdEncoding.EncodeToString(data),
		MimeType:  mimeType,
		Languages: languages,
	}
	var result OCRResult
	if err := c.svc.postJSON(ctx, "/v1/ocr", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
