package collab

import (
	"context"
	"time"
)

// HTTPLinker matches items against a pricing/material catalog service.
type HTTPLinker struct {
	name string
	svc  *httpService
}

// LinkerConfig configures the HTTP linker client.
type LinkerConfig struct {
	Name    string
	BaseURL string
	Timeout time.Duration
}

// NewHTTPLinker creates a client for the pricing catalog service.
func NewHTTPLinker(cfg LinkerConfig) *HTTPLinker {
	name := cfg.Name
	if name == "" {
		name = "linker"
	}
	return &HTTPLinker{
		name: name,
		svc:  newHTTPService(cfg.BaseURL, cfg.Timeout),
	}
}

// Name returns the client identifier.
func (l *HTTPLinker) Name() string { return l.name }

type linkRequest struct {
	Title string `json:"title"`
	Unit  string `json:"unit,omitempty"`
}

// Link looks up the best catalog match for an item.
func (l *HTTPLinker) Link(ctx context.Context, item Item) (*LinkResult, error) {
	req := linkRequest{Title: item.Title, Unit: item.Unit}
	var result LinkResult
	if err := l.svc.postJSON(ctx, "/v1/link", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
