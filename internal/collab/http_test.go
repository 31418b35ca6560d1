package collab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPOCRClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ocr" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "שלום invoice text", "confidence": 0.87, "languages_detected": ["he", "en"]}`))
	}))
	defer srv.Close()

	c := NewHTTPOCRClient(OCRConfig{BaseURL: srv.URL})
	result, err := c.ProcessDocument(context.Background(), []byte("pdf bytes"), "application/pdf", []string{"he", "en"})
	if err != nil {
		t.Fatalf("ocr failed: %v", err)
	}
	if result.Confidence != 0.87 || len(result.LanguagesDetected) != 2 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestHTTPServiceErrorClassification(t *testing.T) {
	t.Run("5xx is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c := NewHTTPParser(ParserConfig{BaseURL: srv.URL})
		_, err := c.Parse(context.Background(), []byte("x"), "text/plain", nil)
		if !IsTransient(err) {
			t.Errorf("expected transient error, got %v", err)
		}
	})

	t.Run("4xx is fatal", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		c := NewHTTPParser(ParserConfig{BaseURL: srv.URL})
		_, err := c.Parse(context.Background(), []byte("x"), "text/plain", nil)
		if err == nil || IsTransient(err) {
			t.Errorf("expected fatal error, got %v", err)
		}
	})

	t.Run("timeout is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		c := NewHTTPLinker(LinkerConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
		_, err := c.Link(context.Background(), Item{Title: "plywood"})
		if !IsTransient(err) {
			t.Errorf("expected transient error, got %v", err)
		}
	})

	t.Run("connection refused is transient", func(t *testing.T) {
		c := NewHTTPLinker(LinkerConfig{BaseURL: "http://127.0.0.1:1", Timeout: 50 * time.Millisecond})
		_, err := c.Link(context.Background(), Item{Title: "plywood"})
		if !IsTransient(err) {
			t.Errorf("expected transient error, got %v", err)
		}
	})
}
