package collab

import (
	"strings"
	"testing"
)

func TestValidateClassification(t *testing.T) {
	t.Run("valid output", func(t *testing.T) {
		raw := `{
			"label": "invoice",
			"confidence": 0.92,
			"reasoning": "contains VAT number and line totals",
			"alternatives": [{"label": "quote", "confidence": 0.05}]
		}`
		if err := ValidateClassification([]byte(raw)); err != nil {
			t.Errorf("expected valid, got %v", err)
		}
	})

	t.Run("missing required field", func(t *testing.T) {
		if err := ValidateClassification([]byte(`{"label": "invoice"}`)); err == nil {
			t.Error("expected validation error for missing confidence")
		}
	})

	t.Run("confidence out of range", func(t *testing.T) {
		if err := ValidateClassification([]byte(`{"label": "invoice", "confidence": 1.4}`)); err == nil {
			t.Error("expected validation error for confidence > 1")
		}
	})

	t.Run("not JSON", func(t *testing.T) {
		err := ValidateClassification([]byte("definitely an invoice"))
		if err == nil || !strings.Contains(err.Error(), "not valid JSON") {
			t.Errorf("expected JSON parse error, got %v", err)
		}
	})
}

func TestValidateExtraction(t *testing.T) {
	t.Run("valid items", func(t *testing.T) {
		raw := `{"items": [
			{"title": "Plywood 4x8", "quantity": 5, "unit": "sheet", "unit_price": 120.0, "total_price": 600.0, "confidence": 0.9},
			{"title": "לוח עץ", "quantity": 2, "unit_price": 45.5, "total_price": 91.0, "confidence": 0.7}
		]}`
		if err := ValidateExtraction([]byte(raw)); err != nil {
			t.Errorf("expected valid, got %v", err)
		}
	})

	t.Run("empty items", func(t *testing.T) {
		if err := ValidateExtraction([]byte(`{"items": []}`)); err != nil {
			t.Errorf("empty item list must validate, got %v", err)
		}
	})

	t.Run("missing items key", func(t *testing.T) {
		if err := ValidateExtraction([]byte(`{}`)); err == nil {
			t.Error("expected validation error for missing items")
		}
	})

	t.Run("item missing price", func(t *testing.T) {
		raw := `{"items": [{"title": "x", "quantity": 1, "confidence": 0.5}]}`
		if err := ValidateExtraction([]byte(raw)); err == nil {
			t.Error("expected validation error for missing prices")
		}
	})
}

func TestDocTypeFromLabel(t *testing.T) {
	cases := []struct {
		label string
		want  DocType
	}{
		{"invoice", DocTypeInvoice},
		{"quote", DocTypeQuote},
		{"generic", DocTypeGeneric},
		{"receipt", DocTypeGeneric},
		{"", DocTypeGeneric},
	}
	for _, tc := range cases {
		if got := DocTypeFromLabel(tc.label); got != tc.want {
			t.Errorf("DocTypeFromLabel(%q) = %s, want %s", tc.label, got, tc.want)
		}
	}
}

func TestExtractionInstructions(t *testing.T) {
	for _, dt := range []DocType{DocTypeInvoice, DocTypeQuote, DocTypeGeneric} {
		if ExtractionInstructions(dt) == "" {
			t.Errorf("no instructions for %s", dt)
		}
	}
	// Unknown types fall back to generic.
	if ExtractionInstructions(DocType("receipt")) != extractionInstructions[DocTypeGeneric] {
		t.Error("unknown doc type should use generic instructions")
	}
}
