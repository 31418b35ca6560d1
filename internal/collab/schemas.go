package collab

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// classificationSchema is the canonical schema for classifier output.
const classificationSchema = `{
	"type": "object",
	"properties": {
		"label": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"reasoning": {"type": "string"},
		"alternatives": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"label": {"type": "string"},
					"confidence": {"type": "number", "minimum": 0, "maximum": 1}
				},
				"required": ["label", "confidence"],
				"additionalProperties": false
			}
		}
	},
	"required": ["label", "confidence"],
	"additionalProperties": false
}`

// itemSchema is shared by all extraction schemas: one line item candidate.
const itemSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"quantity": {"type": "number"},
		"unit": {"type": "string"},
		"unit_price": {"type": "number"},
		"total_price": {"type": "number"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["title", "quantity", "unit_price", "total_price", "confidence"],
	"additionalProperties": false
}`

var extractionSchema = fmt.Sprintf(`{
	"type": "object",
	"properties": {
		"items": {"type": "array", "items": %s}
	},
	"required": ["items"],
	"additionalProperties": false
}`, itemSchema)

var (
	compiledClassification = jsonschema.MustCompileString("classification.json", classificationSchema)
	compiledExtraction     = jsonschema.MustCompileString("extraction.json", extractionSchema)
)

// extractionInstructions holds the per-document-type guidance sent to the
// extractor. The schema shape is identical; the prompt differs.
var extractionInstructions = map[DocType]string{
	DocTypeInvoice: "Extract billed line items from this invoice. Each item has a " +
		"description, quantity, optional unit, unit price and total price. Prices " +
		"include VAT unless stated otherwise. The document may be in Hebrew " +
		"(right-to-left); keep item titles in their original language.",
	DocTypeQuote: "Extract quoted line items from this price quote. Each item has a " +
		"description, quantity, optional unit, unit price and total price. Quoted " +
		"prices may be estimates. The document may be in Hebrew (right-to-left); " +
		"keep item titles in their original language.",
	DocTypeGeneric: "Extract any purchasable line items mentioned in this document " +
		"(description, quantity, optional unit, unit price, total price). If the " +
		"document contains no line items, return an empty list. The document may " +
		"be in Hebrew (right-to-left); keep item titles in their original language.",
}

// ExtractionInstructions returns the extractor prompt for a document type.
func ExtractionInstructions(docType DocType) string {
	if s, ok := extractionInstructions[docType]; ok {
		return s
	}
	return extractionInstructions[DocTypeGeneric]
}

// ValidateClassification checks raw classifier output against the canonical
// schema.
func ValidateClassification(raw []byte) error {
	return validateAgainst(compiledClassification, raw)
}

// ValidateExtraction checks raw extractor output against the canonical schema.
func ValidateExtraction(raw []byte) error {
	return validateAgainst(compiledExtraction, raw)
}

func validateAgainst(schema *jsonschema.Schema, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("output is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("output does not match schema: %w", err)
	}
	return nil
}
