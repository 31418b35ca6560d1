package pipeline

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/eliranbeatt/studioOpsAi-sub001/internal/catalog"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/collab"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/upload"
)

// maxChunkChars bounds the text packed into a single extraction chunk.
const maxChunkChars = 8000

// scannedTextThreshold is the minimum parser output length below which a PDF
// is assumed to be scanned and is sent through OCR.
const scannedTextThreshold = 64

// runState accumulates per-document results as stages execute. It is owned
// exclusively by the worker running the document and never shared.
type runState struct {
	doc *catalog.Document

	text      string
	elements  []collab.Element
	languages []string

	classification *collab.Classification
	docType        collab.DocType

	chunks     []collab.Chunk
	extraction *collab.Extraction

	validations []ItemValidation

	links      []collab.LinkResult
	linkFailed bool

	confidences map[catalog.Stage]float64
	result      *StageResult
}

// ParsePayload is the parse stage's event payload.
type ParsePayload struct {
	ElementCount int      `json:"element_count"`
	TextLength   int      `json:"text_length"`
	Languages    []string `json:"languages"`
	UsedOCR      bool     `json:"used_ocr"`
	Confidence   float64  `json:"confidence"`
}

// PackPayload is the pack stage's event payload.
type PackPayload struct {
	ChunkCount int `json:"chunk_count"`
}

// ExtractPayload is the extract stage's event payload.
type ExtractPayload struct {
	DocumentType collab.DocType `json:"document_type"`
	Items        []collab.Item  `json:"items"`
}

// ItemValidation is the validation verdict for one extracted item.
type ItemValidation struct {
	Index           int      `json:"index"`
	Title           string   `json:"title"`
	IsValid         bool     `json:"is_valid"`
	Issues          []string `json:"issues"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// ValidatePayload is the validate stage's event payload.
type ValidatePayload struct {
	Items      []ItemValidation `json:"items"`
	ValidCount int              `json:"valid_count"`
	Confidence float64          `json:"confidence"`
}

// LinkPayload is the link stage's event payload.
type LinkPayload struct {
	Matched  int     `json:"matched"`
	Total    int     `json:"total"`
	Coverage float64 `json:"coverage"`
}

// StageResult is the pipeline's final output, emitted as the stage/ok
// payload. It is the sole contract consumed by downstream review and commit
// workflows.
type StageResult struct {
	DocumentID          string             `json:"document_id"`
	DocumentType        collab.DocType     `json:"document_type"`
	OverallConfidence   float64            `json:"overall_confidence"`
	RequiresReview      bool               `json:"requires_review"`
	TotalItemsExtracted int                `json:"total_items_extracted"`
	ValidItems          int                `json:"valid_items"`
	LinkageCoverage     float64            `json:"linkage_coverage"`
	Languages           []string           `json:"languages"`
	StageConfidences    map[string]float64 `json:"stage_confidences"`
}

// parse extracts text from the document. Images go through OCR; everything
// else goes through the structural parser, with OCR as a fallback for PDFs
// whose parser output is too short to be real text (scanned pages).
func (o *Orchestrator) parse(ctx context.Context, st *runState) (any, error) {
	data, err := o.store.Get(ctx, st.doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document bytes: %w", err)
	}

	hints := []string{"heb", "eng"}
	conf := 1.0
	usedOCR := false

	if isImage(st.doc) {
		ocr, err := o.collab.OCR.ProcessDocument(ctx, data, st.doc.MimeType, hints)
		if err != nil {
			return nil, fmt.Errorf("ocr failed: %w", err)
		}
		st.text = ocr.Text
		st.elements = []collab.Element{{Type: "text", Text: ocr.Text, Page: 1}}
		st.languages = mergeLanguages(detectLanguages(ocr.Text), ocr.LanguagesDetected)
		conf = ocr.Confidence
		usedOCR = true
	} else {
		parsed, err := o.collab.Parser.Parse(ctx, data, st.doc.MimeType, hints)
		if err != nil {
			return nil, fmt.Errorf("parse failed: %w", err)
		}
		st.elements = parsed.Elements
		st.text = joinElements(parsed.Elements)

		if len(strings.TrimSpace(st.text)) < scannedTextThreshold && isPDF(st.doc) {
			ocr, err := o.collab.OCR.ProcessDocument(ctx, data, st.doc.MimeType, hints)
			if err != nil {
				return nil, fmt.Errorf("ocr fallback failed: %w", err)
			}
			st.text = ocr.Text
			st.elements = []collab.Element{{Type: "text", Text: ocr.Text, Page: 1}}
			st.languages = mergeLanguages(detectLanguages(ocr.Text), ocr.LanguagesDetected)
			conf = ocr.Confidence
			usedOCR = true
		} else {
			st.languages = detectLanguages(st.text)
		}
	}

	if strings.TrimSpace(st.text) == "" {
		return nil, fmt.Errorf("no text could be extracted from %s", st.doc.Filename)
	}

	st.confidences[catalog.StageParse] = clamp01(conf)
	return &ParsePayload{
		ElementCount: len(st.elements),
		TextLength:   len(st.text),
		Languages:    st.languages,
		UsedOCR:      usedOCR,
		Confidence:   st.confidences[catalog.StageParse],
	}, nil
}

// classify assigns a document type. Low classifier confidence is carried
// forward into the overall score rather than failing the stage.
func (o *Orchestrator) classify(ctx context.Context, st *runState) (any, error) {
	cls, err := o.collab.Classifier.Classify(ctx, st.text)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}
	st.classification = cls
	st.docType = collab.DocTypeFromLabel(cls.Label)
	st.confidences[catalog.StageClassify] = clamp01(cls.Confidence)

	if st.docType != collab.DocType(cls.Label) {
		o.logger.Warn("classifier label outside known types, using generic schema",
			"document_id", st.doc.ID, "label", cls.Label)
	}
	return cls, nil
}

// pack groups parsed elements into extraction chunks, starting a new chunk
// at each title boundary and capping chunk size. Pure transformation.
func (o *Orchestrator) pack(_ context.Context, st *runState) (any, error) {
	st.chunks = packElements(st.elements)
	if len(st.chunks) == 0 {
		st.chunks = []collab.Chunk{{Text: st.text, Elements: len(st.elements)}}
	}
	st.confidences[catalog.StagePack] = 1.0
	return &PackPayload{ChunkCount: len(st.chunks)}, nil
}

func packElements(elements []collab.Element) []collab.Chunk {
	var chunks []collab.Chunk
	var cur collab.Chunk
	var buf strings.Builder

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		cur.Text = buf.String()
		chunks = append(chunks, cur)
		cur = collab.Chunk{}
		buf.Reset()
	}

	for _, el := range elements {
		if el.Type == "title" && buf.Len() > 0 {
			flush()
		}
		if el.Type == "title" && cur.Title == "" {
			cur.Title = el.Text
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(el.Text)
		cur.Elements++
		if buf.Len() >= maxChunkChars {
			flush()
		}
	}
	flush()
	return chunks
}

// extract runs the structured extractor against the schema for the
// classified document type.
func (o *Orchestrator) extract(ctx context.Context, st *runState) (any, error) {
	ext, err := o.collab.Extractor.Extract(ctx, st.chunks, st.docType)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	st.extraction = ext
	st.confidences[catalog.StageExtract] = meanItemConfidence(ext.Items)
	return &ExtractPayload{DocumentType: st.docType, Items: ext.Items}, nil
}

func meanItemConfidence(items []collab.Item) float64 {
	if len(items) == 0 {
		return 1.0
	}
	var sum float64
	for _, it := range items {
		sum += clamp01(it.Confidence)
	}
	return sum / float64(len(items))
}

// validate applies deterministic business rules per item. Violations are
// recorded, never thrown; an invalid item lowers its confidence score and
// ultimately forces review.
func (o *Orchestrator) validate(_ context.Context, st *runState) (any, error) {
	st.validations = make([]ItemValidation, 0, len(st.extraction.Items))
	valid := 0
	var sum float64

	for i, item := range st.extraction.Items {
		v := validateItem(i, item, o.cfg.TotalTolerance)
		if v.IsValid {
			valid++
		}
		sum += v.ConfidenceScore
		st.validations = append(st.validations, v)
	}

	conf := 1.0
	if len(st.validations) > 0 {
		conf = sum / float64(len(st.validations))
	}
	st.confidences[catalog.StageValidate] = clamp01(conf)

	return &ValidatePayload{
		Items:      st.validations,
		ValidCount: valid,
		Confidence: st.confidences[catalog.StageValidate],
	}, nil
}

// Issue codes recorded by the validate stage.
const (
	IssueMissingTitle     = "missing_title"
	IssueInvalidQuantity  = "invalid_quantity"
	IssueInvalidUnitPrice = "invalid_unit_price"
	IssueInvalidTotal     = "invalid_total_price"
	IssueTotalMismatch    = "total_mismatch"
)

func validateItem(index int, item collab.Item, tolerance float64) ItemValidation {
	var issues []string
	if strings.TrimSpace(item.Title) == "" {
		issues = append(issues, IssueMissingTitle)
	}
	if item.Quantity < 0 {
		issues = append(issues, IssueInvalidQuantity)
	}
	if item.UnitPrice < 0 {
		issues = append(issues, IssueInvalidUnitPrice)
	}
	if item.TotalPrice < 0 {
		issues = append(issues, IssueInvalidTotal)
	}
	if item.Quantity >= 0 && item.UnitPrice >= 0 && item.TotalPrice >= 0 {
		expected := item.Quantity * item.UnitPrice
		if !totalsMatch(item.TotalPrice, expected, tolerance) {
			issues = append(issues, IssueTotalMismatch)
		}
	}

	// Each violation halves the score, so even one rule failure reads
	// clearly below any sane review threshold.
	score := clamp01(item.Confidence)
	for range issues {
		score *= 0.5
	}

	if issues == nil {
		issues = []string{}
	}
	return ItemValidation{
		Index:           index,
		Title:           item.Title,
		IsValid:         len(issues) == 0,
		Issues:          issues,
		ConfidenceScore: score,
	}
}

func totalsMatch(total, expected, tolerance float64) bool {
	diff := math.Abs(total - expected)
	if expected == 0 {
		return diff <= tolerance
	}
	return diff/math.Abs(expected) <= tolerance
}

// link matches each valid item against the pricing catalog. With no linker
// configured the stage records zero coverage and succeeds.
func (o *Orchestrator) link(ctx context.Context, st *runState) (any, error) {
	st.links = nil
	total := len(st.extraction.Items)
	if o.collab.Linker == nil || total == 0 {
		return &LinkPayload{Total: total}, nil
	}

	matched := 0
	for i, item := range st.extraction.Items {
		if !st.validations[i].IsValid {
			st.links = append(st.links, collab.LinkResult{})
			continue
		}
		res, err := o.collab.Linker.Link(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("link failed for item %d: %w", i, err)
		}
		st.links = append(st.links, *res)
		if res.MatchedID != "" {
			matched++
		}
	}
	return &LinkPayload{
		Matched:  matched,
		Total:    total,
		Coverage: coverage(matched, total),
	}, nil
}

func coverage(matched, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}

// stage aggregates everything into the final result and records derived
// metadata on the catalog row. The aggregation never exceeds the lowest
// per-stage confidence, so one bad stage cannot be averaged away.
func (o *Orchestrator) stage(ctx context.Context, st *runState) (any, error) {
	overall := aggregateConfidence(st.confidences)

	anyInvalid := false
	valid := 0
	for _, v := range st.validations {
		if v.IsValid {
			valid++
		} else {
			anyInvalid = true
		}
	}
	if anyInvalid && overall > o.cfg.ReviewThreshold {
		overall = o.cfg.ReviewThreshold
	}

	total := len(st.extraction.Items)
	matched := 0
	for _, l := range st.links {
		if l.MatchedID != "" {
			matched++
		}
	}

	requiresReview := overall < o.cfg.ReviewThreshold ||
		anyInvalid ||
		st.linkFailed ||
		(st.docType != collab.DocTypeGeneric && total == 0)

	stageConfs := make(map[string]float64, len(st.confidences))
	for s, c := range st.confidences {
		stageConfs[string(s)] = c
	}

	st.result = &StageResult{
		DocumentID:          st.doc.ID,
		DocumentType:        st.docType,
		OverallConfidence:   overall,
		RequiresReview:      requiresReview,
		TotalItemsExtracted: total,
		ValidItems:          valid,
		LinkageCoverage:     coverage(matched, total),
		Languages:           st.languages,
		StageConfidences:    stageConfs,
	}

	if err := o.catalog.SetDocumentAnalysis(ctx, st.doc.ID, primaryLanguage(st.languages), overall); err != nil {
		return nil, fmt.Errorf("failed to record document analysis: %w", err)
	}
	return st.result, nil
}

// aggregateConfidence combines per-stage confidences: the minimum sets the
// ceiling, scaled by how far the rest of the stages lag behind a perfect
// run. Always within [0, min(stages)].
func aggregateConfidence(confs map[catalog.Stage]float64) float64 {
	if len(confs) == 0 {
		return 0
	}
	minConf := 1.0
	var sum float64
	for _, c := range confs {
		c = clamp01(c)
		sum += c
		if c < minConf {
			minConf = c
		}
	}
	mean := sum / float64(len(confs))
	return clamp01(minConf * (0.75 + 0.25*mean))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func isImage(doc *catalog.Document) bool {
	if strings.HasPrefix(doc.MimeType, "image/") {
		return true
	}
	return upload.IsImageExtension(filepath.Ext(doc.Filename))
}

func isPDF(doc *catalog.Document) bool {
	return doc.MimeType == "application/pdf" ||
		strings.EqualFold(filepath.Ext(doc.Filename), ".pdf")
}

func joinElements(elements []collab.Element) string {
	var b strings.Builder
	for i, el := range elements {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(el.Text)
	}
	return b.String()
}
