package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eliranbeatt/studioOpsAi-sub001/internal/catalog"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/collab"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/store"
)

const hebrewInvoiceText = "חשבונית מס 1234\nPlywood 4x8  5  120.00  600.00\nסה\"כ לתשלום: 600.00"

func testConfig() Config {
	return Config{
		MaxRetries:      2,
		RetryDelay:      time.Millisecond,
		StageTimeout:    5 * time.Second,
		ReviewThreshold: 0.7,
		TotalTolerance:  0.01,
	}
}

// newTestRun creates a catalog, stores document bytes in a memory store, and
// registers a catalog row, returning an orchestrator over the given
// collaborators and the document ID.
func newTestRun(t *testing.T, reg *collab.Registry, filename, mimeType string) (*Orchestrator, *catalog.Catalog, string) {
	t.Helper()

	cat, err := catalog.Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	mem := store.NewMemoryStore()
	docID := uuid.NewString()
	key := "documents/test/" + docID + filepath.Ext(filename)
	if err := mem.Put(context.Background(), key, []byte("raw document bytes"), mimeType); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
	if err := cat.CreateDocument(context.Background(), &catalog.Document{
		ID: docID, Filename: filename, MimeType: mimeType,
		SizeBytes: 18, StoragePath: key, ContentHash: docID,
	}); err != nil {
		t.Fatalf("failed to create document: %v", err)
	}

	orch, err := New(cat, mem, reg, testConfig(), slog.Default())
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}
	return orch, cat, docID
}

func invoiceRegistry() *collab.Registry {
	reg := collab.MockRegistry()
	reg.Parser = &collab.MockParser{Result: &collab.ParseResult{Elements: []collab.Element{
		{Type: "title", Text: "חשבונית מס 1234", Page: 1},
		{Type: "text", Text: "Plywood 4x8  5  120.00  600.00", Page: 1},
		{Type: "text", Text: "סה\"כ לתשלום: 600.00", Page: 2},
	}}}
	reg.Classifier = &collab.MockClassifier{Result: &collab.Classification{
		Label: "invoice", Confidence: 0.92, Reasoning: "tax invoice header",
	}}
	reg.Extractor = &collab.MockExtractor{Result: &collab.Extraction{Items: []collab.Item{
		{Title: "Plywood 4x8", Quantity: 5, Unit: "sheet", UnitPrice: 120, TotalPrice: 600, Confidence: 0.9},
	}}}
	return reg
}

func stageResult(t *testing.T, cat *catalog.Catalog, docID string) *StageResult {
	t.Helper()
	payload, err := cat.StagePayload(context.Background(), docID, catalog.StageStage, catalog.StatusOK)
	if err != nil {
		t.Fatalf("no stage/ok payload: %v", err)
	}
	var res StageResult
	if err := json.Unmarshal(payload, &res); err != nil {
		t.Fatalf("failed to decode stage result: %v", err)
	}
	return &res
}

func TestRunHebrewInvoiceHappyPath(t *testing.T) {
	orch, cat, docID := newTestRun(t, invoiceRegistry(), "invoice.pdf", "application/pdf")
	ctx := context.Background()

	if err := orch.Run(ctx, docID); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	res := stageResult(t, cat, docID)
	if res.DocumentType != collab.DocTypeInvoice {
		t.Errorf("document type = %s, want invoice", res.DocumentType)
	}
	if res.RequiresReview {
		t.Error("clean invoice flagged for review")
	}
	if res.TotalItemsExtracted != 1 || res.ValidItems != 1 {
		t.Errorf("items = %d valid = %d, want 1/1", res.TotalItemsExtracted, res.ValidItems)
	}
	if res.OverallConfidence <= 0 || res.OverallConfidence > 1 {
		t.Errorf("overall confidence %f out of range", res.OverallConfidence)
	}
	for stage, conf := range res.StageConfidences {
		if res.OverallConfidence > conf {
			t.Errorf("overall %f exceeds %s confidence %f", res.OverallConfidence, stage, conf)
		}
	}
	if res.LinkageCoverage != 1.0 {
		t.Errorf("linkage coverage = %f, want 1.0", res.LinkageCoverage)
	}

	doc, err := cat.GetDocument(ctx, docID)
	if err != nil {
		t.Fatalf("failed to fetch document: %v", err)
	}
	if doc.Language != "mixed" {
		t.Errorf("language = %q, want mixed for Hebrew+Latin text", doc.Language)
	}
	if doc.Confidence != res.OverallConfidence {
		t.Errorf("row confidence %f != staged %f", doc.Confidence, res.OverallConfidence)
	}
}

func TestRunEventSequenceIsMonotonic(t *testing.T) {
	orch, cat, docID := newTestRun(t, invoiceRegistry(), "invoice.pdf", "application/pdf")

	if err := orch.Run(context.Background(), docID); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	order := make(map[catalog.Stage]int, len(catalog.PipelineStages))
	for i, s := range catalog.PipelineStages {
		order[s] = i
	}

	events, err := cat.Events(context.Background(), docID)
	if err != nil {
		t.Fatalf("failed to fetch events: %v", err)
	}
	last := -1
	for _, ev := range events {
		idx, ok := order[ev.Stage]
		if !ok {
			continue
		}
		if idx < last {
			t.Fatalf("stage %s event recorded after a later stage", ev.Stage)
		}
		last = idx
	}

	// Every stage must have bracketed start and ok events.
	for _, s := range catalog.PipelineStages {
		for _, status := range []catalog.EventStatus{catalog.StatusStart, catalog.StatusOK} {
			ok, err := cat.HasEvent(context.Background(), docID, s, status)
			if err != nil {
				t.Fatalf("event lookup failed: %v", err)
			}
			if !ok {
				t.Errorf("missing %s/%s event", s, status)
			}
		}
	}
}

func TestRunNegativeTotalRequiresReview(t *testing.T) {
	reg := invoiceRegistry()
	reg.Extractor = &collab.MockExtractor{Result: &collab.Extraction{Items: []collab.Item{
		{Title: "Plywood 4x8", Quantity: 5, Unit: "sheet", UnitPrice: 120, TotalPrice: -600, Confidence: 0.9},
	}}}
	orch, cat, docID := newTestRun(t, reg, "invoice.pdf", "application/pdf")

	if err := orch.Run(context.Background(), docID); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	payload, err := cat.StagePayload(context.Background(), docID, catalog.StageValidate, catalog.StatusOK)
	if err != nil {
		t.Fatalf("no validate payload: %v", err)
	}
	var vp ValidatePayload
	if err := json.Unmarshal(payload, &vp); err != nil {
		t.Fatalf("failed to decode validate payload: %v", err)
	}
	if len(vp.Items) != 1 || vp.Items[0].IsValid {
		t.Fatalf("negative total passed validation: %+v", vp.Items)
	}
	found := false
	for _, issue := range vp.Items[0].Issues {
		if issue == IssueInvalidTotal {
			found = true
		}
	}
	if !found {
		t.Errorf("issues %v missing %s", vp.Items[0].Issues, IssueInvalidTotal)
	}

	res := stageResult(t, cat, docID)
	if !res.RequiresReview {
		t.Error("invoice with invalid item not flagged for review")
	}
	if res.OverallConfidence > testConfig().ReviewThreshold {
		t.Errorf("overall confidence %f exceeds review threshold despite invalid item", res.OverallConfidence)
	}
}

func TestRunTransientFailureIsRetried(t *testing.T) {
	reg := invoiceRegistry()
	classifier := &collab.MockClassifier{
		Result:    &collab.Classification{Label: "invoice", Confidence: 0.9},
		Err:       collab.Transient(errors.New("connection reset")),
		FailTimes: 2,
	}
	reg.Classifier = classifier
	orch, cat, docID := newTestRun(t, reg, "invoice.pdf", "application/pdf")

	if err := orch.Run(context.Background(), docID); err != nil {
		t.Fatalf("run failed despite retry budget: %v", err)
	}
	if classifier.Calls() != 3 {
		t.Errorf("classifier called %d times, want 3", classifier.Calls())
	}

	events, err := cat.Events(context.Background(), docID)
	if err != nil {
		t.Fatalf("failed to fetch events: %v", err)
	}
	retries := 0
	for _, ev := range events {
		if ev.Stage == catalog.StageClassify && ev.Status == catalog.StatusRetry {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("recorded %d classify/retry events, want 2", retries)
	}
}

func TestRunExhaustedRetriesFail(t *testing.T) {
	reg := invoiceRegistry()
	reg.Extractor = &collab.MockExtractor{Err: collab.Transient(errors.New("rate limited"))}
	orch, cat, docID := newTestRun(t, reg, "invoice.pdf", "application/pdf")

	if err := orch.Run(context.Background(), docID); err == nil {
		t.Fatal("run succeeded with a permanently failing extractor")
	}

	ok, err := cat.HasEvent(context.Background(), docID, catalog.StageExtract, catalog.StatusFail)
	if err != nil {
		t.Fatalf("event lookup failed: %v", err)
	}
	if !ok {
		t.Error("missing extract/fail event after retry exhaustion")
	}
	// The pipeline halts: validate never starts.
	started, err := cat.HasEvent(context.Background(), docID, catalog.StageValidate, catalog.StatusStart)
	if err != nil {
		t.Fatalf("event lookup failed: %v", err)
	}
	if started {
		t.Error("validate started after fatal extract failure")
	}

	progress, err := cat.Progress(context.Background(), docID)
	if err != nil {
		t.Fatalf("progress failed: %v", err)
	}
	if !progress.Failed || progress.Completed {
		t.Errorf("progress failed=%v completed=%v, want failed run", progress.Failed, progress.Completed)
	}
}

func TestRunFatalErrorIsNotRetried(t *testing.T) {
	reg := invoiceRegistry()
	parser := &collab.MockParser{Err: errors.New("unsupported file structure")}
	reg.Parser = parser
	orch, cat, docID := newTestRun(t, reg, "invoice.pdf", "application/pdf")

	if err := orch.Run(context.Background(), docID); err == nil {
		t.Fatal("run succeeded with a fatally failing parser")
	}
	if parser.Calls() != 1 {
		t.Errorf("fatal parser error retried: %d calls", parser.Calls())
	}
	started, err := cat.HasEvent(context.Background(), docID, catalog.StageClassify, catalog.StatusStart)
	if err != nil {
		t.Fatalf("event lookup failed: %v", err)
	}
	if started {
		t.Error("classify started after fatal parse failure")
	}
}

func TestRunLinkFailureStagesForReview(t *testing.T) {
	reg := invoiceRegistry()
	reg.Linker = &collab.MockLinker{Err: errors.New("pricing catalog unavailable")}
	orch, cat, docID := newTestRun(t, reg, "invoice.pdf", "application/pdf")

	if err := orch.Run(context.Background(), docID); err != nil {
		t.Fatalf("link failure aborted the run: %v", err)
	}

	failed, err := cat.HasEvent(context.Background(), docID, catalog.StageLink, catalog.StatusFail)
	if err != nil {
		t.Fatalf("event lookup failed: %v", err)
	}
	if !failed {
		t.Error("missing link/fail event")
	}

	res := stageResult(t, cat, docID)
	if !res.RequiresReview {
		t.Error("link failure should force review")
	}
	if res.LinkageCoverage != 0 {
		t.Errorf("linkage coverage = %f after link failure, want 0", res.LinkageCoverage)
	}
	if res.TotalItemsExtracted != 1 {
		t.Errorf("extraction result lost: %d items", res.TotalItemsExtracted)
	}
}

func TestRunImageGoesThroughOCR(t *testing.T) {
	reg := invoiceRegistry()
	ocr := &collab.MockOCR{Result: &collab.OCRResult{
		Text: hebrewInvoiceText, Confidence: 0.85, LanguagesDetected: []string{"heb"},
	}}
	parser := &collab.MockParser{}
	reg.OCR = ocr
	reg.Parser = parser
	orch, cat, docID := newTestRun(t, reg, "receipt.jpg", "image/jpeg")

	if err := orch.Run(context.Background(), docID); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if ocr.Calls() != 1 {
		t.Errorf("OCR called %d times for an image, want 1", ocr.Calls())
	}
	if parser.Calls() != 0 {
		t.Errorf("structural parser called %d times for an image, want 0", parser.Calls())
	}

	res := stageResult(t, cat, docID)
	if conf := res.StageConfidences[string(catalog.StageParse)]; conf != 0.85 {
		t.Errorf("parse confidence = %f, want OCR confidence 0.85", conf)
	}
}

func TestRunScannedPDFFallsBackToOCR(t *testing.T) {
	reg := invoiceRegistry()
	ocr := &collab.MockOCR{Result: &collab.OCRResult{Text: hebrewInvoiceText, Confidence: 0.8}}
	reg.OCR = ocr
	// Parser yields almost nothing, as it does for scanned pages.
	reg.Parser = &collab.MockParser{Result: &collab.ParseResult{Elements: []collab.Element{
		{Type: "text", Text: " ", Page: 1},
	}}}
	orch, _, docID := newTestRun(t, reg, "scan.pdf", "application/pdf")

	if err := orch.Run(context.Background(), docID); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if ocr.Calls() != 1 {
		t.Errorf("OCR fallback called %d times, want 1", ocr.Calls())
	}
}

func TestValidateItem(t *testing.T) {
	base := collab.Item{Title: "Plywood 4x8", Quantity: 5, UnitPrice: 120, TotalPrice: 600, Confidence: 0.9}

	cases := []struct {
		name      string
		mutate    func(collab.Item) collab.Item
		wantValid bool
		wantIssue string
	}{
		{"valid", func(i collab.Item) collab.Item { return i }, true, ""},
		{"within tolerance", func(i collab.Item) collab.Item { i.TotalPrice = 600.005; return i }, true, ""},
		{"missing title", func(i collab.Item) collab.Item { i.Title = "  "; return i }, false, IssueMissingTitle},
		{"negative quantity", func(i collab.Item) collab.Item { i.Quantity = -5; return i }, false, IssueInvalidQuantity},
		{"negative unit price", func(i collab.Item) collab.Item { i.UnitPrice = -120; return i }, false, IssueInvalidUnitPrice},
		{"negative total", func(i collab.Item) collab.Item { i.TotalPrice = -600; return i }, false, IssueInvalidTotal},
		{"total mismatch", func(i collab.Item) collab.Item { i.TotalPrice = 700; return i }, false, IssueTotalMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := validateItem(0, tc.mutate(base), 0.01)
			if v.IsValid != tc.wantValid {
				t.Fatalf("is_valid = %v, want %v (issues %v)", v.IsValid, tc.wantValid, v.Issues)
			}
			if tc.wantValid {
				if v.ConfidenceScore != 0.9 {
					t.Errorf("valid item score = %f, want extractor confidence 0.9", v.ConfidenceScore)
				}
				return
			}
			found := false
			for _, issue := range v.Issues {
				if issue == tc.wantIssue {
					found = true
				}
			}
			if !found {
				t.Errorf("issues %v missing %s", v.Issues, tc.wantIssue)
			}
			if v.ConfidenceScore >= 0.9 {
				t.Errorf("violation did not lower score: %f", v.ConfidenceScore)
			}
		})
	}
}

func TestAggregateConfidence(t *testing.T) {
	confs := map[catalog.Stage]float64{
		catalog.StageParse:    1.0,
		catalog.StageClassify: 0.6,
		catalog.StageExtract:  0.9,
	}
	got := aggregateConfidence(confs)
	if got <= 0 || got > 1 {
		t.Fatalf("aggregate %f out of range", got)
	}
	if got > 0.6 {
		t.Errorf("aggregate %f exceeds minimum stage confidence 0.6", got)
	}

	if aggregateConfidence(nil) != 0 {
		t.Error("empty confidence set should aggregate to 0")
	}
	perfect := aggregateConfidence(map[catalog.Stage]float64{catalog.StageParse: 1.0})
	if perfect != 1.0 {
		t.Errorf("all-perfect run aggregates to %f, want 1.0", perfect)
	}
}

func TestPackElements(t *testing.T) {
	chunks := packElements([]collab.Element{
		{Type: "title", Text: "Section A"},
		{Type: "text", Text: "line 1"},
		{Type: "text", Text: "line 2"},
		{Type: "title", Text: "Section B"},
		{Type: "text", Text: "line 3"},
	})
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2 split at title boundaries", len(chunks))
	}
	if chunks[0].Title != "Section A" || chunks[1].Title != "Section B" {
		t.Errorf("chunk titles = %q, %q", chunks[0].Title, chunks[1].Title)
	}
	if chunks[0].Elements != 3 || chunks[1].Elements != 2 {
		t.Errorf("chunk element counts = %d, %d, want 3, 2", chunks[0].Elements, chunks[1].Elements)
	}
}

func TestDetectLanguages(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		want    []string
		primary string
	}{
		{"hebrew only", "חשבונית מס", []string{"he"}, "he"},
		{"english only", "Invoice number 42", []string{"en"}, "en"},
		{"mixed", hebrewInvoiceText, []string{"he", "en"}, "mixed"},
		{"digits only", "12345", []string{"unknown"}, "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := detectLanguages(tc.text)
			if len(got) != len(tc.want) {
				t.Fatalf("detected %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("detected %v, want %v", got, tc.want)
				}
			}
			if p := primaryLanguage(got); p != tc.primary {
				t.Errorf("primary = %q, want %q", p, tc.primary)
			}
		})
	}
}
