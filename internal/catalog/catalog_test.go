package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func testDocument(id, hash string) *Document {
	return &Document{
		ID:          id,
		Filename:    "invoice.pdf",
		MimeType:    "application/pdf",
		SizeBytes:   2048,
		StoragePath: "documents/" + hash + ".pdf",
		ContentHash: hash,
		PageCount:   2,
	}
}

func TestCreateDocument(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	if err := c.CreateDocument(ctx, testDocument("doc-1", "hash-a")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	t.Run("round trips fields", func(t *testing.T) {
		doc, err := c.GetDocument(ctx, "doc-1")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if doc.Filename != "invoice.pdf" || doc.ContentHash != "hash-a" {
			t.Errorf("unexpected document: %+v", doc)
		}
		if doc.CreatedAt.IsZero() {
			t.Error("expected created_at to be set")
		}
	})

	t.Run("duplicate hash returns ErrDuplicateHash", func(t *testing.T) {
		err := c.CreateDocument(ctx, testDocument("doc-2", "hash-a"))
		if !errors.Is(err, ErrDuplicateHash) {
			t.Fatalf("expected ErrDuplicateHash, got %v", err)
		}

		// Only the winner's row exists.
		if _, err := c.GetDocument(ctx, "doc-2"); !errors.Is(err, ErrNotFound) {
			t.Errorf("losing insert must not leave a row, got %v", err)
		}
		doc, err := c.GetDocumentByHash(ctx, "hash-a")
		if err != nil {
			t.Fatalf("get by hash failed: %v", err)
		}
		if doc.ID != "doc-1" {
			t.Errorf("expected doc-1 to win, got %s", doc.ID)
		}
	})

	t.Run("missing document returns ErrNotFound", func(t *testing.T) {
		if _, err := c.GetDocument(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSetDocumentAnalysis(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	if err := c.CreateDocument(ctx, testDocument("doc-1", "hash-a")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := c.SetDocumentAnalysis(ctx, "doc-1", "he", 0.91); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	doc, err := c.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.Language != "he" || doc.Confidence != 0.91 {
		t.Errorf("analysis not recorded: %+v", doc)
	}

	if err := c.SetDocumentAnalysis(ctx, "missing", "en", 0.5); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteDocument(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	if err := c.CreateDocument(ctx, testDocument("doc-1", "hash-a")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := c.AppendEvent(ctx, "doc-1", StageUpload, StatusOK, nil); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	if err := c.DeleteDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := c.GetDocument(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Event log survives as audit trail.
	events, err := c.Events(ctx, "doc-1")
	if err != nil {
		t.Fatalf("events failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 surviving event, got %d", len(events))
	}
}

func TestEventLog(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	type parsePayload struct {
		Elements int `json:"elements"`
	}

	appends := []struct {
		stage  Stage
		status EventStatus
	}{
		{StageUpload, StatusOK},
		{StageParse, StatusStart},
		{StageParse, StatusOK},
		{StageClassify, StatusStart},
		{StageClassify, StatusRetry},
		{StageClassify, StatusOK},
	}
	for _, a := range appends {
		if err := c.AppendEvent(ctx, "doc-1", a.stage, a.status, nil); err != nil {
			t.Fatalf("append %s/%s failed: %v", a.stage, a.status, err)
		}
	}

	t.Run("events preserve append order", func(t *testing.T) {
		events, err := c.Events(ctx, "doc-1")
		if err != nil {
			t.Fatalf("events failed: %v", err)
		}
		if len(events) != len(appends) {
			t.Fatalf("expected %d events, got %d", len(appends), len(events))
		}
		for i, ev := range events {
			if ev.Stage != appends[i].stage || ev.Status != appends[i].status {
				t.Errorf("event %d: got %s/%s, want %s/%s",
					i, ev.Stage, ev.Status, appends[i].stage, appends[i].status)
			}
		}
	})

	t.Run("HasEvent", func(t *testing.T) {
		ok, err := c.HasEvent(ctx, "doc-1", StageClassify, StatusRetry)
		if err != nil || !ok {
			t.Errorf("expected classify/retry to exist, ok=%v err=%v", ok, err)
		}
		ok, err = c.HasEvent(ctx, "doc-1", StageExtract, StatusStart)
		if err != nil || ok {
			t.Errorf("expected no extract/start, ok=%v err=%v", ok, err)
		}
	})

	t.Run("StagePayload returns latest payload", func(t *testing.T) {
		if err := c.AppendEvent(ctx, "doc-1", StagePack, StatusOK, parsePayload{Elements: 7}); err != nil {
			t.Fatalf("append failed: %v", err)
		}
		raw, err := c.StagePayload(ctx, "doc-1", StagePack, StatusOK)
		if err != nil {
			t.Fatalf("payload failed: %v", err)
		}
		var p parsePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if p.Elements != 7 {
			t.Errorf("expected 7 elements, got %d", p.Elements)
		}

		if _, err := c.StagePayload(ctx, "doc-1", StageLink, StatusOK); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("events are isolated per document", func(t *testing.T) {
		events, err := c.Events(ctx, "other-doc")
		if err != nil {
			t.Fatalf("events failed: %v", err)
		}
		if len(events) != 0 {
			t.Errorf("expected no events for other-doc, got %d", len(events))
		}
	})
}

func TestProgress(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	t.Run("empty log", func(t *testing.T) {
		p, err := c.Progress(ctx, "doc-1")
		if err != nil {
			t.Fatalf("progress failed: %v", err)
		}
		if p.EventCount != 0 || p.Failed || p.Completed {
			t.Errorf("unexpected progress for empty log: %+v", p)
		}
	})

	t.Run("failed run", func(t *testing.T) {
		for _, ev := range []struct {
			stage  Stage
			status EventStatus
		}{
			{StageParse, StatusStart}, {StageParse, StatusOK},
			{StageClassify, StatusStart}, {StageClassify, StatusFail},
		} {
			if err := c.AppendEvent(ctx, "doc-fail", ev.stage, ev.status, nil); err != nil {
				t.Fatalf("append failed: %v", err)
			}
		}
		p, err := c.Progress(ctx, "doc-fail")
		if err != nil {
			t.Fatalf("progress failed: %v", err)
		}
		if !p.Failed || p.Completed {
			t.Errorf("expected failed progress, got %+v", p)
		}
		if p.LastStage != StageClassify || p.LastStatus != StatusFail {
			t.Errorf("unexpected last stage/status: %s/%s", p.LastStage, p.LastStatus)
		}
	})

	t.Run("completed run", func(t *testing.T) {
		for _, stage := range PipelineStages {
			if err := c.AppendEvent(ctx, "doc-ok", stage, StatusStart, nil); err != nil {
				t.Fatalf("append failed: %v", err)
			}
			if err := c.AppendEvent(ctx, "doc-ok", stage, StatusOK, nil); err != nil {
				t.Fatalf("append failed: %v", err)
			}
		}
		p, err := c.Progress(ctx, "doc-ok")
		if err != nil {
			t.Fatalf("progress failed: %v", err)
		}
		if !p.Completed || p.Failed {
			t.Errorf("expected completed progress, got %+v", p)
		}
	})
}
