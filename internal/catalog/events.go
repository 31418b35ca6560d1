package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Stage identifies a step of the ingestion lifecycle.
type Stage string

const (
	StageUpload   Stage = "upload"
	StageParse    Stage = "parse"
	StageClassify Stage = "classify"
	StagePack     Stage = "pack"
	StageExtract  Stage = "extract"
	StageValidate Stage = "validate"
	StageLink     Stage = "link"
	StageStage    Stage = "stage"
	StageClarify  Stage = "clarify"
	StageCommit   Stage = "commit"
	StageErr      Stage = "error"
)

// PipelineStages lists the orchestrated stages in execution order. Upload
// precedes the pipeline; clarify/commit belong to downstream workflows.
var PipelineStages = []Stage{
	StageParse, StageClassify, StagePack, StageExtract,
	StageValidate, StageLink, StageStage,
}

// EventStatus is the status recorded for a stage transition.
type EventStatus string

const (
	StatusStart EventStatus = "start"
	StatusOK    EventStatus = "ok"
	StatusRetry EventStatus = "retry"
	StatusFail  EventStatus = "fail"
)

// IngestEvent is one append-only entry of the event log. Events are never
// rewritten or deleted; the per-document sequence is the pipeline's audit
// trail and sole progress indicator.
type IngestEvent struct {
	ID         int64           `json:"id"`
	DocumentID string          `json:"document_id"`
	Stage      Stage           `json:"stage"`
	Status     EventStatus     `json:"status"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AppendEvent appends an event to the log. The payload may be nil.
func (c *Catalog) AppendEvent(ctx context.Context, docID string, stage Stage, status EventStatus, payload any) error {
	var payloadJSON []byte
	if payload != nil {
		var err error
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO ingest_events (document_id, stage, status, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		docID, string(stage), string(status), nullableString(payloadJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append %s/%s event: %w", stage, status, err)
	}
	return nil
}

// Events returns all events for a document in append order.
func (c *Catalog) Events(ctx context.Context, docID string) ([]*IngestEvent, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, document_id, stage, status, payload, created_at
		FROM ingest_events WHERE document_id = ? ORDER BY id ASC`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*IngestEvent
	for rows.Next() {
		var ev IngestEvent
		var payload sql.NullString
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.DocumentID, &ev.Stage, &ev.Status, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if payload.Valid {
			ev.Payload = json.RawMessage(payload.String)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse event timestamp: %w", err)
		}
		ev.CreatedAt = t
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// HasEvent reports whether at least one event with the given stage and
// status exists for the document.
func (c *Catalog) HasEvent(ctx context.Context, docID string, stage Stage, status EventStatus) (bool, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ingest_events
		WHERE document_id = ? AND stage = ? AND status = ?`,
		docID, string(stage), string(status)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count events: %w", err)
	}
	return count > 0, nil
}

// StagePayload returns the payload of the most recent event with the given
// stage and status, or ErrNotFound if none exists.
func (c *Catalog) StagePayload(ctx context.Context, docID string, stage Stage, status EventStatus) (json.RawMessage, error) {
	var payload sql.NullString
	err := c.db.QueryRowContext(ctx, `
		SELECT payload FROM ingest_events
		WHERE document_id = ? AND stage = ? AND status = ?
		ORDER BY id DESC LIMIT 1`,
		docID, string(stage), string(status)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stage payload: %w", err)
	}
	if !payload.Valid {
		return nil, nil
	}
	return json.RawMessage(payload.String), nil
}

// Progress summarizes where a document is in the pipeline, reconstructed
// from the event log.
type Progress struct {
	DocumentID  string                `json:"document_id"`
	Stages      map[Stage]EventStatus `json:"stages"`
	LastStage   Stage                 `json:"last_stage,omitempty"`
	LastStatus  EventStatus           `json:"last_status,omitempty"`
	Failed      bool                  `json:"failed"`
	Completed   bool                  `json:"completed"`
	EventCount  int                   `json:"event_count"`
	LastEventAt time.Time             `json:"last_event_at,omitempty"`
}

// Progress reconstructs pipeline progress from the event log. The latest
// status per stage defines progress; a fail in any stage marks the run
// failed, and stage/ok marks it completed.
func (c *Catalog) Progress(ctx context.Context, docID string) (*Progress, error) {
	events, err := c.Events(ctx, docID)
	if err != nil {
		return nil, err
	}

	p := &Progress{
		DocumentID: docID,
		Stages:     make(map[Stage]EventStatus),
		EventCount: len(events),
	}
	for _, ev := range events {
		p.Stages[ev.Stage] = ev.Status
		p.LastStage = ev.Stage
		p.LastStatus = ev.Status
		p.LastEventAt = ev.CreatedAt
		if ev.Status == StatusFail {
			p.Failed = true
		}
		if ev.Stage == StageStage && ev.Status == StatusOK {
			p.Completed = true
		}
	}
	return p, nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
