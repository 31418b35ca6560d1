package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Document is a catalog row for an ingested file. Bytes are immutable after
// creation; pipeline stages only append derived metadata (language,
// confidence).
type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mime_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StoragePath string    `json:"storage_path"`
	ContentHash string    `json:"content_hash"`
	PageCount   int       `json:"page_count,omitempty"`
	Language    string    `json:"language,omitempty"`
	Confidence  float64   `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateDocument inserts a new document row. Returns ErrDuplicateHash if a
// row with the same content hash already exists; the UNIQUE constraint makes
// this safe under concurrent inserts of identical bytes.
func (c *Catalog) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, mime_type, size_bytes, storage_path, content_hash, page_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO NOTHING`,
		doc.ID, doc.Filename, doc.MimeType, doc.SizeBytes, doc.StoragePath,
		doc.ContentHash, doc.PageCount, doc.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check insert result: %w", err)
	}
	if rows == 0 {
		return ErrDuplicateHash
	}
	return nil
}

// GetDocument returns a document by ID.
func (c *Catalog) GetDocument(ctx context.Context, id string) (*Document, error) {
	return c.scanDocument(c.db.QueryRowContext(ctx, selectDocument+" WHERE id = ?", id))
}

// GetDocumentByHash returns a document by content hash.
func (c *Catalog) GetDocumentByHash(ctx context.Context, hash string) (*Document, error) {
	return c.scanDocument(c.db.QueryRowContext(ctx, selectDocument+" WHERE content_hash = ?", hash))
}

// ListDocuments returns documents ordered by creation time, newest first.
func (c *Catalog) ListDocuments(ctx context.Context, limit, offset int) ([]*Document, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := c.db.QueryContext(ctx,
		selectDocument+" ORDER BY created_at DESC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := c.scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SetDocumentAnalysis records pipeline-derived metadata on a document.
// This is the only mutation the pipeline performs on catalog rows.
func (c *Catalog) SetDocumentAnalysis(ctx context.Context, id, language string, confidence float64) error {
	res, err := c.db.ExecContext(ctx,
		"UPDATE documents SET language = ?, confidence = ? WHERE id = ?",
		language, confidence, id)
	if err != nil {
		return fmt.Errorf("failed to update document analysis: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDocument removes a document row. This is an administrative action;
// the pipeline never deletes documents. The event log is preserved as an
// audit trail.
func (c *Catalog) DeleteDocument(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

const selectDocument = `
	SELECT id, filename, mime_type, size_bytes, storage_path, content_hash,
	       page_count, language, confidence, created_at
	FROM documents`

type rowScanner interface {
	Scan(dest ...any) error
}

func (c *Catalog) scanDocument(row *sql.Row) (*Document, error) {
	doc, err := scanDocumentFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (c *Catalog) scanDocumentRows(rows *sql.Rows) (*Document, error) {
	return scanDocumentFrom(rows)
}

func scanDocumentFrom(s rowScanner) (*Document, error) {
	var doc Document
	var createdAt string
	if err := s.Scan(
		&doc.ID, &doc.Filename, &doc.MimeType, &doc.SizeBytes, &doc.StoragePath,
		&doc.ContentHash, &doc.PageCount, &doc.Language, &doc.Confidence, &createdAt,
	); err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document timestamp: %w", err)
	}
	doc.CreatedAt = t
	return &doc, nil
}
