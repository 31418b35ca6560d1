// Package upload implements the ingestion front door: validation,
// content-hash deduplication, durable storage, catalog registration, and
// handoff to the processing queue. The sequence store -> catalog -> event ->
// enqueue either completes in full or is rolled back, so a failed upload
// never leaves an orphaned object or a catalog row the pipeline will never
// pick up.
package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/eliranbeatt/studioOpsAi-sub001/internal/catalog"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/queue"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/store"
)

// DefaultMaxSizeBytes caps uploads at 50 MiB unless configured otherwise.
const DefaultMaxSizeBytes = 50 << 20

// Request carries one file submitted for ingestion.
type Request struct {
	Filename   string
	MimeType   string
	ProjectRef string
	Data       []byte
}

// Result reports the outcome of an upload. When Duplicate is true the
// document fields describe the previously ingested copy and no new
// processing was scheduled.
type Result struct {
	DocumentID  string `json:"document_id"`
	StoragePath string `json:"storage_path"`
	ContentHash string `json:"content_hash"`
	PageCount   int    `json:"page_count,omitempty"`
	Duplicate   bool   `json:"duplicate"`
}

// Config holds upload service dependencies and limits.
type Config struct {
	Catalog      *catalog.Catalog
	Store        store.ContentStore
	Queue        *queue.Queue
	MaxSizeBytes int64
	Logger       *slog.Logger
}

// Service accepts uploads and hands accepted documents to the pipeline.
type Service struct {
	catalog *catalog.Catalog
	store   store.ContentStore
	queue   *queue.Queue
	maxSize int64
	logger  *slog.Logger
}

// NewService creates an upload service. Zero or negative MaxSizeBytes falls
// back to DefaultMaxSizeBytes.
func NewService(cfg Config) *Service {
	maxSize := cfg.MaxSizeBytes
	if maxSize <= 0 {
		maxSize = DefaultMaxSizeBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog: cfg.Catalog,
		store:   cfg.Store,
		queue:   cfg.Queue,
		maxSize: maxSize,
		logger:  logger,
	}
}

// Upload validates the request, deduplicates by content hash, stores the
// bytes, registers the document, and enqueues it for processing. Identical
// bytes uploaded twice return the original document with Duplicate set and
// cause no new storage, catalog, or queue activity.
func (s *Service) Upload(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(req, s.maxSize); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(req.Data)
	hash := hex.EncodeToString(sum[:])

	if existing, err := s.catalog.GetDocumentByHash(ctx, hash); err == nil {
		s.logger.Info("duplicate upload detected",
			"filename", req.Filename, "hash", hash, "document_id", existing.ID)
		return duplicateResult(existing), nil
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return nil, &StorageError{Op: "dedup lookup", Err: err}
	}

	doc := &catalog.Document{
		ID:          uuid.NewString(),
		Filename:    req.Filename,
		MimeType:    req.MimeType,
		SizeBytes:   int64(len(req.Data)),
		StoragePath: storageKey(req, hash),
		ContentHash: hash,
		PageCount:   countPages(req),
	}

	if err := s.store.Put(ctx, doc.StoragePath, req.Data, req.MimeType); err != nil {
		return nil, &StorageError{Op: "object store put", Err: err}
	}

	if err := s.catalog.CreateDocument(ctx, doc); err != nil {
		if errors.Is(err, catalog.ErrDuplicateHash) {
			// Lost a race with a concurrent upload of the same bytes. The
			// winner's row is authoritative; our object is only removed if it
			// landed under a different key than the winner's.
			winner, lookupErr := s.catalog.GetDocumentByHash(ctx, hash)
			if lookupErr != nil {
				return nil, &StorageError{Op: "dedup lookup after race", Err: lookupErr}
			}
			if winner.StoragePath != doc.StoragePath {
				s.deleteObject(ctx, doc.StoragePath)
			}
			return duplicateResult(winner), nil
		}
		s.rollback(ctx, doc, fmt.Sprintf("catalog insert failed: %v", err))
		return nil, &StorageError{Op: "catalog insert", Err: err}
	}

	if err := s.catalog.AppendEvent(ctx, doc.ID, catalog.StageUpload, catalog.StatusOK, map[string]any{
		"filename":   doc.Filename,
		"size_bytes": doc.SizeBytes,
		"hash":       doc.ContentHash,
	}); err != nil {
		s.rollback(ctx, doc, fmt.Sprintf("event append failed: %v", err))
		return nil, &StorageError{Op: "event append", Err: err}
	}

	accepted, err := s.queue.Enqueue(doc.ID)
	if err != nil {
		s.rollback(ctx, doc, fmt.Sprintf("enqueue failed: %v", err))
		return nil, &StorageError{Op: "enqueue", Err: err}
	}
	if !accepted {
		// Already pending under this ID, which cannot happen for a fresh
		// UUID. Treat it as scheduled.
		s.logger.Warn("document already pending at enqueue", "document_id", doc.ID)
	}

	s.logger.Info("document ingested",
		"document_id", doc.ID, "filename", doc.Filename,
		"size_bytes", doc.SizeBytes, "pages", doc.PageCount)

	return &Result{
		DocumentID:  doc.ID,
		StoragePath: doc.StoragePath,
		ContentHash: doc.ContentHash,
		PageCount:   doc.PageCount,
	}, nil
}

// rollback undoes a partially completed upload: the stored object and
// catalog row are removed so the failure is invisible to later retries. A
// terminal upload/fail event is left behind for the audit trail.
func (s *Service) rollback(ctx context.Context, doc *catalog.Document, reason string) {
	s.deleteObject(ctx, doc.StoragePath)
	if err := s.catalog.DeleteDocument(ctx, doc.ID); err != nil && !errors.Is(err, catalog.ErrNotFound) {
		s.logger.Error("rollback: failed to delete catalog row",
			"document_id", doc.ID, "error", err)
	}
	if err := s.catalog.AppendEvent(ctx, doc.ID, catalog.StageUpload, catalog.StatusFail, map[string]any{
		"error": reason,
	}); err != nil {
		s.logger.Error("rollback: failed to append failure event",
			"document_id", doc.ID, "error", err)
	}
	s.logger.Warn("upload rolled back", "document_id", doc.ID, "reason", reason)
}

func (s *Service) deleteObject(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, store.ErrObjectNotFound) {
		s.logger.Error("rollback: failed to delete stored object", "key", key, "error", err)
	}
}

func duplicateResult(doc *catalog.Document) *Result {
	return &Result{
		DocumentID:  doc.ID,
		StoragePath: doc.StoragePath,
		ContentHash: doc.ContentHash,
		PageCount:   doc.PageCount,
		Duplicate:   true,
	}
}

// storageKey derives a deterministic object key from the content hash and
// declared project, so identical bytes for the same project always map to
// the same location.
func storageKey(req Request, hash string) string {
	ext := strings.ToLower(filepath.Ext(req.Filename))
	project := strings.TrimSpace(req.ProjectRef)
	if project == "" {
		project = "unassigned"
	}
	return fmt.Sprintf("documents/%s/%s%s", project, hash, ext)
}

// countPages returns the PDF page count, or zero for non-PDF content or
// unreadable PDFs. A bad page count is not worth rejecting an upload over.
func countPages(req Request) int {
	if strings.ToLower(filepath.Ext(req.Filename)) != ".pdf" {
		return 0
	}
	n, err := api.PageCount(bytes.NewReader(req.Data), nil)
	if err != nil {
		return 0
	}
	return n
}
