// Package pipeline runs ingested documents through the seven-stage state
// machine (parse, classify, pack, extract, validate, link, stage). Every
// stage transition is appended to the catalog's event log; the log, not any
// in-memory state, is the authoritative record of pipeline progress.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/eliranbeatt/studioOpsAi-sub001/internal/catalog"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/collab"
	"github.com/eliranbeatt/studioOpsAi-sub001/internal/store"
)

// Defaults for Config fields left zero.
const (
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = 2 * time.Second
	DefaultStageTimeout    = 2 * time.Minute
	DefaultReviewThreshold = 0.7
	DefaultTotalTolerance  = 0.01
)

// Config tunes retry, timeout, and confidence behavior.
type Config struct {
	// MaxRetries bounds retries of a transient stage failure. The stage
	// runs at most MaxRetries+1 times.
	MaxRetries int
	// RetryDelay is the initial backoff; subsequent retries back off
	// exponentially.
	RetryDelay time.Duration
	// StageTimeout is the deadline for a single collaborator call attempt.
	StageTimeout time.Duration
	// ReviewThreshold is the overall-confidence floor below which a
	// document is flagged for manual review.
	ReviewThreshold float64
	// TotalTolerance is the allowed relative deviation between an item's
	// total price and quantity * unit price.
	TotalTolerance float64
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = DefaultStageTimeout
	}
	if c.ReviewThreshold <= 0 {
		c.ReviewThreshold = DefaultReviewThreshold
	}
	if c.TotalTolerance <= 0 {
		c.TotalTolerance = DefaultTotalTolerance
	}
	return c
}

// Orchestrator drives documents through the pipeline. It satisfies
// queue.Runner; the worker pool calls Run once per dequeued document.
type Orchestrator struct {
	catalog *catalog.Catalog
	store   store.ContentStore
	collab  *collab.Registry
	cfg     Config
	logger  *slog.Logger
}

// New creates an orchestrator. The registry must pass Validate.
func New(cat *catalog.Catalog, st store.ContentStore, reg *collab.Registry, cfg Config, logger *slog.Logger) (*Orchestrator, error) {
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid collaborator registry: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		catalog: cat,
		store:   st,
		collab:  reg,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}, nil
}

// Run executes the full pipeline for one document. A failure in parse,
// classify, pack, extract, or validate is fatal and halts the run with the
// fail event already recorded; a link failure is downgraded to zero linkage
// coverage and the result still stages for review.
func (o *Orchestrator) Run(ctx context.Context, docID string) error {
	doc, err := o.catalog.GetDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("document %s not in catalog: %w", docID, err)
	}

	st := &runState{
		doc:         doc,
		confidences: make(map[catalog.Stage]float64),
	}
	start := time.Now()
	o.logger.Info("pipeline run started", "document_id", docID, "filename", doc.Filename)

	fatal := []struct {
		stage catalog.Stage
		fn    func(context.Context, *runState) (any, error)
	}{
		{catalog.StageParse, o.parse},
		{catalog.StageClassify, o.classify},
		{catalog.StagePack, o.pack},
		{catalog.StageExtract, o.extract},
		{catalog.StageValidate, o.validate},
	}
	for _, s := range fatal {
		if err := o.runStage(ctx, docID, s.stage, st, s.fn); err != nil {
			o.logger.Error("pipeline run failed",
				"document_id", docID, "stage", s.stage, "error", err)
			return fmt.Errorf("stage %s failed for document %s: %w", s.stage, docID, err)
		}
	}

	if err := o.runStage(ctx, docID, catalog.StageLink, st, o.link); err != nil {
		// Linkage is best-effort: the pricing catalog being down must not
		// discard a finished extraction.
		st.linkFailed = true
		st.links = nil
		o.logger.Warn("link stage failed, staging without linkage",
			"document_id", docID, "error", err)
	}

	if err := o.runStage(ctx, docID, catalog.StageStage, st, o.stage); err != nil {
		o.logger.Error("pipeline run failed",
			"document_id", docID, "stage", catalog.StageStage, "error", err)
		return fmt.Errorf("stage stage failed for document %s: %w", docID, err)
	}

	o.logger.Info("pipeline run completed",
		"document_id", docID,
		"duration", time.Since(start),
		"overall_confidence", st.result.OverallConfidence,
		"requires_review", st.result.RequiresReview,
		"items", st.result.TotalItemsExtracted)
	return nil
}

// runStage wraps one stage with the event protocol: start on entry, ok with
// the stage payload on success, retry per transient attempt, fail on
// exhaustion or fatal error. Each attempt gets its own deadline.
func (o *Orchestrator) runStage(ctx context.Context, docID string, stage catalog.Stage, st *runState, fn func(context.Context, *runState) (any, error)) error {
	if err := o.catalog.AppendEvent(ctx, docID, stage, catalog.StatusStart, nil); err != nil {
		return err
	}

	var payload any
	err := retry.Do(
		func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
			defer cancel()
			var attemptErr error
			payload, attemptErr = fn(attemptCtx, st)
			return attemptErr
		},
		retry.Context(ctx),
		retry.Attempts(uint(o.cfg.MaxRetries)+1),
		retry.Delay(o.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(attempt uint, err error) {
			o.logger.Warn("stage retry",
				"document_id", docID, "stage", stage,
				"attempt", attempt+1, "error", err)
			if evErr := o.catalog.AppendEvent(ctx, docID, stage, catalog.StatusRetry, map[string]any{
				"attempt": attempt + 1,
				"error":   err.Error(),
			}); evErr != nil {
				o.logger.Error("failed to append retry event",
					"document_id", docID, "stage", stage, "error", evErr)
			}
		}),
	)
	if err != nil {
		if evErr := o.catalog.AppendEvent(ctx, docID, stage, catalog.StatusFail, map[string]any{
			"error":     err.Error(),
			"transient": collab.IsTransient(err),
		}); evErr != nil {
			o.logger.Error("failed to append fail event",
				"document_id", docID, "stage", stage, "error", evErr)
		}
		return err
	}

	return o.catalog.AppendEvent(ctx, docID, stage, catalog.StatusOK, payload)
}

func isRetryable(err error) bool {
	return collab.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}
