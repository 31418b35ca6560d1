package queue

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner executes the full pipeline for one document. One worker calls Run
// for one document at a time; Run must never panic and reports failures
// through its error (which workers log, never propagate — one document's
// failure must not stop the queue from draining).
type Runner interface {
	Run(ctx context.Context, docID string) error
}

// Pool drains the queue with a fixed set of workers.
type Pool struct {
	queue   *Queue
	runner  Runner
	workers int
	logger  *slog.Logger
}

// PoolConfig configures a worker pool.
type PoolConfig struct {
	Queue   *Queue
	Runner  Runner
	Workers int // default 2
	Logger  *slog.Logger
}

// NewPool creates a worker pool over the queue.
func NewPool(cfg PoolConfig) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:   cfg.Queue,
		runner:  cfg.Runner,
		workers: workers,
		logger:  logger.With("component", "worker_pool"),
	}
}

// Start runs the workers until the context is cancelled. Blocks; run in a
// goroutine. A worker owns its current document exclusively from dequeue
// until Run returns.
func (p *Pool) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		worker := i
		g.Go(func() error {
			logger := p.logger.With("worker", worker)
			logger.Info("worker started")
			for {
				select {
				case <-ctx.Done():
					logger.Info("worker stopping")
					return nil
				case docID := <-p.queue.take():
					p.process(ctx, logger, docID)
				}
			}
		})
	}
	return g.Wait()
}

// process runs one document through the pipeline and releases its queue
// slot when done.
func (p *Pool) process(ctx context.Context, logger *slog.Logger, docID string) {
	defer p.queue.done(docID)

	logger.Info("processing document", "document_id", docID)
	if err := p.runner.Run(ctx, docID); err != nil {
		logger.Error("pipeline run failed", "document_id", docID, "error", err)
		return
	}
	logger.Info("document processed", "document_id", docID)
}
