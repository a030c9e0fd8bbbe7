// Package dispatcher drives the batch loop: claim a batch, process it
// concurrently, write outcomes back and repeat until the queue is drained.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/product-extractor/internal/pipeline"
	"github.com/JakeFAU/product-extractor/internal/queue"
)

// DefaultPause separates consecutive batches.
const DefaultPause = time.Second

// Claimer hands out work and takes outcomes back.
type Claimer interface {
	Claim(ctx context.Context, limit int) ([]queue.WorkItem, error)
	Report(ctx context.Context, item queue.WorkItem, outcome queue.Outcome)
	ID() string
}

// Processor runs one item through the pipeline.
type Processor interface {
	Process(ctx context.Context, item queue.WorkItem) (pipeline.RunStatus, error)
}

// Config bounds a run.
type Config struct {
	BatchSize int
	// MaxBatches stops the loop after this many batches; zero means until
	// the queue is empty.
	MaxBatches int
	Pause      time.Duration
}

// Summary totals a run.
type Summary struct {
	Batches   int `json:"batches"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	// Skipped items were claimed but never admitted because the run was
	// canceled; they return to pending through claim recycling.
	Skipped int `json:"skipped"`
}

// Dispatcher owns the batch loop.
type Dispatcher struct {
	claimer   Claimer
	processor Processor
	cfg       Config
	logger    *zap.Logger
}

// New creates a Dispatcher.
func New(claimer Claimer, processor Processor, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		claimer:   claimer,
		processor: processor,
		cfg:       cfg,
		logger:    logger.Named("dispatcher"),
	}
}

// Run claims and processes batches until a claim comes back empty, the
// batch limit is hit or ctx ends. Only a failed claim is an error.
func (d *Dispatcher) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	workerID := d.claimer.ID()
	d.logger.Info("worker starting", zap.String("worker_id", workerID),
		zap.Int("batch_size", d.cfg.BatchSize), zap.Int("max_batches", d.cfg.MaxBatches))

	for d.cfg.MaxBatches <= 0 || sum.Batches < d.cfg.MaxBatches {
		if ctx.Err() != nil {
			d.logger.Info("stopping on cancellation", zap.String("worker_id", workerID))
			break
		}
		items, err := d.claimer.Claim(ctx, d.cfg.BatchSize)
		if err != nil {
			return sum, fmt.Errorf("claim batch: %w", err)
		}
		if len(items) == 0 {
			d.logger.Info("no more pending items", zap.Int("processed", sum.Processed))
			break
		}
		sum.Batches++
		d.logger.Info("processing batch", zap.Int("batch", sum.Batches), zap.Int("items", len(items)))
		if err := d.runBatch(ctx, items, &sum); err != nil {
			d.logger.Warn("batch left items unprocessed", zap.Int("batch", sum.Batches), zap.Error(err))
		}
		d.logger.Info("batch completed", zap.Int("batch", sum.Batches), zap.Int("processed", sum.Processed))

		if d.cfg.MaxBatches > 0 && sum.Batches >= d.cfg.MaxBatches {
			break
		}
		if !sleep(ctx, d.cfg.Pause) {
			break
		}
	}

	d.logger.Info("worker finished",
		zap.String("worker_id", workerID),
		zap.Int("batches", sum.Batches),
		zap.Int("processed", sum.Processed),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, nil
}

// runBatch processes items concurrently; the pipeline's gates bound how
// many actually run at once. It returns when every item has finished, with
// the first admission error if any item was skipped. A skip never stops the
// rest of the batch.
func (d *Dispatcher) runBatch(ctx context.Context, items []queue.WorkItem, sum *Summary) error {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	reportCtx := context.WithoutCancel(ctx)
	for _, item := range items {
		g.Go(func() error {
			st, err := d.processor.Process(ctx, item)
			if err == nil {
				d.claimer.Report(reportCtx, item, st.Outcome())
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				sum.Skipped++
				d.logger.Debug("item not admitted", zap.Int64("item_id", item.ID), zap.Error(err))
				return fmt.Errorf("item %d not admitted: %w", item.ID, err)
			}
			sum.Processed++
			if st.OK {
				sum.Succeeded++
			} else {
				sum.Failed++
			}
			return nil
		})
	}
	return g.Wait()
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
