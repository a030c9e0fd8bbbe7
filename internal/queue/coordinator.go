package queue

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-extractor/internal/metrics"
)

// Coordinator claims work for one worker identity.
//
// Claims are applied row by row after a plain select, so two workers racing
// on the same pending row may both receive it. The store's claim update is
// conditional on the row still being pending, which narrows but does not
// close that window; duplicate processing is tolerated because product writes
// are idempotent.
type Coordinator struct {
	store      TaskStore
	workerID   string
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger

	claimed  atomic.Int64
	reported atomic.Int64
	recycled atomic.Int64
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithStaleAfter sets the staleness window. Non-positive keeps the default.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.staleAfter = d
		}
	}
}

// NewCoordinator builds a Coordinator. An empty workerID uses WorkerID().
func NewCoordinator(store TaskStore, workerID string, logger *zap.Logger, opts ...Option) *Coordinator {
	if workerID == "" {
		workerID = WorkerID()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		store:      store,
		workerID:   workerID,
		staleAfter: DefaultStaleAfter,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.Named("coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WorkerID returns "hostname-pid".
func WorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// ID returns the identity written into claimed_by.
func (c *Coordinator) ID() string {
	return c.workerID
}

// Stats are the coordinator's running totals.
type Stats struct {
	WorkerID string `json:"worker_id"`
	Claimed  int64  `json:"claimed"`
	Reported int64  `json:"reported"`
	Recycled int64  `json:"recycled"`
}

// Stats returns a snapshot of the running totals.
func (c *Coordinator) Stats() Stats {
	return Stats{
		WorkerID: c.workerID,
		Claimed:  c.claimed.Load(),
		Reported: c.reported.Load(),
		Recycled: c.recycled.Load(),
	}
}

// Claim recycles stale claims, selects up to limit pending items and marks
// each as claimed by this worker. It returns the selected set even when some
// individual claims did not apply. Only a failed select is an error.
func (c *Coordinator) Claim(ctx context.Context, limit int) ([]WorkItem, error) {
	now := c.now()
	reset, err := c.store.ResetStale(ctx, now.Add(-c.staleAfter))
	if err != nil {
		c.logger.Warn("stale claim reset failed", zap.Error(err))
	} else if reset > 0 {
		c.recycled.Add(reset)
		metrics.ObserveQueue("reset", int(reset))
		c.logger.Info("recycled stale claims", zap.Int64("count", reset))
	}

	items, err := c.store.SelectPending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending: %w", err)
	}

	applied := 0
	for i := range items {
		ok, err := c.store.MarkClaimed(ctx, items[i].ID, c.workerID, now)
		switch {
		case err != nil:
			c.logger.Warn("claim update failed", zap.Int64("item_id", items[i].ID), zap.Error(err))
		case !ok:
			c.logger.Info("item already claimed elsewhere", zap.Int64("item_id", items[i].ID))
		default:
			applied++
		}
		items[i].Status = StatusProcessing
		items[i].ClaimedBy = c.workerID
		claimedAt := now
		items[i].ClaimedAt = &claimedAt
	}
	c.claimed.Add(int64(len(items)))
	metrics.ObserveQueue("claimed", applied)
	metrics.ObserveQueue("claim_missed", len(items)-applied)
	return items, nil
}

// Report writes item's terminal outcome. Write failures are logged and
// swallowed; the outcome is not retried.
func (c *Coordinator) Report(ctx context.Context, item WorkItem, outcome Outcome) {
	if outcome.ProcessedAt.IsZero() {
		outcome.ProcessedAt = c.now()
	}
	outcome.Err = TruncateError(outcome.Err)
	if err := c.store.WriteOutcome(ctx, item.ID, outcome); err != nil {
		c.logger.Error("outcome write failed",
			zap.Int64("item_id", item.ID),
			zap.String("url", item.URL),
			zap.Error(err),
		)
		return
	}
	c.reported.Add(1)
	metrics.ObserveQueue(string(outcome.Status()), 1)
}

// TruncateError limits msg to MaxErrorLen characters.
func TruncateError(msg string) string {
	if utf8.RuneCountInString(msg) <= MaxErrorLen {
		return msg
	}
	return string([]rune(msg)[:MaxErrorLen])
}

// Ping checks the underlying store.
func (c *Coordinator) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping task store: %w", err)
	}
	return nil
}
