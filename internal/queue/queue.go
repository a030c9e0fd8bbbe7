// Package queue coordinates workers over the shared task store: it claims
// pending work items, recycles claims abandoned by crashed workers and
// writes back per-item outcomes.
package queue

import (
	"context"
	"time"
)

// Status is a work item's processing_status.
type Status string

// Work item states.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DefaultStaleAfter is how long a claim may sit in processing before another
// worker may recycle it.
const DefaultStaleAfter = 30 * time.Minute

// MaxErrorLen caps the stored error message, in characters.
const MaxErrorLen = 500

// WorkItem is one URL to crawl.
type WorkItem struct {
	ID            int64
	URL           string
	ProductTypeID *int64
	Status        Status
	ClaimedBy     string
	ClaimedAt     *time.Time
}

// Outcome is the terminal result written back for a work item.
type Outcome struct {
	Success       bool
	ProductsFound int
	ProductsSaved int
	// Err is empty when there is nothing to record; the stored message is
	// then left unchanged.
	Err         string
	ProcessedAt time.Time
}

// Status maps the outcome to its terminal state.
func (o Outcome) Status() Status {
	if o.Success {
		return StatusCompleted
	}
	return StatusFailed
}

// TaskStore is the persistence contract the Coordinator needs. Each method is
// a single-row or single-statement operation; none of them spans a
// transaction.
type TaskStore interface {
	// ResetStale moves processing items claimed before cutoff back to
	// pending, clearing the claim, and reports how many moved.
	ResetStale(ctx context.Context, cutoff time.Time) (int64, error)
	// SelectPending returns up to limit pending items.
	SelectPending(ctx context.Context, limit int) ([]WorkItem, error)
	// MarkClaimed moves one pending item to processing. It reports false when
	// the item was no longer pending.
	MarkClaimed(ctx context.Context, id int64, workerID string, at time.Time) (bool, error)
	// WriteOutcome stores the terminal state of one item.
	WriteOutcome(ctx context.Context, id int64, outcome Outcome) error
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
