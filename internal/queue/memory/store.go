// Package memory provides an in-process task store for ad-hoc crawls and
// tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/product-extractor/internal/queue"
)

// Record is a work item together with its last written outcome.
type Record struct {
	Item    queue.WorkItem
	Outcome *queue.Outcome
}

// Store is a mutex-guarded task table.
type Store struct {
	mu     sync.Mutex
	nextID int64
	rows   []*Record
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{nextID: 1}
}

// Add appends a pending item for rawURL and returns its id.
func (s *Store) Add(rawURL string, productTypeID *int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.rows = append(s.rows, &Record{Item: queue.WorkItem{
		ID:            id,
		URL:           rawURL,
		ProductTypeID: productTypeID,
		Status:        queue.StatusPending,
	}})
	return id
}

// Put inserts item as-is, for seeding claimed or finished rows.
func (s *Store) Put(item queue.WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID >= s.nextID {
		s.nextID = item.ID + 1
	}
	s.rows = append(s.rows, &Record{Item: item})
}

// Records returns a copy of every row in insertion order.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, *r)
	}
	return out
}

// ResetStale implements queue.TaskStore.
func (s *Store) ResetStale(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.rows {
		it := &r.Item
		if it.Status == queue.StatusProcessing && it.ClaimedAt != nil && it.ClaimedAt.Before(cutoff) {
			it.Status = queue.StatusPending
			it.ClaimedBy = ""
			it.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

// SelectPending implements queue.TaskStore.
func (s *Store) SelectPending(_ context.Context, limit int) ([]queue.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []queue.WorkItem
	for _, r := range s.rows {
		if limit > 0 && len(out) >= limit {
			break
		}
		if r.Item.Status == queue.StatusPending {
			out = append(out, r.Item)
		}
	}
	return out, nil
}

// MarkClaimed implements queue.TaskStore.
func (s *Store) MarkClaimed(_ context.Context, id int64, workerID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.find(id)
	if r == nil || r.Item.Status != queue.StatusPending {
		return false, nil
	}
	claimedAt := at
	r.Item.Status = queue.StatusProcessing
	r.Item.ClaimedBy = workerID
	r.Item.ClaimedAt = &claimedAt
	return true, nil
}

// WriteOutcome implements queue.TaskStore. An empty error message keeps the
// previously stored one.
func (s *Store) WriteOutcome(_ context.Context, id int64, outcome queue.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.find(id)
	if r == nil {
		return nil
	}
	if outcome.Err == "" && r.Outcome != nil {
		outcome.Err = r.Outcome.Err
	}
	r.Item.Status = outcome.Status()
	r.Outcome = &outcome
	return nil
}

// Ping implements queue.TaskStore.
func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) find(id int64) *Record {
	for _, r := range s.rows {
		if r.Item.ID == id {
			return r
		}
	}
	return nil
}
