package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/product-extractor/internal/queue"
)

// DefaultTasksTable holds the URLs to crawl.
const DefaultTasksTable = "product_page_urls"

// TaskStore implements queue.TaskStore over the work-item table.
type TaskStore struct {
	db    DB
	table string
}

var _ queue.TaskStore = (*TaskStore)(nil)

// NewTaskStore wraps db. An empty table uses DefaultTasksTable.
func NewTaskStore(db DB, table string) (*TaskStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: no pool", ErrUnavailable)
	}
	if table == "" {
		table = DefaultTasksTable
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return &TaskStore{db: db, table: table}, nil
}

// ResetStale implements queue.TaskStore.
func (s *TaskStore) ResetStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s
SET processing_status = 'pending', claimed_by = NULL, claimed_at = NULL
WHERE processing_status = 'processing' AND claimed_at < $1`, s.table)
	tag, err := s.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reset stale claims: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SelectPending implements queue.TaskStore.
func (s *TaskStore) SelectPending(ctx context.Context, limit int) ([]queue.WorkItem, error) {
	query := fmt.Sprintf(`SELECT id, product_page_url, product_type_id
FROM %s
WHERE processing_status = 'pending'
ORDER BY id
LIMIT $1`, s.table)
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var items []queue.WorkItem
	for rows.Next() {
		var (
			item   queue.WorkItem
			typeID *int64
		)
		if err := rows.Scan(&item.ID, &item.URL, &typeID); err != nil {
			return nil, fmt.Errorf("scan pending row: %w", err)
		}
		item.ProductTypeID = typeID
		item.Status = queue.StatusPending
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending rows: %w", err)
	}
	return items, nil
}

// MarkClaimed implements queue.TaskStore.
func (s *TaskStore) MarkClaimed(ctx context.Context, id int64, workerID string, at time.Time) (bool, error) {
	query := fmt.Sprintf(`UPDATE %s
SET processing_status = 'processing', claimed_by = $2, claimed_at = $3
WHERE id = $1 AND processing_status = 'pending'`, s.table)
	tag, err := s.db.Exec(ctx, query, id, workerID, at)
	if err != nil {
		return false, fmt.Errorf("claim item %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// WriteOutcome implements queue.TaskStore. An empty outcome error leaves the
// stored error_message untouched.
func (s *TaskStore) WriteOutcome(ctx context.Context, id int64, outcome queue.Outcome) error {
	query := fmt.Sprintf(`UPDATE %s
SET processing_status = $2, success = $3, products_found = $4, products_saved = $5,
    processed_at = $6, error_message = COALESCE($7, error_message)
WHERE id = $1`, s.table)
	var errMsg *string
	if outcome.Err != "" {
		errMsg = &outcome.Err
	}
	_, err := s.db.Exec(ctx, query,
		id,
		string(outcome.Status()),
		outcome.Success,
		outcome.ProductsFound,
		outcome.ProductsSaved,
		outcome.ProcessedAt,
		errMsg,
	)
	if err != nil {
		return fmt.Errorf("write outcome for item %d: %w", id, err)
	}
	return nil
}

// Ping implements queue.TaskStore.
func (s *TaskStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the pool.
func (s *TaskStore) Close() {
	s.db.Close()
}
