package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-extractor/internal/queue"
)

func ptr[T any](v T) *T { return &v }

func newTaskStore(t *testing.T) (*TaskStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewTaskStore(mock, "")
	require.NoError(t, err)
	return store, mock
}

func TestNewTaskStoreValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewTaskStore(mock, "urls; DROP TABLE x")
	require.Error(t, err)
	_, err = NewTaskStore(nil, "")
	require.ErrorIs(t, err, ErrUnavailable)
	s, err := NewTaskStore(mock, "crawl.product_page_urls")
	require.NoError(t, err)
	require.Equal(t, "crawl.product_page_urls", s.table)
}

func TestResetStale(t *testing.T) {
	t.Parallel()

	store, mock := newTaskStore(t)
	cutoff := time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE product_page_urls\s+SET processing_status = 'pending', claimed_by = NULL, claimed_at = NULL`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := store.ResetStale(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectPending(t *testing.T) {
	t.Parallel()

	store, mock := newTaskStore(t)
	rows := mock.NewRows([]string{"id", "product_page_url", "product_type_id"}).
		AddRow(int64(4), "https://shop.example/a", ptr(int64(9))).
		AddRow(int64(5), "https://shop.example/b", (*int64)(nil))
	mock.ExpectQuery(`SELECT id, product_page_url, product_type_id\s+FROM product_page_urls`).
		WithArgs(10).
		WillReturnRows(rows)

	items, err := store.SelectPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, int64(4), items[0].ID)
	require.Equal(t, int64(9), *items[0].ProductTypeID)
	require.Equal(t, queue.StatusPending, items[0].Status)
	require.Nil(t, items[1].ProductTypeID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectPendingQueryError(t *testing.T) {
	t.Parallel()

	store, mock := newTaskStore(t)
	mock.ExpectQuery(`SELECT id`).WithArgs(3).WillReturnError(errors.New("conn refused"))

	_, err := store.SelectPending(context.Background(), 3)
	require.ErrorContains(t, err, "query pending")
}

func TestMarkClaimed(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "applied", affected: 1, want: true},
		{name: "taken elsewhere", affected: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store, mock := newTaskStore(t)
			mock.ExpectExec(`(?s)UPDATE product_page_urls\s+SET processing_status = 'processing'.*AND processing_status = 'pending'`).
				WithArgs(int64(7), "host-1", at).
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			ok, err := store.MarkClaimed(context.Background(), 7, "host-1", at)
			require.NoError(t, err)
			require.Equal(t, tt.want, ok)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestWriteOutcome(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)

	t.Run("failure with message", func(t *testing.T) {
		t.Parallel()
		store, mock := newTaskStore(t)
		mock.ExpectExec(`COALESCE\(\$7, error_message\)`).
			WithArgs(int64(3), "failed", false, 0, 0, at, ptr("no content or render failed")).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := store.WriteOutcome(context.Background(), 3, queue.Outcome{
			Err:         "no content or render failed",
			ProcessedAt: at,
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success keeps stored message", func(t *testing.T) {
		t.Parallel()
		store, mock := newTaskStore(t)
		mock.ExpectExec(`UPDATE product_page_urls`).
			WithArgs(int64(3), "completed", true, 4, 4, at, (*string)(nil)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := store.WriteOutcome(context.Background(), 3, queue.Outcome{
			Success:       true,
			ProductsFound: 4,
			ProductsSaved: 4,
			ProcessedAt:   at,
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec error", func(t *testing.T) {
		t.Parallel()
		store, mock := newTaskStore(t)
		mock.ExpectExec(`UPDATE product_page_urls`).WillReturnError(errors.New("broken pipe"))
		err := store.WriteOutcome(context.Background(), 3, queue.Outcome{ProcessedAt: at})
		require.ErrorContains(t, err, "write outcome for item 3")
	})
}

func TestTaskStoreWithCoordinator(t *testing.T) {
	t.Parallel()

	store, mock := newTaskStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE product_page_urls`).
		WithArgs(now.Add(-queue.DefaultStaleAfter)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT id`).
		WithArgs(1).
		WillReturnRows(mock.NewRows([]string{"id", "product_page_url", "product_type_id"}).
			AddRow(int64(11), "https://shop.example/x", (*int64)(nil)))
	mock.ExpectExec(`UPDATE product_page_urls`).
		WithArgs(int64(11), "w-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	c := queue.NewCoordinator(store, "w-1", nil, queue.WithClock(func() time.Time { return now }))
	items, err := c.Claim(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "w-1", items[0].ClaimedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}
