package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-extractor/internal/product"
)

type mockInserter struct {
	mock.Mock
}

func (m *mockInserter) Insert(ctx context.Context, rec product.Record) error {
	return m.Called(ctx, rec).Error(0)
}

type fakeSeen struct {
	keys map[string]bool
	err  error
}

func (f *fakeSeen) FirstSeen(_ context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeSeen) Forget(_ context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

func price(v float64) *float64 { return &v }

func TestSaveCountsSavedAndFailed(t *testing.T) {
	t.Parallel()

	store := &mockInserter{}
	store.On("Insert", mock.Anything, mock.MatchedBy(func(r product.Record) bool {
		return r.URL == "https://shop.example/p/ok"
	})).Return(nil)
	store.On("Insert", mock.Anything, mock.MatchedBy(func(r product.Record) bool {
		return r.URL == "https://shop.example/p/bad"
	})).Return(errors.New("check violation"))

	typeID := int64(4)
	w := NewWriter(store, nil)
	res, err := w.Save(context.Background(), "https://shop.example/list", &typeID, []product.Candidate{
		{Title: "Good one", URL: "https://shop.example/p/ok", Price: price(3)},
		{Title: "Bad one", URL: "https://shop.example/p/bad", Price: price(3)},
		{Title: "\u0000\u0001", URL: "https://shop.example/p/blank"},
		{Title: "No link"},
	})
	require.NoError(t, err)
	require.Equal(t, Result{Saved: 1, Failed: 3}, res)
	store.AssertNumberOfCalls(t, "Insert", 2)

	rec := store.Calls[0].Arguments.Get(1).(product.Record)
	require.Equal(t, "https://shop.example/list", rec.PlatformURL)
	require.Equal(t, int64(4), *rec.ProductTypeID)
}

func TestSaveSkipsSeenProducts(t *testing.T) {
	t.Parallel()

	store := &mockInserter{}
	store.On("Insert", mock.Anything, mock.Anything).Return(nil)
	seen := &fakeSeen{keys: map[string]bool{}}
	w := NewWriter(store, nil, WithSeenSet(seen))

	page := []product.Candidate{{Title: "Beans", URL: "https://shop.example/p/1"}}
	first, err := w.Save(context.Background(), "https://shop.example/list", nil, page)
	require.NoError(t, err)
	second, err := w.Save(context.Background(), "https://shop.example/list", nil, page)
	require.NoError(t, err)

	require.Equal(t, 1, first.Saved)
	require.Equal(t, 1, second.Saved)
	store.AssertNumberOfCalls(t, "Insert", 1)
}

func TestSaveReleasesSeenKeyOnInsertFailure(t *testing.T) {
	t.Parallel()

	store := &mockInserter{}
	store.On("Insert", mock.Anything, mock.Anything).Return(errors.New("conn refused")).Once()
	store.On("Insert", mock.Anything, mock.Anything).Return(nil).Once()
	seen := &fakeSeen{keys: map[string]bool{}}
	w := NewWriter(store, nil, WithSeenSet(seen))

	page := []product.Candidate{{Title: "Beans", URL: "https://shop.example/p/1"}}
	first, err := w.Save(context.Background(), "https://shop.example/list", nil, page)
	require.NoError(t, err)
	require.Equal(t, Result{Failed: 1}, first)
	require.Empty(t, seen.keys)

	second, err := w.Save(context.Background(), "https://shop.example/list", nil, page)
	require.NoError(t, err)
	require.Equal(t, Result{Saved: 1}, second)
	store.AssertNumberOfCalls(t, "Insert", 2)
	store.AssertExpectations(t)
}

func TestSaveSeenSetFailsOpen(t *testing.T) {
	t.Parallel()

	store := &mockInserter{}
	store.On("Insert", mock.Anything, mock.Anything).Return(nil)
	w := NewWriter(store, nil, WithSeenSet(&fakeSeen{err: errors.New("redis down")}))

	res, err := w.Save(context.Background(), "https://shop.example/list", nil,
		[]product.Candidate{{Title: "Beans", URL: "https://shop.example/p/1"}})
	require.NoError(t, err)
	require.Equal(t, 1, res.Saved)
}

func TestSaveWithoutStore(t *testing.T) {
	t.Parallel()

	w := NewWriter(nil, nil)
	res, err := w.Save(context.Background(), "https://shop.example/list", nil, nil)
	require.NoError(t, err)
	require.Zero(t, res.Saved)

	_, err = w.Save(context.Background(), "https://shop.example/list", nil,
		[]product.Candidate{{Title: "Beans", URL: "https://shop.example/p/1"}})
	require.ErrorIs(t, err, ErrUnavailable)
}
