// Package catalog persists a page's products: each candidate is sanitized,
// checked against the shared seen-set and inserted one row at a time.
package catalog

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-extractor/internal/metrics"
	"github.com/JakeFAU/product-extractor/internal/product"
)

// ErrUnavailable is returned when no product store is configured.
var ErrUnavailable = errors.New("product store unavailable")

// Inserter writes one sanitized record.
type Inserter interface {
	Insert(ctx context.Context, rec product.Record) error
}

// SeenSet remembers products across workers. FirstSeen claims a key;
// Forget releases a claim whose insert did not land.
type SeenSet interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Result counts a page's writes.
type Result struct {
	Saved  int
	Failed int
}

// Writer persists candidates.
type Writer struct {
	store  Inserter
	seen   SeenSet
	logger *zap.Logger
}

// Option customizes a Writer.
type Option func(*Writer)

// WithSeenSet skips products another worker already wrote.
func WithSeenSet(seen SeenSet) Option {
	return func(w *Writer) { w.seen = seen }
}

// NewWriter builds a Writer. A nil store makes every Save a no-op that
// reports ErrUnavailable.
func NewWriter(store Inserter, logger *zap.Logger, opts ...Option) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{store: store, logger: logger.Named("catalog")}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Save writes candidates found on platformURL. Records without a sanitized
// title or URL are counted as failed and never reach the store. A product
// the seen-set already holds counts as saved. Individual insert failures are
// counted and logged; they do not stop the page.
func (w *Writer) Save(ctx context.Context, platformURL string, productTypeID *int64, candidates []product.Candidate) (Result, error) {
	var res Result
	if len(candidates) == 0 {
		return res, nil
	}
	if w.store == nil {
		return res, ErrUnavailable
	}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rec, ok := product.Sanitize(c, platformURL, productTypeID)
		if !ok {
			res.Failed++
			continue
		}
		if w.alreadySeen(ctx, rec) {
			res.Saved++
			continue
		}
		if err := w.store.Insert(ctx, rec); err != nil {
			res.Failed++
			w.forget(ctx, rec)
			w.logger.Debug("product insert failed",
				zap.String("url", platformURL),
				zap.String("product_url", rec.URL),
				zap.Error(err),
			)
			continue
		}
		res.Saved++
	}
	metrics.ObserveProducts(len(candidates), res.Saved, res.Failed)
	return res, nil
}

// alreadySeen fails open: a seen-set error lets the insert go ahead.
func (w *Writer) alreadySeen(ctx context.Context, rec product.Record) bool {
	if w.seen == nil {
		return false
	}
	first, err := w.seen.FirstSeen(ctx, seenKey(rec))
	if err != nil {
		w.logger.Debug("seen-set lookup failed", zap.Error(err))
		return false
	}
	return !first
}

// forget releases rec's seen key after a failed insert so a later attempt
// writes it. It runs even when ctx was canceled mid-insert.
func (w *Writer) forget(ctx context.Context, rec product.Record) {
	if w.seen == nil {
		return
	}
	if err := w.seen.Forget(context.WithoutCancel(ctx), seenKey(rec)); err != nil {
		w.logger.Warn("seen-set release failed", zap.String("product_url", rec.URL), zap.Error(err))
	}
}

func seenKey(rec product.Record) string {
	key := rec.URL + "|" + rec.Name
	if rec.ProductTypeID != nil {
		key += "|" + strconv.FormatInt(*rec.ProductTypeID, 10)
	}
	return key
}
