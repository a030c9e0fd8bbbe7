package postgres

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-extractor/internal/metrics"
	"github.com/JakeFAU/product-extractor/internal/product"
	"github.com/JakeFAU/product-extractor/internal/retry"
	"github.com/JakeFAU/product-extractor/internal/storage"
)

// DefaultProductsTable receives extracted products.
const DefaultProductsTable = "r_product_data"

// ProductStore inserts sanitized product records.
type ProductStore struct {
	db     DB
	table  string
	policy *retry.Policy
	logger *zap.Logger
}

// NewProductStore wraps db. An empty table uses DefaultProductsTable and a nil
// policy uses retry.Default().
func NewProductStore(db DB, table string, policy *retry.Policy, logger *zap.Logger) (*ProductStore, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: no pool", ErrUnavailable)
	}
	if table == "" {
		table = DefaultProductsTable
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if policy == nil {
		policy = retry.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductStore{db: db, table: table, policy: policy, logger: logger.Named("product_store")}, nil
}

// Insert writes rec. A duplicate row counts as success. Data errors return
// an error wrapping storage.ErrPermanent without retrying; transient errors
// are retried under the store's policy.
func (s *ProductStore) Insert(ctx context.Context, rec product.Record) error {
	query := fmt.Sprintf(`INSERT INTO %s
(platform_url, product_name, original_price, current_price, product_url,
 product_image_url, rating, reviews, brand, product_type_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, s.table)

	duplicate := false
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, query,
			rec.PlatformURL,
			rec.Name,
			rec.RawPrice,
			rec.Price,
			rec.URL,
			rec.ImageURL,
			rec.Rating,
			rec.Reviews,
			rec.Brand,
			rec.ProductTypeID,
		)
		if IsDuplicate(err) {
			duplicate = true
		}
		return Classify(err)
	})
	switch {
	case err == nil && duplicate:
		metrics.ObserveStoreWrite(s.table, "duplicate")
		return nil
	case err == nil:
		metrics.ObserveStoreWrite(s.table, "inserted")
		return nil
	case errors.Is(err, storage.ErrPermanent):
		metrics.ObserveStoreWrite(s.table, "rejected")
		s.logger.Warn("product row rejected", zap.String("product_url", rec.URL), zap.Error(err))
		return fmt.Errorf("insert product: %w", err)
	default:
		metrics.ObserveStoreWrite(s.table, "error")
		return fmt.Errorf("insert product: %w", err)
	}
}

// Ping checks the pool.
func (s *ProductStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
