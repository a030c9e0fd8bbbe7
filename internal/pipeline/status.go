// Package pipeline runs the per-URL tier state machine: static structured
// data first, then discovered API endpoints, then a headless render, with
// every terminal state reported as a RunStatus.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/product-extractor/internal/queue"
)

// Tier is the terminal state a URL reached.
type Tier string

// Terminal tiers.
const (
	TierFastJSON  Tier = "fast-json"
	TierFastAPI   Tier = "fast-api"
	TierHeavy     Tier = "heavy"
	TierFailed    Tier = "failed"
	TierException Tier = "exception"
)

// ErrMsgNoContent is the recorded error when no tier produced a usable page.
const ErrMsgNoContent = "no content or render failed"

// RunStatus is the audit record of one URL's run.
type RunStatus struct {
	RunID             string    `json:"run_id"`
	URL               string    `json:"url"`
	Start             time.Time `json:"start"`
	URLID             int64     `json:"url_id,omitempty"`
	ProductTypeID     *int64    `json:"product_type_id"`
	HTTPStatus        int       `json:"http_status,omitempty"`
	FinalURL          string    `json:"final_url,omitempty"`
	ProductsExtracted int       `json:"products_extracted"`
	ProductsSaved     int       `json:"products_saved"`
	Stage             Tier      `json:"stage"`
	OK                bool      `json:"ok"`
	API               string    `json:"api,omitempty"`
	Path              string    `json:"path,omitempty"`
	// Elapsed is in seconds.
	Elapsed float64 `json:"elapsed"`
	Err     string  `json:"err,omitempty"`
}

// Outcome converts the status into the task store write-back.
func (s RunStatus) Outcome() queue.Outcome {
	return queue.Outcome{
		Success:       s.OK,
		ProductsFound: s.ProductsExtracted,
		ProductsSaved: s.ProductsSaved,
		Err:           s.Err,
	}
}

// Recorder receives every terminal RunStatus.
type Recorder interface {
	Record(ctx context.Context, status RunStatus) error
}

// Recorders fans a status out to several recorders. Every recorder is
// called; errors are joined.
type Recorders []Recorder

// Record implements Recorder.
func (rs Recorders) Record(ctx context.Context, status RunStatus) error {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, status); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
