package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-extractor/internal/apidiscovery"
	"github.com/JakeFAU/product-extractor/internal/artifacts"
	"github.com/JakeFAU/product-extractor/internal/catalog"
	"github.com/JakeFAU/product-extractor/internal/extract/htmlcards"
	"github.com/JakeFAU/product-extractor/internal/extract/structured"
	"github.com/JakeFAU/product-extractor/internal/fetcher"
	"github.com/JakeFAU/product-extractor/internal/fetcher/headless"
	"github.com/JakeFAU/product-extractor/internal/id/uuid"
	"github.com/JakeFAU/product-extractor/internal/metrics"
	"github.com/JakeFAU/product-extractor/internal/product"
	"github.com/JakeFAU/product-extractor/internal/queue"
)

// Renderer produces a page's final DOM.
type Renderer interface {
	Render(ctx context.Context, req headless.RenderRequest) (headless.RenderResult, error)
}

// Discoverer probes a page's API endpoints.
type Discoverer interface {
	Discover(ctx context.Context, html, base string, max int) (apidiscovery.Result, bool)
}

// ProductWriter persists a page's products.
type ProductWriter interface {
	Save(ctx context.Context, platformURL string, productTypeID *int64, candidates []product.Candidate) (catalog.Result, error)
}

// Gates admits pipelines and renders.
type Gates interface {
	Acquire(ctx context.Context, rawURL string) (func(), error)
	AcquireHeavy(ctx context.Context) (func(), error)
}

// Config tunes the tiers.
type Config struct {
	MaxProducts     int
	ExtractProducts bool
	MinHTMLBytes    int
	WaitSelector    string
	PageTimeout     time.Duration
	PostLoadDelay   time.Duration
	ScrollDelay     time.Duration
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		MaxProducts:     50,
		ExtractProducts: true,
		MinHTMLBytes:    1500,
		WaitSelector:    DefaultWaitSelector,
		PageTimeout:     45 * time.Second,
		PostLoadDelay:   2 * time.Second,
		ScrollDelay:     500 * time.Millisecond,
	}
}

// Deps are the collaborators a Controller drives. Artifacts and Recorder are
// optional.
type Deps struct {
	Fetcher    fetcher.Fetcher
	Renderer   Renderer
	Discoverer Discoverer
	Writer     ProductWriter
	Gates      Gates
	Cards      *htmlcards.Extractor
	Artifacts  *artifacts.Writer
	Recorder   Recorder
	Logger     *zap.Logger
	Now        func() time.Time
}

// Controller processes one work item at a time per call; calls may run
// concurrently.
type Controller struct {
	cfg        Config
	fetcher    fetcher.Fetcher
	renderer   Renderer
	discoverer Discoverer
	writer     ProductWriter
	gates      Gates
	cards      *htmlcards.Extractor
	artifacts  *artifacts.Writer
	recorder   Recorder
	logger     *zap.Logger
	now        func() time.Time
}

// NewController validates deps and builds a Controller.
func NewController(cfg Config, deps Deps) (*Controller, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("pipeline: fetcher is required")
	case deps.Renderer == nil:
		return nil, fmt.Errorf("pipeline: renderer is required")
	case deps.Discoverer == nil:
		return nil, fmt.Errorf("pipeline: discoverer is required")
	case deps.Writer == nil:
		return nil, fmt.Errorf("pipeline: product writer is required")
	case deps.Gates == nil:
		return nil, fmt.Errorf("pipeline: gates are required")
	}
	if deps.Cards == nil {
		deps.Cards = htmlcards.NewDefault()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.MinHTMLBytes <= 0 {
		cfg.MinHTMLBytes = DefaultConfig().MinHTMLBytes
	}
	return &Controller{
		cfg:        cfg,
		fetcher:    deps.Fetcher,
		renderer:   deps.Renderer,
		discoverer: deps.Discoverer,
		writer:     deps.Writer,
		gates:      deps.Gates,
		cards:      deps.Cards,
		artifacts:  deps.Artifacts,
		recorder:   deps.Recorder,
		logger:     deps.Logger.Named("pipeline"),
		now:        deps.Now,
	}, nil
}

// Process runs item through the tiers under the admission gates and returns
// its terminal status. The error is non-nil only when the item was never
// admitted because ctx ended; such items are left for claim recycling.
// Failures inside the run, panics included, end in the exception tier.
func (c *Controller) Process(ctx context.Context, item queue.WorkItem) (RunStatus, error) {
	release, err := c.gates.Acquire(ctx, item.URL)
	if err != nil {
		return RunStatus{}, fmt.Errorf("admit %s: %w", item.URL, err)
	}
	defer release()

	start := c.now()
	st := RunStatus{
		RunID:         uuid.NewRunID(),
		URL:           item.URL,
		Start:         start.UTC(),
		URLID:         item.ID,
		ProductTypeID: item.ProductTypeID,
	}
	if err := c.safeRun(ctx, item, &st); err != nil {
		st.Stage = TierException
		st.OK = false
		st.Err = queue.TruncateError(err.Error())
	}
	st.Elapsed = c.now().Sub(start).Seconds()
	c.finish(ctx, st)
	return st, nil
}

func (c *Controller) safeRun(ctx context.Context, item queue.WorkItem, st *RunStatus) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.run(ctx, item, st)
}

func (c *Controller) run(ctx context.Context, item queue.WorkItem, st *RunStatus) error {
	resp, err := c.fetcher.Fetch(ctx, fetcher.Request{Method: http.MethodGet, URL: item.URL})
	if err != nil {
		return fmt.Errorf("fetch page: %w", err)
	}
	st.HTTPStatus = resp.StatusCode
	st.FinalURL = resp.URL
	if st.FinalURL == "" {
		st.FinalURL = item.URL
	}
	html := string(resp.Body)
	base := st.FinalURL

	src := structured.Extract(html)
	if src.Found() {
		c.logger.Debug("structured data found", zap.String("url", item.URL),
			zap.Int("blocks", len(src.Blocks)), zap.Bool("inline", src.Inline != nil))
		if c.artifacts != nil {
			st.Path = c.saveArtifact(item.URL, func() (string, error) {
				return c.artifacts.SaveJSON(ctx, item.URL, artifacts.StructuredPayload{LD: src.Blocks, Inline: src.Inline})
			})
		}
		c.settle(ctx, item, st, TierFastJSON, c.combined(html, base, src))
		return nil
	}

	c.logger.Debug("no structured data, probing api endpoints", zap.String("url", item.URL))
	if res, ok := c.discoverer.Discover(ctx, html, base, c.cfg.MaxProducts); ok {
		st.API = res.Endpoint
		if c.artifacts != nil {
			st.Path = c.saveArtifact(item.URL, func() (string, error) {
				return c.artifacts.SaveJSON(ctx, item.URL, artifacts.APIPayload{API: res.Payload})
			})
		}
		c.settle(ctx, item, st, TierFastAPI, product.Cap(product.Dedupe(res.Products), c.cfg.MaxProducts))
		return nil
	}

	c.logger.Debug("no api products, rendering", zap.String("url", item.URL))
	rendered, err := c.render(ctx, item.URL)
	if err != nil || len(rendered.HTML) <= c.cfg.MinHTMLBytes {
		if err != nil {
			c.logger.Debug("render failed", zap.String("url", item.URL), zap.Error(err))
		}
		if c.artifacts != nil {
			st.Path = c.saveArtifact(item.URL, func() (string, error) {
				return c.artifacts.SaveFailed(ctx, item.URL, html)
			})
		}
		st.Stage = TierFailed
		st.OK = false
		st.Err = ErrMsgNoContent
		return nil
	}
	if c.artifacts != nil {
		st.Path = c.saveArtifact(item.URL, func() (string, error) {
			return c.artifacts.SaveHTML(ctx, item.URL, rendered.HTML)
		})
		if len(rendered.Screenshot) > 0 {
			c.saveArtifact(item.URL, func() (string, error) {
				return c.artifacts.SaveScreenshot(ctx, item.URL, rendered.Screenshot)
			})
		}
	}
	c.settle(ctx, item, st, TierHeavy, c.combined(rendered.HTML, base, structured.Extract(rendered.HTML)))
	return nil
}

// combined concatenates HTML cards, ld+json and inline state products, then
// dedupes and caps them.
func (c *Controller) combined(html, base string, src structured.Sources) []product.Candidate {
	if !c.cfg.ExtractProducts {
		return nil
	}
	max := c.cfg.MaxProducts
	all := c.cards.Extract(html, base, max)
	all = append(all, src.Candidates(base, max)...)
	return product.Cap(product.Dedupe(all), max)
}

// settle persists products and fills the terminal fields for a product tier.
func (c *Controller) settle(ctx context.Context, item queue.WorkItem, st *RunStatus, tier Tier, products []product.Candidate) {
	st.Stage = tier
	st.ProductsExtracted = len(products)
	res, err := c.writer.Save(ctx, st.FinalURL, item.ProductTypeID, products)
	if err != nil && !errors.Is(err, catalog.ErrUnavailable) {
		c.logger.Warn("saving products failed", zap.String("url", item.URL), zap.Error(err))
	}
	st.ProductsSaved = res.Saved
	st.OK = len(products) > 0
}

func (c *Controller) saveArtifact(rawURL string, save func() (string, error)) string {
	uri, err := save()
	if err != nil {
		c.logger.Warn("artifact write failed", zap.String("url", rawURL), zap.Error(err))
		return ""
	}
	return uri
}

func (c *Controller) finish(ctx context.Context, st RunStatus) {
	metrics.ObserveRun(string(st.Stage), st.OK, time.Duration(st.Elapsed*float64(time.Second)))
	fields := []zap.Field{
		zap.String("url", st.URL),
		zap.Int64("item_id", st.URLID),
		zap.String("tier", string(st.Stage)),
		zap.Int("found", st.ProductsExtracted),
		zap.Int("saved", st.ProductsSaved),
		zap.Float64("elapsed_s", st.Elapsed),
	}
	switch st.Stage {
	case TierFailed:
		c.logger.Warn("url failed", append(fields, zap.String("err", st.Err))...)
	case TierException:
		c.logger.Error("url raised", append(fields, zap.String("err", st.Err))...)
	default:
		c.logger.Info("url done", append(fields, zap.String("api", st.API), zap.String("path", st.Path))...)
	}
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(ctx, st); err != nil {
		c.logger.Warn("recording run status failed", zap.String("url", st.URL), zap.Error(err))
	}
}
