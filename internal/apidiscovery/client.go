package apidiscovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-extractor/internal/extract/structured"
	"github.com/JakeFAU/product-extractor/internal/fetcher"
	"github.com/JakeFAU/product-extractor/internal/metrics"
	"github.com/JakeFAU/product-extractor/internal/product"
	"github.com/JakeFAU/product-extractor/internal/retry"
)

var (
	// ErrNotJSON means the endpoint answered with something other than JSON
	// or JSONP.
	ErrNotJSON = errors.New("response is not json")
	// ErrStatus means the endpoint answered with a non-200 status.
	ErrStatus = errors.New("unexpected status")
)

const defaultTimeout = 15 * time.Second

// wixQuery is the catalog query body Wix endpoints accept.
var wixQuery = []byte(`{"includeVariants":true,"onlyVisible":true,"withOptions":true,"includeHiddenProducts":false,"paging":{"limit":50,"offset":0}}`)

// Result is the first endpoint that produced products.
type Result struct {
	Endpoint string
	Payload  any
	Products []product.Candidate
}

// Client probes endpoints through a fetcher with retries.
type Client struct {
	fetcher fetcher.Fetcher
	policy  *retry.Policy
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient builds a Client. A nil policy uses retry.Default.
func NewClient(f fetcher.Fetcher, policy *retry.Policy, timeout time.Duration, logger *zap.Logger) *Client {
	if policy == nil {
		policy = retry.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{fetcher: f, policy: policy, timeout: timeout, logger: logger.Named("apidiscovery")}
}

// Discover probes every candidate endpoint of the page in order and returns
// the first one whose payload yields at least one valid product. Failing
// endpoints are logged and skipped. The boolean is false when none qualified.
func (c *Client) Discover(ctx context.Context, html, base string, max int) (Result, bool) {
	for _, endpoint := range Candidates(html, base) {
		payload, err := c.Fetch(ctx, endpoint, base)
		if err != nil {
			metrics.ObserveAPIFetch("error")
			c.logger.Debug("api candidate failed", zap.String("endpoint", endpoint), zap.Error(err))
			if ctx.Err() != nil {
				return Result{}, false
			}
			continue
		}
		products := structured.Walk(payload, base, max)
		if len(products) == 0 {
			metrics.ObserveAPIFetch("empty")
			c.logger.Debug("api candidate had no products", zap.String("endpoint", endpoint))
			continue
		}
		metrics.ObserveAPIFetch("products")
		return Result{Endpoint: endpoint, Payload: payload, Products: products}, true
	}
	return Result{}, false
}

// Fetch retrieves and decodes one endpoint. Wix endpoints are queried by POST
// first and fall back to GET when the POST does not return JSON.
func (c *Client) Fetch(ctx context.Context, endpoint, referer string) (any, error) {
	if isWixEndpoint(endpoint) {
		payload, err := c.fetchJSON(ctx, fetcher.Request{
			Method:  http.MethodPost,
			URL:     endpoint,
			Headers: c.headers(referer),
			Body:    wixQuery,
		}, false)
		if err == nil {
			return payload, nil
		}
		c.logger.Debug("wix post failed, trying get", zap.String("endpoint", endpoint), zap.Error(err))
	}
	return c.fetchJSON(ctx, fetcher.Request{
		Method:  http.MethodGet,
		URL:     endpoint,
		Headers: c.headers(referer),
	}, true)
}

func (c *Client) fetchJSON(ctx context.Context, req fetcher.Request, allowJSONP bool) (any, error) {
	var payload any
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.fetcher.Fetch(reqCtx, req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", req.URL, err)
		}
		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
		default:
			return retry.Permanent(fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode))
		}

		if allowJSONP {
			payload, err = structured.Decode(resp.Body)
		} else {
			err = json.Unmarshal(resp.Body, &payload)
		}
		if err != nil {
			return retry.Permanent(fmt.Errorf("%w: %w", ErrNotJSON, err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) headers(referer string) http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	h.Set("Content-Type", "application/json")
	if referer != "" {
		h.Set("Referer", referer)
	}
	return h
}
