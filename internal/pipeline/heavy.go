package pipeline

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-extractor/internal/fetcher/headless"
	"github.com/JakeFAU/product-extractor/internal/metrics"
)

// DefaultWaitSelector lists the elements whose presence means a listing has
// rendered.
const DefaultWaitSelector = ".product, .product-card, .product-item, .search-result, ul > li, " +
	"[data-hook='product-item'], [data-hook='product-list-grid-item'], [id^='comp-'] [class*='product'], main, body"

var scrollScripts = []string{
	"(()=>{window.scrollTo({top: document.body.scrollHeight/4, behavior: 'smooth'});return true})()",
	"(()=>{window.scrollTo({top: document.body.scrollHeight/2, behavior: 'smooth'});return true})()",
	"(()=>{window.scrollTo({top: document.body.scrollHeight, behavior: 'smooth'});return true})()",
}

// Wix galleries lazy-load on these events rather than on scroll position.
var wixScripts = []string{
	"(()=>{window.dispatchEvent(new Event('scroll'));return true})()",
	"(()=>{window.dispatchEvent(new Event('resize'));return true})()",
}

// ScrollScripts returns the render script steps for rawURL.
func ScrollScripts(rawURL string) []string {
	out := append([]string(nil), scrollScripts...)
	if strings.Contains(strings.ToLower(rawURL), "wix") {
		out = append(out, wixScripts...)
	}
	return out
}

// CleanSelector drops empty entries from a comma-separated selector list.
func CleanSelector(sel string) string {
	var parts []string
	for _, p := range strings.Split(sel, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func (c *Controller) renderRequest(rawURL string) headless.RenderRequest {
	return headless.RenderRequest{
		URL:           rawURL,
		WaitSelector:  CleanSelector(c.cfg.WaitSelector),
		Scripts:       ScrollScripts(rawURL),
		PageTimeout:   c.cfg.PageTimeout,
		PostLoadDelay: c.cfg.PostLoadDelay,
		ScrollDelay:   c.cfg.ScrollDelay,
		ScanFullPage:  true,
		WaitForImages: true,
		Screenshot:    c.artifacts != nil,
	}
}

// render runs the primary render under the heavy gate. A wait-condition
// timeout is retried once without the selector and without waiting for
// images; any other failure is returned as is.
func (c *Controller) render(ctx context.Context, rawURL string) (headless.RenderResult, error) {
	release, err := c.gates.AcquireHeavy(ctx)
	if err != nil {
		return headless.RenderResult{}, err
	}
	defer release()

	req := c.renderRequest(rawURL)
	res, err := c.renderer.Render(ctx, req)
	if !errors.Is(err, headless.ErrWaitTimeout) {
		return res, err
	}
	metrics.ObserveRenderFallback()
	c.logger.Debug("render wait timed out, retrying without wait condition", zap.String("url", rawURL))
	req.WaitSelector = ""
	req.WaitForImages = false
	return c.renderer.Render(ctx, req)
}
