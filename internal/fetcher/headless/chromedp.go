// Package headless renders pages in headless Chrome for the heavy tier.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

var (
	// ErrRendererDisabled is returned by Noop.
	ErrRendererDisabled = errors.New("headless renderer disabled")
	// ErrWaitTimeout means the page loaded but the wait condition (selector or
	// images) did not hold in time.
	ErrWaitTimeout = errors.New("render wait condition timed out")
)

const (
	defaultPageTimeout = 45 * time.Second
	renderMargin       = 15 * time.Second
	screenshotQuality  = 80
	imagesComplete     = `Array.from(document.images).every(img => img.complete)`
	scrollToBottom     = `window.scrollTo(0, document.body.scrollHeight)`
)

// RenderRequest describes one render.
type RenderRequest struct {
	URL string
	// WaitSelector is a CSS selector list; empty waits for body only.
	WaitSelector string
	// Scripts run in order after the post-load delay, ScrollDelay apart.
	Scripts       []string
	PageTimeout   time.Duration
	PostLoadDelay time.Duration
	ScrollDelay   time.Duration
	ScanFullPage  bool
	WaitForImages bool
	Screenshot    bool
}

// RenderResult is the final DOM of a render.
type RenderResult struct {
	HTML       string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Screenshot []byte
	Duration   time.Duration
}

// Config controls the behavior of the headless renderer.
type Config struct {
	UserAgent string
	Headers   http.Header
}

// Chromedp renders pages with chromedp and a shared browser allocator.
type Chromedp struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a renderer backed by chromedp. The browser starts
// lazily on the first render.
func NewChromedp(cfg Config) (*Chromedp, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Chromedp{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context and shuts the browser down.
func (f *Chromedp) Close() {
	f.allocCancel()
}

// Render navigates to req.URL in a fresh tab and returns the rendered DOM.
// A wait condition that does not hold in time yields ErrWaitTimeout.
func (f *Chromedp) Render(ctx context.Context, req RenderRequest) (RenderResult, error) {
	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, renderBudget(req))
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	var out RenderResult
	start := time.Now()
	if err := chromedp.Run(taskCtx, f.actions(req, &out)...); err != nil {
		if errors.Is(err, ErrWaitTimeout) {
			return RenderResult{}, err
		}
		return RenderResult{}, fmt.Errorf("chromedp run: %w", err)
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(req.URL, out.FinalURL)
	if headers == nil {
		headers = http.Header{}
	}
	out.StatusCode = status
	out.Headers = headers
	out.FinalURL = responseURL
	out.Duration = time.Since(start)
	return out, nil
}

func (f *Chromedp) actions(req RenderRequest, out *RenderResult) []chromedp.Action {
	pageTimeout := req.PageTimeout
	if pageTimeout <= 0 {
		pageTimeout = defaultPageTimeout
	}
	actions := []chromedp.Action{
		f.networkSetupAction(f.cfg.Headers),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if req.WaitSelector != "" {
		actions = append(actions, waitAction(pageTimeout, chromedp.WaitReady(req.WaitSelector, chromedp.ByQuery)))
	}
	if req.WaitForImages {
		var ready bool
		actions = append(actions, waitAction(pageTimeout, chromedp.Poll(imagesComplete, &ready,
			chromedp.WithPollingInterval(250*time.Millisecond),
			chromedp.WithPollingTimeout(pageTimeout),
		)))
	}
	if req.PostLoadDelay > 0 {
		actions = append(actions, chromedp.Sleep(req.PostLoadDelay))
	}
	scripts := req.Scripts
	if req.ScanFullPage {
		scripts = append(append([]string(nil), scripts...), scrollToBottom)
	}
	for _, script := range scripts {
		actions = append(actions, chromedp.Evaluate(script, nil))
		if req.ScrollDelay > 0 {
			actions = append(actions, chromedp.Sleep(req.ScrollDelay))
		}
	}
	actions = append(actions,
		chromedp.Location(&out.FinalURL),
		chromedp.OuterHTML("html", &out.HTML, chromedp.ByQuery),
	)
	if req.Screenshot {
		actions = append(actions, chromedp.FullScreenshot(&out.Screenshot, screenshotQuality))
	}
	return actions
}

// waitAction runs wait under its own deadline and reports a missed deadline
// as ErrWaitTimeout while the surrounding render is still alive.
func waitAction(timeout time.Duration, wait chromedp.Action) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return classifyWait(ctx, wait.Do(waitCtx))
	})
}

func classifyWait(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, chromedp.ErrPollingTimeout)) {
		return fmt.Errorf("%w: %w", ErrWaitTimeout, err)
	}
	return err
}

// renderBudget bounds a whole render: navigation and waits, the fixed delays
// and a margin for extracting the DOM.
func renderBudget(req RenderRequest) time.Duration {
	pageTimeout := req.PageTimeout
	if pageTimeout <= 0 {
		pageTimeout = defaultPageTimeout
	}
	budget := pageTimeout + req.PostLoadDelay + renderMargin
	if req.WaitForImages {
		budget += pageTimeout
	}
	steps := len(req.Scripts)
	if req.ScanFullPage {
		steps++
	}
	return budget + time.Duration(steps)*req.ScrollDelay
}

func (f *Chromedp) networkSetupAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Only the first document response is the page; later ones are frames.
	if m.url != "" {
		return
	}
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, cloneHeader(m.headers), m.url
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, url := m.snapshot()
	switch {
	case finalURL != "":
		url = finalURL
	case url != "":
	default:
		url = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	return src.Clone()
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
