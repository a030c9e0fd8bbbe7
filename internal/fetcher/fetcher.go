// Package fetcher defines the plain HTTP fetch contract shared by the static
// page tier and API discovery.
package fetcher

import (
	"context"
	"net/http"
	"time"
)

// Request describes one HTTP exchange. An empty Method means GET.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Response carries the server reply. Non-2xx replies are returned as
// responses, not errors, so callers can inspect the status and body.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher performs a single HTTP exchange.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}
