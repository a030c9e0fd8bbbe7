// Package artifacts snapshots what each tier saw: structured payloads, API
// responses, rendered pages, screenshots and the head of failed pages.
package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"

	"github.com/JakeFAU/product-extractor/internal/hash/sha256"
	"github.com/JakeFAU/product-extractor/internal/storage"
)

const (
	maxStemLen    = 200
	hashLen       = 10
	failedPrefix  = "failed_"
	failedHeadLen = 4000
)

// Writer names artifacts and hands them to a blob store.
type Writer struct {
	store storage.BlobStore
}

// NewWriter wraps store. A nil store discards everything.
func NewWriter(store storage.BlobStore) *Writer {
	if store == nil {
		store = storage.NoopBlobStore{}
	}
	return &Writer{store: store}
}

// Name returns "<host>/<stem>_<hash><ext>" for rawURL. The stem is host plus
// path with everything outside letters, digits and "._-" replaced by "_",
// cut to 200 characters.
func Name(rawURL, ext string) string {
	host, stem := "unknown", "page"
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = sanitize(strings.ToLower(u.Host))
		stem = u.Host + u.Path
	}
	stem = sanitize(stem)
	if r := []rune(stem); len(r) > maxStemLen {
		stem = string(r[:maxStemLen])
	}
	return path.Join(host, fmt.Sprintf("%s_%s%s", stem, sha256.Short(rawURL, hashLen), ext))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, s)
}

// StructuredPayload is saved by the fast-json tier.
type StructuredPayload struct {
	LD     []any `json:"ld"`
	Inline any   `json:"inline"`
}

// APIPayload is saved by the fast-api tier.
type APIPayload struct {
	API any `json:"api"`
}

// SaveJSON writes payload as JSON.
func (w *Writer) SaveJSON(ctx context.Context, rawURL string, payload any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}
	return w.put(ctx, Name(rawURL, ".json"), "application/json", buf.Bytes())
}

// SaveHTML writes a rendered page.
func (w *Writer) SaveHTML(ctx context.Context, rawURL, html string) (string, error) {
	return w.put(ctx, Name(rawURL, ".html"), "text/html; charset=utf-8", []byte(html))
}

// SaveScreenshot writes a PNG next to the rendered page.
func (w *Writer) SaveScreenshot(ctx context.Context, rawURL string, png []byte) (string, error) {
	return w.put(ctx, Name(rawURL, ".png"), "image/png", png)
}

// SaveFailed writes the first 4000 bytes of a page no tier could use.
func (w *Writer) SaveFailed(ctx context.Context, rawURL, html string) (string, error) {
	if len(html) > failedHeadLen {
		html = html[:failedHeadLen]
	}
	name := Name(rawURL, ".html")
	dir, file := path.Split(name)
	return w.put(ctx, dir+failedPrefix+file, "text/html; charset=utf-8", []byte(html))
}

func (w *Writer) put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	uri, err := w.store.PutObject(ctx, name, contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("save artifact %s: %w", name, err)
	}
	return uri, nil
}
