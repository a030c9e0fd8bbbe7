package app_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-extractor/internal/app"
	"github.com/JakeFAU/product-extractor/internal/config"
	"github.com/JakeFAU/product-extractor/internal/pipeline"
)

const shirtPage = `<html><head><title>Shirts</title>
<script type="application/ld+json">{"name":"Blue Shirt","url":"/p/blue-shirt","price":"19.99"}</script>
</head><body><h1>Shirts</h1></body></html>`

func testConfig() config.Config {
	return config.Config{
		Crawler: config.CrawlerConfig{
			GlobalConcurrency:  4,
			PerDomainLimit:     2,
			HeavyConcurrency:   1,
			UserAgent:          "test-agent",
			MaxProductsPerPage: 50,
			ExtractProducts:    true,
		},
		HTTP: config.HTTPConfig{
			TimeoutSeconds:    5,
			APITimeoutSeconds: 5,
			MaxAttempts:       1,
		},
		Headless: config.HeadlessConfig{MinHTMLBytes: 1500, WaitSelector: pipeline.DefaultWaitSelector},
		Queue:    config.QueueConfig{BatchSize: 10, StaleAfterMinutes: 30},
		DB:       config.DBConfig{TasksTable: "product_page_urls", ProductsTable: "r_product_data"},
		Notify:   config.NotifyConfig{Kind: config.NotifyNone},
	}
}

func TestCrawlWithoutDatabase(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(shirtPage))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfg := testConfig()
	cfg.Output = config.OutputConfig{SaveFiles: true, Dir: dir, ManifestName: "manifest.jsonl"}
	cfg.Notify.Kind = config.NotifyLog

	a, err := app.Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	sum, err := a.Crawl(context.Background(), []string{srv.URL + "/shirts"})
	require.NoError(t, err)
	a.Close()

	assert.Equal(t, 1, sum.Batches)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 1, sum.Succeeded)

	f, err := os.Open(filepath.Join(dir, "manifest.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"stage":"fast-json"`)
	assert.Contains(t, lines[0], `"products_saved":0`)
}

func TestRunQueueNeedsDatabase(t *testing.T) {
	t.Parallel()

	a, err := app.Build(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.RunQueue(context.Background(), app.RunOptions{MaxBatches: 1})
	require.ErrorIs(t, err, app.ErrNoTaskStore)
}

func TestBuildRejectsUnusableOutputDir(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	cfg := testConfig()
	cfg.Output = config.OutputConfig{SaveFiles: true, Dir: file}
	_, err := app.Build(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "local blob store init failed")
}
