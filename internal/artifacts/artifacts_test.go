package artifacts

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-extractor/internal/hash/sha256"
	"github.com/JakeFAU/product-extractor/internal/storage/memory"
)

func TestName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		ext  string
		want string
	}{
		{
			name: "host and path",
			url:  "https://Shop.example/c/coffee beans?page=2",
			ext:  ".html",
			want: "shop.example/Shop.example_c_coffee_beans_" + sha256.Short("https://Shop.example/c/coffee beans?page=2", 10) + ".html",
		},
		{
			name: "unparseable",
			url:  "::nope",
			ext:  ".json",
			want: "unknown/page_" + sha256.Short("::nope", 10) + ".json",
		},
		{
			name: "port in host",
			url:  "http://localhost:8080/",
			ext:  ".png",
			want: "localhost_8080/localhost_8080__" + sha256.Short("http://localhost:8080/", 10) + ".png",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Name(tt.url, tt.ext))
		})
	}
}

func TestNameCapsStem(t *testing.T) {
	t.Parallel()

	long := "https://shop.example/" + strings.Repeat("a", 400)
	got := Name(long, ".html")
	_, file, _ := strings.Cut(got, "/")
	require.Len(t, file, 200+1+10+len(".html"))
}

func TestWriterSavesEachKind(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	w := NewWriter(store)
	ctx := context.Background()
	u := "https://shop.example/list"

	_, err := w.SaveJSON(ctx, u, StructuredPayload{LD: []any{map[string]any{"@type": "Product"}}})
	require.NoError(t, err)
	data, ct, ok := store.Object(Name(u, ".json"))
	require.True(t, ok)
	require.Equal(t, "application/json", ct)
	require.JSONEq(t, `{"ld":[{"@type":"Product"}],"inline":null}`, string(data))

	_, err = w.SaveHTML(ctx, u, "<html><a href='/x?a=1&b=2'></a></html>")
	require.NoError(t, err)
	_, err = w.SaveScreenshot(ctx, u, []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)

	_, err = w.SaveFailed(ctx, u, strings.Repeat("x", 5000))
	require.NoError(t, err)
	failedName := "shop.example/failed_" + strings.TrimPrefix(Name(u, ".html"), "shop.example/")
	failed, _, ok := store.Object(failedName)
	require.True(t, ok)
	require.Len(t, failed, 4000)
	require.Len(t, store.Paths(), 4)
}

func TestNilStoreDiscards(t *testing.T) {
	t.Parallel()

	uri, err := NewWriter(nil).SaveHTML(context.Background(), "https://shop.example/", "<html></html>")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "noop://"))
}
