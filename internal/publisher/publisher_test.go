package publisher_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/product-extractor/internal/pipeline"
	"github.com/JakeFAU/product-extractor/internal/publisher"
	"github.com/JakeFAU/product-extractor/internal/publisher/memory"
)

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, []byte) (string, error) {
	return "", errors.New("broker down")
}

func TestNotifierPublishesStatus(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	n := publisher.NewNotifier(pub, nil)
	require.NoError(t, n.Record(context.Background(), pipeline.RunStatus{
		URL:               "https://shop.example/list",
		Stage:             pipeline.TierFastAPI,
		OK:                true,
		API:               "https://shop.example/api/products",
		ProductsExtracted: 3,
	}))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "fast-api", msgs[0].Key)
	var st pipeline.RunStatus
	require.NoError(t, json.Unmarshal(msgs[0].Body, &st))
	require.Equal(t, 3, st.ProductsExtracted)
	require.Equal(t, "https://shop.example/api/products", st.API)
}

func TestNotifierWrapsErrors(t *testing.T) {
	t.Parallel()

	err := publisher.NewNotifier(failingPublisher{}, nil).Record(context.Background(), pipeline.RunStatus{})
	require.ErrorContains(t, err, "publish run status")
}

func TestLogPublisher(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	_, err := publisher.NewLogPublisher(zap.New(core)).Publish(context.Background(), "heavy", []byte(`{"ok":true}`))
	require.NoError(t, err)
	require.Equal(t, 1, logs.FilterMessage("run status").Len())
}
