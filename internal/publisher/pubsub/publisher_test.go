package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishWithoutPublisher(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "heavy", []byte(`{}`))
	require.ErrorContains(t, err, "not configured")
	require.NoError(t, New(nil).Close())
}

func TestDialValidates(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), Config{ProjectID: "p"})
	require.Error(t, err)
}
