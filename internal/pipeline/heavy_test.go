package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanSelector(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{in: ".product, , .card,", want: ".product, .card"},
		{in: " , ", want: ""},
		{in: "main", want: "main"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, CleanSelector(tt.in))
	}
}

func TestScrollScripts(t *testing.T) {
	t.Parallel()

	require.Len(t, ScrollScripts("https://shop.example/list"), 3)
	wix := ScrollScripts("https://Mystore.WixSite.com/shop")
	require.Len(t, wix, 5)
	require.Contains(t, wix[3], "new Event('scroll')")
	require.Contains(t, wix[4], "new Event('resize')")
}

type stubRecorder struct {
	err   error
	calls int
}

func (s *stubRecorder) Record(context.Context, RunStatus) error {
	s.calls++
	return s.err
}

func TestRecordersFanOut(t *testing.T) {
	t.Parallel()

	ok := &stubRecorder{}
	bad := &stubRecorder{err: errors.New("disk full")}
	err := Recorders{bad, nil, ok}.Record(context.Background(), RunStatus{})
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, 1, ok.calls)
	require.Equal(t, 1, bad.calls)
}
