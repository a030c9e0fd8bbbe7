package headless

import (
	"context"
)

// Noop stands in when rendering is disabled; every render fails with
// ErrRendererDisabled so the heavy tier reports a failure.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Render always returns ErrRendererDisabled.
func (Noop) Render(_ context.Context, _ RenderRequest) (RenderResult, error) {
	return RenderResult{}, ErrRendererDisabled
}
