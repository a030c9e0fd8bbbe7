// Package storage defines the persistence contracts shared by the product
// store and the artifact writers.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrPermanent marks a write that will fail the same way on every attempt.
var ErrPermanent = errors.New("permanent storage error")

// BlobStore persists an artifact under path and returns a URI for it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// NoopBlobStore discards every artifact.
type NoopBlobStore struct{}

// PutObject implements BlobStore.
func (NoopBlobStore) PutObject(_ context.Context, path string, _ string, _ io.Reader) (string, error) {
	return "noop://" + path, nil
}
