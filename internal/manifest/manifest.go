// Package manifest appends one JSON line per run status to an audit file.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/product-extractor/internal/pipeline"
)

// DefaultName is the manifest file name inside the output directory.
const DefaultName = "manifest.jsonl"

// Writer serializes records from concurrent pipelines.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// New writes records to w.
func New(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Open appends to dir/name, creating both as needed.
func Open(dir, name string) (*Writer, error) {
	if name == "" {
		name = DefaultName
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}
	path := filepath.Join(dir, name)
	// #nosec G304 -- path is built from operator configuration.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	return &Writer{w: f, closer: f}, nil
}

// Record implements pipeline.Recorder. Each record is written with a single
// Write call.
func (m *Writer) Record(_ context.Context, status pipeline.RunStatus) error {
	line, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode run status: %w", err)
	}
	line = append(line, '\n')
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.w.Write(line); err != nil {
		return fmt.Errorf("append manifest: %w", err)
	}
	return nil
}

// Close closes the underlying file, if any.
func (m *Writer) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}
