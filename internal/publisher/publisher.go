// Package publisher announces each URL's terminal run status on a message
// bus.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-extractor/internal/pipeline"
)

// Publisher sends one message. key classifies the message (the tier); how it
// is used depends on the transport.
type Publisher interface {
	Publish(ctx context.Context, key string, body []byte) (string, error)
}

// Notifier publishes run statuses as JSON.
type Notifier struct {
	pub    Publisher
	logger *zap.Logger
}

var _ pipeline.Recorder = (*Notifier)(nil)

// NewNotifier wraps pub.
func NewNotifier(pub Publisher, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{pub: pub, logger: logger.Named("notifier")}
}

// Record implements pipeline.Recorder.
func (n *Notifier) Record(ctx context.Context, status pipeline.RunStatus) error {
	body, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode run status: %w", err)
	}
	id, err := n.pub.Publish(ctx, string(status.Stage), body)
	if err != nil {
		return fmt.Errorf("publish run status: %w", err)
	}
	n.logger.Debug("run status published", zap.String("url", status.URL), zap.String("message_id", id))
	return nil
}

// LogPublisher writes messages to a logger instead of a bus.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher builds a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("outcomes")}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, key string, body []byte) (string, error) {
	p.logger.Info("run status", zap.String("tier", key), zap.ByteString("status", body))
	return "", nil
}
