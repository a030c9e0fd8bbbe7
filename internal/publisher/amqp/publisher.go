// Package amqp publishes run statuses to a RabbitMQ exchange.
package amqp

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Config selects the broker and exchange.
type Config struct {
	URL        string `mapstructure:"amqp_url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes JSON messages on one channel.
type Publisher struct {
	conn       *amqp.Connection
	channel    channel
	exchange   string
	routingKey string
}

// Dial connects to cfg.URL and opens a channel.
func Dial(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("notify.amqp_url is required for amqp")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("can't open channel: %w", err)
	}
	p := newPublisher(ch, cfg)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, cfg Config) *Publisher {
	return &Publisher{channel: ch, exchange: cfg.Exchange, routingKey: cfg.RoutingKey}
}

// Publish sends body to "<routing_key>.<key>", or to key alone when no
// routing key prefix is configured.
func (p *Publisher) Publish(ctx context.Context, key string, body []byte) (string, error) {
	id := uuid.NewString()
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Type:         key,
		Body:         body,
	}
	if err := p.channel.PublishWithContext(ctx, p.exchange, p.route(key), false, false, msg); err != nil {
		return "", fmt.Errorf("publish to %s: %w", p.exchange, err)
	}
	return id, nil
}

func (p *Publisher) route(key string) string {
	prefix := strings.TrimSuffix(p.routingKey, ".")
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
