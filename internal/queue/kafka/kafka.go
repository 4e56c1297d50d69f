// Package kafka carries engine events out to Kafka and pulls price ticks
// and expiry notices in from it.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Default topic names.
const (
	DefaultEventsTopic = "conviction.events"
	DefaultPriceTopic  = "price.ticks"
	DefaultExpiryTopic = "market.expiry"
	DefaultGroupID     = "convictiond"
)

// Config selects brokers and topics.
type Config struct {
	Brokers     []string
	EventsTopic string
	PriceTopic  string
	ExpiryTopic string
	GroupID     string
}

// WithDefaults fills empty topic and group names.
func (c Config) WithDefaults() Config {
	if c.EventsTopic == "" {
		c.EventsTopic = DefaultEventsTopic
	}
	if c.PriceTopic == "" {
		c.PriceTopic = DefaultPriceTopic
	}
	if c.ExpiryTopic == "" {
		c.ExpiryTopic = DefaultExpiryTopic
	}
	if c.GroupID == "" {
		c.GroupID = DefaultGroupID
	}
	return c
}

// WaitForBroker blocks until the first broker accepts a connection or ctx
// ends.
func WaitForBroker(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastErr error
	for {
		conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
		if err == nil {
			conn.Close()
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("kafka: waiting for broker: %w (last error: %v)", ctx.Err(), lastErr)
		case <-ticker.C:
		}
	}
}

// NewWriter returns a writer for topic.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
}

// NewReader returns a consumer-group reader for topic.
func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:           brokers,
		Topic:             topic,
		GroupID:           group,
		MinBytes:          1,
		MaxBytes:          10e6,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		StartOffset:       kafka.LastOffset,
	})
}

// MessageReader is the subset of *kafka.Reader used by Consume.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Handler processes one message value.
type Handler func(ctx context.Context, value []byte) error

// Consume fetches messages until ctx ends. Handler failures are logged and
// the message is committed anyway so one bad payload cannot wedge the
// partition.
func Consume(ctx context.Context, r MessageReader, handle Handler, logger *slog.Logger) error {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka: fetch: %w", err)
		}

		if err := handle(ctx, msg.Value); err != nil {
			logger.WarnContext(ctx, "kafka: handler failed",
				slog.String("topic", msg.Topic),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		}

		if err := r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka: commit offset %d: %w", msg.Offset, err)
		}
	}
}
