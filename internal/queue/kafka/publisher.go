package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// MessageWriter is the subset of *kafka.Writer used by EventPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventPublisher writes engine events as JSON, keyed by market id so a
// market's events stay ordered within one partition.
type EventPublisher struct {
	w MessageWriter
}

// NewEventPublisher creates an EventPublisher on w.
func NewEventPublisher(w MessageWriter) *EventPublisher {
	return &EventPublisher{w: w}
}

// Publish implements domain.EventPublisher.
func (p *EventPublisher) Publish(ctx context.Context, ev domain.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: marshal event %s: %w", ev.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(ev.MarketID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "event_id", Value: []byte(ev.ID)},
		},
		Time: ev.OccurredAt,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write event %s: %w", ev.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *EventPublisher) Close() error {
	return p.w.Close()
}

var _ domain.EventPublisher = (*EventPublisher)(nil)
