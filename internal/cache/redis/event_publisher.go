package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// EventPublisher writes events to the signal bus: one Pub/Sub message on
// the event's type channel and one entry in the durable stream.
type EventPublisher struct {
	bus domain.SignalBus
}

// NewEventPublisher creates an EventPublisher on bus.
func NewEventPublisher(bus domain.SignalBus) *EventPublisher {
	return &EventPublisher{bus: bus}
}

// Publish implements domain.EventPublisher.
func (p *EventPublisher) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", ev.Type, err)
	}
	return errors.Join(
		p.bus.Publish(ctx, ChannelEventsPrefix+string(ev.Type), payload),
		p.bus.StreamAppend(ctx, StreamEvents, payload),
	)
}

// AnnounceExpiry publishes an expiry notice for schedulers listening on
// ChannelExpiry.
func (p *EventPublisher) AnnounceExpiry(ctx context.Context, n domain.ExpiryNotice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("redis: marshal expiry notice: %w", err)
	}
	return p.bus.Publish(ctx, ChannelExpiry, payload)
}

var _ domain.EventPublisher = (*EventPublisher)(nil)
