// Package events fans committed engine events out to every configured
// sink.
package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// Fanout publishes each event to every sink in order. A failing sink does
// not stop the others; their errors are joined.
type Fanout struct {
	sinks  []domain.EventPublisher
	logger *slog.Logger
}

// NewFanout creates a Fanout. Nil sinks are ignored.
func NewFanout(logger *slog.Logger, sinks ...domain.EventPublisher) *Fanout {
	f := &Fanout{logger: logger.With(slog.String("component", "events"))}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Add appends a sink.
func (f *Fanout) Add(s domain.EventPublisher) {
	if s != nil {
		f.sinks = append(f.sinks, s)
	}
}

// Len reports the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Publish implements domain.EventPublisher.
func (f *Fanout) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			f.logger.WarnContext(ctx, "events: sink failed",
				slog.String("type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CacheInvalidator drops cached market records whenever an event changes
// the market.
type CacheInvalidator struct {
	cache domain.MarketCache
}

// NewCacheInvalidator creates a CacheInvalidator over cache.
func NewCacheInvalidator(cache domain.MarketCache) *CacheInvalidator {
	return &CacheInvalidator{cache: cache}
}

// Publish implements domain.EventPublisher.
func (c *CacheInvalidator) Publish(ctx context.Context, ev domain.Event) error {
	switch ev.Type {
	case domain.EventPredictionRecorded, domain.EventMarketResolved,
		domain.EventOracleRegistered, domain.EventSettingsUpdated:
	default:
		return nil
	}
	if ev.MarketID == 0 {
		return nil
	}
	return c.cache.Invalidate(ctx, ev.MarketID)
}

var (
	_ domain.EventPublisher = (*Fanout)(nil)
	_ domain.EventPublisher = (*CacheInvalidator)(nil)
)
