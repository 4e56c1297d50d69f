package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

type memPrices struct {
	mu     sync.Mutex
	prices map[string]domain.PriceData
}

func (m *memPrices) SetPrice(_ context.Context, feed string, p domain.PriceData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prices == nil {
		m.prices = map[string]domain.PriceData{}
	}
	m.prices[feed] = p
	return nil
}

func (m *memPrices) GetPrice(_ context.Context, feed string) (domain.PriceData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[feed]
	if !ok {
		return domain.PriceData{}, domain.ErrNotFound
	}
	return p, nil
}

func tick(t *testing.T, feed, price string, ts int64) []byte {
	t.Helper()
	expo := int32(-8)
	b, err := json.Marshal(PriceTick{Feed: feed, Price: price, Expo: &expo, PublishTime: ts})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestConsumeCommitsEvenWhenHandlerFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prices := &memPrices{}
	in := NewPriceIngest(prices)
	r := &fakeReader{
		cancel: cancel,
		msgs: []kafka.Message{
			{Offset: 1, Value: tick(t, "btc", "6500000000000", 100)},
			{Offset: 2, Value: []byte("{not json")},
			{Offset: 3, Value: tick(t, "btc", "6400000000000", 90)},
			{Offset: 4, Value: tick(t, "btc", "6600000000000", 110)},
		},
	}

	if err := Consume(ctx, r, in.Handle, discardLogger()); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if len(r.committed) != 4 {
		t.Fatalf("committed = %v", r.committed)
	}

	got, err := prices.GetPrice(context.Background(), "btc")
	if err != nil {
		t.Fatal(err)
	}
	if got.Price.String() != "6600000000000" || !got.UpdatedAt.Equal(time.Unix(110, 0)) {
		t.Fatalf("cached = %s at %s", got.Price, got.UpdatedAt)
	}
	if !got.HasExpo || got.Expo != -8 {
		t.Fatalf("expo = %d (%v)", got.Expo, got.HasExpo)
	}
}

func TestPriceTickValidation(t *testing.T) {
	tests := []struct {
		name string
		tick PriceTick
	}{
		{"missing feed", PriceTick{Price: "1"}},
		{"missing price", PriceTick{Feed: "eth"}},
		{"bad price", PriceTick{Feed: "eth", Price: "1.5"}},
		{"bad round", PriceTick{Feed: "eth", Price: "1", RoundID: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.tick.PriceData(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestExpiryHandler(t *testing.T) {
	var got []uint64
	h := ExpiryHandler(func(id uint64) { got = append(got, id) })

	if err := h(context.Background(), []byte(`{"market_id":12,"expired_at":"2026-01-02T00:00:00Z"}`)); err != nil {
		t.Fatal(err)
	}
	if err := h(context.Background(), []byte(`{"market_id":0}`)); err == nil {
		t.Fatal("expected error for zero id")
	}
	if len(got) != 1 || got[0] != 12 {
		t.Fatalf("notified = %v", got)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestEventPublisherKeysByMarket(t *testing.T) {
	w := &fakeWriter{}
	p := NewEventPublisher(w)
	ev := domain.Event{ID: "e1", Type: domain.EventPredictionRecorded, MarketID: 7, OccurredAt: time.Unix(5, 0)}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	m := w.msgs[0]
	if string(m.Key) != "7" || string(m.Headers[0].Value) != "prediction_recorded" {
		t.Fatalf("key = %s headers = %v", m.Key, m.Headers)
	}

	w.err = errors.New("broker down")
	if err := p.Publish(context.Background(), ev); err == nil {
		t.Fatal("expected write error")
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{PriceTopic: "custom"}.WithDefaults()
	if c.PriceTopic != "custom" || c.EventsTopic != DefaultEventsTopic || c.GroupID != DefaultGroupID {
		t.Fatalf("config = %+v", c)
	}
}
