package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// fakeSource serves due markets from a fixed set of ids.
type fakeSource struct {
	count uint64
	due   map[uint64]bool
	calls [][2]uint64
}

func (f *fakeSource) MarketCount(context.Context) (uint64, error) { return f.count, nil }

func (f *fakeSource) DueMarkets(_ context.Context, from, to uint64, limit int) ([]domain.Market, error) {
	f.calls = append(f.calls, [2]uint64{from, to})
	var out []domain.Market
	for id := from; id <= to && len(out) < limit; id++ {
		if f.due[id] {
			out = append(out, domain.Market{ID: id})
		}
	}
	return out, nil
}

func TestPollDiscovererRollsCursor(t *testing.T) {
	src := &fakeSource{count: 10, due: map[uint64]bool{2: true, 3: true, 4: true, 9: true}}
	p := NewPollDiscoverer(src, PollConfig{ScanWindow: 5, BatchCap: 2})
	ctx := context.Background()

	want := [][]uint64{{2, 3}, {4}, {9}, {2, 3}}
	for i, w := range want {
		got, err := p.Discover(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !equalIDs(got, w) {
			t.Fatalf("pass %d = %v, want %v (windows %v)", i, got, w, src.calls)
		}
	}
}

func TestPollDiscovererHonoursLimit(t *testing.T) {
	src := &fakeSource{count: 10, due: map[uint64]bool{3: true, 8: true}}
	p := NewPollDiscoverer(src, PollConfig{Start: 2, Limit: 5, ScanWindow: 100})
	got, err := p.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(got, []uint64{3}) {
		t.Fatalf("got %v", got)
	}
	if src.calls[0] != [2]uint64{2, 5} {
		t.Fatalf("window = %v", src.calls[0])
	}
}

func TestPollDiscovererEmptyStore(t *testing.T) {
	p := NewPollDiscoverer(&fakeSource{}, PollConfig{})
	got, err := p.Discover(context.Background())
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestEventDiscovererDrainsInBatches(t *testing.T) {
	e := NewEventDiscoverer(2)
	for _, id := range []uint64{5, 7, 5, 0, 9} {
		e.Notify(id)
	}
	select {
	case <-e.Wake():
	case <-time.After(time.Second):
		t.Fatal("no wake-up after notify")
	}

	ctx := context.Background()
	first, _ := e.Discover(ctx)
	second, _ := e.Discover(ctx)
	third, _ := e.Discover(ctx)
	if !equalIDs(first, []uint64{5, 7}) || !equalIDs(second, []uint64{9}) || len(third) != 0 {
		t.Fatalf("batches = %v %v %v", first, second, third)
	}

	// Drained ids can be queued again.
	e.Notify(5)
	again, _ := e.Discover(ctx)
	if !equalIDs(again, []uint64{5}) {
		t.Fatalf("requeue = %v", again)
	}
}

func TestEventDiscovererConsume(t *testing.T) {
	e := NewEventDiscoverer(10)
	ch := make(chan []byte, 3)
	ch <- []byte(`{"market_id":4,"expired_at":"2026-05-01T00:00:00Z"}`)
	ch <- []byte(`not json`)
	ch <- []byte(`{"market_id":6}`)
	close(ch)

	e.Consume(context.Background(), ch, discardLogger())
	got, _ := e.Discover(context.Background())
	if !equalIDs(got, []uint64{4, 6}) {
		t.Fatalf("got %v", got)
	}
}

type failingDiscoverer struct{}

func (failingDiscoverer) Discover(context.Context) ([]uint64, error) {
	return nil, errors.New("redis down")
}

func TestMultiDiscovererMergesAndKeepsPartialResults(t *testing.T) {
	ev := NewEventDiscoverer(10)
	ev.Notify(3)
	ev.Notify(11)
	poll := NewPollDiscoverer(&fakeSource{count: 5, due: map[uint64]bool{3: true, 4: true}}, PollConfig{})

	got, err := MultiDiscoverer{poll, failingDiscoverer{}, ev}.Discover(context.Background())
	if err == nil {
		t.Fatal("expected joined error")
	}
	if !equalIDs(got, []uint64{3, 4, 11}) {
		t.Fatalf("got %v", got)
	}
}

func equalIDs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
