package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestScheduleNext(t *testing.T) {
	base := time.Date(2026, 3, 4, 10, 7, 30, 0, time.UTC) // Wednesday
	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2026, 3, 4, 10, 8, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 3, 4, 10, 15, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 3, 5, 3, 0, 0, 0, time.UTC)},
		{"30 9-11 * * *", time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"0 12 * * 0,6", time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := ParseSchedule(tt.expr)
			if err != nil {
				t.Fatal(err)
			}
			got, err := s.Next(base)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("Next = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseScheduleRejects(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "61 * * * *", "*/0 * * * *", "5-2 * * * *", "a * * * *"} {
		if _, err := ParseSchedule(expr); err == nil {
			t.Errorf("ParseSchedule(%q) succeeded", expr)
		}
	}
}

type windowRecorder struct {
	since, until time.Time
	n            int
	err          error
}

func (w *windowRecorder) ArchiveResolved(_ context.Context, since, until time.Time) (int, error) {
	w.since, w.until = since, until
	return w.n, w.err
}

func TestArchiveRunnerWindow(t *testing.T) {
	rec := &windowRecorder{n: 3}
	r := NewArchiveRunner(rec, 48*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	n, err := r.RunOnce(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("RunOnce = %d, %v", n, err)
	}
	if !rec.until.Equal(now) || !rec.since.Equal(now.Add(-48*time.Hour)) {
		t.Fatalf("window = %s..%s", rec.since, rec.until)
	}

	rec.err = errors.New("bucket gone")
	if _, err := r.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestOrchestratorStopsOnFailure(t *testing.T) {
	o := NewOrchestrator(slog.New(slog.NewTextHandler(io.Discard, nil)),
		Task{Name: "blocker", Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
		Task{Name: "broken", Run: func(context.Context) error { return errors.New("boom") }},
	)
	err := o.Run(context.Background())
	if err == nil || err.Error() != "broken: boom" {
		t.Fatalf("Run = %v", err)
	}

	if err := NewOrchestrator(slog.New(slog.NewTextHandler(io.Discard, nil))).Run(context.Background()); err == nil {
		t.Fatal("expected error for empty orchestrator")
	}
}
