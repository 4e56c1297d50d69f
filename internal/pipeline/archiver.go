package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/convictionmarket/internal/domain"
)

// ArchiveRunner exports recently resolved markets to cold storage on a cron
// schedule. Each run covers the lookback window ending now, so overlapping
// runs are harmless: the archiver skips markets it already wrote.
type ArchiveRunner struct {
	archiver domain.SettlementArchiver
	lookback time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewArchiveRunner creates an ArchiveRunner. A non-positive lookback
// defaults to seven days.
func NewArchiveRunner(a domain.SettlementArchiver, lookback time.Duration, logger *slog.Logger) *ArchiveRunner {
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	return &ArchiveRunner{
		archiver: a,
		lookback: lookback,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "archive")),
	}
}

// RunOnce archives markets resolved within the lookback window.
func (r *ArchiveRunner) RunOnce(ctx context.Context) (int, error) {
	until := r.now().UTC()
	since := until.Add(-r.lookback)
	n, err := r.archiver.ArchiveResolved(ctx, since, until)
	if err != nil {
		return n, fmt.Errorf("archive %s..%s: %w", since.Format(time.RFC3339), until.Format(time.RFC3339), err)
	}
	return n, nil
}

// RunCron runs RunOnce at every time matched by expr until ctx ends.
func (r *ArchiveRunner) RunCron(ctx context.Context, expr string) error {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "archive: cron started", slog.String("cron", expr))

	for {
		next, err := sched.Next(r.now())
		if err != nil {
			return err
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		n, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.ErrorContext(ctx, "archive: run failed", slog.String("error", err.Error()))
			continue
		}
		r.logger.InfoContext(ctx, "archive: run finished", slog.Int("written", n))
	}
}
