// Package pipeline runs the background data flows around the engine: price
// ingest, expiry notice intake and the settlement archive.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Task is one long-running flow.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Orchestrator runs tasks side by side. The first task to fail with
// anything other than cancellation stops the rest.
type Orchestrator struct {
	tasks  []Task
	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(logger *slog.Logger, tasks ...Task) *Orchestrator {
	return &Orchestrator{tasks: tasks, logger: logger.With(slog.String("component", "pipeline"))}
}

// Add registers another task before Run.
func (o *Orchestrator) Add(t Task) {
	o.tasks = append(o.tasks, t)
}

// Run blocks until every task returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.tasks) == 0 {
		return errors.New("pipeline: nothing to run")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, t := range o.tasks {
		g.Go(func() error {
			o.logger.InfoContext(ctx, "pipeline: task started", slog.String("task", t.Name))
			err := t.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", t.Name, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.ErrorContext(ctx, "pipeline: stopped", slog.String("error", err.Error()))
		return err
	}
	return nil
}
