package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/convictionmarket/internal/cache/redis"
	"github.com/alanyoungcy/convictionmarket/internal/domain"
	"github.com/alanyoungcy/convictionmarket/internal/pipeline"
	"github.com/alanyoungcy/convictionmarket/internal/queue/kafka"
	"github.com/alanyoungcy/convictionmarket/internal/scheduler"
	"github.com/alanyoungcy/convictionmarket/internal/server"
	"github.com/alanyoungcy/convictionmarket/internal/server/handler"
	"github.com/alanyoungcy/convictionmarket/internal/server/middleware"
)

// schedulerLockKey serialises resolution batches across scheduler replicas.
const schedulerLockKey = "scheduler:resolve"

// ServerMode serves the HTTP API and the WebSocket event stream.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	return a.run(ctx, a.serverTasks(deps)...)
}

// SchedulerMode resolves expired markets as they become due.
func (a *App) SchedulerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scheduler mode")
	return a.run(ctx, a.schedulerTasks(ctx, deps)...)
}

// IngestMode copies price ticks from Kafka into the price cache.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ingest mode")
	t, err := a.ingestTask(deps)
	if err != nil {
		return err
	}
	return a.run(ctx, t)
}

// ArchiveMode exports settled markets to object storage on a cron schedule.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	t, err := a.archiveTask(deps)
	if err != nil {
		return err
	}
	return a.run(ctx, t)
}

// FullMode runs the API, the scheduler and, when configured, price ingest
// and the settlement archive in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	tasks := a.serverTasks(deps)
	tasks = append(tasks, a.schedulerTasks(ctx, deps)...)

	if a.cfg.Kafka.Enabled && deps.PriceCache != nil {
		t, err := a.ingestTask(deps)
		if err != nil {
			return err
		}
		tasks = append(tasks, t)
	}
	if deps.Archiver != nil {
		t, err := a.archiveTask(deps)
		if err != nil {
			return err
		}
		tasks = append(tasks, t)
	}
	return a.run(ctx, tasks...)
}

func (a *App) run(ctx context.Context, tasks ...pipeline.Task) error {
	err := pipeline.NewOrchestrator(a.logger, tasks...).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serverTasks builds the HTTP server and the WebSocket hub.
func (a *App) serverTasks(deps *Dependencies) []pipeline.Task {
	hd := handler.Deps{
		Engine:   deps.Engine,
		Claimer:  deps.Distributor,
		Resolver: deps.Gateway,
		Cache:    deps.MarketCache,
		Logger:   a.logger,
	}

	var limiter domain.RateLimiter = deps.RateLimiter
	if deps.RateLimiter == nil {
		limiter = middleware.NewLocalLimiter(10, a.cfg.Server.RateWindow.Duration)
	}
	// Signatures are single-use. Redis shares the record across replicas;
	// without it each process keeps its own.
	var replay domain.LockManager = deps.LockManager
	if deps.LockManager == nil {
		replay = middleware.NewLocalLocks(nil)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		MaxSkew:     a.cfg.Server.AuthSkew.Duration,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:      handler.NewHealthHandler(deps.Checks, a.logger),
		Markets:     handler.NewMarketHandler(hd),
		Positions:   handler.NewPositionHandler(hd),
		Predictions: handler.NewPredictionHandler(hd),
		Admin:       handler.NewAdminHandler(hd),
	}, server.Extras{
		Hub:      deps.Hub,
		Metrics:  deps.Metrics.Handler(),
		Observer: deps.Metrics,
		Limiter:  limiter,
		Replay:   replay,
		Owner:    func() common.Address { return deps.Engine.Settings().Owner },
	}, a.logger)

	return []pipeline.Task{
		{Name: "http", Run: srv.Run},
		{Name: "ws-hub", Run: deps.Hub.Run},
	}
}

// schedulerTasks builds the resolution loop and the expiry notice intakes
// that wake it. Open markets get expiry timers so a restart loses nothing.
func (a *App) schedulerTasks(ctx context.Context, deps *Dependencies) []pipeline.Task {
	active, err := deps.Engine.ActiveMarkets(ctx, domain.ListOpts{})
	if err != nil {
		a.logger.WarnContext(ctx, "scheduler: could not arm expiry timers", slog.String("error", err.Error()))
	}
	deps.Expiry.ArmActive(active)

	poll := scheduler.NewPollDiscoverer(deps.Engine, scheduler.PollConfig{
		ScanWindow: uint64(a.cfg.Scheduler.ScanWindow),
		BatchCap:   a.cfg.Scheduler.BatchCap,
	})

	opts := []scheduler.Option{
		scheduler.WithPublisher(deps.Events),
		scheduler.WithRecorder(deps.Metrics),
		scheduler.WithWake(deps.Discoverer.Wake()),
	}
	if deps.LockManager != nil {
		opts = append(opts, scheduler.WithLock(deps.LockManager))
	}
	sched := scheduler.New(
		scheduler.MultiDiscoverer{deps.Discoverer, poll},
		deps.Engine,
		deps.Gateway,
		scheduler.Config{
			Interval: a.cfg.Scheduler.Interval.Duration,
			LockKey:  schedulerLockKey,
			LockTTL:  a.cfg.Scheduler.LockTTL.Duration,
		},
		a.logger,
		opts...,
	)

	tasks := []pipeline.Task{{Name: "scheduler", Run: sched.Run}}

	if deps.SignalBus != nil {
		tasks = append(tasks, pipeline.Task{Name: "expiry-bus", Run: func(ctx context.Context) error {
			ch, err := deps.SignalBus.Subscribe(ctx, redis.ChannelExpiry)
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", redis.ChannelExpiry, err)
			}
			deps.Discoverer.Consume(ctx, ch, a.logger)
			return ctx.Err()
		}})
	}
	if a.cfg.Kafka.Enabled {
		kc := deps.KafkaConfig
		tasks = append(tasks, pipeline.Task{Name: "expiry-kafka", Run: func(ctx context.Context) error {
			r := kafka.NewReader(kc.Brokers, kc.ExpiryTopic, kc.GroupID)
			defer r.Close()
			return kafka.Consume(ctx, r, kafka.ExpiryHandler(deps.Discoverer.Notify), a.logger)
		}})
	}
	return tasks
}

func (a *App) ingestTask(deps *Dependencies) (pipeline.Task, error) {
	if !a.cfg.Kafka.Enabled || deps.PriceCache == nil {
		return pipeline.Task{}, errors.New("app: ingest needs kafka and redis")
	}
	kc := deps.KafkaConfig
	in := kafka.NewPriceIngest(deps.PriceCache)
	return pipeline.Task{Name: "price-ingest", Run: func(ctx context.Context) error {
		r := kafka.NewReader(kc.Brokers, kc.PriceTopic, kc.GroupID)
		defer r.Close()
		return kafka.Consume(ctx, r, in.Handle, a.logger)
	}}, nil
}

func (a *App) archiveTask(deps *Dependencies) (pipeline.Task, error) {
	if deps.Archiver == nil {
		return pipeline.Task{}, errors.New("app: archive needs s3")
	}
	runner := pipeline.NewArchiveRunner(deps.Archiver, a.cfg.Archive.Lookback.Duration, a.logger)
	expr := a.cfg.Archive.Cron
	return pipeline.Task{Name: "archive", Run: func(ctx context.Context) error {
		return runner.RunCron(ctx, expr)
	}}, nil
}
