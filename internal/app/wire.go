package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	s3blob "github.com/alanyoungcy/convictionmarket/internal/blob/s3"
	"github.com/alanyoungcy/convictionmarket/internal/cache/redis"
	"github.com/alanyoungcy/convictionmarket/internal/config"
	"github.com/alanyoungcy/convictionmarket/internal/domain"
	"github.com/alanyoungcy/convictionmarket/internal/engine"
	"github.com/alanyoungcy/convictionmarket/internal/events"
	"github.com/alanyoungcy/convictionmarket/internal/funds"
	"github.com/alanyoungcy/convictionmarket/internal/metrics"
	"github.com/alanyoungcy/convictionmarket/internal/notify"
	"github.com/alanyoungcy/convictionmarket/internal/oracle"
	"github.com/alanyoungcy/convictionmarket/internal/queue/kafka"
	"github.com/alanyoungcy/convictionmarket/internal/rewards"
	"github.com/alanyoungcy/convictionmarket/internal/scheduler"
	"github.com/alanyoungcy/convictionmarket/internal/server/handler"
	"github.com/alanyoungcy/convictionmarket/internal/server/ws"
	"github.com/alanyoungcy/convictionmarket/internal/store/memory"
	"github.com/alanyoungcy/convictionmarket/internal/store/postgres"
	"github.com/alanyoungcy/convictionmarket/internal/store/sqlite"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store  domain.Store
	Vault  *funds.Book
	Engine *engine.Engine

	// Grant holders.
	Gateway     *oracle.Gateway
	Distributor *rewards.Distributor

	// Redis; all nil when Redis is disabled.
	Redis       *redis.Client
	PriceCache  domain.PriceCache
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	RedisEvents *redis.EventPublisher

	// Kafka; nil when Kafka is disabled.
	KafkaEvents *kafka.EventPublisher
	KafkaConfig kafka.Config

	Events *events.Fanout
	// Expiry arms a timer per open market and announces it when it fires.
	// Without Redis the announcement goes straight to Discoverer.
	Expiry     *events.ExpiryTimers
	Discoverer *scheduler.EventDiscoverer

	Hub      *ws.Hub
	Notifier *notify.Notifier
	Metrics  *metrics.Recorder

	// Archiver is nil unless the archive job runs.
	Archiver *s3blob.SettlementArchiver

	Checks map[string]handler.Check
}

// needsArchive reports whether the settlement archive job runs in mode.
func needsArchive(cfg *config.Config) bool {
	mode := strings.ToLower(cfg.Mode)
	return mode == "archive" || (mode == "full" && cfg.Archive.Enabled)
}

// Wire constructs all concrete dependency implementations from cfg and
// returns them together with a cleanup function that should be called on
// shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: map[string]handler.Check{}}

	// --- Store ---
	switch strings.ToLower(cfg.Store.Backend) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Store = postgres.NewStore(pgClient)
		deps.Checks["postgres"] = pgClient.Health
	case "sqlite":
		st, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, func() { _ = st.Close() })
		deps.Store = st
		deps.Checks["sqlite"] = st.Health
	default:
		deps.Store = memory.New()
	}

	// --- Funds ---
	deps.Vault = funds.NewBook(logger)
	for addr, raw := range cfg.Funds.Balances {
		amount, err := domain.ParseAmount(raw)
		if err != nil {
			return fail(fmt.Errorf("wire: funds balance for %s: %w", addr, err))
		}
		if err := deps.Vault.Credit(common.HexToAddress(addr), amount); err != nil {
			return fail(fmt.Errorf("wire: funds balance for %s: %w", addr, err))
		}
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })
		deps.Redis = rc
		deps.PriceCache = redis.NewPriceCache(rc, cfg.Redis.PriceTTL.Duration)
		deps.MarketCache = redis.NewMarketCache(rc, cfg.Redis.MarketTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(rc, int(math.Ceil(cfg.Oracle.PythRPS)), time.Second)
		deps.LockManager = redis.NewLockManager(rc)
		deps.SignalBus = redis.NewSignalBus(rc)
		deps.RedisEvents = redis.NewEventPublisher(deps.SignalBus)
		deps.Checks["redis"] = rc.Health
	}

	// --- Kafka ---
	deps.KafkaConfig = kafka.Config{
		Brokers:     cfg.Kafka.Brokers,
		EventsTopic: cfg.Kafka.EventsTopic,
		PriceTopic:  cfg.Kafka.PriceTopic,
		ExpiryTopic: cfg.Kafka.ExpiryTopic,
		GroupID:     cfg.Kafka.GroupID,
	}.WithDefaults()
	if cfg.Kafka.Enabled {
		waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := kafka.WaitForBroker(waitCtx, deps.KafkaConfig.Brokers)
		cancel()
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		deps.KafkaEvents = kafka.NewEventPublisher(kafka.NewWriter(deps.KafkaConfig.Brokers, deps.KafkaConfig.EventsTopic))
		closers = append(closers, func() { _ = deps.KafkaEvents.Close() })
	}

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps.Metrics = metrics.New(reg)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Event fan-out ---
	// With Redis the hub follows the bus, so events reach sockets served by
	// any instance; without it the hub is fed in-process.
	hubCfg := ws.Config{AllowedOrigins: cfg.Server.CORSOrigins}
	if deps.SignalBus != nil {
		hubCfg.Bus = deps.SignalBus
		hubCfg.Channel = redis.ChannelEventsAll
		hubCfg.Stream = redis.StreamEvents
	}
	deps.Hub = ws.NewHub(hubCfg, logger)

	deps.Events = events.NewFanout(logger)
	if deps.RedisEvents != nil {
		deps.Events.Add(deps.RedisEvents)
	} else {
		deps.Events.Add(deps.Hub)
	}
	if deps.KafkaEvents != nil {
		deps.Events.Add(deps.KafkaEvents)
	}
	if deps.MarketCache != nil {
		deps.Events.Add(events.NewCacheInvalidator(deps.MarketCache))
	}
	if len(senders) > 0 {
		deps.Events.Add(deps.Notifier)
	}

	deps.Discoverer = scheduler.NewEventDiscoverer(cfg.Scheduler.BatchCap)
	announce := func(_ context.Context, n domain.ExpiryNotice) error {
		deps.Discoverer.Notify(n.MarketID)
		return nil
	}
	if deps.RedisEvents != nil {
		announce = deps.RedisEvents.AnnounceExpiry
	}
	deps.Expiry = events.NewExpiryTimers(announce, time.Now, logger)
	closers = append(closers, deps.Expiry.Stop)
	deps.Events.Add(deps.Expiry)

	// --- Engine ---
	minStake, err := domain.ParseAmount(cfg.Engine.MinStake)
	if err != nil {
		return fail(fmt.Errorf("wire: engine min_stake: %w", err))
	}
	owner := common.HexToAddress(cfg.Engine.Owner)
	eng, err := engine.New(deps.Store, deps.Vault, engine.Settings{
		Owner:          owner,
		Treasury:       common.HexToAddress(cfg.Engine.Treasury),
		FeeBps:         cfg.Engine.FeeBps,
		GlobalMinStake: minStake,
		MaxStaleness:   cfg.Engine.MaxStaleness.Duration,
	}, logger, engine.WithPublisher(deps.Events), engine.WithRecorder(deps.Metrics))
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Engine = eng

	// --- Grants and price sources ---
	resolverGrant, err := eng.Designate(ctx, owner, domain.RoleResolver)
	if err != nil {
		return fail(fmt.Errorf("wire: designate resolver: %w", err))
	}
	distributorGrant, err := eng.Designate(ctx, owner, domain.RoleDistributor)
	if err != nil {
		return fail(fmt.Errorf("wire: designate distributor: %w", err))
	}

	sources := map[domain.Provider]domain.PriceSource{}
	if cfg.Oracle.ChainlinkRPCURL != "" {
		cl, err := oracle.DialChainlink(ctx, cfg.Oracle.ChainlinkRPCURL)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		closers = append(closers, func() { _ = cl.Close() })
		sources[domain.ProviderChainlink] = cl
	}
	if cfg.Oracle.PythHermesURL != "" {
		pyth := oracle.NewPyth(cfg.Oracle.PythHermesURL, cfg.Oracle.PythRPS, cfg.Oracle.PythBurst)
		if deps.RateLimiter != nil && cfg.Oracle.PythRPS > 0 {
			pyth.ShareLimit(deps.RateLimiter)
		}
		sources[domain.ProviderPyth] = pyth
	}
	if deps.PriceCache != nil {
		sources[domain.ProviderCache] = oracle.NewCacheSource(deps.PriceCache)
	}
	deps.Gateway = oracle.NewGateway(eng, resolverGrant, sources, logger).WithMaxConfidence(cfg.Oracle.MaxConfBps)
	deps.Distributor = rewards.NewDistributor(eng, distributorGrant, logger)

	// --- S3 settlement archive ---
	if needsArchive(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewSettlementArchiver(eng, s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), cfg.Archive.Prefix, logger)
		deps.Checks["s3"] = s3Client.Health
	}

	return deps, cleanup, nil
}
