// Package bootstrap opens the infrastructure shared by the server, the worker
// and thesisctl. Each binary builds what it needs from an Infra and closes it
// on the way out.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deskinspect/thesis-lifecycle/config"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/eligibility"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/external/calendar"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/messaging"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/metrics"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/persistence/memory"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/persistence/postgres"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/persistence/redis"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/persistence/sqlite"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
	"github.com/deskinspect/thesis-lifecycle/pkg/retry"
	"github.com/deskinspect/thesis-lifecycle/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// INFRA
// ══════════════════════════════════════════════════════════════════════════════

// Check is a named dependency probe for the health endpoints.
type Check struct {
	Name     string
	Critical bool
	Ping     func(ctx context.Context) error
}

// Infra holds the opened infrastructure.
type Infra struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	Clock   timeutil.Clock
	Policy  eligibility.Policy

	Repo   thesis.Repository
	Locker thesis.LineageLocker

	// Redis is nil when REDIS_DISABLED is set.
	Redis *redis.Cache

	// Events reads the calendar directly. Transitions use it.
	Events schedule.EventSource

	// Advisory is the cached view of Events for read-only answers.
	Advisory *calendar.CachedSource

	// ThesisCache is nil without Redis.
	ThesisCache *redis.ThesisCache

	Checks []Check

	closers []func(context.Context) error
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Pretty = cfg.Observability.LogFormat == "console"
	opts.Service = cfg.App.Name
	opts.AddCaller = cfg.App.Debug
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts)
}

// Open connects the store, Redis and the event source.
// On error everything opened so far is closed.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (_ *Infra, err error) {
	if err := timeutil.SetLocation(cfg.App.Timezone); err != nil {
		return nil, fmt.Errorf("set timezone: %w", err)
	}

	in := &Infra{
		Config:  cfg,
		Logger:  log,
		Metrics: m,
		Clock:   timeutil.SystemClock{},
		Policy:  eligibility.NewPolicy(cfg.Eligibility.WindowDays),
	}
	defer func() {
		if err != nil {
			_ = in.Close(context.Background())
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// Store
	// ─────────────────────────────────────────────────────────────────────────
	if err := in.openStore(ctx); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (lineage lock and read caches)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Redis.Disabled {
		log.Warn("redis disabled, using in-process lock without read caches")
		in.Locker = memory.NewLocker()
	} else {
		cache, err := connectRedis(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		in.Redis = cache
		in.closers = append(in.closers, func(context.Context) error { return cache.Close() })
		in.Checks = append(in.Checks, Check{Name: "redis", Critical: true, Ping: cache.Ping})
		in.Locker = redis.NewLineageLock(cache)
		in.ThesisCache = redis.NewThesisCache(cache, cfg.Redis.ViewCacheTTL)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Scheduling events
	// ─────────────────────────────────────────────────────────────────────────
	in.openEvents()

	return in, nil
}

func (in *Infra) openStore(ctx context.Context) error {
	cfg, log := in.Config, in.Logger

	switch cfg.Store.Driver {
	case config.StorePostgres:
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = cfg.Database.URL
		pgCfg.MaxConns = cfg.Database.MaxConns
		pgCfg.MinConns = cfg.Database.MinConns
		pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

		log.Info("connecting to postgres")
		conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
			return postgres.NewConnection(ctx, pgCfg)
		}, startupOptions(log, "postgres")...)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		in.closers = append(in.closers, func(context.Context) error { conn.Close(); return nil })

		if cfg.Database.AutoMigrate {
			if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				return fmt.Errorf("migrate postgres: %w", err)
			}
		}
		in.Repo = postgres.NewThesisRepository(conn)
		in.Checks = append(in.Checks, Check{Name: "store", Critical: true, Ping: conn.Ping})

	case config.StoreSQLite:
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		log.Info("opening sqlite store", logger.String("path", cfg.SQLite.Path))
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return err
		}
		in.closers = append(in.closers, func(context.Context) error { return store.Close() })
		in.Repo = store
		in.Checks = append(in.Checks, Check{Name: "store", Critical: true, Ping: store.Ping})

	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return nil
}

func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) (*redis.Cache, error) {
	rc := redis.DefaultConfig()
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout

	log.Info("connecting to redis", logger.String("addr", rc.Addr()))
	cache, err := retry.DoWithData(ctx, func(context.Context) (*redis.Cache, error) {
		return redis.NewCache(rc)
	}, startupOptions(log, "redis")...)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return cache, nil
}

func (in *Infra) openEvents() {
	cfg := in.Config

	if cfg.Calendar.BaseURL != "" {
		cc := calendar.DefaultClientConfig(cfg.Calendar.BaseURL)
		cc.APIKey = cfg.Calendar.APIKey
		cc.Timeout = cfg.Calendar.RequestTimeout
		cc.MaxRetries = cfg.Calendar.MaxRetries
		cc.Logger = in.Logger
		cc.Metrics = in.Metrics
		client := calendar.NewClient(cc)
		in.Events = client
		in.Checks = append(in.Checks, Check{Name: "calendar", Ping: client.Ping})
	} else {
		files := calendar.NewFileSource(cfg.Calendar.File, in.Metrics)
		in.Events = files
		in.Checks = append(in.Checks, Check{Name: "calendar", Ping: func(ctx context.Context) error {
			_, err := files.ListEvents(ctx, "")
			return err
		}})
	}

	var cache calendar.EventCache
	if in.Redis != nil {
		cache = redis.NewEventCache(in.Redis, cfg.Calendar.CacheTTL)
	}
	in.Advisory = calendar.NewCachedSource(in.Events, cache, in.Logger)
}

// NewEventBus returns the Redis pub/sub bus when Redis is available and an
// in-memory bus otherwise. The bus is closed with the Infra.
func (in *Infra) NewEventBus(ctx context.Context) (shared.EventBus, error) {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = in.Logger
	local.Metrics = in.Metrics

	if in.Redis == nil {
		bus := messaging.NewInMemoryEventBus(local)
		in.closers = append(in.closers, func(context.Context) error { return bus.Close() })
		return bus, nil
	}

	bus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
		Cache:          in.Redis,
		LocalBusConfig: local,
		Logger:         in.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("start redis event bus: %w", err)
	}
	in.closers = append(in.closers, func(context.Context) error { return bus.Close() })
	return bus, nil
}

// OnClose registers fn to run when the Infra closes, before earlier closers.
func (in *Infra) OnClose(fn func(context.Context) error) {
	in.closers = append(in.closers, fn)
}

// Close releases everything in reverse opening order.
func (in *Infra) Close(ctx context.Context) error {
	var first error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	in.closers = nil
	return first
}

func startupOptions(log *logger.Logger, target string) []retry.Option {
	return retry.StartupOptions(retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		log.Warn("dependency not reachable, retrying",
			logger.String("target", target),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}))
}
