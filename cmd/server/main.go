// Package main - точка входа HTTP API сервиса жизненного цикла диссертаций.
//
// Сервер принимает команды подачи, рецензирования и повторной подачи,
// отвечает на запросы статуса и консультативные проверки допуска.
// Каждая команда выполняется под замком линии и заново проверяет окно
// подачи по свежему списку событий расписания.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deskinspect/thesis-lifecycle/config"
	"github.com/deskinspect/thesis-lifecycle/internal/application/command"
	"github.com/deskinspect/thesis-lifecycle/internal/application/eventhandler"
	"github.com/deskinspect/thesis-lifecycle/internal/application/guidance"
	"github.com/deskinspect/thesis-lifecycle/internal/application/query"
	"github.com/deskinspect/thesis-lifecycle/internal/bootstrap"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/metrics"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/telemetry"
	httpapi "github.com/deskinspect/thesis-lifecycle/internal/interface/http"
	"github.com/deskinspect/thesis-lifecycle/internal/interface/http/handlers"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg)
	log.Info("starting thesis lifecycle API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("store", string(cfg.Store.Driver)),
		logger.String("timezone", cfg.App.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ТРАССИРОВКА И МЕТРИКИ
	// ─────────────────────────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(ctx, cfg.App.Name, cfg.App.Version, cfg.Observability.TracingEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracing shutdown failed", logger.Err(err))
		}
	}()

	var m *metrics.Metrics
	if cfg.Observability.MetricsEnabled {
		m = metrics.New()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ИНФРАСТРУКТУРА (хранилище, Redis, события расписания, шина)
	// ─────────────────────────────────────────────────────────────────────────
	infra, err := bootstrap.Open(ctx, cfg, log, m)
	if err != nil {
		return fmt.Errorf("failed to open infrastructure: %w", err)
	}
	defer func() {
		log.Info("closing infrastructure...")
		if err := infra.Close(context.Background()); err != nil {
			log.Warn("infrastructure close failed", logger.Err(err))
		}
	}()

	bus, err := infra.NewEventBus(ctx)
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ОБРАБОТЧИКИ СОБЫТИЙ
	// Напоминания об окнах рассылает worker; сервер только пишет аудит
	// и сбрасывает кеш представлений.
	// ─────────────────────────────────────────────────────────────────────────
	var invalidator eventhandler.CacheInvalidator
	var commandCache command.CacheInvalidator
	var viewCache query.ViewCache
	if infra.ThesisCache != nil {
		invalidator = infra.ThesisCache
		commandCache = infra.ThesisCache
		viewCache = infra.ThesisCache
	}
	if err := eventhandler.Register(bus, eventhandler.Handlers{
		Thesis: eventhandler.NewOnThesisEventHandler(invalidator, log),
	}); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. КОМАНДЫ И ЗАПРОСЫ
	// ─────────────────────────────────────────────────────────────────────────
	deps := command.Deps{
		Repo:      infra.Repo,
		Locker:    infra.Locker,
		Machine:   thesis.NewMachine(infra.Policy),
		Publisher: bus,
		Events:    infra.Events,
		Cache:     commandCache,
		Clock:     infra.Clock,
		Logger:    log,
		Metrics:   m,
		LockTTL:   cfg.HTTP.LockTTL,
	}

	guide := guidance.Default()

	auth, err := handlers.NewAuthenticator(handlers.AuthConfig{
		JWTSecret:   cfg.Auth.JWTSecret,
		JWTIssuer:   cfg.Auth.JWTIssuer,
		ServiceKeys: cfg.Auth.ServiceKeyHashes,
	})
	if err != nil {
		return fmt.Errorf("failed to configure authentication: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warn("AUTH_JWT_SECRET not set, bearer tokens are rejected")
	}

	probes := make([]handlers.Probe, 0, len(infra.Checks))
	for _, c := range infra.Checks {
		probes = append(probes, handlers.Probe{Name: c.Name, Critical: c.Critical, Ping: c.Ping})
	}
	health := handlers.NewProbeSet(cfg.App.Version, 5*time.Second, probes...)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.RequestDeadline = cfg.HTTP.RequestDeadline
	serverCfg.AllowedOrigins = cfg.HTTP.CORSOrigins
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimit
	serverCfg.EnableMetrics = cfg.Observability.MetricsEnabled
	serverCfg.Version = cfg.App.Version

	server := httpapi.NewServer(serverCfg, httpapi.Dependencies{
		SubmitThesis:        command.NewSubmitThesisHandler(deps),
		ReviewThesis:        command.NewReviewThesisHandler(deps),
		RequestResubmission: command.NewRequestResubmissionHandler(deps),
		SubmitRevision:      command.NewSubmitRevisionHandler(deps),

		GetThesis:        query.NewGetThesisHandler(infra.Repo, viewCache, log),
		GetVersion:       query.NewGetVersionHandler(infra.Repo),
		ListByStatus:     query.NewListByStatusHandler(infra.Repo),
		CheckEligibility: query.NewCheckEligibilityHandler(infra.Advisory, infra.Policy, guide, infra.Clock, m),

		Auth:          auth,
		Guide:         guide,
		HealthChecker: health,
		Metrics:       m,
		Logger:        log,
	})

	errCh := server.StartAsync()
	log.Info("thesis lifecycle API is running", logger.String("address", serverCfg.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	start := time.Now()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", logger.Err(err))
	}
	log.Info("shutdown completed", logger.Latency(time.Since(start)))
	return nil
}
