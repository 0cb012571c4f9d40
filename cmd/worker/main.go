// Package main - точка входа фоновых процессов (Worker) сервиса жизненного
// цикла диссертаций.
//
// Worker отвечает за периодические задачи:
// - Опрос окон подачи и публикация напоминаний (один раз на линию и событие)
// - Обновление кеша событий расписания для консультативных проверок
//
// Доставка напоминаний остаётся подписчикам шины событий; worker только
// публикует schedule.window_opened и пишет его в журнал.
//
// С флагом -once каждая задача выполняется один раз, и процесс завершается
// (удобно для cron или ручной проверки).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deskinspect/thesis-lifecycle/config"
	"github.com/deskinspect/thesis-lifecycle/internal/application/eventhandler"
	"github.com/deskinspect/thesis-lifecycle/internal/bootstrap"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/metrics"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/persistence/memory"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/persistence/redis"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/scheduler"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/scheduler/jobs"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/telemetry"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	once := flag.Bool("once", false, "run every job once and exit")
	flag.Parse()

	if err := run(ctx, *once); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, once bool) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg).With(logger.Component("worker"))
	log.Info("starting thesis lifecycle worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("timezone", cfg.App.Timezone),
	)

	if !cfg.Scheduler.Enabled {
		log.Warn("SCHEDULER_ENABLED=false, nothing to do")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ТРАССИРОВКА И МЕТРИКИ
	// ─────────────────────────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(ctx, cfg.App.Name+"-worker", cfg.App.Version, cfg.Observability.TracingEndpoint)
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
	// 3. ИНФРАСТРУКТУРА
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

	if err := eventhandler.Register(bus, eventhandler.Handlers{
		WindowOpened: eventhandler.NewOnWindowOpenedHandler(nil, infra.Clock, log),
	}); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}

	// Напоминания помечаются в Redis, чтобы перезапуск или второй worker
	// не повторили их. Без Redis отметки живут только в памяти процесса.
	var reminders jobs.ReminderMarker
	if infra.Redis != nil {
		reminders = redis.NewReminderSet(infra.Redis, cfg.Scheduler.ReminderTTL)
	} else {
		log.Warn("reminder markers are in-process only, a restart may repeat reminders")
		reminders = memory.NewReminderSet(cfg.Scheduler.ReminderTTL)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = log
	schedCfg.Metrics = m
	schedCfg.Clock = infra.Clock
	schedCfg.MaxConcurrent = cfg.Scheduler.MaxConcurrentJobs
	schedCfg.JobTimeout = cfg.Scheduler.JobTimeout
	sched := scheduler.NewScheduler(schedCfg)

	pollCfg := jobs.DefaultEligibilityPollConfig()
	pollCfg.Timeout = cfg.Scheduler.JobTimeout
	poll := jobs.NewEligibilityPollJob(jobs.EligibilityPollDeps{
		Repo:      infra.Repo,
		Source:    infra.Events,
		Policy:    infra.Policy,
		Reminders: reminders,
		Publisher: bus,
		Clock:     infra.Clock,
		Logger:    log,
	}, pollCfg)
	if err := sched.Register(poll, scheduler.NewIntervalSchedule(cfg.Scheduler.EligibilityPollInterval)); err != nil {
		return fmt.Errorf("failed to register %s: %w", poll.Name(), err)
	}

	refresh := jobs.NewEventRefreshJob(infra.Advisory, bus, log)
	if err := sched.Register(refresh, scheduler.NewIntervalSchedule(cfg.Scheduler.EventRefreshInterval)); err != nil {
		return fmt.Errorf("failed to register %s: %w", refresh.Name(), err)
	}

	if once {
		return runOnce(ctx, sched, log)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	for _, j := range sched.ListJobs() {
		log.Info("job scheduled", logger.String("job", j.Name), logger.String("schedule", j.Schedule))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. METRICS ENDPOINT
	// ─────────────────────────────────────────────────────────────────────────
	var metricsServer *http.Server
	if m != nil && cfg.Scheduler.MetricsAddr != "" {
		r := chi.NewRouter()
		r.Method(http.MethodGet, "/metrics", m.Handler())
		r.Get("/live", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		metricsServer = &http.Server{
			Addr:              cfg.Scheduler.MetricsAddr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", logger.Err(err))
			}
		}()
	}

	log.Info("thesis lifecycle worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown failed", logger.Err(err))
		}
	}

	stopped := make(chan error, 1)
	go func() { stopped <- sched.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			log.Warn("scheduler stop failed", logger.Err(err))
		}
	case <-shutdownCtx.Done():
		log.Warn("scheduler did not stop before the shutdown timeout")
	}

	if stats := poll.LastRunStats(); stats != nil {
		log.Info("last eligibility poll",
			logger.Int("lineages_checked", stats.LineagesChecked),
			logger.Int("reminders_published", stats.RemindersPublished),
			logger.Int("announcements", stats.Announcements),
		)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// runOnce выполняет все задачи по одному разу, по порядку имён.
func runOnce(ctx context.Context, sched *scheduler.Scheduler, log *logger.Logger) error {
	var errs []error
	for _, j := range sched.ListJobs() {
		if _, err := sched.RunNow(ctx, j.Name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", j.Name, err))
		}
	}
	log.Info("one-shot run finished", logger.Int("failed", len(errs)))
	return errors.Join(errs...)
}
