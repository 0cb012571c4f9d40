// Package main - thesisctl, утилита оператора: события расписания, проверка
// допуска, статус линии, выпуск токенов и хеши сервисных ключей.
//
// Конфигурация читается из тех же переменных окружения, что и у сервера.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/deskinspect/thesis-lifecycle/config"
	"github.com/deskinspect/thesis-lifecycle/internal/application/guidance"
	"github.com/deskinspect/thesis-lifecycle/internal/application/query"
	"github.com/deskinspect/thesis-lifecycle/internal/bootstrap"
	"github.com/deskinspect/thesis-lifecycle/internal/interface/cli"
	"github.com/deskinspect/thesis-lifecycle/internal/interface/http/handlers"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			fmt.Fprint(os.Stderr, cli.Usage)
		}
		fmt.Fprintf(os.Stderr, "thesisctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" {
		fmt.Print(cli.Usage)
		return nil
	}

	// hash-key не требует окружения.
	if args[0] == "hash-key" {
		return cli.Run(ctx, args, os.Stdout, cli.Deps{})
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	auth, err := handlers.NewAuthenticator(handlers.AuthConfig{
		JWTSecret:   cfg.Auth.JWTSecret,
		JWTIssuer:   cfg.Auth.JWTIssuer,
		ServiceKeys: cfg.Auth.ServiceKeyHashes,
	})
	if err != nil {
		return err
	}
	deps := cli.Deps{Auth: auth}

	if cli.NeedsInfra(args[0]) {
		// Журнал идёт в stderr, чтобы не мешать выводу команды.
		opts := logger.DefaultOptions()
		opts.Output = os.Stderr
		opts.Level = logger.LevelWarn
		opts.Pretty = true
		opts.AddCaller = false
		log := logger.New(opts)

		infra, err := bootstrap.Open(ctx, cfg, log, nil)
		if err != nil {
			return err
		}
		defer func() { _ = infra.Close(context.Background()) }()

		deps.Events = infra.Events
		deps.Policy = infra.Policy
		deps.Clock = infra.Clock
		deps.GetThesis = query.NewGetThesisHandler(infra.Repo, nil, log)
		deps.CheckEligibility = query.NewCheckEligibilityHandler(infra.Events, infra.Policy, guidance.Default(), infra.Clock, nil)
	}

	return cli.Run(ctx, args, os.Stdout, deps)
}
