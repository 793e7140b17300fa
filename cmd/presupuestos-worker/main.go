package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"presupuestos/internal/cli"
	applog "presupuestos/internal/log"
	"presupuestos/internal/worker"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, applog.ComponentWorker, nil)
	logger.Info("Starting presupuestos-worker",
		applog.FieldOperation, applog.OpStartup,
		"sheets_mirror", cfg.SheetsEnabled())

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger.Logger, shutdownTimeout, nil)

	app, err := cli.OpenBackend(ctx, cfg, logger.Logger)
	if err != nil {
		logger.Error("Failed to open backend", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	broker := app.AMQP()
	if broker == nil {
		logger.Error("AMQP broker unreachable")
		os.Exit(1)
	}

	writer, err := app.BudgetWriter(ctx)
	if err != nil {
		logger.Error("Failed to initialize budget writer", "error", err)
		os.Exit(1)
	}
	commits := worker.NewCommitWorker(app.Budgets, writer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := commits.StartupSync(gctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Startup mirror failed", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		return broker.ConsumeCommits(gctx, commits.Handle)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		app.Close()
		os.Exit(1)
	}

	<-done
	logger.Info("Worker stopped", applog.FieldOperation, applog.OpShutdown)
}
