package main

import (
	"context"
	"errors"
	"os"
	"time"

	"treso/internal/amqp"
	"treso/internal/backend"
	"treso/internal/cli"
	"treso/internal/log"
	"treso/internal/worker"
)

func main() {
	cfg, logger := cli.LoadConfig(log.ComponentWorker)
	logger.Info("Starting treso-worker")

	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Invalid worker configuration", log.FieldError, err)
		os.Exit(1)
	}

	// Consumer only.
	be := cli.InitBackend(context.Background(), logger, cfg, func(c *backend.Config) { c.AMQPURL = "" })

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		_ = be.Cleanup()
		os.Exit(1)
	}

	ctx, cancel, done := cli.GracefulShutdown(logger, 10*time.Second, func(context.Context) {
		if err := consumer.Close(); err != nil {
			logger.Error("AMQP close failed", log.FieldError, err)
		}
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	})

	w := worker.NewBudgetWorker(be.Service, be.Store, be.Budgets, logger)
	if be.Budgets == nil {
		logger.Info("Budget import disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	go func() {
		err := consumer.ConsumeTransactionChanged(ctx, w.HandleTransactionChanged)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
		}
		cancel()
	}()

	go func() {
		if err := w.Run(ctx, cfg.SyncInterval); err != nil {
			logger.Error("Budget refresh loop stopped", log.FieldError, err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
