package main

import (
	"context"
	"os"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	"ledger/internal/log"
	"ledger/internal/services"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.SetupLogger(nil, log.ComponentWorker).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting ledger-worker", log.FieldOperation, log.OpStartup, "backend", cfg.DataBackend)

	result, err := cli.OpenBackend(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to open backend", log.FieldError, err)
		os.Exit(1)
	}

	// Without a broker the worker only runs periodic rebuilds
	var consumer worker.JobConsumer
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			_ = result.Cleanup()
			os.Exit(1)
		}
		consumer = amqpClient
		logger.Info("Consuming ledger jobs", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	processor := services.NewRebuildProcessor(result.Ledger, services.RebuildProcessorConfig{
		Interval:   cfg.RecalcInterval,
		RunOnStart: true,
	})
	jobWorker := worker.NewJobWorker(result.Ledger, consumer, processor)

	parent, stop := context.WithCancel(context.Background())
	defer stop()
	ctx, done := cli.GracefulShutdown(parent, logger, 30*time.Second, func(context.Context) {
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP consumer", log.FieldError, err)
			}
		}
	})

	if err := jobWorker.Run(ctx); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
	}
	stop()
	<-done

	if err := result.Cleanup(); err != nil {
		logger.Error("Failed to close backend", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("ledger-worker stopped")
}
