// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tendant/simple-doc-converter/internal/bus"
	"github.com/tendant/simple-doc-converter/internal/config"
	"github.com/tendant/simple-doc-converter/internal/convert"
	"github.com/tendant/simple-doc-converter/internal/ledger"
	"github.com/tendant/simple-doc-converter/internal/monitor"
	"github.com/tendant/simple-doc-converter/internal/pipeline"
	"github.com/tendant/simple-doc-converter/internal/runner"
	"github.com/tendant/simple-doc-converter/internal/sasurl"
	"github.com/tendant/simple-doc-converter/internal/storage"
	"github.com/tendant/simple-doc-converter/internal/trigger"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "load config", err)
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("configuration advisory", "advice", w)
	}

	mainLoc, err := sasurl.Resolve(cfg.SASURL)
	if err != nil {
		fatal(logger, "resolve SAS_URL", err)
	}
	if err := mainLoc.ValidateSAS(); err != nil {
		logger.Warn("SAS token looks incomplete", "location", mainLoc.Redacted(), "err", err)
	}
	logger.Info("worker starting",
		"location", mainLoc.Redacted(),
		"trigger", cfg.TriggerName,
		"poll_interval", cfg.PollInterval,
		"max_workers", cfg.MaxWorkers,
		"batch_size", cfg.BatchSize,
		"batch_delay", cfg.BatchDelay)

	store := storage.NewAzure(storage.AzureOptions{
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
		TryTimeout: cfg.ConnTimeout,
	})

	factory := convert.FactoryFunc(func() convert.Converter {
		return convert.New(convert.Options{Soffice: cfg.Soffice, Timeout: cfg.ConvertTimeout})
	})
	pipe := pipeline.New(store, factory, cfg.MaxWorkers, cfg.MinForConcurrency, logger)

	led := ledger.New(cfg.LedgerPath)
	logger.Info("failure ledger ready", "path", led.Path())

	var events runner.EventPublisher
	if cfg.NATSURL != "" {
		nc, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
		}
		logger.Info("connected to NATS", "nats_url", cfg.NATSURL)
		defer nc.Close()
		events = nc
	}

	run := runner.New(store, pipe, led, runner.Options{
		BatchSize:  cfg.BatchSize,
		BatchDelay: cfg.BatchDelay,
		Events:     events,
		Logger:     logger,
	})

	mon := monitor.New(store, mainLoc, monitor.HandlerFunc(func(ctx context.Context, jc trigger.JobConfig) error {
		_, err := run.RunJob(ctx, jc)
		return err
	}), monitor.Options{
		PollInterval: cfg.PollInterval,
		TriggerName:  cfg.TriggerName,
		TriggerExt:   cfg.TriggerExt,
		Logger:       logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fatal(logger, "monitor stopped", err)
	}
	logger.Info("worker stopped")
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
