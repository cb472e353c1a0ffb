package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/glizzus/voice-rooms/internal/config"
	"github.com/glizzus/voice-rooms/internal/datalayer"
	"github.com/glizzus/voice-rooms/internal/events"
	"github.com/glizzus/voice-rooms/internal/logging"
	"github.com/glizzus/voice-rooms/internal/worker"
)

var dryRun = flag.Bool("dry-run", false, "Do not archive sessions, just print room events to the terminal")

func newHandler(ctx context.Context) (events.Handler, error) {
	if *dryRun {
		slog.Info("Dry run mode: events will only be logged")
		return worker.LogHandler, nil
	}

	storage, err := datalayer.NewMinioStorageFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create minio storage: %w", err)
	}
	if err := storage.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure minio bucket: %w", err)
	}
	return worker.NewArchiver(storage), nil
}

func runWorkerForever() (err error) {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	logConfig, err := config.NewLogConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load log config: %w", err)
	}
	_, closeLog, err := logging.Setup(logConfig)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() {
		err = errors.Join(err, closeLog())
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := datalayer.NewRedisClientFromEnv(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rdb.Close())
	}()

	consumerName, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %w", err)
	}

	consumer, err := events.NewRedisConsumer(ctx, rdb, consumerName)
	if err != nil {
		return err
	}

	h, err := newHandler(ctx)
	if err != nil {
		return err
	}

	slog.Info("Worker consuming room events", "stream", events.Stream, "group", events.ConsumerGroup, "consumer", consumerName)
	if err := consumer.Run(ctx, h); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to consume events: %w", err)
	}

	if a, ok := h.(*worker.Archiver); ok && a.Open() > 0 {
		slog.Info("Stopping with rooms still open", "count", a.Open())
	}
	return nil
}

func main() {
	flag.Parse()
	if err := runWorkerForever(); err != nil {
		slog.Error("Worker encountered an error", slog.Any("error", err))
		os.Exit(1)
	}
}
