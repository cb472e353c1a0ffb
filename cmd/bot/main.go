package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glizzus/voice-rooms/internal/config"
	"github.com/glizzus/voice-rooms/internal/datalayer"
	"github.com/glizzus/voice-rooms/internal/events"
	"github.com/glizzus/voice-rooms/internal/generator"
	"github.com/glizzus/voice-rooms/internal/handler"
	"github.com/glizzus/voice-rooms/internal/health"
	"github.com/glizzus/voice-rooms/internal/logging"
	"github.com/glizzus/voice-rooms/internal/repository"
	"github.com/glizzus/voice-rooms/internal/rooms"
	"github.com/glizzus/voice-rooms/internal/schedule"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var healthcheck = flag.Bool("healthcheck", false, "Probe a running bot's health endpoint and exit")

func loadEnv() error {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
			return nil
		}
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

func runHealthcheck() int {
	_ = loadEnv()
	cfg, err := config.NewHealthConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load health config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := health.Probe(ctx, cfg.URL); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// newPublisher streams room events to redis, or only logs them when redis
// is not configured or unreachable.
func newPublisher(ctx context.Context) (events.Publisher, func() error) {
	rdb, err := datalayer.NewRedisClientFromEnv(ctx)
	if err != nil {
		slog.Warn("room events will only be logged", "error", err)
		return events.LogPublisher{}, func() error { return nil }
	}
	return events.NewRedisPublisher(rdb), rdb.Close
}

func runBotForever() (err error) {
	if err := loadEnv(); err != nil {
		return err
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

	botConfig, err := config.NewBotConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load bot config: %w", err)
	}
	roomsConfig, err := config.NewRoomsConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load rooms config: %w", err)
	}
	healthConfig, err := config.NewHealthConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load health config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := datalayer.NewPostgresPoolFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer pool.Close()

	if err := datalayer.MigratePostgres(pool); err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}

	repo := repository.NewPostgresRoomRepository(pool)
	registry := rooms.NewRegistry(repo)
	loaded, err := registry.Load(ctx, repo)
	if err != nil {
		return fmt.Errorf("failed to load rooms: %w", err)
	}
	slog.Info("Loaded tracked rooms", "count", loaded)

	publisher, closePublisher := newPublisher(ctx)
	defer func() {
		err = errors.Join(err, closePublisher())
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := rooms.NewMetrics(reg, registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	session, err := handler.NewSession(botConfig.Token)
	if err != nil {
		return err
	}
	gateway := rooms.NewGateway(session)

	manager := rooms.NewManager(rooms.Deps{
		API:       gateway,
		World:     gateway,
		Registry:  registry,
		Publisher: publisher,
		Metrics:   metrics,
	}, rooms.Options{
		LobbyID:         botConfig.LobbyID,
		CategoryID:      botConfig.CategoryID,
		MonitorInterval: roomsConfig.MonitorInterval,
	})
	defer manager.Close()

	controls := handler.NewControls(manager, roomsConfig.DeleteDelay)
	defer controls.Wait()
	commands := handler.NewCommands(manager, botConfig.CommandPrefix, handler.StatePermissions(session))

	flows := handler.NewFlowManager(&generator.UUIDV4Generator{})
	flows.RegisterFlow(controls.Flows()...)
	flows.RegisterFlow(commands.Flows()...)

	handler.AddHandlers(session, handler.Handlers{
		Ready:             handler.ReadyLog,
		InteractionCreate: handler.MakeInteractionCreateHandler(flows),
		VoiceStateUpdate:  handler.MakeVoiceStateUpdateHandler(manager),
		ChannelDelete:     handler.MakeChannelDeleteHandler(manager),
		MessageCreate:     handler.MakeMessageCreateHandler(commands),
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("failed to close session", "error", err)
		}
	}()

	if err := handler.EstablishCommands(session, botConfig.GuildID); err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}

	manager.Resume()

	go func() {
		err := schedule.Every(ctx, roomsConfig.CleanupCron, func(ctx context.Context) {
			cleaned := manager.Sweep(ctx)
			pruned := flows.Prune(roomsConfig.ViewTimeout)
			slog.Info("Periodic sweep finished", "cleaned", cleaned, "expiredFlows", pruned)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("periodic sweep stopped", "error", err)
		}
	}()

	server := health.NewServer(healthConfig.Addr, health.GatewayChecker{Session: session}, reg)
	go func() {
		slog.Info("Serving health and metrics", "addr", healthConfig.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("failed to shut down health server", "error", err)
	}
	return nil
}

func main() {
	flag.Parse()
	if *healthcheck {
		os.Exit(runHealthcheck())
	}
	if err := runBotForever(); err != nil {
		log.Fatalf("failed to run bot: %v", err)
	}
}
