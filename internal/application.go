package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/caro-backend/internal/config"
	"github.com/rocketscienceinc/caro-backend/internal/monitor"
	"github.com/rocketscienceinc/caro-backend/internal/repository"
	"github.com/rocketscienceinc/caro-backend/internal/repository/storage"
	"github.com/rocketscienceinc/caro-backend/internal/service"
	"github.com/rocketscienceinc/caro-backend/internal/usecase"
	"github.com/rocketscienceinc/caro-backend/transport/rest"
	"github.com/rocketscienceinc/caro-backend/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedisStorage(ctx, redisAddrString)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	if err = storage.Migrate(logger, conf.Postgres.DSN); err != nil {
		return fmt.Errorf("could not migrate postgres: %w", err)
	}

	postgresStorage, err := storage.NewPostgresStorage(ctx, conf.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("could not connect to postgres storage: %w", err)
	}
	defer postgresStorage.Close()

	metrics := monitor.NewMetrics()

	playerRepo := repository.NewPlayerRepository(redisStorage.Connection)
	sessionRepo := repository.NewSessionRepository(redisStorage.Connection, conf.Game.Retention)
	resultRepo := repository.NewResultRepository(postgresStorage.Pool)

	playerService := service.NewPlayerService(playerRepo)
	settlementService := service.NewSettlementService(logger, resultRepo, playerService)

	hub := websocket.NewHub(logger, metrics)
	registry := service.NewRegistry(logger, sessionRepo, hub, settlementService, service.RegistryOptions{
		Config:       conf.Game.SessionConfig(),
		Retention:    conf.Game.Retention,
		StoreTimeout: conf.Game.CacheTimeout,
		Metrics:      metrics,
	})
	defer registry.Close()

	gameUseCase := usecase.NewGameUseCase(logger, playerService, registry, resultRepo)

	wsServer := websocket.New(logger, gameUseCase, hub, metrics)
	ticker := websocket.NewTicker(logger, registry, hub, conf.Game.TickInterval)
	router := rest.NewRouter(rest.NewHandlers(logger, gameUseCase), metrics.Handler())

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if httpErr := rest.Start(groupCtx, logger, conf.HTTPPort, router); httpErr != nil {
			return fmt.Errorf("HTTP server error: %w", httpErr)
		}
		return nil
	})

	group.Go(func() error {
		if wsErr := wsServer.Start(groupCtx, conf.SocketPort); wsErr != nil {
			return fmt.Errorf("WebSocket server error: %w", wsErr)
		}
		return nil
	})

	group.Go(func() error {
		return ticker.Run(groupCtx)
	})

	if err = group.Wait(); err != nil {
		return err
	}

	log.Info("Application context canceled, shutting down")

	return nil
}
