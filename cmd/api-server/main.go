package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskqueue/core/internal/api"
	"github.com/taskqueue/core/internal/broker"
	"github.com/taskqueue/core/internal/config"
	"github.com/taskqueue/core/internal/events"
	"github.com/taskqueue/core/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")

	log := logger.Get()
	log.Info().Msg("Starting API server...")

	var redisRelay *events.RedisRelay
	var relay events.Relay
	if cfg.Fanout.RelayEvents {
		relayClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Broker.Addr,
			Password: cfg.Broker.Password,
			DB:       cfg.Broker.DB,
		})
		redisRelay = events.NewRedisRelay(relayClient, cfg.Fanout.RelayPrefix)
		relay = redisRelay
	}
	bus := events.NewBus(cfg.Fanout.BufferSize, relay)

	br, err := broker.New(&cfg.Broker, bus)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to broker")
	}
	defer func() {
		if err := br.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close broker connection")
		}
	}()

	if redisRelay != nil {
		if err := redisRelay.Listen(context.Background(), events.DashboardTopic, bus); err != nil {
			log.Error().Err(err).Msg("failed to subscribe relay to dashboard topic")
		}
	}

	promoter := broker.NewPromoter(br.Client(), cfg.Worker.Queues, cfg.Broker.PromoteInterval)
	promoteCtx, promoteCancel := context.WithCancel(context.Background())
	defer promoteCancel()
	promoter.Start(promoteCtx)
	defer promoter.Stop()

	snapshots := events.NewSnapshotPublisher(br, bus, cfg.Fanout.DashboardInterval)
	snapshotCtx, snapshotCancel := context.WithCancel(context.Background())
	defer snapshotCancel()
	snapshots.Start(snapshotCtx)
	defer snapshots.Stop()

	server := api.NewServer(cfg, br, bus)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.Start(ctx)

	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	server.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Server stopped")
}
