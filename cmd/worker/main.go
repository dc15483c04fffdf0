package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskqueue/core/internal/broker"
	"github.com/taskqueue/core/internal/config"
	"github.com/taskqueue/core/internal/events"
	"github.com/taskqueue/core/internal/logger"
	"github.com/taskqueue/core/internal/task"
	"github.com/taskqueue/core/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")

	log := logger.Get()
	log.Info().Msg("Starting worker...")

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
	defer br.Close()

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

	handlers := map[string]worker.TaskHandler{
		"echo":    echoHandler,
		"sleep":   sleepHandler,
		"compute": computeHandler,
		"fail":    failHandler,
	}
	executor := worker.NewExecutor(handlers)

	pool := worker.NewPool(&cfg.Worker, br, bus, executor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start worker pool")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	if err := pool.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Worker shutdown error")
	}

	log.Info().Msg("Worker stopped")
}

// Example task handlers

func echoHandler(ctx context.Context, t *task.Task) (map[string]interface{}, error) {
	logger.Info().
		Str("task_id", t.ID).
		Interface("payload", t.Payload).
		Msg("Echo handler processing task")

	return map[string]interface{}{
		"echoed": t.Payload,
	}, nil
}

func sleepHandler(ctx context.Context, t *task.Task) (map[string]interface{}, error) {
	duration := 1 * time.Second
	if d, ok := t.Payload["duration"].(float64); ok {
		duration = time.Duration(d) * time.Millisecond
	}

	logger.Info().
		Str("task_id", t.ID).
		Dur("duration", duration).
		Msg("Sleep handler processing task")

	select {
	case <-time.After(duration):
		return map[string]interface{}{
			"slept_for": duration.String(),
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func computeHandler(ctx context.Context, t *task.Task) (map[string]interface{}, error) {
	iterations := 1000000
	if i, ok := t.Payload["iterations"].(float64); ok {
		iterations = int(i)
	}

	logger.Info().
		Str("task_id", t.ID).
		Int("iterations", iterations).
		Msg("Compute handler processing task")

	sum := 0
	for i := 0; i < iterations; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			sum += i
		}
	}

	return map[string]interface{}{
		"result": sum,
	}, nil
}

func failHandler(ctx context.Context, t *task.Task) (map[string]interface{}, error) {
	logger.Info().
		Str("task_id", t.ID).
		Msg("Fail handler processing task")

	return nil, fmt.Errorf("intentional failure for testing")
}
