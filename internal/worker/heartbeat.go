package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskqueue/core/internal/broker"
	"github.com/taskqueue/core/internal/logger"
)

// statusFunc reports a pool's current status, in-flight task id, and
// completed/failed counters for the heartbeat record.
type statusFunc func() (broker.WorkerStatus, string, int64, int64)

// Heartbeat periodically refreshes a worker's liveness record and
// opportunistically runs two GC passes a live worker process is well
// placed to perform: reclaiming stale processing tasks on its queues
// (whichever worker dequeued them) and
// pruning worker records nobody heartbeat-ed in a while.
type Heartbeat struct {
	broker      *broker.Broker
	workerID    string
	queues      []string
	interval    time.Duration
	staleAfter  time.Duration
	sweepMaxAge time.Duration
	status      statusFunc

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewHeartbeat creates a Heartbeat for workerID. status is polled on every
// tick to populate the worker record the broker reports back through
// ListWorkers/GetWorker.
func NewHeartbeat(br *broker.Broker, workerID string, queues []string, interval, staleAfter, sweepMaxAge time.Duration, status statusFunc) *Heartbeat {
	return &Heartbeat{
		broker:      br,
		workerID:    workerID,
		queues:      queues,
		interval:    interval,
		staleAfter:  staleAfter,
		sweepMaxAge: sweepMaxAge,
		status:      status,
		stopCh:      make(chan struct{}),
	}
}

// Start runs the heartbeat loop in its own goroutine.
func (h *Heartbeat) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.loop(ctx)
}

// Stop halts the heartbeat loop and waits for it to exit.
func (h *Heartbeat) Stop() {
	close(h.stopCh)
	h.wg.Wait()
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	log := logger.WithWorker(h.workerID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.beat(ctx, log)
		}
	}
}

func (h *Heartbeat) beat(ctx context.Context, log zerolog.Logger) {
	status, currentTask, completed, failed := h.status()

	if err := h.broker.Heartbeat(ctx, h.workerID, status, currentTask, completed, failed); err != nil {
		log.Error().Err(err).Msg("heartbeat failed")
		return
	}

	for _, q := range h.queues {
		recovered, err := h.broker.SweepStale(ctx, q, h.sweepMaxAge)
		if err != nil {
			log.Error().Err(err).Str("queue", q).Msg("stale sweep failed")
			continue
		}
		if len(recovered) > 0 {
			log.Warn().Str("queue", q).Int("count", len(recovered)).Msg("recovered stale processing tasks")
		}
	}

	if removed, err := h.broker.GCStaleWorkers(ctx, h.staleAfter); err != nil {
		log.Error().Err(err).Msg("stale worker gc failed")
	} else if len(removed) > 0 {
		log.Info().Strs("workers", removed).Msg("removed stale worker records")
	}
}
