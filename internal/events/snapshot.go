package events

import (
	"context"
	"sync"
	"time"

	"github.com/taskqueue/core/internal/broker"
	"github.com/taskqueue/core/internal/logger"
)

// SnapshotSource is the subset of *broker.Broker the dashboard snapshot
// publisher needs; narrowed to an interface so it can be exercised
// without a live Redis connection in tests.
type SnapshotSource interface {
	ListQueues(ctx context.Context) ([]string, error)
	QueueStats(ctx context.Context, queue string) (*broker.QueueStats, error)
	ListWorkers(ctx context.Context) ([]*broker.WorkerState, error)
}

// SnapshotPublisher periodically aggregates queue stats and worker
// totals and publishes the result onto DashboardTopic as a
// dashboard_update event, the periodic half of the fan-out (the other
// half, per-mutation task/worker events, is published directly by
// Bus.PublishTask/PublishWorker).
type SnapshotPublisher struct {
	source   SnapshotSource
	bus      *Bus
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewSnapshotPublisher(source SnapshotSource, bus *Bus, interval time.Duration) *SnapshotPublisher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &SnapshotPublisher{
		source:   source,
		bus:      bus,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the snapshot loop in a background goroutine.
func (p *SnapshotPublisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.loop(ctx)

	logger.Info().Dur("interval", p.interval).Msg("dashboard snapshot publisher started")
}

// Stop halts the snapshot loop and waits for it to exit.
func (p *SnapshotPublisher) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	logger.Info().Msg("dashboard snapshot publisher stopped")
}

func (p *SnapshotPublisher) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.publishSnapshot(ctx)
		}
	}
}

func (p *SnapshotPublisher) publishSnapshot(ctx context.Context) {
	queueNames, err := p.source.ListQueues(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list queues for dashboard snapshot")
		return
	}

	queues := make([]QueueSnapshot, 0, len(queueNames))
	for _, name := range queueNames {
		stats, err := p.source.QueueStats(ctx, name)
		if err != nil {
			logger.Error().Err(err).Str("queue", name).Msg("failed to fetch queue stats for dashboard snapshot")
			continue
		}
		queues = append(queues, QueueSnapshot{
			QueueName:  stats.Queue,
			Pending:    stats.Pending,
			Processing: stats.Processing,
			Completed:  stats.Completed,
			Failed:     stats.Failed,
			Total:      stats.Total,
			Paused:     stats.Paused,
		})
	}

	workerStates, err := p.source.ListWorkers(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list workers for dashboard snapshot")
		return
	}

	var workers WorkerTotals
	for _, w := range workerStates {
		workers.Total++
		switch w.Status {
		case broker.WorkerIdle:
			workers.Idle++
			workers.Active++
		case broker.WorkerBusy:
			workers.Busy++
			workers.Active++
		}
	}

	p.bus.Publish(DashboardTopic, NewDashboardEvent(queues, workers))
}
