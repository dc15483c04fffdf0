package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// WorkerStatus mirrors a worker process's lifecycle state.
type WorkerStatus string

const (
	WorkerStarting WorkerStatus = "starting"
	WorkerIdle     WorkerStatus = "idle"
	WorkerBusy     WorkerStatus = "busy"
	WorkerStopping WorkerStatus = "stopping"
	WorkerStopped  WorkerStatus = "stopped"
)

// WorkerState is the worker record a registered worker keeps current via
// Heartbeat, and that admin/list operations read back.
type WorkerState struct {
	WorkerID       string       `json:"worker_id"`
	Status         WorkerStatus `json:"status"`
	Queues         []string     `json:"queues"`
	CurrentTask    string       `json:"current_task,omitempty"`
	LastHeartbeat  time.Time    `json:"last_heartbeat"`
	TasksCompleted int64        `json:"tasks_completed"`
	TasksFailed    int64        `json:"tasks_failed"`
	StartedAt      time.Time    `json:"started_at"`
}

// RegisterWorker records a freshly-started worker process.
func (b *Broker) RegisterWorker(ctx context.Context, workerID string, queues []string) error {
	state := &WorkerState{
		WorkerID:      workerID,
		Status:        WorkerStarting,
		Queues:        queues,
		LastHeartbeat: time.Now().UTC(),
		StartedAt:     time.Now().UTC(),
	}
	return b.saveWorker(ctx, state)
}

// Heartbeat refreshes a worker's liveness timestamp and reports its
// current status and in-flight task, letting admin/list surfaces reflect
// near-real-time worker activity.
func (b *Broker) Heartbeat(ctx context.Context, workerID string, status WorkerStatus, currentTask string, completed, failed int64) error {
	state, err := b.GetWorker(ctx, workerID)
	if err != nil {
		return err
	}
	state.Status = status
	state.CurrentTask = currentTask
	state.TasksCompleted = completed
	state.TasksFailed = failed
	state.LastHeartbeat = time.Now().UTC()
	return b.saveWorker(ctx, state)
}

// UnregisterWorker removes a worker record on graceful shutdown.
func (b *Broker) UnregisterWorker(ctx context.Context, workerID string) error {
	pipe := b.client.Pipeline()
	pipe.Del(ctx, workerKey(workerID))
	pipe.SRem(ctx, keyWorkers, workerID)
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	return nil
}

// GetWorker fetches a single worker's current state.
func (b *Broker) GetWorker(ctx context.Context, workerID string) (*WorkerState, error) {
	data, err := b.client.Get(ctx, workerKey(workerID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: worker %s", ErrNotFound, workerID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	var state WorkerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	return &state, nil
}

// ListWorkers returns every currently-registered worker's state.
func (b *Broker) ListWorkers(ctx context.Context) ([]*WorkerState, error) {
	ids, err := b.client.SMembers(ctx, keyWorkers).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	states := make([]*WorkerState, 0, len(ids))
	for _, id := range ids {
		s, err := b.GetWorker(ctx, id)
		if err != nil {
			continue // expired/removed between SMEMBERS and GET
		}
		states = append(states, s)
	}
	return states, nil
}

// GCStaleWorkers removes worker records whose last heartbeat is older
// than maxAge, returning the ids it removed. A worker that died without a
// clean shutdown would otherwise linger in ListWorkers forever.
func (b *Broker) GCStaleWorkers(ctx context.Context, maxAge time.Duration) ([]string, error) {
	workers, err := b.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed []string
	for _, w := range workers {
		if w.LastHeartbeat.Before(cutoff) {
			if err := b.UnregisterWorker(ctx, w.WorkerID); err == nil {
				removed = append(removed, w.WorkerID)
			}
		}
	}
	return removed, nil
}

func workerPausedKey(id string) string {
	return fmt.Sprintf("worker:%s:paused", id)
}

// PauseWorker flags a specific worker process to stop dequeuing new tasks,
// independent of queue-level pause: an operator can idle one misbehaving
// worker without affecting the rest of the pool or other queue consumers.
func (b *Broker) PauseWorker(ctx context.Context, workerID string) error {
	return b.client.Set(ctx, workerPausedKey(workerID), "1", 0).Err()
}

// ResumeWorker clears a worker's paused flag.
func (b *Broker) ResumeWorker(ctx context.Context, workerID string) error {
	return b.client.Del(ctx, workerPausedKey(workerID)).Err()
}

// IsWorkerPaused reports whether a worker has been paused via the admin
// surface.
func (b *Broker) IsWorkerPaused(ctx context.Context, workerID string) (bool, error) {
	n, err := b.client.Exists(ctx, workerPausedKey(workerID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	return n > 0, nil
}

func (b *Broker) saveWorker(ctx context.Context, state *WorkerState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	pipe := b.client.Pipeline()
	pipe.Set(ctx, workerKey(state.WorkerID), data, 0)
	pipe.SAdd(ctx, keyWorkers, state.WorkerID)
	_, err = pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	return nil
}
