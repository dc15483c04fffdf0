// Package broker implements the durable, shared task queue state store:
// task records, per-queue priority ordering, processing tracking for
// crash recovery, dead-lettering, and worker bookkeeping, all on top of
// Redis's sorted sets, sets, strings and pub/sub.
package broker

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskqueue/core/internal/config"
	"github.com/taskqueue/core/internal/metrics"
	"github.com/taskqueue/core/internal/task"
)

// recordRedisOp times a single Redis round-trip (a script Eval or a
// pipeline Exec) for the redis_operation_duration/redis_errors metrics.
func recordRedisOp(op string, start time.Time, err error) {
	metrics.RecordRedisOperation(op, time.Since(start).Seconds())
	if err != nil && err != redis.Nil {
		metrics.RecordRedisError(op)
	}
}

// Publisher mirrors durable broker writes to the in-process fan-out bus
// (internal/events). The broker only ever talks to this narrow interface,
// never to the bus package directly, keeping events a one-way dependency.
type Publisher interface {
	PublishTask(t *task.Task, event string)
}

type noopPublisher struct{}

func (noopPublisher) PublishTask(*task.Task, string) {}

// Broker owns all durable task/queue/worker state. Constructed once per
// process and passed explicitly to the worker runtime and API layer.
type Broker struct {
	client    *redis.Client
	pub       Publisher
	backoff   *task.BackoffPolicy
	retention time.Duration
}

// New connects to the configured Redis instance and returns a ready
// Broker. Pass a nil Publisher to run without fan-out (tests, one-off
// admin tools).
func New(cfg *config.BrokerConfig, pub Publisher) (*Broker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	if pub == nil {
		pub = noopPublisher{}
	}

	return &Broker{
		client:    client,
		pub:       pub,
		backoff:   task.NewBackoffPolicy(cfg.BaseRetryDelay, cfg.MaxRetryDelay),
		retention: cfg.CompletedRetention,
	}, nil
}

// Client exposes the underlying Redis client for components that need it
// directly (the delayed-visibility promoter, the Redis event relay).
func (b *Broker) Client() *redis.Client { return b.client }

// Close releases the broker's Redis connection.
func (b *Broker) Close() error { return b.client.Close() }

func pendingScore(priority int, enqueuedAt time.Time) float64 {
	return float64(-priority)*1e13 + float64(enqueuedAt.UnixMilli())
}

// Enqueue validates and durably stores a new task, then makes it visible
// to dequeue (immediately, in pending, or delayed until ScheduledAt).
func (b *Broker) Enqueue(ctx context.Context, t *task.Task) error {
	if err := task.Validate(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if t.ID == "" {
		return fmt.Errorf("%w: task id is required", ErrInvalidInput)
	}

	data, err := t.ToJSON()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	targetKey := pendingKey(t.Queue)
	score := pendingScore(t.Priority, t.CreatedAt)
	if t.ScheduledAt != nil && t.ScheduledAt.After(time.Now()) {
		targetKey = delayedKey(t.Queue)
		score = float64(t.ScheduledAt.UnixMilli())
	}

	start := time.Now()
	res, err := enqueueScript.Run(ctx, b.client,
		[]string{taskKey(t.ID), targetKey, keyQueues},
		t.ID, data, score, t.Queue,
	).Int()
	recordRedisOp("enqueue", start, err)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	if res == 0 {
		return fmt.Errorf("%w: task %s already exists", ErrConflict, t.ID)
	}

	metrics.RecordTaskSubmission(t.Queue, strconv.Itoa(t.Priority))
	b.pub.PublishTask(t, "task_update")
	return nil
}

// Dequeue blocks up to timeout across the supplied queues (scanned in the
// order given) and returns the next claimed task, or nil on timeout with
// no work. Paused queues are never returned from.
func (b *Broker) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*task.Task, error) {
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		active, err := b.activeQueueKeys(ctx, queues)
		if err != nil {
			return nil, err
		}
		if len(active) == 0 {
			// Every supplied queue is paused; wait out the budget in
			// small increments so a resume() is noticed promptly.
			wait := 200 * time.Millisecond
			if wait > remaining {
				wait = remaining
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		start := time.Now()
		result, err := b.client.BZPopMin(ctx, remaining, active...).Result()
		recordRedisOp("dequeue", start, err)
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
		}

		id, ok := result.Member.(string)
		if !ok {
			continue
		}
		queue := queueFromPendingKey(result.Key)

		t, err := b.claim(ctx, queue, id)
		if err != nil || t == nil {
			// Lost the race to stale bookkeeping (record vanished between
			// the pop and the claim, e.g. an admin purge) — try again
			// with whatever budget remains.
			continue
		}
		return t, nil
	}
}

func (b *Broker) activeQueueKeys(ctx context.Context, queues []string) ([]string, error) {
	keys := make([]string, 0, len(queues))
	for _, q := range queues {
		paused, err := b.client.Exists(ctx, pausedKey(q)).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
		}
		if paused == 0 {
			keys = append(keys, pendingKey(q))
		}
	}
	return keys, nil
}

func (b *Broker) claim(ctx context.Context, queue, id string) (*task.Task, error) {
	t, err := b.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	sm := task.NewStateMachine(t)
	if err := sm.Start(); err != nil {
		return nil, err
	}

	data, err := t.ToJSON()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	_, err = claimScript.Run(ctx, b.client,
		[]string{processingKey(queue), processingTSKey(queue), taskKey(id)},
		id, t.StartedAt.UnixMilli(), data,
	).Result()
	recordRedisOp("claim", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	metrics.RecordQueueLatency(queue, t.StartedAt.Sub(t.CreatedAt).Seconds())
	b.pub.PublishTask(t, "task_update")
	return t, nil
}

// Complete marks a processing task as completed and stores its result.
func (b *Broker) Complete(ctx context.Context, id string, result map[string]interface{}) error {
	t, err := b.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != task.StatusProcessing {
		return fmt.Errorf("%w: task %s is not processing", ErrConflict, id)
	}

	sm := task.NewStateMachine(t)
	if err := sm.Complete(result); err != nil {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}

	data, err := t.ToJSON()
	if err != nil {
		return err
	}

	ttl := 0
	if b.retention > 0 {
		ttl = int(b.retention.Seconds())
	}

	start := time.Now()
	res, err := completeScript.Run(ctx, b.client,
		[]string{processingKey(t.Queue), processingTSKey(t.Queue), completedKey(t.Queue), taskKey(id)},
		id, data, ttl,
	).Int()
	recordRedisOp("complete", start, err)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	if res == 0 {
		return fmt.Errorf("%w: task %s is no longer processing", ErrConflict, id)
	}

	metrics.RecordTaskCompletion(t.Queue, "completed", timeOrZero(t.CompletedAt).Sub(timeOrZero(t.StartedAt)).Seconds())
	b.pub.PublishTask(t, "task_update")
	return nil
}

// Fail reports a processing task's handler failure. A task with retries
// remaining is requeued with backoff; otherwise it is dead-lettered.
func (b *Broker) Fail(ctx context.Context, id, errMsg string) error {
	t, err := b.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != task.StatusProcessing {
		return fmt.Errorf("%w: task %s is not processing", ErrConflict, id)
	}

	expectedTS, err := b.client.HGet(ctx, processingTSKey(t.Queue), id).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	if t.CanRetry() {
		return b.requeueWithBackoff(ctx, t, errMsg, expectedTS)
	}
	return b.deadLetter(ctx, t, errMsg, expectedTS)
}

func (b *Broker) requeueWithBackoff(ctx context.Context, t *task.Task, errMsg, expectedTS string) error {
	sm := task.NewStateMachine(t)
	if err := sm.Retry(errMsg); err != nil {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}

	visibleAt := b.backoff.VisibleAt(t.Retries, time.Now().UTC())
	data, err := t.ToJSON()
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := requeueScript.Run(ctx, b.client,
		[]string{processingKey(t.Queue), processingTSKey(t.Queue), delayedKey(t.Queue), taskKey(t.ID)},
		t.ID, expectedTS, visibleAt.UnixMilli(), data,
	).Int()
	recordRedisOp("requeue_with_backoff", start, err)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	if res == 0 {
		return fmt.Errorf("%w: task %s already recovered", ErrConflict, t.ID)
	}

	metrics.RecordTaskRetry(t.Queue)
	b.pub.PublishTask(t, "task_update")
	return nil
}

func (b *Broker) deadLetter(ctx context.Context, t *task.Task, errMsg, expectedTS string) error {
	sm := task.NewStateMachine(t)
	if err := sm.Fail(errMsg); err != nil {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}

	data, err := t.ToJSON()
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := deadLetterScript.Run(ctx, b.client,
		[]string{processingKey(t.Queue), processingTSKey(t.Queue), failedKey(t.Queue), dlqKey(t.Queue), taskKey(t.ID)},
		t.ID, expectedTS, time.Now().UTC().UnixMilli(), data,
	).Int()
	recordRedisOp("dead_letter", start, err)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	if res == 0 {
		return fmt.Errorf("%w: task %s already recovered", ErrConflict, t.ID)
	}

	metrics.RecordTaskCompletion(t.Queue, "dead_letter", timeOrZero(t.CompletedAt).Sub(timeOrZero(t.StartedAt)).Seconds())
	metrics.IncrementDLQAdded(t.Queue)
	b.pub.PublishTask(t, "task_update")
	return nil
}

// UnknownTaskFail dead-letters a processing task immediately without
// consuming a retry attempt. The worker runtime calls this when no
// handler is registered for the task's name.
func (b *Broker) UnknownTaskFail(ctx context.Context, id, errMsg string) error {
	t, err := b.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != task.StatusProcessing {
		return fmt.Errorf("%w: task %s is not processing", ErrConflict, id)
	}

	expectedTS, err := b.client.HGet(ctx, processingTSKey(t.Queue), id).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	return b.deadLetter(ctx, t, errMsg, expectedTS)
}

// Cancel attempts to stop a task. A pending task is atomically removed
// and parked as a cancelled failure. A processing task is only flagged
// cooperatively — the handler, if it checks, may honor it; if it
// completes first, the completion wins.
func (b *Broker) Cancel(ctx context.Context, id string) (bool, error) {
	t, err := b.GetTask(ctx, id)
	if err != nil {
		return false, err
	}

	switch t.Status {
	case task.StatusPending:
		t.Status = task.StatusFailed
		now := time.Now().UTC()
		t.CompletedAt = &now
		t.Error = "cancelled"
		t.StartedAt = nil

		data, err := t.ToJSON()
		if err != nil {
			return false, err
		}

		start := time.Now()
		res, err := cancelPendingScript.Run(ctx, b.client,
			[]string{pendingKey(t.Queue), failedKey(t.Queue), dlqKey(t.Queue), taskKey(id)},
			id, now.UnixMilli(), data,
		).Int()
		recordRedisOp("cancel_pending", start, err)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
		}
		if res == 0 {
			return false, nil
		}
		b.pub.PublishTask(t, "task_update")
		return true, nil

	case task.StatusProcessing:
		t.CancelRequested = true
		data, err := t.ToJSON()
		if err != nil {
			return false, err
		}
		if err := b.client.Set(ctx, taskKey(id), data, 0).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
		}
		b.pub.PublishTask(t, "task_update")
		return true, nil

	default:
		return false, nil
	}
}

// Requeue re-enqueues a failed/dead-lettered or completed task with
// retries reset. This single operation backs both the admin-facing
// requeue_dead_letter and the producer-facing retry_task.
func (b *Broker) Requeue(ctx context.Context, id string) (bool, error) {
	t, err := b.GetTask(ctx, id)
	if err != nil {
		return false, err
	}
	if t.Status != task.StatusFailed && t.Status != task.StatusCompleted {
		return false, fmt.Errorf("%w: task %s is not failed or completed", ErrConflict, id)
	}

	sm := task.NewStateMachine(t)
	sm.Requeue()
	t.CreatedAt = time.Now().UTC()

	score := pendingScore(t.Priority, t.CreatedAt)
	data, err := t.ToJSON()
	if err != nil {
		return false, err
	}

	start := time.Now()
	_, err = requeueTerminalScript.Run(ctx, b.client,
		[]string{failedKey(t.Queue), dlqKey(t.Queue), completedKey(t.Queue), pendingKey(t.Queue), taskKey(id)},
		id, score, data,
	).Result()
	recordRedisOp("requeue_terminal", start, err)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	metrics.RecordTaskSubmission(t.Queue, strconv.Itoa(t.Priority))
	b.pub.PublishTask(t, "task_update")
	return true, nil
}

// GetTask fetches a task by id.
func (b *Broker) GetTask(ctx context.Context, id string) (*task.Task, error) {
	data, err := b.client.Get(ctx, taskKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	t, err := task.FromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	return t, nil
}

// QueueStats returns O(1)-cardinality counts for a queue.
type QueueStats struct {
	Queue      string `json:"queue"`
	Pending    int64  `json:"pending"`
	Processing int64  `json:"processing"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
	Total      int64  `json:"total"`
	Paused     bool   `json:"paused"`
}

func (b *Broker) QueueStats(ctx context.Context, queue string) (*QueueStats, error) {
	pipe := b.client.Pipeline()
	pending := pipe.ZCard(ctx, pendingKey(queue))
	processing := pipe.SCard(ctx, processingKey(queue))
	completed := pipe.SCard(ctx, completedKey(queue))
	failed := pipe.SCard(ctx, failedKey(queue))
	paused := pipe.Exists(ctx, pausedKey(queue))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	stats := &QueueStats{
		Queue:      queue,
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Completed:  completed.Val(),
		Failed:     failed.Val(),
		Paused:     paused.Val() > 0,
	}
	stats.Total = stats.Pending + stats.Processing + stats.Completed + stats.Failed

	metrics.UpdateQueueDepth(queue, float64(stats.Total))
	return stats, nil
}

// ListQueues returns every queue name that has ever been enqueued to.
func (b *Broker) ListQueues(ctx context.Context) ([]string, error) {
	names, err := b.client.SMembers(ctx, keyQueues).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	sort.Strings(names)
	return names, nil
}

// Pause stops a queue from yielding tasks to dequeue.
func (b *Broker) Pause(ctx context.Context, queue string) error {
	return b.client.Set(ctx, pausedKey(queue), "1", 0).Err()
}

// Resume clears a queue's paused flag.
func (b *Broker) Resume(ctx context.Context, queue string) error {
	return b.client.Del(ctx, pausedKey(queue)).Err()
}

// IsPaused reports a queue's paused flag.
func (b *Broker) IsPaused(ctx context.Context, queue string) (bool, error) {
	n, err := b.client.Exists(ctx, pausedKey(queue)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	return n > 0, nil
}

// ListTasks returns a page of tasks for a queue, optionally filtered by
// status, clamping limit to [1, 500].
func (b *Broker) ListTasks(ctx context.Context, queue string, status *task.Status, limit, offset int) ([]*task.Task, int, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	statuses := []task.Status{task.StatusPending, task.StatusProcessing, task.StatusCompleted, task.StatusFailed}
	if status != nil {
		statuses = []task.Status{*status}
	}

	var all []*task.Task
	for _, s := range statuses {
		ts, err := b.listByStatus(ctx, queue, s)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, ts...)
	}

	total := len(all)
	if offset >= total {
		return []*task.Task{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (b *Broker) listByStatus(ctx context.Context, queue string, status task.Status) ([]*task.Task, error) {
	var ids []string
	var err error

	switch status {
	case task.StatusPending:
		ids, err = b.client.ZRange(ctx, pendingKey(queue), 0, -1).Result()
	case task.StatusFailed:
		ids, err = b.client.ZRange(ctx, dlqKey(queue), 0, -1).Result()
	case task.StatusProcessing:
		ids, err = b.client.SMembers(ctx, processingKey(queue)).Result()
	case task.StatusCompleted:
		ids, err = b.client.SMembers(ctx, completedKey(queue)).Result()
	default:
		return nil, fmt.Errorf("%w: unknown status %s", ErrInvalidInput, status)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	tasks := make([]*task.Task, 0, len(ids))
	for _, id := range ids {
		t, err := b.GetTask(ctx, id)
		if err != nil {
			continue // record expired via retention TTL or was purged
		}
		tasks = append(tasks, t)
	}

	switch status {
	case task.StatusProcessing:
		sort.Slice(tasks, func(i, j int) bool {
			return timeOrZero(tasks[i].StartedAt).Before(timeOrZero(tasks[j].StartedAt))
		})
	case task.StatusCompleted:
		sort.Slice(tasks, func(i, j int) bool {
			return timeOrZero(tasks[i].CompletedAt).Before(timeOrZero(tasks[j].CompletedAt))
		})
	}
	return tasks, nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// PurgeQueue deletes every key belonging to a queue, including task
// records reachable from any of its sets. Administrative surface for
// decommissioning a queue entirely, distinct from PurgeDeadLetter.
func (b *Broker) PurgeQueue(ctx context.Context, queue string) error {
	ids := make(map[string]struct{})
	collect := func(members []string) {
		for _, id := range members {
			ids[id] = struct{}{}
		}
	}

	pending, _ := b.client.ZRange(ctx, pendingKey(queue), 0, -1).Result()
	delayed, _ := b.client.ZRange(ctx, delayedKey(queue), 0, -1).Result()
	processing, _ := b.client.SMembers(ctx, processingKey(queue)).Result()
	completed, _ := b.client.SMembers(ctx, completedKey(queue)).Result()
	failed, _ := b.client.SMembers(ctx, failedKey(queue)).Result()
	dlq, _ := b.client.ZRange(ctx, dlqKey(queue), 0, -1).Result()
	collect(pending)
	collect(delayed)
	collect(processing)
	collect(completed)
	collect(failed)
	collect(dlq)

	pipe := b.client.Pipeline()
	for id := range ids {
		pipe.Del(ctx, taskKey(id))
	}
	pipe.Del(ctx, pendingKey(queue), delayedKey(queue), processingKey(queue), processingTSKey(queue),
		completedKey(queue), failedKey(queue), dlqKey(queue), pausedKey(queue))
	pipe.SRem(ctx, keyQueues, queue)

	start := time.Now()
	_, err := pipe.Exec(ctx)
	recordRedisOp("purge_queue", start, err)
	if err != nil && err != redis.Nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	metrics.UpdateQueueDepth(queue, 0)
	metrics.SetDLQSize(queue, 0)
	return nil
}

// PurgeDeadLetter removes every task in a queue's dead-letter set,
// deleting the underlying task records too, and returns the count removed.
func (b *Broker) PurgeDeadLetter(ctx context.Context, queue string) (int, error) {
	ids, err := b.client.ZRange(ctx, dlqKey(queue), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := b.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, taskKey(id))
		pipe.SRem(ctx, failedKey(queue), id)
	}
	pipe.Del(ctx, dlqKey(queue))
	start := time.Now()
	_, err = pipe.Exec(ctx)
	recordRedisOp("purge_dead_letter", start, err)
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	metrics.SetDLQSize(queue, 0)
	return len(ids), nil
}

// SweepStale scans a queue's processing set for ids whose dequeue
// timestamp is older than maxAge and fault-handles each as if its worker
// had died: requeue with backoff if retries remain, else dead-letter.
// Idempotent — see requeueScript/deadLetterScript's ts-equality guard.
func (b *Broker) SweepStale(ctx context.Context, queue string, maxAge time.Duration) ([]*task.Task, error) {
	entries, err := b.client.HGetAll(ctx, processingTSKey(queue)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	cutoff := time.Now().Add(-maxAge).UnixMilli()
	var recovered []*task.Task

	for id, tsStr := range entries {
		ts, err := parseInt64(tsStr)
		if err != nil || ts > cutoff {
			continue
		}

		t, err := b.GetTask(ctx, id)
		if err != nil {
			continue
		}
		if t.Status != task.StatusProcessing {
			continue
		}

		if t.CanRetry() {
			if err := b.requeueWithBackoff(ctx, t, "worker timeout", tsStr); err == nil {
				recovered = append(recovered, t)
			}
		} else {
			if err := b.deadLetter(ctx, t, "worker timeout", tsStr); err == nil {
				recovered = append(recovered, t)
			}
		}
	}

	return recovered, nil
}

func parseInt64(s string) (int64, error) {
	var v int64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}

func queueFromPendingKey(key string) string {
	// "queue:{name}:pending" -> {name}
	const prefix = "queue:"
	const suffix = ":pending"
	if len(key) <= len(prefix)+len(suffix) {
		return key
	}
	return key[len(prefix) : len(key)-len(suffix)]
}
