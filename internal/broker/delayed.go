package broker

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskqueue/core/internal/logger"
	"github.com/taskqueue/core/internal/task"
)

const promoterLockTTL = 5 * time.Second

// Promoter polls each queue's delayed set and moves due ids into pending.
// It backs both retry-with-backoff visibility (Fail's requeueScript) and
// the optional ScheduledAt producer hint (Enqueue). Multiple workers may
// run a Promoter against the same queues; a short-lived SetNX lock per
// queue keeps only one of them acting on a given tick.
type Promoter struct {
	client   *redis.Client
	queues   []string
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewPromoter(client *redis.Client, queues []string, interval time.Duration) *Promoter {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Promoter{
		client:   client,
		queues:   queues,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the promoter loop in a background goroutine.
func (p *Promoter) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.loop(ctx)

	logger.Info().
		Strs("queues", p.queues).
		Dur("interval", p.interval).
		Msg("delayed-visibility promoter started")
}

// Stop halts the promoter loop and waits for it to exit.
func (p *Promoter) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	logger.Info().Msg("delayed-visibility promoter stopped")
}

func (p *Promoter) loop(ctx context.Context) {
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
			for _, q := range p.queues {
				p.promoteQueue(ctx, q)
			}
		}
	}
}

func (p *Promoter) promoteQueue(ctx context.Context, queue string) {
	lockKey := schedulerLock + ":" + queue
	locked, err := p.client.SetNX(ctx, lockKey, "1", promoterLockTTL).Result()
	if err != nil || !locked {
		return
	}
	defer p.client.Del(ctx, lockKey)

	now := time.Now().UTC().UnixMilli()
	due, err := p.client.ZRangeByScore(ctx, delayedKey(queue), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		logger.Error().Err(err).Str("queue", queue).Msg("failed to scan delayed set")
		return
	}
	if len(due) == 0 {
		return
	}

	for _, id := range due {
		data, err := p.client.Get(ctx, taskKey(id)).Bytes()
		if err != nil {
			p.client.ZRem(ctx, delayedKey(queue), id)
			continue
		}
		t, err := task.FromJSON(data)
		if err != nil {
			p.client.ZRem(ctx, delayedKey(queue), id)
			continue
		}

		// Preserves the task's original enqueue time in the score rather
		// than re-scoring to now, so a retried task doesn't jump to the
		// back of its priority tier relative to tasks enqueued after it.
		score := pendingScore(t.Priority, t.CreatedAt)
		_, err = promoteScript.Run(ctx, p.client,
			[]string{delayedKey(queue), pendingKey(queue)},
			id, score,
		).Result()
		if err != nil {
			logger.Error().Err(err).Str("queue", queue).Str("task_id", id).Msg("failed to promote delayed task")
		}
	}
}
