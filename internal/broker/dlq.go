package broker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/taskqueue/core/internal/metrics"
)

// DeadLetterSize reports the number of tasks parked in a queue's
// dead-letter set — the same count QueueStats.Failed exposes, broken out
// here for admin surfaces that only want the DLQ number.
func (b *Broker) DeadLetterSize(ctx context.Context, queue string) (int64, error) {
	n, err := b.client.ZCard(ctx, dlqKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	metrics.SetDLQSize(queue, float64(n))
	return n, nil
}

// DeadLetterContains reports whether a task id is currently dead-lettered.
func (b *Broker) DeadLetterContains(ctx context.Context, queue, id string) (bool, error) {
	_, err := b.client.ZScore(ctx, dlqKey(queue), id).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	return true, nil
}

// RetryAllDeadLetter requeues every task currently dead-lettered on a
// queue, resetting retries on each, and returns how many were requeued.
func (b *Broker) RetryAllDeadLetter(ctx context.Context, queue string) (int, error) {
	ids, err := b.client.ZRange(ctx, dlqKey(queue), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	count := 0
	for _, id := range ids {
		if ok, err := b.Requeue(ctx, id); err == nil && ok {
			count++
		}
	}
	return count, nil
}
