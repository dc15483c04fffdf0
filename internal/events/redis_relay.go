package events

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/taskqueue/core/internal/logger"
)

// RedisRelay mirrors Bus events onto Redis pub/sub so a process other
// than the one that mutated a task (a separate API server instance, the
// websocket bridge) can still observe it. The broker never talks to this
// directly — only Bus does, through the Relay interface.
type RedisRelay struct {
	client *redis.Client
	prefix string
}

// NewRedisRelay creates a relay that publishes onto channels named
// {prefix}:{topic} and can mirror them back into a local Bus via Listen.
func NewRedisRelay(client *redis.Client, prefix string) *RedisRelay {
	if prefix == "" {
		prefix = "taskqueue:events"
	}
	return &RedisRelay{client: client, prefix: prefix}
}

func (r *RedisRelay) channel(topic string) string {
	return r.prefix + ":" + topic
}

// Publish mirrors event onto both its task topic and the dashboard topic.
// Implements the Bus Relay interface; errors are logged, not returned,
// since a relay failure must never block the durable broker write path.
func (r *RedisRelay) Publish(event *Event) {
	data, err := event.ToJSON()
	if err != nil {
		logger.Error().Err(err).Msg("failed to serialize event for relay")
		return
	}

	ctx := context.Background()
	topic := DashboardTopic
	if event.Task != nil {
		topic = TaskTopic(event.Task.ID)
	}

	if err := r.client.Publish(ctx, r.channel(topic), data).Err(); err != nil {
		logger.Error().Err(err).Str("topic", topic).Msg("failed to relay event")
	}
	if topic != DashboardTopic {
		if err := r.client.Publish(ctx, r.channel(DashboardTopic), data).Err(); err != nil {
			logger.Error().Err(err).Msg("failed to relay event to dashboard topic")
		}
	}
}

// Listen subscribes to a topic's Redis channel and forwards every
// received event into the local bus, so a process with no broker of its
// own (a standalone websocket bridge) can still fan events out to
// browser clients. Runs until ctx is cancelled.
func (r *RedisRelay) Listen(ctx context.Context, topic string, bus *Bus) error {
	pubsub := r.client.Subscribe(ctx, r.channel(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return err
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				event, err := FromJSON([]byte(msg.Payload))
				if err != nil {
					logger.Error().Err(err).Msg("failed to parse relayed event")
					continue
				}
				bus.Publish(topic, event)
			}
		}
	}()

	return nil
}
