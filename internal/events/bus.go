package events

import (
	"sync"

	"github.com/taskqueue/core/internal/logger"
	"github.com/taskqueue/core/internal/task"
)

// subscription is one subscriber's channel and the topic it's parked on.
type subscription struct {
	topic string
	ch    chan *Event
}

// Bus is the in-process publish/subscribe fan-out: every broker mutation
// publishes onto a task's own topic and onto the shared dashboard topic. A
// subscriber that falls behind has its oldest buffered event dropped in
// favor of the newest one rather than blocking the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	relay  Relay
	bufLen int
}

// Relay optionally mirrors bus events to a cross-process transport
// (internal/events.RedisRelay, or nil to stay single-process).
type Relay interface {
	Publish(event *Event)
}

// NewBus creates a Bus whose subscriber channels buffer bufLen events
// before the drop-oldest policy kicks in.
func NewBus(bufLen int, relay Relay) *Bus {
	if bufLen <= 0 {
		bufLen = 16
	}
	return &Bus{
		subs:   make(map[string]map[*subscription]struct{}),
		relay:  relay,
		bufLen: bufLen,
	}
}

// Subscribe registers interest in a topic (a task's own topic, or
// DashboardTopic) and returns a channel of events plus an unsubscribe
// func the caller must eventually call.
func (b *Bus) Subscribe(topic string) (<-chan *Event, func()) {
	sub := &subscription{topic: topic, ch: make(chan *Event, b.bufLen)}

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*subscription]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subs[topic], sub)
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
		b.mu.Unlock()
		close(sub.ch)
	}
	return sub.ch, unsubscribe
}

// Publish delivers event to every subscriber of topic, dropping the
// oldest buffered event for any subscriber whose channel is full.
func (b *Bus) Publish(topic string, event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[topic] {
		select {
		case sub.ch <- event:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
			}
		}
	}

	if b.relay != nil {
		b.relay.Publish(event)
	}
}

// PublishTask implements broker.Publisher: the broker calls this after
// every durable task mutation, and the bus fans it out to the task's own
// topic plus the shared dashboard topic.
func (b *Bus) PublishTask(t *task.Task, hint string) {
	if t == nil {
		return
	}
	event := NewTaskEvent(eventTypeForTask(t, hint), t)
	b.Publish(TaskTopic(t.ID), event)
	b.Publish(DashboardTopic, event)
}

// PublishWorker fans a worker lifecycle event out onto the dashboard
// topic only — no individual worker has subscribers of its own.
func (b *Bus) PublishWorker(eventType EventType, workerID string) {
	event := NewWorkerEvent(eventType, workerID)
	b.Publish(DashboardTopic, event)
	logger.Debug().Str("worker_id", workerID).Str("event", string(eventType)).Msg("worker event published")
}
