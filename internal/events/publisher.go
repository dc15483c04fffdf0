package events

import (
	"encoding/json"
	"time"

	"github.com/taskqueue/core/internal/task"
)

// EventType names what happened to a task or worker.
type EventType string

const (
	EventTaskSubmitted EventType = "task.submitted"
	EventTaskStarted   EventType = "task.started"
	EventTaskRetrying  EventType = "task.retrying"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
	EventTaskCancelled EventType = "task.cancelled"

	EventWorkerJoined  EventType = "worker.joined"
	EventWorkerLeft    EventType = "worker.left"
	EventWorkerPaused  EventType = "worker.paused"
	EventWorkerResumed EventType = "worker.resumed"

	EventDashboardUpdate EventType = "dashboard_update"
)

// DashboardTopic is the one topic every task event is also mirrored onto,
// for a subscriber that wants a single feed across all tasks.
const DashboardTopic = "dashboard"

// TaskTopic is the per-task topic a client watching one task subscribes to.
func TaskTopic(taskID string) string {
	return "task:" + taskID
}

// Event is the payload delivered to subscribers.
type Event struct {
	Type      EventType  `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Task      *task.Task `json:"task,omitempty"`
	WorkerID  string     `json:"worker_id,omitempty"`

	// Queues and Workers are only set on an EventDashboardUpdate event;
	// MarshalJSON/UnmarshalJSON give those their own wire shape.
	Queues  []QueueSnapshot `json:"-"`
	Workers *WorkerTotals   `json:"-"`
}

// QueueSnapshot is one queue's counts in a dashboard_update event.
type QueueSnapshot struct {
	QueueName  string `json:"queue_name"`
	Pending    int64  `json:"pending"`
	Processing int64  `json:"processing"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
	Total      int64  `json:"total"`
	Paused     bool   `json:"paused"`
}

// WorkerTotals is the worker-count rollup in a dashboard_update event.
type WorkerTotals struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Idle   int `json:"idle"`
	Busy   int `json:"busy"`
}

// NewTaskEvent builds an event carrying a task snapshot.
func NewTaskEvent(eventType EventType, t *task.Task) *Event {
	return &Event{Type: eventType, Timestamp: time.Now().UTC(), Task: t}
}

// NewWorkerEvent builds an event carrying a worker id.
func NewWorkerEvent(eventType EventType, workerID string) *Event {
	return &Event{Type: eventType, Timestamp: time.Now().UTC(), WorkerID: workerID}
}

// NewDashboardEvent builds the periodic aggregate snapshot event.
func NewDashboardEvent(queues []QueueSnapshot, workers WorkerTotals) *Event {
	return &Event{
		Type:      EventDashboardUpdate,
		Timestamp: time.Now().UTC(),
		Queues:    queues,
		Workers:   &workers,
	}
}

// dashboardWire is the exact wire shape a dashboard_update event
// serializes to: {"event","queues","workers","ts"}, distinct from the
// {"type","timestamp",...} shape every other event uses.
type dashboardWire struct {
	Event   EventType       `json:"event"`
	Queues  []QueueSnapshot `json:"queues"`
	Workers WorkerTotals    `json:"workers"`
	Ts      time.Time       `json:"ts"`
}

// eventAlias has Event's field set without its Marshal/UnmarshalJSON
// methods, so the default struct codec can be reused from within them.
type eventAlias Event

// MarshalJSON gives dashboard_update events their own schema; every other
// event type marshals with its normal field names.
func (e *Event) MarshalJSON() ([]byte, error) {
	if e.Type == EventDashboardUpdate {
		var workers WorkerTotals
		if e.Workers != nil {
			workers = *e.Workers
		}
		return json.Marshal(dashboardWire{
			Event:   e.Type,
			Queues:  e.Queues,
			Workers: workers,
			Ts:      e.Timestamp,
		})
	}
	return json.Marshal((*eventAlias)(e))
}

// UnmarshalJSON accepts either wire shape, so a dashboard_update relayed
// through Redis round-trips its queues/workers rather than losing them.
func (e *Event) UnmarshalJSON(data []byte) error {
	var probe struct {
		Event EventType `json:"event"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Event == EventDashboardUpdate {
		var wire dashboardWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
		workers := wire.Workers
		*e = Event{Type: wire.Event, Timestamp: wire.Ts, Queues: wire.Queues, Workers: &workers}
		return nil
	}
	var alias eventAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*e = Event(alias)
	return nil
}

// ToJSON serializes the event for the Redis relay.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes an event received from the Redis relay.
func FromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// eventTypeForTask maps a task's post-mutation status to the event type a
// subscriber would expect to see. hint distinguishes outcomes that share
// a status (a cancelled pending task is also "failed").
func eventTypeForTask(t *task.Task, hint string) EventType {
	if hint == "cancelled" {
		return EventTaskCancelled
	}
	switch t.Status {
	case task.StatusProcessing:
		return EventTaskStarted
	case task.StatusCompleted:
		return EventTaskCompleted
	case task.StatusFailed:
		return EventTaskFailed
	default:
		if t.Retries > 0 {
			return EventTaskRetrying
		}
		return EventTaskSubmitted
	}
}
