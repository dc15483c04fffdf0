package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries is applied when a producer does not set MaxRetries.
const DefaultMaxRetries = 3

// DefaultPriority is applied when a producer does not set Priority.
const DefaultPriority = 5

// DefaultQueue is the queue name used when a producer does not set Queue.
const DefaultQueue = "default"

// Task is the unit of work and its lifecycle state. Field order and
// json tags match the normative on-store record read back over the API.
type Task struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Payload     map[string]interface{} `json:"payload"`
	Status      Status                 `json:"status"`
	Priority    int                    `json:"priority"`
	Queue       string                 `json:"queue"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Retries     int                    `json:"retries"`
	MaxRetries  int                    `json:"max_retries"`

	// ScheduledAt is an optional producer hint: when set, enqueue holds
	// the task in the delayed set until this time instead of making it
	// immediately visible to dequeue. Nil means plain immediate enqueue.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	// CancelRequested is the cooperative cancellation flag: a handler
	// that cares may poll it, but the runtime never forcibly tears down
	// a running handler because of it.
	CancelRequested bool `json:"cancel_requested,omitempty"`

	// extra holds fields this binary doesn't know about yet, so a
	// round trip through a newer writer never drops them.
	extra map[string]json.RawMessage `json:"-"`
}

// New creates a new pending Task with spec defaults applied.
func New(name, queue string, payload map[string]interface{}, priority, maxRetries int) *Task {
	if queue == "" {
		queue = DefaultQueue
	}
	if priority == 0 {
		priority = DefaultPriority
	}
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Task{
		ID:         uuid.New().String(),
		Name:       name,
		Payload:    payload,
		Status:     StatusPending,
		Priority:   priority,
		Queue:      queue,
		CreatedAt:  time.Now().UTC(),
		Retries:    0,
		MaxRetries: maxRetries,
	}
}

// CanRetry reports whether the task has retry attempts remaining (spec
// invariant 4: retries <= max_retries always).
func (t *Task) CanRetry() bool {
	return t.Retries < t.MaxRetries
}

// knownFields lists the json tags owned by the Task struct itself, used to
// separate known from unknown fields during unmarshal.
var knownFields = map[string]bool{
	"id": true, "name": true, "payload": true, "status": true,
	"priority": true, "queue": true, "created_at": true, "started_at": true,
	"completed_at": true, "result": true, "error": true, "retries": true,
	"max_retries": true, "cancel_requested": true, "scheduled_at": true,
}

// taskAlias avoids infinite recursion when (un)marshaling through the
// custom methods below.
type taskAlias Task

// MarshalJSON merges the known fields with any preserved unknown ones.
func (t *Task) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal((*taskAlias)(t))
	if err != nil {
		return nil, err
	}
	if len(t.extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(t.extra)+16)
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range t.extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known fields and stashes anything else so it
// survives a later re-marshal untouched.
func (t *Task) UnmarshalJSON(data []byte) error {
	var alias taskAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*t = Task(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if !knownFields[k] {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		t.extra = extra
	}
	return nil
}

// ToJSON serializes the task to its normative on-store JSON form.
func (t *Task) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// FromJSON deserializes a task from its normative on-store JSON form.
func FromJSON(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
