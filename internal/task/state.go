package task

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of a task: exactly these four
// values. Dead-letter is a queue-level set membership (broker.DLQ), never
// a status value — a dead-lettered task's status stays "failed".
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) String() string {
	return string(s)
}

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return Status(s), true
	default:
		return "", false
	}
}

// IsFinal reports whether the status is terminal. failed is terminal:
// the only way back to pending is the requeue_dead_letter / retry_task
// operation, which bypasses the state machine entirely (broker-level, not
// a normal transition - see broker.Requeue).
func (s Status) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	ErrInvalidTransition = errors.New("task: invalid state transition")
	ErrTaskNotFound      = errors.New("task: not found")
	ErrTaskAlreadyExists = errors.New("task: already exists")
)

// validTransitions encodes the task state machine. The failed -> pending
// edge is intentionally absent: that move only ever happens through
// broker.Requeue (requeue_dead_letter / retry_task), which resets retries
// and is not a normal StateMachine transition.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusPending, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// CanTransitionTo checks whether a transition from s to target is valid.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// StateMachine mutates a Task's status in place, keeping timestamps and
// derived fields consistent. Persistence is the broker's job.
type StateMachine struct {
	task *Task
}

func NewStateMachine(t *Task) *StateMachine {
	return &StateMachine{task: t}
}

func (sm *StateMachine) transition(target Status) error {
	if !sm.task.Status.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	sm.task.Status = target
	return nil
}

// Start moves pending -> processing, stamping started_at.
func (sm *StateMachine) Start() error {
	if err := sm.transition(StatusProcessing); err != nil {
		return err
	}
	now := time.Now().UTC()
	sm.task.StartedAt = &now
	sm.task.CompletedAt = nil
	return nil
}

// Complete moves processing -> completed.
func (sm *StateMachine) Complete(result map[string]interface{}) error {
	if err := sm.transition(StatusCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	sm.task.CompletedAt = &now
	sm.task.Result = result
	sm.task.Error = ""
	return nil
}

// Retry moves processing -> pending, incrementing the attempt counter.
// Callers must have already checked CanRetry.
func (sm *StateMachine) Retry(errMsg string) error {
	if err := sm.transition(StatusPending); err != nil {
		return err
	}
	sm.task.Retries++
	sm.task.Error = errMsg
	sm.task.StartedAt = nil
	return nil
}

// Fail moves processing -> failed. The broker adds the id to the queue's
// failed and dead-letter sets in the same atomic operation that calls
// this (see broker.Fail).
func (sm *StateMachine) Fail(errMsg string) error {
	if err := sm.transition(StatusFailed); err != nil {
		return err
	}
	now := time.Now().UTC()
	sm.task.CompletedAt = &now
	sm.task.Error = errMsg
	return nil
}

// Requeue resets a failed (dead-lettered) or completed task back to
// pending. Used only by broker.Requeue, which backs both
// requeue_dead_letter and retry_task and calls this directly instead of
// going through CanTransitionTo (the failed -> pending edge is
// deliberately not a normal transition).
func (sm *StateMachine) Requeue() {
	sm.task.Status = StatusPending
	sm.task.Retries = 0
	sm.task.Error = ""
	sm.task.Result = nil
	sm.task.StartedAt = nil
	sm.task.CompletedAt = nil
}
