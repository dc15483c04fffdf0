package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskqueue/core/internal/task"
)

func TestTaskTopic(t *testing.T) {
	assert.Equal(t, "task:abc-123", TaskTopic("abc-123"))
}

func TestNewTaskEvent(t *testing.T) {
	tk := task.New("send-email", "default", nil, 5, 3)
	event := NewTaskEvent(EventTaskSubmitted, tk)

	assert.Equal(t, EventTaskSubmitted, event.Type)
	assert.Equal(t, tk, event.Task)
	assert.False(t, event.Timestamp.IsZero())
}

func TestNewWorkerEvent(t *testing.T) {
	event := NewWorkerEvent(EventWorkerJoined, "worker-1")

	assert.Equal(t, EventWorkerJoined, event.Type)
	assert.Equal(t, "worker-1", event.WorkerID)
}

func TestEvent_JSONRoundTrip(t *testing.T) {
	tk := task.New("send-email", "default", nil, 5, 3)
	event := NewTaskEvent(EventTaskCompleted, tk)

	data, err := event.ToJSON()
	require.NoError(t, err)

	decoded, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, event.Type, decoded.Type)
	assert.Equal(t, tk.ID, decoded.Task.ID)
}

func TestEventTypeForTask(t *testing.T) {
	tests := []struct {
		name   string
		status task.Status
		retry  int
		hint   string
		want   EventType
	}{
		{"submitted", task.StatusPending, 0, "", EventTaskSubmitted},
		{"retrying", task.StatusPending, 1, "", EventTaskRetrying},
		{"started", task.StatusProcessing, 0, "", EventTaskStarted},
		{"completed", task.StatusCompleted, 0, "", EventTaskCompleted},
		{"failed", task.StatusFailed, 0, "", EventTaskFailed},
		{"cancelled overrides status", task.StatusFailed, 0, "cancelled", EventTaskCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := &task.Task{Status: tt.status, Retries: tt.retry}
			assert.Equal(t, tt.want, eventTypeForTask(tk, tt.hint))
		})
	}
}
