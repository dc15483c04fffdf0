package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorkerStatus_Values(t *testing.T) {
	assert.Equal(t, WorkerStatus("starting"), WorkerStarting)
	assert.Equal(t, WorkerStatus("idle"), WorkerIdle)
	assert.Equal(t, WorkerStatus("busy"), WorkerBusy)
	assert.Equal(t, WorkerStatus("stopping"), WorkerStopping)
	assert.Equal(t, WorkerStatus("stopped"), WorkerStopped)
}

func TestWorkerState_Fields(t *testing.T) {
	now := time.Now().UTC()
	w := &WorkerState{
		WorkerID:       "worker-1",
		Status:         WorkerBusy,
		Queues:         []string{"default", "emails"},
		CurrentTask:    "task-1",
		LastHeartbeat:  now,
		TasksCompleted: 10,
		TasksFailed:    2,
		StartedAt:      now,
	}

	assert.Equal(t, "worker-1", w.WorkerID)
	assert.Equal(t, WorkerBusy, w.Status)
	assert.Len(t, w.Queues, 2)
	assert.Equal(t, int64(10), w.TasksCompleted)
}
