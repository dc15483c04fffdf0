package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "task:abc", taskKey("abc"))
	assert.Equal(t, "worker:w1", workerKey("w1"))
	assert.Equal(t, "queue:emails:pending", pendingKey("emails"))
	assert.Equal(t, "queue:emails:processing", processingKey("emails"))
	assert.Equal(t, "queue:emails:processing:ts", processingTSKey("emails"))
	assert.Equal(t, "queue:emails:completed", completedKey("emails"))
	assert.Equal(t, "queue:emails:failed", failedKey("emails"))
	assert.Equal(t, "queue:emails:dlq", dlqKey("emails"))
	assert.Equal(t, "queue:emails:delayed", delayedKey("emails"))
	assert.Equal(t, "queue:emails:paused", pausedKey("emails"))
}

func TestTopLevelKeyConstants(t *testing.T) {
	assert.Equal(t, "queues", keyQueues)
	assert.Equal(t, "workers", keyWorkers)
	assert.Equal(t, "broker:scheduler:lock", schedulerLock)
}
