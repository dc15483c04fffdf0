package broker

import "fmt"

// Key layout. Every queue-scoped key is namespaced under queue:{name}:...
// so operations never need to scan across queues.
const (
	keyQueues     = "queues"
	keyWorkers    = "workers"
	schedulerLock = "broker:scheduler:lock"
)

func taskKey(id string) string {
	return fmt.Sprintf("task:%s", id)
}

func workerKey(id string) string {
	return fmt.Sprintf("worker:%s", id)
}

func pendingKey(queue string) string {
	return fmt.Sprintf("queue:%s:pending", queue)
}

func processingKey(queue string) string {
	return fmt.Sprintf("queue:%s:processing", queue)
}

func processingTSKey(queue string) string {
	return fmt.Sprintf("queue:%s:processing:ts", queue)
}

func completedKey(queue string) string {
	return fmt.Sprintf("queue:%s:completed", queue)
}

func failedKey(queue string) string {
	return fmt.Sprintf("queue:%s:failed", queue)
}

func dlqKey(queue string) string {
	return fmt.Sprintf("queue:%s:dlq", queue)
}

func delayedKey(queue string) string {
	return fmt.Sprintf("queue:%s:delayed", queue)
}

func pausedKey(queue string) string {
	return fmt.Sprintf("queue:%s:paused", queue)
}
