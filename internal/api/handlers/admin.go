package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskqueue/core/internal/broker"
	"github.com/taskqueue/core/internal/logger"
	"github.com/taskqueue/core/internal/task"
)

// AdminHandler handles the administrative surface layered above the
// producer/observer API: worker inspection and pause/resume, queue
// inspection and pause/resume/purge, and dead-letter management.
type AdminHandler struct {
	broker *broker.Broker
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(br *broker.Broker) *AdminHandler {
	return &AdminHandler{broker: br}
}

// ListWorkers handles GET /admin/workers
func (h *AdminHandler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.broker.ListWorkers(r.Context())
	if err != nil {
		h.respondBrokerError(w, err, "failed to get workers")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"workers": workers,
		"count":   len(workers),
	})
}

// GetWorker handles GET /admin/workers/{workerID}
func (h *AdminHandler) GetWorker(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerID")
	if workerID == "" {
		h.respondError(w, http.StatusBadRequest, "worker ID is required")
		return
	}

	state, err := h.broker.GetWorker(r.Context(), workerID)
	if err != nil {
		h.respondBrokerError(w, err, "failed to get worker")
		return
	}

	h.respondJSON(w, http.StatusOK, state)
}

// PauseWorker handles POST /admin/workers/{workerID}/pause — the
// supplemental per-worker pause surface (distinct from queue-level pause).
func (h *AdminHandler) PauseWorker(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerID")
	if workerID == "" {
		h.respondError(w, http.StatusBadRequest, "worker ID is required")
		return
	}

	if _, err := h.broker.GetWorker(r.Context(), workerID); err != nil {
		h.respondBrokerError(w, err, "failed to pause worker")
		return
	}

	if err := h.broker.PauseWorker(r.Context(), workerID); err != nil {
		h.respondBrokerError(w, err, "failed to pause worker")
		return
	}

	logger.Info().Str("worker_id", workerID).Msg("worker paused")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "worker paused",
		"worker_id": workerID,
	})
}

// ResumeWorker handles POST /admin/workers/{workerID}/resume
func (h *AdminHandler) ResumeWorker(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerID")
	if workerID == "" {
		h.respondError(w, http.StatusBadRequest, "worker ID is required")
		return
	}

	if _, err := h.broker.GetWorker(r.Context(), workerID); err != nil {
		h.respondBrokerError(w, err, "failed to resume worker")
		return
	}

	if err := h.broker.ResumeWorker(r.Context(), workerID); err != nil {
		h.respondBrokerError(w, err, "failed to resume worker")
		return
	}

	logger.Info().Str("worker_id", workerID).Msg("worker resumed")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "worker resumed",
		"worker_id": workerID,
	})
}

// GetQueues handles GET /admin/queues
func (h *AdminHandler) GetQueues(w http.ResponseWriter, r *http.Request) {
	names, err := h.broker.ListQueues(r.Context())
	if err != nil {
		h.respondBrokerError(w, err, "failed to list queues")
		return
	}

	queueStats := make(map[string]*broker.QueueStats, len(names))
	var total int64
	for _, name := range names {
		stats, err := h.broker.QueueStats(r.Context(), name)
		if err != nil {
			continue
		}
		queueStats[name] = stats
		total += stats.Total
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"queues":      queueStats,
		"total_depth": total,
	})
}

// PauseQueue handles POST /admin/queues/{queue}/pause
func (h *AdminHandler) PauseQueue(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	if queue == "" {
		h.respondError(w, http.StatusBadRequest, "queue is required")
		return
	}

	if err := h.broker.Pause(r.Context(), queue); err != nil {
		h.respondBrokerError(w, err, "failed to pause queue")
		return
	}

	logger.Info().Str("queue", queue).Msg("queue paused")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "queue paused",
		"queue":   queue,
	})
}

// ResumeQueue handles POST /admin/queues/{queue}/resume
func (h *AdminHandler) ResumeQueue(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	if queue == "" {
		h.respondError(w, http.StatusBadRequest, "queue is required")
		return
	}

	if err := h.broker.Resume(r.Context(), queue); err != nil {
		h.respondBrokerError(w, err, "failed to resume queue")
		return
	}

	logger.Info().Str("queue", queue).Msg("queue resumed")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "queue resumed",
		"queue":   queue,
	})
}

// PurgeQueue handles DELETE /admin/queues/{queue} — admin-only, distinct
// from purge_dead_letter: removes every task record and key belonging to
// the queue, not just the dead-letter set.
func (h *AdminHandler) PurgeQueue(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	if queue == "" {
		h.respondError(w, http.StatusBadRequest, "queue is required")
		return
	}

	if err := h.broker.PurgeQueue(r.Context(), queue); err != nil {
		h.respondBrokerError(w, err, "failed to purge queue")
		return
	}

	logger.Info().Str("queue", queue).Msg("queue purged")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "queue purged",
		"queue":   queue,
	})
}

// RetryTask handles POST /admin/tasks/{taskID}/retry — the administrative
// requeue_dead_letter operation, sharing the broker's Requeue
// with the producer-facing retry_task surface.
func (h *AdminHandler) RetryTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	ok, err := h.broker.Requeue(r.Context(), taskID)
	if err != nil {
		h.respondBrokerError(w, err, "failed to retry task")
		return
	}
	if !ok {
		h.respondError(w, http.StatusConflict, "task cannot be retried in current state")
		return
	}

	logger.Info().Str("task_id", taskID).Msg("task retried manually")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "task re-queued",
		"task_id": taskID,
	})
}

// ListDLQ handles GET /admin/queues/{queue}/dlq
func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	if queue == "" {
		h.respondError(w, http.StatusBadRequest, "queue is required")
		return
	}

	status := task.StatusFailed
	tasks, total, err := h.broker.ListTasks(r.Context(), queue, &status, 500, 0)
	if err != nil {
		h.respondBrokerError(w, err, "failed to list dead letter tasks")
		return
	}

	size, _ := h.broker.DeadLetterSize(r.Context(), queue)

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": tasks,
		"total":   total,
		"size":    size,
	})
}

// RetryDLQRequest represents a request to retry dead-lettered tasks
type RetryDLQRequest struct {
	TaskID   string `json:"task_id,omitempty"`
	RetryAll bool   `json:"retry_all,omitempty"`
}

// RetryDLQ handles POST /admin/queues/{queue}/dlq/retry
func (h *AdminHandler) RetryDLQ(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	if queue == "" {
		h.respondError(w, http.StatusBadRequest, "queue is required")
		return
	}

	var req RetryDLQRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.RetryAll {
		count, err := h.broker.RetryAllDeadLetter(r.Context(), queue)
		if err != nil {
			h.respondBrokerError(w, err, "failed to retry dead letter tasks")
			return
		}

		h.respondJSON(w, http.StatusOK, map[string]interface{}{
			"message":       "tasks re-queued",
			"retried_count": count,
		})
		return
	}

	if req.TaskID == "" {
		h.respondError(w, http.StatusBadRequest, "task_id or retry_all is required")
		return
	}

	ok, err := h.broker.Requeue(r.Context(), req.TaskID)
	if err != nil {
		h.respondBrokerError(w, err, "failed to retry dead letter task")
		return
	}
	if !ok {
		h.respondError(w, http.StatusConflict, "task not in dead letter queue")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "task re-queued",
		"task_id": req.TaskID,
	})
}

// ClearDLQ handles DELETE /admin/queues/{queue}/dlq
func (h *AdminHandler) ClearDLQ(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	if queue == "" {
		h.respondError(w, http.StatusBadRequest, "queue is required")
		return
	}

	count, err := h.broker.PurgeDeadLetter(r.Context(), queue)
	if err != nil {
		h.respondBrokerError(w, err, "failed to clear dead letter queue")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "dead letter queue cleared",
		"count":   count,
	})
}

// HealthCheck handles GET /admin/health
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.broker.Client().Ping(r.Context()).Err(); err != nil {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"redis":  "disconnected",
			"error":  err.Error(),
		})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"redis":  "connected",
	})
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func (h *AdminHandler) respondBrokerError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, broker.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, broker.ErrConflict):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, broker.ErrInvalidInput):
		h.respondError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error().Err(err).Msg(fallback)
		h.respondError(w, http.StatusInternalServerError, fallback)
	}
}
