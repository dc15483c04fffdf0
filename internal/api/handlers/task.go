package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskqueue/core/internal/broker"
	"github.com/taskqueue/core/internal/logger"
	"github.com/taskqueue/core/internal/task"
)

// TaskHandler handles the producer/observer task surface: enqueue,
// get_task, cancel_task, retry_task, list_tasks.
type TaskHandler struct {
	broker       *broker.Broker
	maxQueueSize int64
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(br *broker.Broker, maxQueueSize int64) *TaskHandler {
	return &TaskHandler{broker: br, maxQueueSize: maxQueueSize}
}

// CreateTaskRequest is the producer-facing enqueue payload.
type CreateTaskRequest struct {
	Name        string                 `json:"name"`
	Payload     map[string]interface{} `json:"payload"`
	Queue       string                 `json:"queue,omitempty"`
	Priority    int                    `json:"priority,omitempty"`
	MaxRetries  int                    `json:"max_retries,omitempty"`
	ScheduledAt *time.Time             `json:"scheduled_at,omitempty"`
}

// Create handles POST /api/v1/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		h.respondError(w, http.StatusBadRequest, "task name is required")
		return
	}

	if h.maxQueueSize > 0 {
		queue := req.Queue
		if queue == "" {
			queue = task.DefaultQueue
		}
		if stats, err := h.broker.QueueStats(r.Context(), queue); err == nil {
			if stats.Pending >= h.maxQueueSize {
				h.respondError(w, http.StatusServiceUnavailable, "queue at capacity")
				return
			}
		}
	}

	t := task.New(req.Name, req.Queue, req.Payload, req.Priority, req.MaxRetries)
	if req.ScheduledAt != nil {
		t.ScheduledAt = req.ScheduledAt
	}

	if err := h.broker.Enqueue(r.Context(), t); err != nil {
		h.respondBrokerError(w, err, "failed to enqueue task")
		return
	}

	logger.Info().
		Str("task_id", t.ID).
		Str("name", t.Name).
		Str("queue", t.Queue).
		Int("priority", t.Priority).
		Msg("task created")

	h.respondJSON(w, http.StatusCreated, t)
}

// Get handles GET /api/v1/tasks/{taskID}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	t, err := h.broker.GetTask(r.Context(), taskID)
	if err != nil {
		h.respondBrokerError(w, err, "failed to get task")
		return
	}

	h.respondJSON(w, http.StatusOK, t)
}

// Cancel handles DELETE /api/v1/tasks/{taskID}
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	ok, err := h.broker.Cancel(r.Context(), taskID)
	if err != nil {
		h.respondBrokerError(w, err, "failed to cancel task")
		return
	}
	if !ok {
		h.respondError(w, http.StatusConflict, "task cannot be cancelled in current state")
		return
	}

	logger.Info().Str("task_id", taskID).Msg("task cancelled")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "task cancelled",
		"task_id": taskID,
	})
}

// Retry handles POST /api/v1/tasks/{taskID}/retry — the producer-facing
// retry_task operation, sharing the broker's Requeue with the
// admin requeue_dead_letter surface.
func (h *TaskHandler) Retry(w http.ResponseWriter, r *http.Request) {
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

	logger.Info().Str("task_id", taskID).Msg("task retried")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "task re-queued",
		"task_id": taskID,
	})
}

// ListResponse represents the response for listing tasks
type ListResponse struct {
	Tasks      []*task.Task `json:"tasks"`
	TotalCount int          `json:"total_count"`
}

// List handles GET /api/v1/tasks — list_tasks, filterable by
// queue and status, paginated with limit/offset.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	queue := r.URL.Query().Get("queue")
	if queue == "" {
		queue = task.DefaultQueue
	}

	var statusFilter *task.Status
	if s := r.URL.Query().Get("status"); s != "" {
		parsed, ok := task.ParseStatus(s)
		if !ok {
			h.respondError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		statusFilter = &parsed
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil {
			limit = v
		}
	}
	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil {
			offset = v
		}
	}

	tasks, total, err := h.broker.ListTasks(r.Context(), queue, statusFilter, limit, offset)
	if err != nil {
		h.respondBrokerError(w, err, "failed to list tasks")
		return
	}

	h.respondJSON(w, http.StatusOK, ListResponse{Tasks: tasks, TotalCount: total})
}

// QueueStats handles GET /api/v1/queues/{queue}/stats — queue_stats
//.
func (h *TaskHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	if queue == "" {
		h.respondError(w, http.StatusBadRequest, "queue is required")
		return
	}

	stats, err := h.broker.QueueStats(r.Context(), queue)
	if err != nil {
		h.respondBrokerError(w, err, "failed to get queue stats")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// ListQueues handles GET /api/v1/queues
func (h *TaskHandler) ListQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := h.broker.ListQueues(r.Context())
	if err != nil {
		h.respondBrokerError(w, err, "failed to list queues")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"queues": queues})
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *TaskHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// respondBrokerError maps the broker's error taxonomy onto HTTP
// status codes.
func (h *TaskHandler) respondBrokerError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, broker.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, broker.ErrConflict):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, broker.ErrInvalidInput):
		h.respondError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error().Err(err).Msg(fallback)
		h.respondError(w, http.StatusInternalServerError, fallback)
	}
}
