//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskqueue/core/internal/api"
	"github.com/taskqueue/core/internal/api/handlers"
	"github.com/taskqueue/core/internal/broker"
	"github.com/taskqueue/core/internal/config"
	"github.com/taskqueue/core/internal/events"
	"github.com/taskqueue/core/internal/logger"
	"github.com/taskqueue/core/internal/task"
	"github.com/taskqueue/core/internal/worker"
)

func init() {
	logger.Init("error", false)
}

func testConfig() *config.Config {
	return &config.Config{
		Broker: config.BrokerConfig{
			Addr:               "localhost:6379",
			Password:           "",
			DB:                 15, // Use a separate DB for tests
			PoolSize:           10,
			MinIdleConns:       2,
			MaxRetries:         3,
			DialTimeout:        5 * time.Second,
			ReadTimeout:        3 * time.Second,
			WriteTimeout:       3 * time.Second,
			DefaultQueue:       "test_tasks",
			BaseRetryDelay:     100 * time.Millisecond,
			MaxRetryDelay:      1 * time.Second,
			CompletedRetention: time.Minute,
			PromoteInterval:    1 * time.Second,
		},
		Worker: config.WorkerConfig{
			ID:                "test-worker",
			Queues:            []string{"test_tasks"},
			Concurrency:       2,
			TaskTimeout:       5 * time.Second,
			HeartbeatInterval: 1 * time.Second,
			StaleWorkerAfter:  3 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Fanout: config.FanoutConfig{
			BufferSize:  64,
			RelayEvents: false,
		},
		Server: config.ServerConfig{
			Host:         "localhost",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Metrics: config.MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		LogLevel: "error",
	}
}

func setupTestServer(t *testing.T) (*api.Server, *broker.Broker, func()) {
	cfg := testConfig()

	bus := events.NewBus(cfg.Fanout.BufferSize, nil)

	br, err := broker.New(&cfg.Broker, bus)
	require.NoError(t, err)

	server := api.NewServer(cfg, br, bus)

	cleanup := func() {
		ctx := context.Background()
		br.Client().FlushDB(ctx)
		br.Close()
	}

	return server, br, cleanup
}

func TestTaskLifecycle_CreateAndGet(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	// Create a task
	createReq := handlers.CreateTaskRequest{
		Name:       "test-task",
		Payload:    map[string]interface{}{"key": "value"},
		Queue:      "test_tasks",
		Priority:   8,
		MaxRetries: 5,
	}
	body, _ := json.Marshal(createReq)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var createResp task.Task
	err := json.Unmarshal(w.Body.Bytes(), &createResp)
	require.NoError(t, err)

	assert.NotEmpty(t, createResp.ID)
	assert.Equal(t, "test-task", createResp.Name)
	assert.Equal(t, task.StatusPending, createResp.Status)

	// Get the task
	req = httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+createResp.ID, nil)
	w = httptest.NewRecorder()

	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var getResp task.Task
	err = json.Unmarshal(w.Body.Bytes(), &getResp)
	require.NoError(t, err)

	assert.Equal(t, createResp.ID, getResp.ID)
	assert.Equal(t, createResp.Name, getResp.Name)
}

func TestTaskLifecycle_Cancel(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	createReq := handlers.CreateTaskRequest{
		Name:    "cancellable-task",
		Queue:   "test_tasks",
		Payload: nil,
	}
	body, _ := json.Marshal(createReq)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var createResp task.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &createResp))

	// Cancel the task
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/tasks/"+createResp.ID, nil)
	w = httptest.NewRecorder()

	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTaskLifecycle_ListTasks(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	priorities := []int{1, 5, 8, 10}
	for _, p := range priorities {
		createReq := handlers.CreateTaskRequest{
			Name:     "task-priority",
			Queue:    "test_tasks",
			Payload:  nil,
			Priority: p,
		}
		body, _ := json.Marshal(createReq)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		server.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks?queue=test_tasks", nil)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var listResp handlers.ListResponse
	err := json.Unmarshal(w.Body.Bytes(), &listResp)
	require.NoError(t, err)

	assert.Equal(t, 4, listResp.TotalCount)
	assert.Len(t, listResp.Tasks, 4)
}

func TestTaskLifecycle_GetNotFound(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/nonexistent-id", nil)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminEndpoints_Health(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)

	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "connected", resp["redis"])
}

func TestAdminEndpoints_ListWorkers(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/admin/workers", nil)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)

	assert.Contains(t, resp, "workers")
	assert.Contains(t, resp, "count")
}

func TestAdminEndpoints_GetQueues(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/admin/queues", nil)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)

	assert.Contains(t, resp, "queues")
	assert.Contains(t, resp, "total_depth")
}

func TestAdminEndpoints_DLQ(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/admin/queues/test_tasks/dlq", nil)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)

	assert.Contains(t, resp, "entries")
	assert.Contains(t, resp, "size")
}

func TestWorkerPool_StartStop(t *testing.T) {
	cfg := testConfig()

	bus := events.NewBus(cfg.Fanout.BufferSize, nil)

	br, err := broker.New(&cfg.Broker, bus)
	require.NoError(t, err)
	defer br.Close()

	handlers := map[string]worker.TaskHandler{
		"test": func(ctx context.Context, t *task.Task) (map[string]interface{}, error) {
			return map[string]interface{}{"result": "ok"}, nil
		},
	}
	executor := worker.NewExecutor(handlers)

	pool := worker.NewPool(&cfg.Worker, br, bus, executor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = pool.Start(ctx)
	require.NoError(t, err)

	// Give it time to start
	time.Sleep(100 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	err = pool.Stop(stopCtx)
	require.NoError(t, err)

	br.Client().FlushDB(context.Background())
}
