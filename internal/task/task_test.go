package task

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	payload := map[string]interface{}{"key": "value"}
	tk := New("send_email", "notifications", payload, 8, 5)

	assert.NotEmpty(t, tk.ID)
	assert.Equal(t, "send_email", tk.Name)
	assert.Equal(t, payload, tk.Payload)
	assert.Equal(t, "notifications", tk.Queue)
	assert.Equal(t, 8, tk.Priority)
	assert.Equal(t, StatusPending, tk.Status)
	assert.Equal(t, 0, tk.Retries)
	assert.Equal(t, 5, tk.MaxRetries)
	assert.False(t, tk.CreatedAt.IsZero())
}

func TestNew_Defaults(t *testing.T) {
	tk := New("noop", "", nil, 0, 0)

	assert.Equal(t, DefaultQueue, tk.Queue)
	assert.Equal(t, DefaultPriority, tk.Priority)
	assert.Equal(t, DefaultMaxRetries, tk.MaxRetries)
}

func TestTask_CanRetry(t *testing.T) {
	tk := New("test", "default", nil, 5, 3)

	tk.Retries = 0
	assert.True(t, tk.CanRetry())

	tk.Retries = 2
	assert.True(t, tk.CanRetry())

	tk.Retries = 3
	assert.False(t, tk.CanRetry())

	tk.Retries = 5
	assert.False(t, tk.CanRetry())
}

func TestTask_ToJSON_FromJSON(t *testing.T) {
	original := New("test", "default", map[string]interface{}{"key": "value"}, 5, 3)

	data, err := original.ToJSON()
	require.NoError(t, err)

	restored, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, original.ID, restored.ID)
	assert.Equal(t, original.Name, restored.Name)
	assert.Equal(t, original.Priority, restored.Priority)
	assert.Equal(t, original.Status, restored.Status)
	assert.Equal(t, original.Queue, restored.Queue)
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte("not json"))
	assert.Error(t, err)
}

func TestTask_JSONRoundTrip_PreservesUnknownFields(t *testing.T) {
	raw := []byte(`{
		"id": "task-1",
		"name": "test",
		"payload": {"k": "v"},
		"status": "pending",
		"priority": 5,
		"queue": "default",
		"created_at": "2026-01-01T00:00:00Z",
		"retries": 0,
		"max_retries": 3,
		"trace_id": "abc-123"
	}`)

	tk, err := FromJSON(raw)
	require.NoError(t, err)

	out, err := tk.ToJSON()
	require.NoError(t, err)

	var merged map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &merged))
	assert.Equal(t, "abc-123", merged["trace_id"])
}

func TestTask_JSONMarshal_OmitsEmptyOptionalFields(t *testing.T) {
	tk := New("test", "default", nil, 5, 3)

	data, err := tk.ToJSON()
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.NotContains(t, raw, "started_at")
	assert.NotContains(t, raw, "completed_at")
	assert.NotContains(t, raw, "result")
	assert.NotContains(t, raw, "error")
}
