package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status   Status
		expected string
	}{
		{StatusPending, "pending"},
		{StatusProcessing, "processing"},
		{StatusCompleted, "completed"},
		{StatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.String())
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input string
		want  Status
		ok    bool
	}{
		{"pending", StatusPending, true},
		{"processing", StatusProcessing, true},
		{"completed", StatusCompleted, true},
		{"failed", StatusFailed, true},
		{"dead_letter", "", false},
		{"invalid", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseStatus(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatus_IsFinal(t *testing.T) {
	final := []Status{StatusCompleted, StatusFailed}
	nonFinal := []Status{StatusPending, StatusProcessing}

	for _, s := range final {
		assert.True(t, s.IsFinal(), "expected %s to be final", s)
	}
	for _, s := range nonFinal {
		assert.False(t, s.IsFinal(), "expected %s to not be final", s)
	}
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},

		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusPending, true},
		{StatusProcessing, StatusFailed, true},

		{StatusFailed, StatusPending, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStateMachine_Start(t *testing.T) {
	tk := New("test", "default", nil, 5, 3)
	sm := NewStateMachine(tk)

	err := sm.Start()
	require.NoError(t, err)

	assert.Equal(t, StatusProcessing, tk.Status)
	assert.NotNil(t, tk.StartedAt)
	assert.Nil(t, tk.CompletedAt)
}

func TestStateMachine_Start_Invalid(t *testing.T) {
	tk := New("test", "default", nil, 5, 3)
	tk.Status = StatusCompleted
	sm := NewStateMachine(tk)

	err := sm.Start()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStateMachine_Complete(t *testing.T) {
	tk := New("test", "default", nil, 5, 3)
	sm := NewStateMachine(tk)
	require.NoError(t, sm.Start())

	result := map[string]interface{}{"output": "ok"}
	err := sm.Complete(result)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, tk.Status)
	assert.Equal(t, result, tk.Result)
	assert.Empty(t, tk.Error)
	assert.NotNil(t, tk.CompletedAt)
}

func TestStateMachine_Retry(t *testing.T) {
	tk := New("test", "default", nil, 5, 3)
	sm := NewStateMachine(tk)
	require.NoError(t, sm.Start())

	err := sm.Retry("boom")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, tk.Status)
	assert.Equal(t, 1, tk.Retries)
	assert.Equal(t, "boom", tk.Error)
	assert.Nil(t, tk.StartedAt)
}

func TestStateMachine_Fail(t *testing.T) {
	tk := New("test", "default", nil, 5, 3)
	sm := NewStateMachine(tk)
	require.NoError(t, sm.Start())

	err := sm.Fail("fatal")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, tk.Status)
	assert.Equal(t, "fatal", tk.Error)
	assert.NotNil(t, tk.CompletedAt)
}

func TestStateMachine_Fail_Invalid(t *testing.T) {
	tk := New("test", "default", nil, 5, 3)
	sm := NewStateMachine(tk)

	err := sm.Fail("fatal")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStateMachine_Requeue(t *testing.T) {
	tk := New("test", "default", nil, 5, 3)
	tk.Status = StatusFailed
	tk.Retries = 5
	tk.Error = "previous error"
	tk.Result = map[string]interface{}{"x": 1}

	sm := NewStateMachine(tk)
	sm.Requeue()

	assert.Equal(t, StatusPending, tk.Status)
	assert.Equal(t, 0, tk.Retries)
	assert.Empty(t, tk.Error)
	assert.Nil(t, tk.Result)
	assert.Nil(t, tk.StartedAt)
	assert.Nil(t, tk.CompletedAt)
}
