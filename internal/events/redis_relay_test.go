package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRedisRelay_DefaultsPrefix(t *testing.T) {
	r := NewRedisRelay(nil, "")
	assert.Equal(t, "taskqueue:events", r.prefix)
}

func TestNewRedisRelay_KeepsGivenPrefix(t *testing.T) {
	r := NewRedisRelay(nil, "myapp:events")
	assert.Equal(t, "myapp:events", r.prefix)
}

func TestRedisRelay_ChannelName(t *testing.T) {
	r := NewRedisRelay(nil, "taskqueue:events")
	assert.Equal(t, "taskqueue:events:dashboard", r.channel(DashboardTopic))
	assert.Equal(t, "taskqueue:events:task:abc", r.channel(TaskTopic("abc")))
}
