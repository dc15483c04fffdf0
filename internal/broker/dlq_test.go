package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDLQKeyMatchesQueueNamespace(t *testing.T) {
	assert.Equal(t, "queue:default:dlq", dlqKey("default"))
	assert.Equal(t, "queue:default:failed", failedKey("default"))
}
