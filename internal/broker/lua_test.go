package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// These scripts are executed against a live Redis connection in
// integration tests; here we only assert each is defined and has a
// non-empty hash, without a broker or Redis dependency. Script bodies
// are not checked here.
func TestScripts_AreDefined(t *testing.T) {
	scripts := map[string]interface {
		Hash() string
	}{
		"enqueueScript":         enqueueScript,
		"claimScript":           claimScript,
		"completeScript":        completeScript,
		"requeueScript":         requeueScript,
		"deadLetterScript":      deadLetterScript,
		"cancelPendingScript":   cancelPendingScript,
		"requeueTerminalScript": requeueTerminalScript,
		"promoteScript":         promoteScript,
	}

	for name, s := range scripts {
		assert.NotNil(t, s, name)
		assert.NotEmpty(t, s.Hash(), name)
	}
}
