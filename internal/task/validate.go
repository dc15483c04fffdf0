package task

import (
	"fmt"
	"regexp"
)

var (
	namePattern  = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	queuePattern = regexp.MustCompile(`^[a-z0-9-]+$`)
)

const (
	MinPriority = 1
	MaxPriority = 10
)

// ValidationError reports a malformed producer request; callers should
// map it to the broker's InvalidInput error class.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("task: invalid %s: %s", e.Field, e.Reason)
}

// ValidateName checks the task name matches `[a-zA-Z0-9_]+`, 1-100 chars.
func ValidateName(name string) error {
	if len(name) == 0 || len(name) > 100 {
		return &ValidationError{Field: "name", Reason: "must be 1-100 characters"}
	}
	if !namePattern.MatchString(name) {
		return &ValidationError{Field: "name", Reason: "must match [a-zA-Z0-9_]+"}
	}
	return nil
}

// ValidateQueue checks a queue name matches `[a-z0-9-]+`, 1-64 chars.
func ValidateQueue(queue string) error {
	if len(queue) == 0 || len(queue) > 64 {
		return &ValidationError{Field: "queue", Reason: "must be 1-64 characters"}
	}
	if !queuePattern.MatchString(queue) {
		return &ValidationError{Field: "queue", Reason: "must match [a-z0-9-]+"}
	}
	return nil
}

// ValidatePriority checks the priority bound (1..10).
func ValidatePriority(priority int) error {
	if priority < MinPriority || priority > MaxPriority {
		return &ValidationError{Field: "priority", Reason: "must be between 1 and 10"}
	}
	return nil
}

// ValidateMaxRetries checks max_retries is non-negative.
func ValidateMaxRetries(maxRetries int) error {
	if maxRetries < 0 {
		return &ValidationError{Field: "max_retries", Reason: "must be >= 0"}
	}
	return nil
}

// Validate runs every field check on a newly-built task before it is
// handed to the broker.
func Validate(t *Task) error {
	if err := ValidateName(t.Name); err != nil {
		return err
	}
	if err := ValidateQueue(t.Queue); err != nil {
		return err
	}
	if err := ValidatePriority(t.Priority); err != nil {
		return err
	}
	if err := ValidateMaxRetries(t.MaxRetries); err != nil {
		return err
	}
	return nil
}
