package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/taskqueue/core/internal/logger"
	"github.com/taskqueue/core/internal/task"
)

// TaskHandler processes one task and returns its result payload.
type TaskHandler func(ctx context.Context, t *task.Task) (map[string]interface{}, error)

// Executor runs the handler registered for a task's name, recovering from
// panics and classifying context-deadline/cancellation as the dedicated
// sentinel errors the pool's failure path checks for.
type Executor struct {
	handlers map[string]TaskHandler
}

// NewExecutor creates an Executor. A nil handlers map starts empty.
func NewExecutor(handlers map[string]TaskHandler) *Executor {
	if handlers == nil {
		handlers = make(map[string]TaskHandler)
	}
	return &Executor{handlers: handlers}
}

// RegisterHandler registers (or replaces) the handler for a task name.
func (e *Executor) RegisterHandler(name string, handler TaskHandler) {
	e.handlers[name] = handler
}

// Execute runs the handler registered for t.Name.
func (e *Executor) Execute(ctx context.Context, t *task.Task) (result map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logger.Error().
				Str("task_id", t.ID).
				Str("name", t.Name).
				Interface("panic", r).
				Str("stack", string(stack)).
				Msg("task handler panicked")
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	handler, ok := e.handlers[t.Name]
	if !ok {
		return nil, ErrHandlerNotFound
	}

	log := logger.WithTask(t.ID)
	log.Debug().Str("name", t.Name).Int("attempt", t.Retries+1).Msg("executing task")

	start := time.Now()
	result, err = handler(ctx, t)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Dur("duration", duration).Msg("task timed out")
			return nil, ErrTaskTimeout
		}
		if errors.Is(err, context.Canceled) {
			log.Warn().Dur("duration", duration).Msg("task canceled")
			return nil, ErrTaskCanceled
		}
		log.Error().Err(err).Dur("duration", duration).Msg("task failed")
		return nil, err
	}

	log.Debug().Dur("duration", duration).Msg("task executed successfully")
	return result, nil
}

// HasHandler reports whether a handler is registered for name.
func (e *Executor) HasHandler(name string) bool {
	_, ok := e.handlers[name]
	return ok
}

// HandlerNames returns every registered task name.
func (e *Executor) HandlerNames() []string {
	names := make([]string, 0, len(e.handlers))
	for name := range e.handlers {
		names = append(names, name)
	}
	return names
}

var (
	ErrHandlerNotFound = errors.New("worker: no handler registered for task name")
	ErrTaskTimeout     = errors.New("worker: task execution timed out")
	ErrTaskCanceled    = errors.New("worker: task execution canceled")
)
