package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taskqueue/core/internal/broker"
	"github.com/taskqueue/core/internal/config"
	"github.com/taskqueue/core/internal/events"
	"github.com/taskqueue/core/internal/logger"
	"github.com/taskqueue/core/internal/metrics"
	"github.com/taskqueue/core/internal/task"
)

// dequeueTimeout is the per-attempt blocking budget the processing loop
// passes to Broker.Dequeue.
const dequeueTimeout = 5 * time.Second

// State mirrors the lifecycle states broker.WorkerState tracks.
type State string

const (
	StateStarting State = "starting"
	StateIdle     State = "idle"
	StateBusy     State = "busy"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// Pool runs cfg.Concurrency independent processing slots against a
// shared handler registry, all pulling from the same broker and queue
// list: a worker with concurrency N runs N independent processing slots,
// all feeding the same handler registry. The broker is passed in by
// constructor injection rather than held as a package singleton, so a
// process can run multiple pools against different brokers in tests.
type Pool struct {
	id       string
	broker   *broker.Broker
	bus      *events.Bus
	executor *Executor
	cfg      *config.WorkerConfig

	heartbeat *Heartbeat

	mu              sync.RWMutex
	state           State
	currentTask     string
	lastStateChange time.Time

	tasksCompleted int64
	tasksFailed    int64

	stopCh chan struct{}
	wg     sync.WaitGroup

	startedAt time.Time
}

// NewPool creates a worker pool bound to br and executing handlers
// registered on executor. A nil bus runs without fan-out.
func NewPool(cfg *config.WorkerConfig, br *broker.Broker, bus *events.Bus, executor *Executor) *Pool {
	id := cfg.ID
	if id == "" {
		id = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	return &Pool{
		id:       id,
		broker:   br,
		bus:      bus,
		executor: executor,
		cfg:      cfg,
		state:    StateStarting,
		stopCh:   make(chan struct{}),
	}
}

// ID returns the pool's worker id.
func (p *Pool) ID() string { return p.id }

// State returns the pool's current aggregate state.
func (p *Pool) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// setState transitions the pool's aggregate state and attributes the time
// spent in the previous state to that state's busy/idle counter.
func (p *Pool) setState(s State) {
	now := time.Now()

	p.mu.Lock()
	prev := p.state
	since := p.lastStateChange
	p.state = s
	p.lastStateChange = now
	p.mu.Unlock()

	if since.IsZero() {
		return
	}
	elapsed := now.Sub(since).Seconds()
	switch prev {
	case StateBusy:
		metrics.RecordWorkerBusyTime(p.id, elapsed)
	case StateIdle:
		metrics.RecordWorkerIdleTime(p.id, elapsed)
	}
}

func (p *Pool) setCurrentTask(id string) {
	p.mu.Lock()
	p.currentTask = id
	p.mu.Unlock()
}

func (p *Pool) snapshot() (broker.WorkerStatus, string, int64, int64) {
	p.mu.RLock()
	state, cur := p.state, p.currentTask
	p.mu.RUnlock()

	var status broker.WorkerStatus
	switch state {
	case StateStarting:
		status = broker.WorkerStarting
	case StateBusy:
		status = broker.WorkerBusy
	case StateStopping:
		status = broker.WorkerStopping
	case StateStopped:
		status = broker.WorkerStopped
	default:
		status = broker.WorkerIdle
	}
	return status, cur, atomic.LoadInt64(&p.tasksCompleted), atomic.LoadInt64(&p.tasksFailed)
}

// Start registers the worker, spawns its concurrency slots, and starts
// the heartbeat loop.
func (p *Pool) Start(ctx context.Context) error {
	p.startedAt = time.Now().UTC()
	if err := p.broker.RegisterWorker(ctx, p.id, p.cfg.Queues); err != nil {
		return fmt.Errorf("worker: register: %w", err)
	}
	p.setState(StateIdle)
	metrics.ActiveWorkers.Inc()

	if p.bus != nil {
		p.bus.PublishWorker(events.EventWorkerJoined, p.id)
	}

	hb := NewHeartbeat(p.broker, p.id, p.cfg.Queues, p.cfg.HeartbeatInterval,
		p.cfg.StaleWorkerAfter, 3*p.cfg.TaskTimeout, p.snapshot)
	p.heartbeat = hb
	hb.Start(ctx)

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.slot(ctx, i)
	}

	logger.Info().
		Str("worker_id", p.id).
		Int("concurrency", p.cfg.Concurrency).
		Strs("queues", p.cfg.Queues).
		Msg("worker pool started")
	return nil
}

// Stop requests graceful shutdown: no slot starts a new dequeue, and Stop
// waits up to cfg.ShutdownTimeout for any in-flight task to finish before
// returning. A task still running past the timeout is abandoned in
// processing and recovered later by SweepStale.
func (p *Pool) Stop(ctx context.Context) error {
	p.setState(StateStopping)
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Str("worker_id", p.id).Msg("worker pool stopped gracefully")
	case <-time.After(p.cfg.ShutdownTimeout):
		logger.Warn().Str("worker_id", p.id).Msg("worker pool shutdown timed out, abandoning in-flight task")
	case <-ctx.Done():
		logger.Warn().Str("worker_id", p.id).Msg("worker pool shutdown canceled")
	}

	if p.heartbeat != nil {
		p.heartbeat.Stop()
	}

	p.setState(StateStopped)
	metrics.ActiveWorkers.Dec()
	unregisterCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.broker.UnregisterWorker(unregisterCtx, p.id); err != nil {
		logger.Error().Err(err).Str("worker_id", p.id).Msg("failed to unregister worker")
	}
	if p.bus != nil {
		p.bus.PublishWorker(events.EventWorkerLeft, p.id)
	}
	return nil
}

// slot is the per-concurrency-slot processing loop: dequeue, execute
// with a timeout budget, report the outcome.
func (p *Pool) slot(ctx context.Context, slotNum int) {
	defer p.wg.Done()

	log := logger.WithWorker(p.id)
	log.Debug().Int("slot", slotNum).Msg("processing slot started")

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if paused, _ := p.broker.IsWorkerPaused(ctx, p.id); paused {
			select {
			case <-time.After(time.Second):
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		t, err := p.broker.Dequeue(ctx, p.cfg.Queues, dequeueTimeout)
		if err != nil {
			if errors.Is(err, broker.ErrBrokerUnavailable) {
				log.Error().Err(err).Msg("broker unavailable, backing off")
				select {
				case <-time.After(time.Second):
				case <-p.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
			continue
		}
		if t == nil {
			continue
		}

		p.setState(StateBusy)
		p.setCurrentTask(t.ID)

		taskCtx, cancel := context.WithTimeout(ctx, p.cfg.TaskTimeout)
		p.runTask(taskCtx, t)
		cancel()

		p.setCurrentTask("")
		p.setState(StateIdle)
	}
}

func (p *Pool) runTask(ctx context.Context, t *task.Task) {
	log := logger.WithTask(t.ID)

	if !p.executor.HasHandler(t.Name) {
		log.Warn().Str("name", t.Name).Msg("no handler registered, dead-lettering")
		unknownErr := fmt.Errorf("%w: %s", broker.ErrUnknownTask, t.Name)
		if err := p.broker.UnknownTaskFail(ctx, t.ID, unknownErr.Error()); err != nil {
			log.Error().Err(err).Msg("failed to dead-letter unknown task")
		}
		atomic.AddInt64(&p.tasksFailed, 1)
		return
	}

	result, err := p.executor.Execute(ctx, t)
	if err != nil {
		var failErr error
		if errors.Is(err, ErrTaskTimeout) {
			failErr = fmt.Errorf("%w: task %s exceeded its timeout", broker.ErrHandlerTimeout, t.ID)
		} else {
			failErr = fmt.Errorf("%w: %v", broker.ErrHandlerError, err)
		}
		// ctx may already be past its deadline (the timeout case), so the
		// report uses a context that keeps its values but not its deadline.
		if reportErr := p.broker.Fail(context.WithoutCancel(ctx), t.ID, failErr.Error()); reportErr != nil {
			log.Error().Err(reportErr).Msg("failed to report task failure")
		}
		atomic.AddInt64(&p.tasksFailed, 1)
		return
	}

	if err := p.broker.Complete(ctx, t.ID, result); err != nil {
		log.Error().Err(err).Msg("failed to report task completion")
		atomic.AddInt64(&p.tasksFailed, 1)
		return
	}
	atomic.AddInt64(&p.tasksCompleted, 1)
}
