package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sndnv/stasis-sub000/internal/domain"
	"github.com/sndnv/stasis-sub000/internal/usecase"
)

var ErrOperationNotFound = errors.New("operation not found")

type OperationRecorder interface {
	OperationStarted(operation string)
	OperationCompleted(operation string, duration time.Duration, err error)
}

// Operation describes an active or completed backup or recovery run.
type Operation struct {
	ID        domain.OperationID
	Type      domain.OperationType
	Started   time.Time
	Completed *time.Time
	Failure   string
}

// Runner performs the work of a single operation.
type Runner func(ctx context.Context, op domain.OperationID) error

type execution struct {
	operation Operation
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
}

// Executor runs operations in the background, allowing at most one active
// operation of each type.
type Executor struct {
	metrics   OperationRecorder
	logger    usecase.Logger
	listeners []func(Operation, error)
	now       func() time.Time

	mu        sync.Mutex
	active    map[domain.OperationID]*execution
	completed map[domain.OperationID]*execution
}

func NewExecutor(metrics OperationRecorder, logger usecase.Logger) *Executor {
	return &Executor{
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		active:    make(map[domain.OperationID]*execution),
		completed: make(map[domain.OperationID]*execution),
	}
}

// OnCompleted registers a listener called after every operation finishes,
// including failed and stopped ones. Listeners must be registered before the
// first operation is started.
func (e *Executor) OnCompleted(listener func(Operation, error)) {
	e.listeners = append(e.listeners, listener)
}

// Start runs the operation in the background under a context derived from ctx.
func (e *Executor) Start(ctx context.Context, kind domain.OperationType, run Runner) (domain.OperationID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, existing := range e.active {
		if existing.operation.Type == kind {
			return domain.OperationID{}, fmt.Errorf(
				"cannot start [%s] operation; [%s] with ID [%s] is already active",
				kind, kind, id,
			)
		}
	}

	op := domain.NewOperationID()
	runCtx, cancel := context.WithCancel(ctx)

	exec := &execution{
		operation: Operation{ID: op, Type: kind, Started: e.now()},
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	e.active[op] = exec

	e.metrics.OperationStarted(string(kind))
	e.logger.Infof("Started [%s] operation [%s]", kind, op)

	go e.run(runCtx, exec, run)

	return op, nil
}

func (e *Executor) run(ctx context.Context, exec *execution, run Runner) {
	defer exec.cancel()

	err := run(ctx, exec.operation.ID)
	completed := e.now()
	kind := exec.operation.Type

	e.mu.Lock()
	exec.err = err
	exec.operation.Completed = &completed
	if err != nil {
		exec.operation.Failure = err.Error()
	}
	delete(e.active, exec.operation.ID)
	e.completed[exec.operation.ID] = exec
	operation := exec.operation
	e.mu.Unlock()

	e.metrics.OperationCompleted(string(kind), completed.Sub(operation.Started), err)
	if err != nil {
		e.logger.Errorf("[%s] operation [%s] failed: %v", kind, operation.ID, err)
	} else {
		e.logger.Infof("[%s] operation [%s] completed in %v", kind, operation.ID, completed.Sub(operation.Started).Round(time.Millisecond))
	}

	for _, listener := range e.listeners {
		listener(operation, err)
	}

	close(exec.done)
}

// Stop cancels an active operation without waiting for it to finish.
func (e *Executor) Stop(op domain.OperationID) error {
	e.mu.Lock()
	exec, ok := e.active[op]
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("failed to stop [%s]: %w", op, ErrOperationNotFound)
	}

	e.logger.Warnf("Stopping [%s] operation [%s]", exec.operation.Type, op)
	exec.cancel()
	return nil
}

// Wait blocks until the operation finishes and returns its result.
func (e *Executor) Wait(ctx context.Context, op domain.OperationID) error {
	e.mu.Lock()
	exec, ok := e.active[op]
	if !ok {
		exec, ok = e.completed[op]
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("failed to wait for [%s]: %w", op, ErrOperationNotFound)
	}

	select {
	case <-exec.done:
		return exec.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) Active() []Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return operationsOf(e.active)
}

func (e *Executor) Completed() []Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return operationsOf(e.completed)
}

// Shutdown stops all active operations and waits for them.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	var pending []*execution
	for _, exec := range e.active {
		exec.cancel()
		pending = append(pending, exec)
	}
	e.mu.Unlock()

	for _, exec := range pending {
		<-exec.done
	}
}

func operationsOf(executions map[domain.OperationID]*execution) []Operation {
	operations := make([]Operation, 0, len(executions))
	for _, exec := range executions {
		operations = append(operations, exec.operation)
	}
	slices.SortFunc(operations, func(a, b Operation) int {
		return a.Started.Compare(b.Started)
	})
	return operations
}
