package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrShuttingDown is returned by Submit after Shutdown has begun.
var ErrShuttingDown = errors.New("scheduler shutting down")

// ExecutionState represents the state of a background execution.
type ExecutionState string

const (
	// ExecutionStatePending indicates the work is waiting for a slot.
	ExecutionStatePending ExecutionState = "pending"
	// ExecutionStateRunning indicates the work is in progress.
	ExecutionStateRunning ExecutionState = "running"
	// ExecutionStateSucceeded indicates the work completed without error.
	ExecutionStateSucceeded ExecutionState = "succeeded"
	// ExecutionStateFailed indicates the work returned an error.
	ExecutionStateFailed ExecutionState = "failed"
	// ExecutionStateCanceled indicates the work was canceled.
	ExecutionStateCanceled ExecutionState = "canceled"
)

// Fn is a unit of background work. It must honor ctx cancellation.
type Fn func(ctx context.Context) error

// Execution tracks one submitted unit of work.
type Execution struct {
	// ID is a unique identifier for this execution.
	ID string

	// Name labels the work for logs.
	Name string

	mu        sync.RWMutex
	state     ExecutionState
	err       error
	startTime time.Time
	endTime   time.Time

	cancel context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
}

// State returns the current execution state.
func (e *Execution) State() ExecutionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Err returns the error the work finished with, if any.
func (e *Execution) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.err
}

// Cancel requests cancellation. Pending work never starts; running
// work sees its context canceled.
func (e *Execution) Cancel() {
	e.cancel()
}

// Done returns a channel closed when the execution finishes.
func (e *Execution) Done() <-chan struct{} { return e.done }

// Wait blocks until the execution finishes and returns its error.
func (e *Execution) Wait() error {
	<-e.done
	return e.Err()
}

func (e *Execution) setState(s ExecutionState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Execution) finish(s ExecutionState, err error) {
	e.mu.Lock()
	e.state = s
	e.err = err
	e.endTime = time.Now()
	e.mu.Unlock()
	e.doneOnce.Do(func() { close(e.done) })
}

// Scheduler runs submitted work with bounded concurrency.
type Scheduler struct {
	sem chan struct{}

	mu         sync.Mutex
	executions map[string]*Execution
	wg         sync.WaitGroup
	closed     bool

	onComplete func(*Execution)
}

// NewScheduler creates a scheduler allowing up to maxConcurrent
// simultaneous executions.
func NewScheduler(maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Scheduler{
		sem:        make(chan struct{}, maxConcurrent),
		executions: make(map[string]*Execution),
	}
}

// OnComplete registers a callback invoked after each execution
// finishes, in the execution's goroutine. Set it before submitting.
func (s *Scheduler) OnComplete(fn func(*Execution)) {
	s.mu.Lock()
	s.onComplete = fn
	s.mu.Unlock()
}

// Submit queues work and returns its Execution handle.
func (s *Scheduler) Submit(name string, fn Fn) (*Execution, error) {
	ctx, cancel := context.WithCancel(context.Background())

	exec := &Execution{
		ID:        uuid.NewString(),
		Name:      name,
		state:     ExecutionStatePending,
		startTime: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return nil, ErrShuttingDown
	}
	s.executions[exec.ID] = exec
	callback := s.onComplete
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx, exec, fn, callback)
	return exec, nil
}

func (s *Scheduler) run(ctx context.Context, exec *Execution, fn Fn, callback func(*Execution)) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.executions, exec.ID)
		s.mu.Unlock()
		if callback != nil {
			callback(exec)
		}
	}()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		exec.finish(ExecutionStateCanceled, ctx.Err())
		return
	}

	if ctx.Err() != nil {
		exec.finish(ExecutionStateCanceled, ctx.Err())
		return
	}

	exec.setState(ExecutionStateRunning)
	err := fn(ctx)

	switch {
	case err == nil:
		exec.finish(ExecutionStateSucceeded, nil)
	case errors.Is(err, context.Canceled):
		exec.finish(ExecutionStateCanceled, err)
	default:
		exec.finish(ExecutionStateFailed, err)
	}
}

// Active returns the number of tracked executions.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.executions)
}

// CancelAll cancels every tracked execution.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	execs := make([]*Execution, 0, len(s.executions))
	for _, e := range s.executions {
		execs = append(execs, e)
	}
	s.mu.Unlock()

	for _, e := range execs {
		e.Cancel()
	}
}

// Shutdown stops accepting work and waits for in-flight executions,
// up to timeout. Work still running after the timeout is canceled.
func (s *Scheduler) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		s.CancelAll()
		<-done
		return context.DeadlineExceeded
	}
}
