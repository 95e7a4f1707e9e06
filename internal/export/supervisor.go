package export

// supervisor.go tracks running export workers.
//
// Every admitted task is registered with a cancel function before its worker
// starts, so an interrupt issued right after submission still reaches it.
// There is no worker pool: every admitted task gets its own goroutine and the
// per-user PREPARED quota is the only admission control. WaitForDrain lets
// the server wait for running exports during shutdown.

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned when registering a task id twice.
var ErrAlreadyRunning = errors.New("export task already running")

type running struct {
	cancel  context.CancelCauseFunc
	started time.Time
}

// Supervisor maps task ids to the cancel functions of their workers.
type Supervisor struct {
	mu    sync.RWMutex
	tasks map[string]running
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{tasks: make(map[string]running)}
}

// Register records taskID and returns a context that Interrupt cancels with
// ErrStopped. The caller must call Remove when the worker exits.
func (s *Supervisor) Register(ctx context.Context, taskID string) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; ok {
		return nil, ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancelCause(ctx)
	s.tasks[taskID] = running{cancel: cancel, started: time.Now()}
	return ctx, nil
}

// Remove forgets taskID and releases its context.
func (s *Supervisor) Remove(taskID string) {
	s.mu.Lock()
	r, ok := s.tasks[taskID]
	delete(s.tasks, taskID)
	s.mu.Unlock()

	if ok {
		r.cancel(nil)
	}
}

// Interrupt cancels the worker of taskID. It reports false when no worker
// is registered for it.
func (s *Supervisor) Interrupt(taskID string) bool {
	s.mu.RLock()
	r, ok := s.tasks[taskID]
	s.mu.RUnlock()

	if ok {
		r.cancel(ErrStopped)
	}
	return ok
}

// InterruptAll cancels every registered worker.
func (s *Supervisor) InterruptAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.tasks {
		r.cancel(ErrStopped)
	}
}

// IsRunning reports whether taskID has a registered worker.
func (s *Supervisor) IsRunning(taskID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tasks[taskID]
	return ok
}

// ActiveCount returns the number of registered workers.
func (s *Supervisor) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// WaitForDrain blocks until no worker is registered or ctx is cancelled.
func (s *Supervisor) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SupervisorStatus is a snapshot of running exports.
type SupervisorStatus struct {
	Active  int      `json:"active"`
	TaskIDs []string `json:"task_ids"`
}

// Status returns the current supervisor state for monitoring.
func (s *Supervisor) Status() SupervisorStatus {
	s.mu.RLock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	return SupervisorStatus{
		Active:  len(ids),
		TaskIDs: ids,
	}
}

// cause returns the cancellation cause of ctx, or nil while it is live.
func cause(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if c := context.Cause(ctx); c != nil {
		return c
	}
	return ctx.Err()
}
