package capture

import (
	"context"
	"sync"
)

// BackgroundTasks extends process lifetime for in-flight work on platforms
// that may suspend the process. BeforeExit schedules fn and returns its task
// ID; fn must call Finish with that ID when it is done.
type BackgroundTasks interface {
	BeforeExit(fn func(taskID string)) string
	Finish(taskID string)
}

// ProcessTasks is a BackgroundTasks implementation for a regular process:
// each task runs in its own goroutine and Wait blocks shutdown until every
// task has called Finish.
type ProcessTasks struct {
	idgen   IDGenerator
	mu      sync.Mutex
	pending map[string]struct{}
	wg      sync.WaitGroup
}

var _ BackgroundTasks = (*ProcessTasks)(nil)

// NewProcessTasks creates an empty task tracker.
func NewProcessTasks(idgen IDGenerator) *ProcessTasks {
	return &ProcessTasks{
		idgen:   idgen,
		pending: make(map[string]struct{}),
	}
}

// BeforeExit registers a task and starts fn.
func (t *ProcessTasks) BeforeExit(fn func(taskID string)) string {
	id := t.idgen.New()

	t.mu.Lock()
	t.pending[id] = struct{}{}
	t.wg.Add(1)
	t.mu.Unlock()

	go fn(id)
	return id
}

// Finish marks a task complete. Unknown or already finished IDs are ignored.
func (t *ProcessTasks) Finish(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[taskID]; !ok {
		return
	}
	delete(t.pending, taskID)
	t.wg.Done()
}

// Pending returns the number of unfinished tasks.
func (t *ProcessTasks) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Wait blocks until every task has finished or ctx is done.
func (t *ProcessTasks) Wait(ctx context.Context) error {
	return waitGroup(ctx, &t.wg)
}

// waitGroup waits for wg, giving up when ctx is done.
func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
