package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Runner accepts tasks to run later on another execution context.
type Runner interface {
	PostDelayedTask(task func(), delay time.Duration)
}

// delayedTask is a heap item. seq keeps tasks with equal deadlines FIFO.
type delayedTask struct {
	run      func()
	deadline time.Time
	seq      uint64
	index    int
}

// taskHeap implements heap.Interface ordered by deadline.
type taskHeap []*delayedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	item := x.(*delayedTask)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.index = -1 // For safety
	*h = old[0 : n-1]
	return item
}

// Stats tracks runner activity.
type Stats struct {
	Posted   int64
	Executed int64
	Dropped  int64 // posted after Close or pending at Close
	Panics   int64
	Pending  int
	LastRun  time.Time
}

// TaskRunner executes delayed tasks sequentially on one background goroutine.
type TaskRunner struct {
	logger *log.Logger

	mu     sync.Mutex
	tasks  taskHeap
	seq    uint64
	closed bool
	stats  Stats

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTaskRunner starts a runner. A nil logger uses the default logger.
func NewTaskRunner(logger *log.Logger) *TaskRunner {
	if logger == nil {
		logger = log.Default()
	}
	r := &TaskRunner{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	heap.Init(&r.tasks)

	r.wg.Add(1)
	go r.loop()
	return r
}

// PostTask runs task as soon as possible.
func (r *TaskRunner) PostTask(task func()) {
	r.PostDelayedTask(task, 0)
}

// PostDelayedTask runs task once delay has elapsed. Tasks posted after
// Close are dropped.
func (r *TaskRunner) PostDelayedTask(task func(), delay time.Duration) {
	r.mu.Lock()
	if r.closed {
		r.stats.Dropped++
		r.mu.Unlock()
		r.logger.Debug("Dropping task posted to closed runner")
		return
	}

	r.seq++
	heap.Push(&r.tasks, &delayedTask{
		run:      task,
		deadline: time.Now().Add(delay),
		seq:      r.seq,
	})
	r.stats.Posted++
	r.mu.Unlock()

	// Wake the loop in case this task is due before the one it sleeps on
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *TaskRunner) loop() {
	defer r.wg.Done()

	for {
		r.mu.Lock()
		var (
			timer *time.Timer
			due   <-chan time.Time
		)
		if r.tasks.Len() > 0 {
			next := r.tasks[0]
			wait := time.Until(next.deadline)
			if wait <= 0 {
				heap.Pop(&r.tasks)
				r.mu.Unlock()
				r.run(next)
				continue
			}
			timer = time.NewTimer(wait)
			due = timer.C
		}
		r.mu.Unlock()

		select {
		case <-due:
		case <-r.wake:
		case <-r.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (r *TaskRunner) run(t *delayedTask) {
	defer func() {
		if p := recover(); p != nil {
			r.mu.Lock()
			r.stats.Panics++
			r.mu.Unlock()
			r.logger.Error("Task panicked", "panic", p)
		}
	}()

	t.run()

	r.mu.Lock()
	r.stats.Executed++
	r.stats.LastRun = time.Now()
	r.mu.Unlock()
}

// Len returns the number of pending tasks.
func (r *TaskRunner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks.Len()
}

// Stats returns a snapshot of runner statistics.
func (r *TaskRunner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := r.stats
	stats.Pending = r.tasks.Len()
	return stats
}

// Close stops the runner and drops pending tasks. It waits for a running
// task to finish and must not be called from a task.
func (r *TaskRunner) Close() {
	r.stop()
	r.wg.Wait()
}

// stop marks the runner closed, drops pending tasks and tells the loop to
// exit. Only the first call has any effect.
func (r *TaskRunner) stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.stats.Dropped += int64(r.tasks.Len())
		r.tasks = nil
		r.mu.Unlock()

		close(r.done)
	})
}

// Name implements lifecycle.Component.
func (r *TaskRunner) Name() string {
	return "cleanup-runner"
}

// Shutdown implements lifecycle.Component.
func (r *TaskRunner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForceStop implements lifecycle.Component. Unlike Close it does not wait
// for a running task.
func (r *TaskRunner) ForceStop() error {
	r.stop()
	return nil
}
