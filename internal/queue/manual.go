package queue

import (
	"container/heap"
	"sync"
	"time"
)

// ManualRunner queues tasks against a virtual clock that only moves when
// Advance is called. Tasks run on the goroutine calling Advance or RunAll.
type ManualRunner struct {
	mu    sync.Mutex
	epoch time.Time
	now   time.Duration
	tasks taskHeap
	seq   uint64
	ran   int
}

// NewManualRunner creates a runner with its clock at zero.
func NewManualRunner() *ManualRunner {
	return &ManualRunner{epoch: time.Unix(0, 0)}
}

// PostDelayedTask implements Runner.
func (m *ManualRunner) PostDelayedTask(task func(), delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	heap.Push(&m.tasks, &delayedTask{
		run:      task,
		deadline: m.epoch.Add(m.now + delay),
		seq:      m.seq,
	})
}

// Advance moves the clock forward by d and runs every task that became due,
// including tasks those tasks post.
func (m *ManualRunner) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += d
	m.mu.Unlock()
	m.runDue()
}

// RunAll runs every pending task, moving the clock to each task's deadline.
func (m *ManualRunner) RunAll() {
	for {
		m.mu.Lock()
		if m.tasks.Len() == 0 {
			m.mu.Unlock()
			return
		}
		if due := m.tasks[0].deadline.Sub(m.epoch); due > m.now {
			m.now = due
		}
		m.mu.Unlock()
		m.runDue()
	}
}

func (m *ManualRunner) runDue() {
	for {
		m.mu.Lock()
		if m.tasks.Len() == 0 || m.tasks[0].deadline.Sub(m.epoch) > m.now {
			m.mu.Unlock()
			return
		}
		t := heap.Pop(&m.tasks).(*delayedTask)
		m.ran++
		m.mu.Unlock()

		t.run()
	}
}

// Now returns the virtual time elapsed since creation.
func (m *ManualRunner) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Len returns the number of pending tasks.
func (m *ManualRunner) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks.Len()
}

// Ran returns how many tasks have run.
func (m *ManualRunner) Ran() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ran
}
