package queue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTaskRunner_RunsInDeadlineOrder(t *testing.T) {
	r := NewTaskRunner(nil)
	defer r.Close()

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	record := func(i int) func() {
		return func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}
	}

	wg.Add(3)
	r.PostDelayedTask(record(3), 60*time.Millisecond)
	r.PostDelayedTask(record(1), 0)
	r.PostDelayedTask(record(2), 30*time.Millisecond)

	waitTimeout(t, &wg, 2*time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("tasks ran in order %v, want [1 2 3]", order)
	}

	stats := r.Stats()
	if stats.Posted != 3 || stats.Executed != 3 {
		t.Errorf("stats = %+v, want 3 posted and executed", stats)
	}
}

func TestTaskRunner_DelayIsHonored(t *testing.T) {
	r := NewTaskRunner(nil)
	defer r.Close()

	start := time.Now()
	done := make(chan time.Duration, 1)
	r.PostDelayedTask(func() { done <- time.Since(start) }, 50*time.Millisecond)

	select {
	case elapsed := <-done:
		if elapsed < 50*time.Millisecond {
			t.Errorf("task ran after %v, before its delay", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestTaskRunner_CloseDropsPending(t *testing.T) {
	r := NewTaskRunner(nil)

	ran := make(chan struct{}, 1)
	r.PostDelayedTask(func() { ran <- struct{}{} }, time.Hour)
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}

	r.Close()
	r.Close()
	r.PostTask(func() { ran <- struct{}{} })

	select {
	case <-ran:
		t.Fatal("no task should run after Close")
	case <-time.After(50 * time.Millisecond):
	}

	if stats := r.Stats(); stats.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", stats.Dropped)
	}
}

func TestTaskRunner_ForceStopEndsLoop(t *testing.T) {
	r := NewTaskRunner(nil)

	ran := make(chan struct{}, 1)
	r.PostDelayedTask(func() { ran <- struct{}{} }, 20*time.Millisecond)

	if err := r.ForceStop(); err != nil {
		t.Fatalf("ForceStop: %v", err)
	}
	if err := r.ForceStop(); err != nil {
		t.Fatalf("second ForceStop: %v", err)
	}

	// Close joins the loop goroutine, so it only returns if ForceStop ended it.
	closed := make(chan struct{})
	go func() {
		r.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after ForceStop")
	}

	select {
	case <-ran:
		t.Fatal("no task should run after ForceStop")
	case <-time.After(50 * time.Millisecond):
	}
	if stats := r.Stats(); stats.Dropped != 1 || stats.Pending != 0 {
		t.Errorf("Dropped = %d, Pending = %d, want 1 and 0", stats.Dropped, stats.Pending)
	}
}

func TestTaskRunner_PanicDoesNotKillLoop(t *testing.T) {
	r := NewTaskRunner(nil)
	defer r.Close()

	r.PostTask(func() { panic("boom") })

	done := make(chan struct{})
	r.PostTask(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner stopped after a panicking task")
	}
	if r.Stats().Panics != 1 {
		t.Errorf("Panics = %d, want 1", r.Stats().Panics)
	}
}

func TestTaskRunner_Shutdown(t *testing.T) {
	r := NewTaskRunner(nil)
	r.PostDelayedTask(func() {}, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if r.Name() == "" {
		t.Error("Name should not be empty")
	}
}

func TestManualRunner_Advance(t *testing.T) {
	m := NewManualRunner()
	var ran []string

	m.PostDelayedTask(func() { ran = append(ran, "late") }, 5*time.Second)
	m.PostDelayedTask(func() { ran = append(ran, "early") }, time.Second)

	m.Advance(999 * time.Millisecond)
	if len(ran) != 0 {
		t.Fatalf("nothing should run yet, ran %v", ran)
	}

	m.Advance(time.Millisecond)
	if len(ran) != 1 || ran[0] != "early" {
		t.Fatalf("ran %v, want [early]", ran)
	}

	m.Advance(4 * time.Second)
	if len(ran) != 2 || ran[1] != "late" {
		t.Fatalf("ran %v, want [early late]", ran)
	}
	if m.Len() != 0 || m.Ran() != 2 {
		t.Errorf("Len = %d, Ran = %d", m.Len(), m.Ran())
	}
}

func TestManualRunner_RunAllFollowsNestedTasks(t *testing.T) {
	m := NewManualRunner()
	count := 0

	m.PostDelayedTask(func() {
		count++
		m.PostDelayedTask(func() { count++ }, time.Minute)
	}, time.Second)

	m.RunAll()

	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if m.Now() != time.Minute+time.Second {
		t.Errorf("Now = %v, want 1m1s", m.Now())
	}
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for tasks")
	}
}
