// Package queue runs deferred work off the caller's goroutine. TaskRunner is
// a background execution context that runs delayed tasks in deadline order;
// ManualRunner runs the same tasks on a virtual clock for tests.
package queue
