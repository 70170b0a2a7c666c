// Package lifecycle shuts sinkpool components down in order when the process
// is asked to stop.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultTimeout bounds the graceful part of a shutdown.
const DefaultTimeout = 5 * time.Second

// Component is something that needs cleanup on shutdown.
type Component interface {
	// Name returns the component name for logging
	Name() string

	// Shutdown performs graceful shutdown
	Shutdown(ctx context.Context) error

	// ForceStop performs immediate termination if graceful shutdown fails
	ForceStop() error
}

// Manager coordinates graceful shutdown of registered components.
type Manager struct {
	mu         sync.Mutex
	components []Component
	shutdownCh chan struct{}
	done       chan struct{}
	wg         sync.WaitGroup
	isShutdown bool
	timeout    time.Duration
	logger     *log.Logger
}

// NewManager creates a manager. A nil logger uses the default logger.
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
		timeout:    DefaultTimeout,
		logger:     logger,
	}
}

// SetTimeout changes how long components get to shut down gracefully.
func (m *Manager) SetTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
}

// Register adds a component. Components shut down in reverse order of
// registration.
func (m *Manager) Register(c Component) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isShutdown {
		m.logger.Warn("Cannot register component during shutdown", "component", c.Name())
		return
	}

	m.components = append(m.components, c)
	m.logger.Debug("Registered lifecycle component", "name", c.Name())
}

// Start begins watching for SIGINT and SIGTERM.
func (m *Manager) Start() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	m.watch(sigCh, func() { signal.Stop(sigCh) })
}

func (m *Manager) watch(sigCh <-chan os.Signal, stop func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer stop()

		select {
		case sig := <-sigCh:
			m.logger.Info("Received shutdown signal", "signal", sig)
			go m.Shutdown() //nolint:errcheck
		case <-m.shutdownCh:
			m.logger.Debug("Shutdown initiated programmatically")
		}
	}()
}

// Shutdown stops every component in reverse registration order. Components
// whose graceful shutdown fails are force stopped. Calls after the first
// return nil immediately.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.isShutdown {
		m.mu.Unlock()
		return nil
	}
	m.isShutdown = true
	components := append([]Component(nil), m.components...)
	timeout := m.timeout
	m.mu.Unlock()

	m.logger.Info("Starting graceful shutdown")
	close(m.shutdownCh)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		m.logger.Debug("Shutting down component", "name", c.Name())

		if err := c.Shutdown(ctx); err != nil {
			m.logger.Warn("Component graceful shutdown failed",
				"name", c.Name(),
				"error", err)

			if forceErr := c.ForceStop(); forceErr != nil {
				m.logger.Error("Component force stop failed",
					"name", c.Name(),
					"error", forceErr)
				errs = append(errs, fmt.Errorf("%s: %w", c.Name(), forceErr))
			}
		}
	}

	m.wg.Wait()
	close(m.done)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with %d errors: %w", len(errs), errors.Join(errs...))
	}
	m.logger.Info("Graceful shutdown complete")
	return nil
}

// Done is closed once shutdown has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until shutdown is complete.
func (m *Manager) Wait() {
	<-m.done
}

// Func adapts a shutdown function to Component. ForceStop calls the same
// function with an already cancelled context.
type Func struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFunc creates a component named name that runs fn on shutdown.
func NewFunc(name string, fn func(ctx context.Context) error) *Func {
	return &Func{name: name, fn: fn}
}

// Name implements Component.
func (f *Func) Name() string { return f.name }

// Shutdown implements Component.
func (f *Func) Shutdown(ctx context.Context) error { return f.fn(ctx) }

// ForceStop implements Component.
func (f *Func) ForceStop() error {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
