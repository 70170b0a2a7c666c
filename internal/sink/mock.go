package sink

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/sinkpool/internal/device"
	"github.com/dgnsrekt/sinkpool/internal/frame"
)

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnStart func()
	OnPlay  func(pcm []byte)
	OnPause func()
	OnStop  func()
}

// MockSink simulates an output device without producing sound.
type MockSink struct {
	info  device.Info
	owner frame.Token

	state   atomic.Int32
	started atomic.Bool

	mu        sync.Mutex
	callbacks MockCallbacks
	stopCh    chan struct{}
	playback  sync.WaitGroup
	queued    int

	// Metrics for testing
	startCount atomic.Int64
	playCount  atomic.Int64
	pauseCount atomic.Int64
	stopCount  atomic.Int64
	bytesOut   atomic.Int64
}

// NewMockSink creates a mock sink reporting info.
func NewMockSink(info device.Info) *MockSink {
	m := &MockSink{info: info}
	m.state.Store(int32(StateStopped))
	return m
}

// SetCallbacks installs test hooks.
func (m *MockSink) SetCallbacks(cb MockCallbacks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = cb
}

// Owner returns the frame the sink was created for.
func (m *MockSink) Owner() frame.Token {
	return m.owner
}

// OutputDeviceInfo implements Sink.
func (m *MockSink) OutputDeviceInfo() device.Info {
	return m.info
}

// Start implements Sink.
func (m *MockSink) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if State(m.state.Load()) == StateClosed {
		return ErrSinkClosed
	}
	if m.info.Status != device.StatusOK {
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, m.info.Status)
	}

	m.started.Store(true)
	m.startCount.Add(1)
	if m.callbacks.OnStart != nil {
		m.callbacks.OnStart()
	}
	return nil
}

// Play implements Sink. The simulated playback ends after the duration the
// PCM would take on the device.
func (m *MockSink) Play(pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmptyAudio
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case State(m.state.Load()) == StateClosed:
		return ErrSinkClosed
	case !m.started.Load():
		return ErrNotStarted
	}

	m.haltPlaybackLocked()

	m.queued = len(pcm)
	duration := time.Second
	if bps := m.info.Params.BytesPerSecond(); bps > 0 {
		duration = time.Duration(len(pcm)) * time.Second / time.Duration(bps)
	}

	m.state.Store(int32(StatePlaying))
	m.playCount.Add(1)
	m.stopCh = make(chan struct{})
	m.playback.Add(1)
	go m.simulatePlayback(duration, m.stopCh)

	if m.callbacks.OnPlay != nil {
		m.callbacks.OnPlay(pcm)
	}
	return nil
}

func (m *MockSink) simulatePlayback(duration time.Duration, stopCh chan struct{}) {
	defer m.playback.Done()

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		m.mu.Lock()
		// a newer Play may have replaced this run
		if m.stopCh == stopCh {
			m.stopCh = nil
			m.bytesOut.Add(int64(m.queued))
			m.state.CompareAndSwap(int32(StatePlaying), int32(StateStopped))
		}
		m.mu.Unlock()
	case <-stopCh:
	}
}

// haltPlaybackLocked ends the simulation goroutine. Callers hold m.mu, so
// the goroutine must not be waited for here.
func (m *MockSink) haltPlaybackLocked() {
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
}

// Pause implements Sink.
func (m *MockSink) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := State(m.state.Load())
	if current != StatePlaying {
		return fmt.Errorf("cannot pause: sink is %s", current)
	}

	m.haltPlaybackLocked()
	m.state.Store(int32(StatePaused))
	m.pauseCount.Add(1)
	if m.callbacks.OnPause != nil {
		m.callbacks.OnPause()
	}
	return nil
}

// Stop implements Sink. Every call is counted so tests can assert a sink
// was stopped exactly once.
func (m *MockSink) Stop() {
	m.stopCount.Add(1)

	m.mu.Lock()
	m.haltPlaybackLocked()
	m.state.Store(int32(StateClosed))
	cb := m.callbacks.OnStop
	m.mu.Unlock()

	m.playback.Wait()
	if cb != nil {
		cb()
	}
}

// State implements Sink.
func (m *MockSink) State() State {
	return State(m.state.Load())
}

// StartCount returns how many times Start succeeded.
func (m *MockSink) StartCount() int64 { return m.startCount.Load() }

// PlayCount returns how many times Play succeeded.
func (m *MockSink) PlayCount() int64 { return m.playCount.Load() }

// PauseCount returns how many times Pause succeeded.
func (m *MockSink) PauseCount() int64 { return m.pauseCount.Load() }

// StopCount returns how many times Stop was called.
func (m *MockSink) StopCount() int64 { return m.stopCount.Load() }

// BytesRendered returns the PCM bytes whose simulated playback completed.
func (m *MockSink) BytesRendered() int64 { return m.bytesOut.Load() }

// MockFactory opens MockSinks. Device statuses can be scripted per device id
// to exercise failure paths.
type MockFactory struct {
	params device.Params

	mu       sync.Mutex
	statuses map[string]device.Status
	delay    time.Duration
	created  []*MockSink
}

// NewMockFactory creates a factory whose sinks report params.
func NewMockFactory(params device.Params) *MockFactory {
	return &MockFactory{
		params:   params,
		statuses: make(map[string]device.Status),
	}
}

// SetDeviceStatus makes sinks opened for id report status.
func (f *MockFactory) SetDeviceStatus(id string, status device.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[normalizeID(id)] = status
}

// SetCreateDelay makes every Create call block for d.
func (f *MockFactory) SetCreateDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Create opens a mock sink. It has the Factory signature.
func (f *MockFactory) Create(owner frame.Token, params device.SelectionParams) Sink {
	f.mu.Lock()
	delay := f.delay
	id := normalizeID(params.DeviceID)
	status, ok := f.statuses[id]
	if !ok {
		status = device.StatusOK
	}
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	s := NewMockSink(device.Info{DeviceID: id, Status: status, Params: f.params})
	s.owner = owner

	f.mu.Lock()
	f.created = append(f.created, s)
	f.mu.Unlock()
	return s
}

// Created returns every sink opened so far, in creation order.
func (f *MockFactory) Created() []*MockSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*MockSink, len(f.created))
	copy(out, f.created)
	return out
}

// CreatedCount returns how many sinks were opened.
func (f *MockFactory) CreatedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func normalizeID(id string) string {
	if device.IsDefaultDevice(id) {
		return device.DefaultDeviceID
	}
	return id
}
