//go:build !nocgo
// +build !nocgo

package sink

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/sinkpool/internal/device"
	"github.com/dgnsrekt/sinkpool/internal/frame"
	"github.com/dgnsrekt/sinkpool/internal/platform"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process; every OtoSink renders through it.
var (
	otoOnce   sync.Once
	otoCtx    *oto.Context
	otoParams device.Params
	otoErr    error
)

// openOtoContext opens the shared context on first use. Later callers get
// the parameters of the first one.
func openOtoContext(params device.Params, plat *platform.Info, logger *log.Logger) (*oto.Context, device.Params, error) {
	otoOnce.Do(func() {
		otoCtx, otoErr = newOtoContextWithRetry(params, plat, logger)
		otoParams = params
	})
	return otoCtx, otoParams, otoErr
}

func newOtoContextWithRetry(params device.Params, plat *platform.Info, logger *log.Logger) (*oto.Context, error) {
	attempts, delay := plat.Retry()

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			logger.Debug("Retrying output context initialization", "attempt", i+1, "of", attempts)
			time.Sleep(delay)
		}

		ctx, err := newOtoContext(params, plat)
		if err != nil {
			lastErr = err
			logger.Debug("Output context initialization failed", "attempt", i+1, "error", err)
			continue
		}

		logger.Info("Output context initialized", "attempt", i+1, "sample_rate", params.SampleRate)
		return ctx, nil
	}

	return nil, fmt.Errorf("failed to initialize output context after %d attempts: %w", attempts, lastErr)
}

func newOtoContext(params device.Params, plat *platform.Info) (*oto.Context, error) {
	options := &oto.NewContextOptions{
		SampleRate:   params.SampleRate,
		ChannelCount: params.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   params.BufferDuration,
	}

	ctx, ready, err := oto.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create output context: %w", err)
	}

	select {
	case <-ready:
		return ctx, nil
	case <-time.After(plat.ReadyTimeout()):
		// oto v3 contexts cannot be closed; it is left to the GC
		return nil, fmt.Errorf("output context not ready after %v", plat.ReadyTimeout())
	}
}

// newOtoFactory opens the shared context and returns a factory for sinks on
// it. oto only exposes the system default device, so any other device id
// yields a sink reporting StatusErrorNotFound.
func newOtoFactory(params device.Params, plat *platform.Info, logger *log.Logger) (Factory, error) {
	ctx, actual, err := openOtoContext(params, plat, logger)
	if err != nil {
		return nil, err
	}

	return func(owner frame.Token, sel device.SelectionParams) Sink {
		if !device.IsDefaultDevice(sel.DeviceID) {
			logger.Debug("Output device not found", "device", sel.DeviceID, "owner", owner)
			return NewUnavailableSink(sel.DeviceID, device.StatusErrorNotFound, actual)
		}
		return NewOtoSink(ctx, device.Info{
			DeviceID: device.DefaultDeviceID,
			Status:   device.StatusOK,
			Params:   actual,
		}, logger)
	}, nil
}

// OtoSink renders PCM on the shared oto context.
type OtoSink struct {
	ctx    *oto.Context
	info   device.Info
	logger *log.Logger

	mu     sync.Mutex
	player *oto.Player
	// data must outlive the player reading from it
	data []byte

	state    atomic.Int32
	started  atomic.Bool
	stopOnce sync.Once
}

// NewOtoSink creates a sink on ctx.
func NewOtoSink(ctx *oto.Context, info device.Info, logger *log.Logger) *OtoSink {
	if logger == nil {
		logger = log.Default()
	}
	s := &OtoSink{ctx: ctx, info: info, logger: logger}
	s.state.Store(int32(StateStopped))
	return s
}

// OutputDeviceInfo implements Sink. A context that reported an error makes
// the sink unhealthy.
func (s *OtoSink) OutputDeviceInfo() device.Info {
	info := s.info
	if info.Status == device.StatusOK && s.ctx.Err() != nil {
		info.Status = device.StatusErrorInternal
	}
	return info
}

// Start implements Sink.
func (s *OtoSink) Start() error {
	if State(s.state.Load()) == StateClosed {
		return ErrSinkClosed
	}
	if info := s.OutputDeviceInfo(); info.Status != device.StatusOK {
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, info.Status)
	}
	s.started.Store(true)
	return nil
}

// Play implements Sink.
func (s *OtoSink) Play(pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmptyAudio
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case State(s.state.Load()) == StateClosed:
		return ErrSinkClosed
	case !s.started.Load():
		return ErrNotStarted
	}

	s.releasePlayerLocked()

	s.data = make([]byte, len(pcm))
	copy(s.data, pcm)

	player := s.ctx.NewPlayer(bytes.NewReader(s.data))
	if player == nil {
		s.data = nil
		return fmt.Errorf("%w: failed to create player", ErrDeviceUnavailable)
	}
	player.Play()

	s.player = player
	s.state.Store(int32(StatePlaying))
	return nil
}

// Pause implements Sink.
func (s *OtoSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := State(s.state.Load())
	if current != StatePlaying {
		return fmt.Errorf("cannot pause: sink is %s", current)
	}
	if s.player != nil {
		s.player.Pause()
	}
	s.state.Store(int32(StatePaused))
	return nil
}

// Stop implements Sink.
func (s *OtoSink) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.releasePlayerLocked()
		s.state.Store(int32(StateClosed))
	})
}

func (s *OtoSink) releasePlayerLocked() {
	if s.player == nil {
		return
	}
	s.player.Pause()
	if err := s.player.Close(); err != nil {
		s.logger.Warn("Failed to close output player", "error", err)
	}
	s.player = nil
	s.data = nil
}

// State implements Sink. A player that drained its data counts as stopped.
func (s *OtoSink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := State(s.state.Load())
	if current == StatePlaying && s.player != nil && !s.player.IsPlaying() {
		return StateStopped
	}
	return current
}
