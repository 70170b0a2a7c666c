package sink

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgnsrekt/sinkpool/internal/device"
	"github.com/dgnsrekt/sinkpool/internal/frame"
)

var (
	// ErrSinkClosed is returned when a stopped sink is used again.
	ErrSinkClosed = errors.New("sink is closed")

	// ErrNotStarted is returned by Play before Start.
	ErrNotStarted = errors.New("sink is not started")

	// ErrEmptyAudio is returned when Play receives no data.
	ErrEmptyAudio = errors.New("audio data is empty")

	// ErrDeviceUnavailable is returned when the device status is not OK.
	ErrDeviceUnavailable = errors.New("output device unavailable")
)

// State is the playback state of a sink.
type State int32

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sink is a handle to an opened audio output device.
//
// A sink may be shared between a cache and the client that requested it.
// Stop is final and safe to call more than once.
type Sink interface {
	// OutputDeviceInfo describes the device the sink was opened on.
	OutputDeviceInfo() device.Info

	// Start prepares the device for rendering.
	Start() error

	// Play renders 16-bit little endian PCM, replacing anything queued.
	Play(pcm []byte) error

	// Pause halts rendering without releasing the device.
	Pause() error

	// Stop releases the device.
	Stop()

	// State returns the current playback state.
	State() State
}

// Factory opens a new sink for owner. Implementations must not return nil;
// failures are reported through the sink's device status.
type Factory func(owner frame.Token, params device.SelectionParams) Sink

// IsHealthy reports whether s opened its device successfully.
func IsHealthy(s Sink) bool {
	return s.OutputDeviceInfo().Status == device.StatusOK
}

// UnavailableSink stands in for a device that could not be opened.
type UnavailableSink struct {
	info  device.Info
	state atomic.Int32
}

// NewUnavailableSink returns a sink that reports status and refuses to play.
func NewUnavailableSink(deviceID string, status device.Status, params device.Params) *UnavailableSink {
	return &UnavailableSink{
		info: device.Info{DeviceID: deviceID, Status: status, Params: params},
	}
}

// OutputDeviceInfo implements Sink.
func (u *UnavailableSink) OutputDeviceInfo() device.Info {
	return u.info
}

// Start implements Sink.
func (u *UnavailableSink) Start() error {
	return fmt.Errorf("%w: %s", ErrDeviceUnavailable, u.info.Status)
}

// Play implements Sink.
func (u *UnavailableSink) Play([]byte) error {
	return fmt.Errorf("%w: %s", ErrDeviceUnavailable, u.info.Status)
}

// Pause implements Sink.
func (u *UnavailableSink) Pause() error {
	return fmt.Errorf("%w: %s", ErrDeviceUnavailable, u.info.Status)
}

// Stop implements Sink.
func (u *UnavailableSink) Stop() {
	u.state.Store(int32(StateClosed))
}

// State implements Sink.
func (u *UnavailableSink) State() State {
	return State(u.state.Load())
}
