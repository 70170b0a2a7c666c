package device

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultDeviceID names the system default output device.
const DefaultDeviceID = "default"

// ErrInvalidParams is returned when stream parameters are not supported.
var ErrInvalidParams = errors.New("invalid output parameters")

// IsDefaultDevice reports whether id denotes the system default device.
// Both the empty string and DefaultDeviceID do.
func IsDefaultDevice(id string) bool {
	return id == "" || id == DefaultDeviceID
}

// IsSameDevice reports whether two ids resolve to the same device. Two
// spellings of the default device are considered equal.
func IsSameDevice(a, b string) bool {
	if a == b {
		return true
	}
	return IsDefaultDevice(a) && IsDefaultDevice(b)
}

// Status is the result of opening an output device.
type Status int

const (
	// StatusOK means the device is usable.
	StatusOK Status = iota
	// StatusErrorNotFound means no device matches the requested id.
	StatusErrorNotFound
	// StatusErrorNotAuthorized means the caller may not use the device.
	StatusErrorNotAuthorized
	// StatusErrorTimedOut means the device did not answer in time.
	StatusErrorTimedOut
	// StatusErrorInternal covers every other failure.
	StatusErrorInternal
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusErrorNotFound:
		return "not-found"
	case StatusErrorNotAuthorized:
		return "not-authorized"
	case StatusErrorTimedOut:
		return "timed-out"
	case StatusErrorInternal:
		return "internal-error"
	default:
		return "unknown"
	}
}

// Params describes the PCM stream a device renders.
type Params struct {
	SampleRate     int           // 44100 or 48000 Hz
	Channels       int           // 1 = mono, 2 = stereo
	BitDepth       int           // always 16
	BufferDuration time.Duration // device buffer
}

// DefaultParams returns the parameters used when nothing else is configured.
func DefaultParams() Params {
	return Params{
		SampleRate:     44100,
		Channels:       1,
		BitDepth:       16,
		BufferDuration: 50 * time.Millisecond,
	}
}

// Validate checks the parameters against what the output backends support.
func (p Params) Validate() error {
	if p.SampleRate != 44100 && p.SampleRate != 48000 {
		return fmt.Errorf("%w: sample rate must be 44100 or 48000 Hz, got %d", ErrInvalidParams, p.SampleRate)
	}
	if p.Channels != 1 && p.Channels != 2 {
		return fmt.Errorf("%w: channels must be 1 (mono) or 2 (stereo), got %d", ErrInvalidParams, p.Channels)
	}
	if p.BitDepth != 16 {
		return fmt.Errorf("%w: bit depth must be 16, got %d", ErrInvalidParams, p.BitDepth)
	}
	if p.BufferDuration <= 0 {
		return fmt.Errorf("%w: buffer duration must be positive", ErrInvalidParams)
	}
	return nil
}

// BytesPerSecond returns the PCM byte rate of the stream.
func (p Params) BytesPerSecond() int {
	return p.SampleRate * p.Channels * (p.BitDepth / 8)
}

// Info is what a device reports about itself once opened.
type Info struct {
	DeviceID string
	Status   Status
	Params   Params
}

// String returns a short human readable description.
func (i Info) String() string {
	id := i.DeviceID
	if IsDefaultDevice(id) {
		id = DefaultDeviceID
	}
	return fmt.Sprintf("%s (%s, %d Hz, %d ch)", id, i.Status, i.Params.SampleRate, i.Params.Channels)
}

// SessionID identifies an input capture session. When set together with the
// default device id it selects the output device paired with that input.
type SessionID = uuid.UUID

// NewSessionID returns a fresh random session id.
func NewSessionID() SessionID {
	return uuid.New()
}

// UseSessionIDToSelectDevice reports whether the session id, rather than the
// device id, decides which device gets opened.
func UseSessionIDToSelectDevice(session SessionID, deviceID string) bool {
	return session != uuid.Nil && IsDefaultDevice(deviceID)
}

// SelectionParams carries everything a factory needs to open a device.
type SelectionParams struct {
	DeviceID  string
	SessionID SessionID
}
