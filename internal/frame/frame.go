// Package frame models the logical owners of audio sinks. A Frame hands out
// an opaque Token and tells its observers once when it is destroyed, which is
// what lets sink caches evict everything a frame left behind.
package frame

import (
	"sync"

	"github.com/google/uuid"
)

// Token is the opaque identity of a frame.
type Token uuid.UUID

// NewToken returns a fresh random token.
func NewToken() Token {
	return Token(uuid.New())
}

// String returns the canonical textual form of the token.
func (t Token) String() string {
	return uuid.UUID(t).String()
}

// Observer is notified when a frame is destroyed.
type Observer interface {
	FrameDestroyed(token Token)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(token Token)

// FrameDestroyed calls f(token).
func (f ObserverFunc) FrameDestroyed(token Token) {
	f(token)
}

// Frame is a logical owner with a destroy signal.
type Frame struct {
	token Token

	mu        sync.Mutex
	observers []Observer
	destroyed bool
}

// New creates a live frame with a fresh token.
func New() *Frame {
	return &Frame{token: NewToken()}
}

// Token returns the frame's identity.
func (f *Frame) Token() Token {
	return f.token
}

// AddObserver registers o for the destroy signal. Observers added after the
// frame is destroyed are notified immediately.
func (f *Frame) AddObserver(o Observer) {
	f.mu.Lock()
	if f.destroyed {
		f.mu.Unlock()
		o.FrameDestroyed(f.token)
		return
	}
	f.observers = append(f.observers, o)
	f.mu.Unlock()
}

// Destroy notifies every observer in registration order. Only the first call
// has an effect.
func (f *Frame) Destroy() {
	f.mu.Lock()
	if f.destroyed {
		f.mu.Unlock()
		return
	}
	f.destroyed = true
	observers := f.observers
	f.observers = nil
	f.mu.Unlock()

	for _, o := range observers {
		o.FrameDestroyed(f.token)
	}
}

// IsDestroyed reports whether Destroy has been called.
func (f *Frame) IsDestroyed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

// SinkDropper drops every cached sink owned by a frame.
type SinkDropper interface {
	DropSinksForFrame(token Token)
}

// NewSinkEvictor returns an Observer that forwards frame destruction to d.
func NewSinkEvictor(d SinkDropper) Observer {
	return ObserverFunc(d.DropSinksForFrame)
}
