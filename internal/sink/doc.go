// Package sink provides audio output sinks and the factories that open them.
//
// A Sink is a handle to an opened output device. Production sinks render
// through github.com/ebitengine/oto/v3; MockSink simulates a device for tests
// and for hosts without audio hardware. Factories never cache anything: the
// pooling policy lives in the cache package.
package sink
