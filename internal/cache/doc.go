// Package cache pools audio output sinks per owner and device.
//
// SinkCache answers device info queries and hands out sinks for playback.
// Sinks opened only to answer an info query are kept for a short while so a
// following GetSink for the same owner and device can reuse them; if nobody
// claims them they are stopped by a delayed cleanup task. A sink handed out
// by GetSink is never touched by that cleanup and leaves the cache only
// through ReleaseSink, DropSinksForFrame or Close.
//
// Only one SinkCache may exist per process.
package cache
