package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/dgnsrekt/sinkpool/internal/device"
	"github.com/dgnsrekt/sinkpool/internal/frame"
	"github.com/dgnsrekt/sinkpool/internal/metrics"
	"github.com/dgnsrekt/sinkpool/internal/queue"
	"github.com/dgnsrekt/sinkpool/internal/sink"
)

// DefaultDeleteTimeout is how long a sink opened for an info query stays
// cached waiting for a GetSink to claim it.
const DefaultDeleteTimeout = 5 * time.Second

// maxStopWorkers bounds how many sinks are stopped in parallel when a frame
// or the whole cache goes away.
const maxStopWorkers = 8

var (
	instanceMu sync.Mutex
	instance   *SinkCache
)

// Options configures a SinkCache.
type Options struct {
	// Factory opens new sinks. Required.
	Factory sink.Factory

	// Runner executes deferred deletions. Required.
	Runner queue.Runner

	// DeleteTimeout defaults to DefaultDeleteTimeout.
	DeleteTimeout time.Duration

	Logger  *log.Logger
	Metrics *metrics.Metrics
}

type entry struct {
	owner    frame.Token
	deviceID string
	sink     sink.Sink
	used     bool
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Entries int
	Used    int
	Owners  int

	Hits           int64
	Misses         int64
	SessionLookups int64

	Reused    int64
	Created   int64
	Unhealthy int64
	Deleted   int64
}

// SinkCache pools sinks keyed by owner token and device id.
type SinkCache struct {
	factory       sink.Factory
	runner        queue.Runner
	deleteTimeout time.Duration
	logger        *log.Logger
	metrics       *metrics.Metrics

	mu      sync.Mutex
	entries []*entry
	closed  bool
	stats   Stats
}

// New creates the process-wide SinkCache. It panics if another cache has
// not been closed yet, or if the factory or runner is missing.
func New(opts Options) *SinkCache {
	if opts.Factory == nil {
		panic("cache: nil sink factory")
	}
	if opts.Runner == nil {
		panic("cache: nil cleanup runner")
	}
	if opts.DeleteTimeout <= 0 {
		opts.DeleteTimeout = DefaultDeleteTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil {
		panic("cache: a SinkCache already exists")
	}

	c := &SinkCache{
		factory:       opts.Factory,
		runner:        opts.Runner,
		deleteTimeout: opts.DeleteTimeout,
		logger:        logger,
		metrics:       opts.Metrics,
	}
	instance = c
	return c
}

// GetSinkInfo returns information about the device owner would play to.
// The sink opened to answer it, if any, is cached unused and reclaimed after
// the delete timeout unless GetSink claims it first.
func (c *SinkCache) GetSinkInfo(owner frame.Token, sessionID device.SessionID, deviceID string) device.Info {
	if device.UseSessionIDToSelectDevice(sessionID, deviceID) {
		// Session ids are unique per call, so there is nothing to look up.
		c.mu.Lock()
		c.stats.SessionLookups++
		c.mu.Unlock()
		c.metrics.ObserveLookup(metrics.LookupSession)

		s := c.create(owner, device.SelectionParams{DeviceID: deviceID, SessionID: sessionID})
		c.cacheOrStopUnusedSink(owner, deviceID, s)
		return s.OutputDeviceInfo()
	}

	c.mu.Lock()
	if e := c.findLocked(owner, deviceID, false); e != nil {
		c.stats.Hits++
		s := e.sink
		c.mu.Unlock()

		c.metrics.ObserveLookup(metrics.LookupHit)
		c.logger.Debug("Sink info cache hit", "owner", owner, "device", deviceID)
		return s.OutputDeviceInfo()
	}
	c.stats.Misses++
	c.mu.Unlock()
	c.metrics.ObserveLookup(metrics.LookupMiss)

	s := c.create(owner, device.SelectionParams{DeviceID: deviceID})
	c.cacheOrStopUnusedSink(owner, deviceID, s)
	return s.OutputDeviceInfo()
}

// GetSink returns a sink for playback. An unused cached sink for the same
// owner and device is claimed if there is one; otherwise a new sink is
// opened. Unhealthy sinks are returned but never cached.
func (c *SinkCache) GetSink(owner frame.Token, deviceID string) sink.Sink {
	c.mu.Lock()
	if e := c.findLocked(owner, deviceID, true); e != nil {
		e.used = true
		c.stats.Reused++
		s := e.sink
		c.mu.Unlock()

		c.metrics.ObserveAcquire(metrics.AcquireReused)
		c.logger.Debug("Reusing cached sink", "owner", owner, "device", deviceID)
		return s
	}
	c.mu.Unlock()

	s := c.create(owner, device.SelectionParams{DeviceID: deviceID})
	if !sink.IsHealthy(s) {
		c.mu.Lock()
		c.stats.Unhealthy++
		c.mu.Unlock()

		c.metrics.ObserveAcquire(metrics.AcquireUnhealthy)
		c.logger.Debug("Not caching unhealthy sink",
			"owner", owner,
			"device", deviceID,
			"status", s.OutputDeviceInfo().Status)
		return s
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return s
	}
	c.entries = append(c.entries, &entry{owner: owner, deviceID: deviceID, sink: s, used: true})
	c.stats.Created++
	n := len(c.entries)
	c.mu.Unlock()

	c.metrics.ObserveAcquire(metrics.AcquireCreated)
	c.metrics.SetEntries(n)
	return s
}

// ReleaseSink removes s from the cache whether or not it is in use and stops
// it. Releasing a sink the cache does not hold does nothing; that includes
// the unhealthy sinks GetSink returns uncached, which the caller must stop.
func (c *SinkCache) ReleaseSink(s sink.Sink) {
	c.deleteSink(s, true, metrics.DeleteRelease)
}

// DropSinksForFrame removes and stops every sink owned by owner.
func (c *SinkCache) DropSinksForFrame(owner frame.Token) {
	c.mu.Lock()
	var dropped []sink.Sink
	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.owner == owner {
			dropped = append(dropped, e.sink)
			continue
		}
		kept = append(kept, e)
	}
	clear(c.entries[len(kept):])
	c.entries = kept
	c.stats.Deleted += int64(len(dropped))
	n := len(c.entries)
	c.mu.Unlock()

	if len(dropped) == 0 {
		return
	}
	c.metrics.ObserveDelete(metrics.DeleteFrame, len(dropped))
	c.metrics.SetEntries(n)
	c.logger.Debug("Dropping sinks for frame", "owner", owner, "count", len(dropped))
	stopAll(dropped)
}

// Close stops every cached sink and frees the process-wide slot so a new
// cache can be created. Calls after the first do nothing.
func (c *SinkCache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sinks := make([]sink.Sink, 0, len(c.entries))
	for _, e := range c.entries {
		sinks = append(sinks, e.sink)
	}
	c.entries = nil
	c.stats.Deleted += int64(len(sinks))
	c.mu.Unlock()

	c.metrics.ObserveDelete(metrics.DeleteClose, len(sinks))
	c.metrics.SetEntries(0)
	stopAll(sinks)

	instanceMu.Lock()
	if instance == c {
		instance = nil
	}
	instanceMu.Unlock()
	c.logger.Debug("Sink cache closed", "stopped", len(sinks))
}

// Size returns the number of cached sinks.
func (c *SinkCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CountForOwner returns how many cached sinks belong to owner.
func (c *SinkCache) CountForOwner(owner frame.Token) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.owner == owner {
			n++
		}
	}
	return n
}

// Stats returns a snapshot of the cache counters and contents.
func (c *SinkCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.stats
	st.Entries = len(c.entries)
	owners := make(map[frame.Token]struct{})
	for _, e := range c.entries {
		if e.used {
			st.Used++
		}
		owners[e.owner] = struct{}{}
	}
	st.Owners = len(owners)
	return st
}

// Name implements the lifecycle component interface.
func (c *SinkCache) Name() string {
	return "sink-cache"
}

// Shutdown closes the cache, giving up when ctx expires.
func (c *SinkCache) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sink cache shutdown: %w", ctx.Err())
	}
}

// ForceStop closes the cache.
func (c *SinkCache) ForceStop() error {
	c.Close()
	return nil
}

func (c *SinkCache) create(owner frame.Token, params device.SelectionParams) sink.Sink {
	start := time.Now()
	s := c.factory(owner, params)
	c.metrics.ObserveCreate(time.Since(start))
	return s
}

// deleteLaterIfUnused schedules removal of s once the delete timeout has
// passed. The task checks the used flag when it fires; it is never cancelled.
func (c *SinkCache) deleteLaterIfUnused(s sink.Sink) {
	c.runner.PostDelayedTask(func() {
		c.deleteSink(s, false, metrics.DeleteTimeout)
	}, c.deleteTimeout)
}

// deleteSink removes s and stops it. A used entry is only removed when
// forceDeleteUsed is set. Only the caller that removes the entry stops the
// sink, so each sink is stopped once.
func (c *SinkCache) deleteSink(s sink.Sink, forceDeleteUsed bool, reason string) {
	c.mu.Lock()
	i := c.indexLocked(s)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	if c.entries[i].used && !forceDeleteUsed {
		c.mu.Unlock()
		return
	}
	c.entries = slices.Delete(c.entries, i, i+1)
	c.stats.Deleted++
	n := len(c.entries)
	c.mu.Unlock()

	c.metrics.ObserveDelete(reason, 1)
	c.metrics.SetEntries(n)
	c.logger.Debug("Deleting cached sink", "reason", reason, "device", s.OutputDeviceInfo().DeviceID)
	s.Stop()
}

// cacheOrStopUnusedSink stops an unhealthy sink, or caches a healthy one as
// unused and schedules its deferred deletion.
func (c *SinkCache) cacheOrStopUnusedSink(owner frame.Token, deviceID string, s sink.Sink) {
	if !sink.IsHealthy(s) {
		c.mu.Lock()
		c.stats.Unhealthy++
		c.mu.Unlock()

		c.metrics.ObserveDelete(metrics.DeleteUnhealthy, 1)
		c.logger.Debug("Stopping unhealthy sink",
			"owner", owner,
			"device", deviceID,
			"status", s.OutputDeviceInfo().Status)
		s.Stop()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		s.Stop()
		return
	}
	c.entries = append(c.entries, &entry{owner: owner, deviceID: deviceID, sink: s})
	c.stats.Created++
	n := len(c.entries)
	c.mu.Unlock()

	c.metrics.SetEntries(n)
	c.deleteLaterIfUnused(s)
}

// findLocked returns the first entry for owner on a device equivalent to
// deviceID, skipping used entries when unusedOnly is set.
func (c *SinkCache) findLocked(owner frame.Token, deviceID string, unusedOnly bool) *entry {
	for _, e := range c.entries {
		if e.owner != owner || !device.IsSameDevice(e.deviceID, deviceID) {
			continue
		}
		if unusedOnly && e.used {
			continue
		}
		return e
	}
	return nil
}

func (c *SinkCache) indexLocked(s sink.Sink) int {
	return slices.IndexFunc(c.entries, func(e *entry) bool {
		return e.sink == s
	})
}

func stopAll(sinks []sink.Sink) {
	switch len(sinks) {
	case 0:
		return
	case 1:
		sinks[0].Stop()
		return
	}

	p := pool.New().WithMaxGoroutines(maxStopWorkers)
	for _, s := range sinks {
		p.Go(s.Stop)
	}
	p.Wait()
}
