package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	conc "github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/sinkpool/internal/cache"
	"github.com/dgnsrekt/sinkpool/internal/device"
	"github.com/dgnsrekt/sinkpool/internal/frame"
	"github.com/dgnsrekt/sinkpool/internal/sink"
)

var (
	playFrames     int
	playDevice     string
	playDuration   time.Duration
	playFreq       float64
	playSession    bool
	playReportHTML string
	playMetrics    string

	playCmd = &cobra.Command{
		Use:   "play",
		Short: "Play a tone from several frames through the sink cache",
		Long: paragraph(fmt.Sprintf("\n%s a number of frames, let each one query its device and play a short tone, "+
			"then release half of the sinks explicitly and destroy the other frames.", keyword("Create"))),
		Example: paragraph("sinkpool play\nsinkpool play --frames 8 --device hdmi --backend mock\nsinkpool play --session --report-html run.html"),
		Args:    cobra.NoArgs,
		RunE:    runPlay,
	}
)

func init() {
	playCmd.Flags().IntVarP(&playFrames, "frames", "f", 3, "number of frames to simulate")
	playCmd.Flags().StringVarP(&playDevice, "device", "d", device.DefaultDeviceID, "output device id")
	playCmd.Flags().DurationVar(&playDuration, "duration", 300*time.Millisecond, "tone length per frame")
	playCmd.Flags().Float64Var(&playFreq, "freq", 440, "base tone frequency in Hz")
	playCmd.Flags().BoolVar(&playSession, "session", false, "select the device through a fresh session id")
	playCmd.Flags().StringVar(&playReportHTML, "report-html", "", "also write the report as HTML to this file")
	playCmd.Flags().StringVar(&playMetrics, "metrics-addr", "", "serve Prometheus metrics on this address while playing")
}

func runPlay(cmd *cobra.Command, _ []string) error {
	if playFrames < 1 {
		return fmt.Errorf("--frames must be at least 1, got %d", playFrames)
	}
	if playDuration <= 0 {
		return fmt.Errorf("--duration must be positive, got %v", playDuration)
	}
	if playMetrics != "" {
		cfg.Metrics.Addr = playMetrics
	}

	p, err := newPool(cfg)
	if err != nil {
		return err
	}
	defer p.close() //nolint:errcheck
	p.life.Start()

	start := time.Now()
	frames := make([]*frame.Frame, playFrames)
	for i := range frames {
		frames[i] = frame.New()
		frames[i].AddObserver(frame.NewSinkEvictor(p.cache))
	}

	var (
		mu      sync.Mutex
		sinks   = make([]sink.Sink, playFrames)
		results = make([]frameResult, playFrames)
	)
	wp := conc.New().WithErrors().WithMaxGoroutines(playFrames)
	for i, f := range frames {
		wp.Go(func() error {
			s, res, err := playFrame(p, f, float64(i+1)*playFreq)
			mu.Lock()
			sinks[i], results[i] = s, res
			mu.Unlock()
			return err
		})
	}
	if err := wp.Wait(); err != nil {
		for _, f := range frames {
			f.Destroy()
		}
		return err //nolint:wrapcheck
	}

	// Half the frames hand their sink back, the rest simply go away.
	for i, f := range frames {
		results[i].Ended = endPlayback(p.cache, sinks[i], i%2 == 0)
		f.Destroy()
	}

	report := runReport{
		Backend:  p.backend,
		Device:   playDevice,
		Elapsed:  time.Since(start),
		Frames:   results,
		Cache:    p.cache.Stats(),
		Runner:   p.runner.Stats(),
		Leftover: p.cache.Size(),
	}
	if err := report.Render(cmd.OutOrStdout(), stdoutIsTerminal(), 80); err != nil {
		return err
	}

	if playReportHTML != "" {
		b, err := report.HTML()
		if err != nil {
			return err
		}
		if err := os.WriteFile(playReportHTML, b, 0o644); err != nil { //nolint:gosec
			return fmt.Errorf("unable to write report: %w", err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Wrote report to:", playReportHTML)
	}
	return nil
}

// playFrame queries the device the way a media element does before
// playback, then claims a sink and plays a tone on it.
func playFrame(p *pool, f *frame.Frame, freq float64) (sink.Sink, frameResult, error) {
	res := frameResult{Frame: f.Token().String()}

	var session device.SessionID
	if playSession {
		session = device.NewSessionID()
	}
	res.Info = p.cache.GetSinkInfo(f.Token(), session, playDevice)

	// Only this goroutine uses the frame, so anything cached for it now is
	// the unused sink the lookup above left behind.
	res.Reused = p.cache.CountForOwner(f.Token()) > 0
	s := p.cache.GetSink(f.Token(), playDevice)
	res.Info = s.OutputDeviceInfo()

	if !sink.IsHealthy(s) {
		log.Warn("Device unavailable", "frame", f.Token(), "device", playDevice, "status", res.Info.Status)
		return s, res, nil
	}

	if err := s.Start(); err != nil {
		return s, res, fmt.Errorf("unable to start sink: %w", err)
	}
	pcm := sink.Tone(res.Info.Params, freq, playDuration, 0.2)
	if err := s.Play(pcm); err != nil {
		return s, res, fmt.Errorf("unable to play tone: %w", err)
	}
	res.Played = len(pcm)

	waitForPlayback(s, playDuration+res.Info.Params.BufferDuration+time.Second)
	res.State = s.State()
	if m, ok := s.(*sink.MockSink); ok {
		res.Rendered = m.BytesRendered()
	} else if res.State == sink.StateStopped {
		res.Rendered = int64(len(pcm))
	}
	return s, res, nil
}

// endPlayback gives s up and reports how. Unhealthy sinks were never cached,
// so they are stopped here; healthy ones are released when release is set and
// otherwise left to the frame's eviction.
func endPlayback(c *cache.SinkCache, s sink.Sink, release bool) string {
	switch {
	case s == nil:
		return "destroyed"
	case !sink.IsHealthy(s):
		s.Stop()
		return "stopped"
	case release:
		c.ReleaseSink(s)
		return "released"
	default:
		return "destroyed"
	}
}

// waitForPlayback polls until s stops playing or timeout passes.
func waitForPlayback(s sink.Sink, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for s.State() == sink.StatePlaying && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}
