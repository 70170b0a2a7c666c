package sink

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/sinkpool/internal/device"
	"github.com/dgnsrekt/sinkpool/internal/frame"
	"golang.org/x/time/rate"
)

func testParams() device.Params {
	return device.DefaultParams()
}

func TestMockSink_Lifecycle(t *testing.T) {
	s := NewMockSink(device.Info{DeviceID: device.DefaultDeviceID, Status: device.StatusOK, Params: testParams()})

	if s.State() != StateStopped {
		t.Errorf("Initial state should be stopped, got %v", s.State())
	}

	if err := s.Play([]byte{0, 1}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Play before Start should fail with ErrNotStarted, got %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	pcm := Tone(testParams(), 440, time.Second, 0.5)
	if err := s.Play(pcm); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if s.State() != StatePlaying {
		t.Errorf("State should be playing, got %v", s.State())
	}

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if s.State() != StatePaused {
		t.Errorf("State should be paused, got %v", s.State())
	}

	s.Stop()
	s.Stop()

	if s.State() != StateClosed {
		t.Errorf("State should be closed, got %v", s.State())
	}
	if s.StopCount() != 2 {
		t.Errorf("StopCount should count every call, got %d", s.StopCount())
	}
	if err := s.Start(); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Start after Stop should fail with ErrSinkClosed, got %v", err)
	}
}

func TestMockSink_PlaybackCompletes(t *testing.T) {
	params := testParams()
	s := NewMockSink(device.Info{Status: device.StatusOK, Params: params})
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	pcm := Tone(params, 440, 20*time.Millisecond, 0.5)
	if err := s.Play(pcm); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.State() == StatePlaying && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if s.State() != StateStopped {
		t.Fatalf("State should be stopped after playback, got %v", s.State())
	}
	if s.BytesRendered() != int64(len(pcm)) {
		t.Errorf("BytesRendered = %d, want %d", s.BytesRendered(), len(pcm))
	}
	s.Stop()
}

func TestMockSink_ReplayDoesNotEndNewPlayback(t *testing.T) {
	params := testParams()
	s := NewMockSink(device.Info{Status: device.StatusOK, Params: params})
	defer s.Stop()
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := s.Play(Tone(params, 440, 10*time.Millisecond, 0.5)); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := s.Play(Tone(params, 440, time.Second, 0.5)); err != nil {
		t.Fatalf("second Play failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if s.State() != StatePlaying {
		t.Errorf("second playback should still run, got %v", s.State())
	}
	if s.PlayCount() != 2 {
		t.Errorf("PlayCount = %d, want 2", s.PlayCount())
	}
}

func TestMockSink_Callbacks(t *testing.T) {
	var started, played, stopped atomic.Int32
	s := NewMockSink(device.Info{Status: device.StatusOK, Params: testParams()})
	s.SetCallbacks(MockCallbacks{
		OnStart: func() { started.Add(1) },
		OnPlay:  func([]byte) { played.Add(1) },
		OnStop:  func() { stopped.Add(1) },
	})

	_ = s.Start()
	_ = s.Play([]byte{1, 2, 3, 4})
	s.Stop()

	if started.Load() != 1 || played.Load() != 1 || stopped.Load() != 1 {
		t.Errorf("callbacks ran start=%d play=%d stop=%d, want 1 each",
			started.Load(), played.Load(), stopped.Load())
	}
}

func TestMockSink_UnhealthyRefusesStart(t *testing.T) {
	s := NewMockSink(device.Info{DeviceID: "hw:9", Status: device.StatusErrorNotFound, Params: testParams()})

	if IsHealthy(s) {
		t.Error("not-found sink should be unhealthy")
	}
	if err := s.Start(); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Start on unhealthy sink should fail with ErrDeviceUnavailable, got %v", err)
	}
}

func TestMockFactory(t *testing.T) {
	f := NewMockFactory(testParams())
	f.SetDeviceStatus("hw:2", device.StatusErrorNotAuthorized)
	owner := frame.NewToken()

	tests := []struct {
		name     string
		deviceID string
		wantID   string
		want     device.Status
	}{
		{"empty is default", "", device.DefaultDeviceID, device.StatusOK},
		{"default", device.DefaultDeviceID, device.DefaultDeviceID, device.StatusOK},
		{"named ok", "hw:1", "hw:1", device.StatusOK},
		{"scripted failure", "hw:2", "hw:2", device.StatusErrorNotAuthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := f.Create(owner, device.SelectionParams{DeviceID: tt.deviceID})
			info := s.OutputDeviceInfo()
			if info.DeviceID != tt.wantID {
				t.Errorf("DeviceID = %q, want %q", info.DeviceID, tt.wantID)
			}
			if info.Status != tt.want {
				t.Errorf("Status = %v, want %v", info.Status, tt.want)
			}
			if s.(*MockSink).Owner() != owner {
				t.Error("sink should remember its owner")
			}
		})
	}

	if f.CreatedCount() != len(tests) {
		t.Errorf("CreatedCount = %d, want %d", f.CreatedCount(), len(tests))
	}
}

func TestUnavailableSink(t *testing.T) {
	s := NewUnavailableSink("hw:3", device.StatusErrorTimedOut, testParams())

	if IsHealthy(s) {
		t.Error("unavailable sink should be unhealthy")
	}
	if err := s.Play([]byte{1}); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Play should fail with ErrDeviceUnavailable, got %v", err)
	}
	s.Stop()
	s.Stop()
	if s.State() != StateClosed {
		t.Errorf("State should be closed, got %v", s.State())
	}
}

func TestThrottle(t *testing.T) {
	f := NewMockFactory(testParams())
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	throttled := Throttle(f.Create, limiter, 20*time.Millisecond, testParams())
	owner := frame.NewToken()

	first := throttled(owner, device.SelectionParams{})
	if !IsHealthy(first) {
		t.Fatalf("first sink should use the burst token, got %v", first.OutputDeviceInfo().Status)
	}

	second := throttled(owner, device.SelectionParams{DeviceID: "hw:1"})
	if got := second.OutputDeviceInfo().Status; got != device.StatusErrorTimedOut {
		t.Errorf("throttled sink status = %v, want timed-out", got)
	}
	if f.CreatedCount() != 1 {
		t.Errorf("throttled creation must not reach the factory, created %d", f.CreatedCount())
	}
}

func TestNewFactory_Mock(t *testing.T) {
	factory, backend, err := NewFactory(Options{Backend: BackendMock, Params: testParams()})
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}
	if backend != BackendMock {
		t.Errorf("backend = %v, want mock", backend)
	}

	s := factory(frame.NewToken(), device.SelectionParams{})
	if _, ok := s.(*MockSink); !ok {
		t.Errorf("mock backend produced %T", s)
	}
}

func TestNewFactory_InvalidParams(t *testing.T) {
	params := testParams()
	params.SampleRate = 8000
	if _, _, err := NewFactory(Options{Backend: BackendMock, Params: params}); !errors.Is(err, device.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"", BackendAuto, false},
		{"AUTO", BackendAuto, false},
		{" mock ", BackendMock, false},
		{"production", BackendProduction, false},
		{"alsa", "", true},
	}

	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBackend(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseBackend(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTone(t *testing.T) {
	stereo := device.Params{SampleRate: 48000, Channels: 2, BitDepth: 16, BufferDuration: time.Millisecond}

	tests := []struct {
		name     string
		params   device.Params
		duration time.Duration
		want     int
	}{
		{"stereo 100ms", stereo, 100 * time.Millisecond, 4800 * 2 * 2},
		{"mono default", device.DefaultParams(), 10 * time.Millisecond, 441 * 2},
		{"zero duration", device.DefaultParams(), 0, 0},
		{"negative duration", device.DefaultParams(), -300 * time.Millisecond, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm := Tone(tt.params, 1000, tt.duration, 2)
			if len(pcm) != tt.want {
				t.Fatalf("len(pcm) = %d, want %d", len(pcm), tt.want)
			}
			// first sample of a sine is zero
			if len(pcm) > 0 && (pcm[0] != 0 || pcm[1] != 0) {
				t.Errorf("first sample = %v, want 0", pcm[:2])
			}
		})
	}
}
