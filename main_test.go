package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/dgnsrekt/sinkpool/internal/cache"
	"github.com/dgnsrekt/sinkpool/internal/config"
	"github.com/dgnsrekt/sinkpool/internal/device"
	"github.com/dgnsrekt/sinkpool/internal/frame"
	"github.com/dgnsrekt/sinkpool/internal/lifecycle"
	"github.com/dgnsrekt/sinkpool/internal/queue"
	"github.com/dgnsrekt/sinkpool/internal/sink"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		status device.Status
		want   string
	}{
		{device.StatusOK, "Ok"},
		{device.StatusErrorNotFound, "Not Found"},
		{device.StatusErrorTimedOut, "Timed Out"},
	}
	for _, tt := range tests {
		if got := statusLabel(tt.status); got != tt.want {
			t.Errorf("statusLabel(%v) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestWriteTable(t *testing.T) {
	cols := []column{{Header: "device"}, {Header: "status"}}
	rows := [][]string{
		{"default", "Ok"},
		{"a-very-long-device-identifier-that-overflows", "Not Found"},
	}

	var buf bytes.Buffer
	if err := writeTable(&buf, cols, rows); err != nil {
		t.Fatalf("writeTable: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "DEVICE") {
		t.Errorf("header = %q, want upper case column names", lines[0])
	}
	if !strings.Contains(lines[2], "…") {
		t.Errorf("long cell was not truncated: %q", lines[2])
	}

	// Every row starts its second column at the same offset.
	want := strings.Index(lines[0], "STATUS")
	if got := strings.Index(lines[1], "Ok"); got != want {
		t.Errorf("row 1 status at %d, want %d", got, want)
	}
	if got := strings.Index(lines[2], "Not Found"); got != want {
		t.Errorf("row 2 status at %d, want %d", got, want)
	}
}

func TestDeviceRows(t *testing.T) {
	infos := []device.Info{
		{DeviceID: device.DefaultDeviceID, Status: device.StatusOK, Params: device.DefaultParams()},
	}
	rows := deviceRows(infos)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	want := []string{"default", "Ok", "44,100 Hz, 1 ch, 16-bit", "50ms", "88 kB/s"}
	for i, w := range want {
		if rows[0][i] != w {
			t.Errorf("column %d = %q, want %q", i, rows[0][i], w)
		}
	}
}

func testReport() runReport {
	info := device.Info{DeviceID: device.DefaultDeviceID, Status: device.StatusOK, Params: device.DefaultParams()}
	return runReport{
		Backend: sink.BackendMock,
		Device:  device.DefaultDeviceID,
		Elapsed: 1500 * time.Millisecond,
		Frames: []frameResult{
			{Frame: "0123456789abcdef", Info: info, Reused: true, Rendered: 26460, Ended: "released"},
			{Frame: "fedcba9876543210", Info: info, Ended: "destroyed"},
		},
		Cache:  cache.Stats{Hits: 0, Misses: 2, Created: 2, Reused: 1, Deleted: 2},
		Runner: queue.Stats{Executed: 2},
	}
}

func TestReportMarkdown(t *testing.T) {
	md := testReport().Markdown()

	for _, want := range []string{
		"the default device",
		"`mock` backend in 1.5s",
		"| `01234567` | Ok | reused | 26 kB | released |",
		"| `fedcba98` | Ok | new | 0 B | destroyed |",
		"| Sinks reused | 1 |",
		"| Cleanup tasks run | 2 |",
		"0 left in the cache.",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestReportRenderPlain(t *testing.T) {
	r := testReport()
	var buf bytes.Buffer
	if err := r.Render(&buf, false, 80); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if buf.String() != r.Markdown() {
		t.Error("unstyled output should be the raw markdown")
	}
}

func TestReportHTML(t *testing.T) {
	b, err := testReport().HTML()
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	html := string(b)
	for _, want := range []string{"<h1>sinkpool run</h1>", "<table>", "<td>released</td>"} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q:\n%s", want, html)
		}
	}
}

func newTestPool(t *testing.T) *pool {
	t.Helper()
	c := config.DefaultConfig()
	c.Audio.Backend = string(sink.BackendMock)
	c.Audio.CreationRate = 0
	p, err := newPool(c)
	if err != nil {
		t.Fatalf("newPool: %v", err)
	}
	t.Cleanup(func() {
		if err := p.close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return p
}

func press(t *testing.T, m monitorModel, k string) monitorModel {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
	mm, ok := next.(monitorModel)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return mm
}

func TestMonitorKeys(t *testing.T) {
	p := newTestPool(t)
	m := newMonitorModel(p, device.DefaultDeviceID, time.Second, 4)

	m = press(t, m, "n")
	m = press(t, m, "n")
	if got := p.cache.Size(); got != 2 {
		t.Fatalf("after two lookups Size() = %d, want 2", got)
	}

	// The next event claims the first frame's cached sink.
	next, cmd := m.Update(churnTickMsg(time.Now()))
	m = next.(monitorModel)
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
	st := p.cache.Stats()
	if st.Used != 1 || st.Reused != 1 {
		t.Fatalf("after claim Used=%d Reused=%d, want 1 and 1", st.Used, st.Reused)
	}

	m = press(t, m, "r")
	if len(m.frames) != 1 || p.cache.Size() != 1 {
		t.Fatalf("after release frames=%d size=%d, want 1 and 1", len(m.frames), p.cache.Size())
	}

	m = press(t, m, "d")
	if len(m.frames) != 0 || p.cache.Size() != 0 {
		t.Fatalf("after destroy frames=%d size=%d, want 0 and 0", len(m.frames), p.cache.Size())
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should return tea.Quit")
	}
}

func TestMonitorPause(t *testing.T) {
	p := newTestPool(t)
	m := newMonitorModel(p, device.DefaultDeviceID, time.Second, 4)

	m = press(t, m, "p")
	next, _ := m.Update(churnTickMsg(time.Now()))
	m = next.(monitorModel)
	if len(m.frames) != 0 {
		t.Errorf("paused monitor created %d frames", len(m.frames))
	}
	if !strings.Contains(m.View(), "paused") {
		t.Error("view should show the paused state")
	}

	m = press(t, m, "p")
	next, _ = m.Update(churnTickMsg(time.Now()))
	m = next.(monitorModel)
	if len(m.frames) != 1 {
		t.Errorf("resumed monitor has %d frames, want 1", len(m.frames))
	}
	m.destroyAll()
}

func TestMonitorChurnStaysBounded(t *testing.T) {
	p := newTestPool(t)
	m := newMonitorModel(p, device.DefaultDeviceID, time.Second, 3)

	for range 60 {
		m.churn()
		if len(m.frames) > 3 {
			t.Fatalf("live frames = %d, want at most 3", len(m.frames))
		}
		if p.cache.Stats().Owners > len(m.frames) {
			t.Fatalf("cache holds sinks for %d owners but only %d frames are alive",
				p.cache.Stats().Owners, len(m.frames))
		}
	}
	m.destroyAll()

	view := m.View()
	for _, want := range []string{"sinkpool", "entries", "quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

// newScriptedPool builds a pool around a mock factory the test controls.
func newScriptedPool(t *testing.T) (*pool, *sink.MockFactory) {
	t.Helper()
	factory := sink.NewMockFactory(device.DefaultParams())
	runner := queue.NewTaskRunner(nil)
	c := cache.New(cache.Options{Factory: factory.Create, Runner: runner})

	p := &pool{
		cache:   c,
		runner:  runner,
		backend: sink.BackendMock,
		life:    lifecycle.NewManager(nil),
	}
	p.life.Register(runner)
	p.life.Register(c)
	t.Cleanup(func() {
		if err := p.close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return p, factory
}

func TestPlayRejectsBadFlags(t *testing.T) {
	frames, duration := playFrames, playDuration
	t.Cleanup(func() { playFrames, playDuration = frames, duration })

	tests := []struct {
		name     string
		frames   int
		duration time.Duration
		want     string
	}{
		{"no frames", 0, time.Second, "--frames"},
		{"zero duration", 1, 0, "--duration"},
		{"negative duration", 1, -time.Second, "--duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			playFrames, playDuration = tt.frames, tt.duration
			err := runPlay(playCmd, nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("runPlay() error = %v, want one mentioning %s", err, tt.want)
			}
		})
	}
}

func TestEndPlayback(t *testing.T) {
	p, factory := newScriptedPool(t)
	factory.SetDeviceStatus("gone", device.StatusErrorNotFound)
	owner := frame.NewToken()

	healthy := p.cache.GetSink(owner, "")
	broken := p.cache.GetSink(owner, "gone")
	kept := p.cache.GetSink(owner, "hdmi")

	tests := []struct {
		name    string
		sink    sink.Sink
		release bool
		want    string
		stops   int64
	}{
		{"released", healthy, true, "released", 1},
		{"unhealthy is stopped", broken, true, "stopped", 1},
		{"left to eviction", kept, false, "destroyed", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := endPlayback(p.cache, tt.sink, tt.release); got != tt.want {
				t.Errorf("endPlayback() = %q, want %q", got, tt.want)
			}
			if got := tt.sink.(*sink.MockSink).StopCount(); got != tt.stops {
				t.Errorf("StopCount() = %d, want %d", got, tt.stops)
			}
		})
	}

	if got := endPlayback(p.cache, nil, true); got != "destroyed" {
		t.Errorf("endPlayback(nil) = %q, want destroyed", got)
	}
	if got := p.cache.Size(); got != 1 {
		t.Errorf("Size() = %d, want 1", got)
	}
}

func TestMonitorStopsUnhealthySinks(t *testing.T) {
	p, factory := newScriptedPool(t)
	factory.SetDeviceStatus("gone", device.StatusErrorNotFound)
	m := newMonitorModel(p, "gone", time.Second, 2)

	m = press(t, m, "n")
	next, _ := m.Update(churnTickMsg(time.Now()))
	m = next.(monitorModel)

	if len(m.frames) != 0 {
		t.Errorf("frame with an unavailable device is still live")
	}
	created := factory.Created()
	if len(created) != 2 {
		t.Fatalf("created %d sinks, want an info sink and a playback sink", len(created))
	}
	for i, s := range created {
		if got := s.StopCount(); got != 1 {
			t.Errorf("sink %d stopped %d times, want 1", i, got)
		}
	}
	if got := p.cache.Size(); got != 0 {
		t.Errorf("Size() = %d, want 0", got)
	}
}
