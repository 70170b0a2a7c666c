package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/sinkpool/internal/device"
	"github.com/dgnsrekt/sinkpool/internal/frame"
	"github.com/dgnsrekt/sinkpool/internal/sink"
)

var (
	monitorInterval time.Duration
	monitorDevice   string
	monitorMax      int

	monitorCmd = &cobra.Command{
		Use:   "monitor",
		Short: "Watch the sink cache while frames come and go",
		Long: paragraph(fmt.Sprintf("\n%s frames that look up, claim, release and drop sinks, "+
			"and show what the cache holds as it happens.", keyword("Churn"))),
		Example: paragraph("sinkpool monitor\nsinkpool monitor --interval 250ms --backend mock"),
		Args:    cobra.NoArgs,
		RunE:    runMonitor,
	}
)

func init() {
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", 500*time.Millisecond, "time between simulated events")
	monitorCmd.Flags().StringVarP(&monitorDevice, "device", "d", device.DefaultDeviceID, "output device id")
	monitorCmd.Flags().IntVar(&monitorMax, "max-frames", 6, "upper bound on live frames")
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	p, err := newPool(cfg)
	if err != nil {
		return err
	}
	defer p.close() //nolint:errcheck

	watchConfig()

	m := newMonitorModel(p, monitorDevice, monitorInterval, monitorMax)
	final, err := tea.NewProgram(m, tea.WithOutput(cmd.OutOrStdout())).Run()
	if err != nil {
		return fmt.Errorf("unable to run monitor: %w", err)
	}
	if fm, ok := final.(monitorModel); ok {
		fm.destroyAll()
	}
	return nil
}

type monitorKeys struct {
	Quit    key.Binding
	Pause   key.Binding
	New     key.Binding
	Release key.Binding
	Destroy key.Binding
}

func (k monitorKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.New, k.Release, k.Destroy, k.Pause, k.Quit}
}

var defaultMonitorKeys = monitorKeys{
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	Pause:   key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "pause")),
	New:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new frame")),
	Release: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "release")),
	Destroy: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "destroy")),
}

type churnTickMsg time.Time

// liveFrame is a frame and the sink it claimed, if any.
type liveFrame struct {
	frame *frame.Frame
	sink  sink.Sink
}

type monitorModel struct {
	pool     *pool
	device   string
	interval time.Duration
	max      int

	frames []*liveFrame
	step   int
	paused bool
	events []string

	keys    monitorKeys
	help    help.Model
	spinner spinner.Model
	width   int
}

const maxEvents = 6

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00E2C7"))
	labelStyle = lipgloss.NewStyle().Width(16).Foreground(lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"})
)

func newMonitorModel(p *pool, deviceID string, interval time.Duration, maxFrames int) monitorModel {
	if maxFrames < 1 {
		maxFrames = 1
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return monitorModel{
		pool:     p,
		device:   deviceID,
		interval: interval,
		max:      maxFrames,
		keys:     defaultMonitorKeys,
		help:     help.New(),
		spinner:  sp,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.tick())
}

func (m monitorModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return churnTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.New):
			m.newFrame()
		case key.Matches(msg, m.keys.Release):
			m.releaseOne()
		case key.Matches(msg, m.keys.Destroy):
			m.destroyOldest()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case churnTickMsg:
		if !m.paused {
			m.churn()
		}
		return m, m.tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// churn advances the simulation by one event. Frames are created until max
// are alive, each new frame claims its sink on the following step, and every
// third step gives one sink back or drops the oldest frame.
func (m *monitorModel) churn() {
	defer func() { m.step++ }()

	if f := m.unclaimed(); f != nil {
		m.claim(f)
		return
	}
	switch {
	case m.step%3 == 2 && m.step%2 == 0:
		m.releaseOne()
	case m.step%3 == 2:
		m.destroyOldest()
	case len(m.frames) < m.max:
		m.newFrame()
	default:
		m.destroyOldest()
	}
}

func (m *monitorModel) unclaimed() *liveFrame {
	for _, f := range m.frames {
		if f.sink == nil && !f.frame.IsDestroyed() {
			return f
		}
	}
	return nil
}

func (m *monitorModel) newFrame() {
	f := frame.New()
	f.AddObserver(frame.NewSinkEvictor(m.pool.cache))
	info := m.pool.cache.GetSinkInfo(f.Token(), device.SessionID{}, m.device)
	m.frames = append(m.frames, &liveFrame{frame: f})
	m.logEvent("info   %s %s", shortID(f.Token().String()), info)
}

func (m *monitorModel) claim(f *liveFrame) {
	s := m.pool.cache.GetSink(f.frame.Token(), m.device)
	id := shortID(f.frame.Token().String())
	if !sink.IsHealthy(s) {
		// Not cached, so nobody else will stop it. The frame cannot play.
		s.Stop()
		m.logEvent("fail   %s %s", id, statusLabel(s.OutputDeviceInfo().Status))
		f.frame.Destroy()
		m.removeDestroyed()
		return
	}
	f.sink = s
	m.logEvent("claim  %s %s", id, statusLabel(s.OutputDeviceInfo().Status))
}

func (m *monitorModel) releaseOne() {
	for _, f := range m.frames {
		if f.sink != nil {
			m.pool.cache.ReleaseSink(f.sink)
			m.logEvent("release %s", shortID(f.frame.Token().String()))
			f.sink = nil
			// Keep the frame from claiming again right away.
			f.frame.Destroy()
			m.removeDestroyed()
			return
		}
	}
}

func (m *monitorModel) destroyOldest() {
	if len(m.frames) == 0 {
		return
	}
	f := m.frames[0]
	f.frame.Destroy()
	m.logEvent("drop   %s", shortID(f.frame.Token().String()))
	m.removeDestroyed()
}

func (m *monitorModel) removeDestroyed() {
	kept := m.frames[:0]
	for _, f := range m.frames {
		if !f.frame.IsDestroyed() {
			kept = append(kept, f)
		}
	}
	clear(m.frames[len(kept):])
	m.frames = kept
}

func (m monitorModel) destroyAll() {
	for _, f := range m.frames {
		f.frame.Destroy()
	}
}

func (m *monitorModel) logEvent(format string, args ...any) {
	m.events = append(m.events, fmt.Sprintf(format, args...))
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

func (m monitorModel) View() string {
	st := m.pool.cache.Stats()
	rs := m.pool.runner.Stats()

	state := m.spinner.View() + " running"
	if m.paused {
		state = faint("paused")
	}

	row := func(label string, v int64) string {
		return labelStyle.Render(label) + humanize.Comma(v)
	}
	counters := strings.Join([]string{
		row("entries", int64(st.Entries)),
		row("in use", int64(st.Used)),
		row("owners", int64(st.Owners)),
		row("live frames", int64(len(m.frames))),
		row("info hits", st.Hits),
		row("info misses", st.Misses),
		row("created", st.Created),
		row("reused", st.Reused),
		row("unhealthy", st.Unhealthy),
		row("deleted", st.Deleted),
		row("pending tasks", int64(rs.Pending)),
	}, "\n")

	events := faint("waiting for events")
	if len(m.events) > 0 {
		events = strings.Join(m.events, "\n")
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render(counters),
		panelStyle.Render(events),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("sinkpool")+"  "+faint(fmt.Sprintf("%s on %s", m.pool.backend, deviceLabel(m.device)))+"  "+state,
		body,
		m.help.ShortHelpView(m.keys.ShortHelp()),
	) + "\n"
}
