// Package platform detects the operating system, its audio subsystem and
// whether an output device is present, so sink factories can decide between
// real and simulated output.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// OS is the current operating system family.
type OS string

const (
	Linux   OS = "linux"
	Darwin  OS = "darwin"
	Windows OS = "windows"
	Unknown OS = "unknown"
)

// AudioSubsystem is the native audio stack in use.
type AudioSubsystem string

const (
	SubsystemALSA       AudioSubsystem = "alsa"
	SubsystemPulseAudio AudioSubsystem = "pulseaudio"
	SubsystemCoreAudio  AudioSubsystem = "coreaudio"
	SubsystemWASAPI     AudioSubsystem = "wasapi"
	SubsystemNone       AudioSubsystem = "none"
)

// Info describes the host.
type Info struct {
	OS             OS
	AudioSubsystem AudioSubsystem
	HasAudioDevice bool
	IsCI           bool
	Details        map[string]string
}

// ciVars are set by common CI providers.
var ciVars = []string{
	"CI",
	"CONTINUOUS_INTEGRATION",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"JENKINS_URL",
	"BUILDKITE",
}

// mockAudioVar forces simulated output when set to "true".
const mockAudioVar = "SINKPOOL_MOCK_AUDIO"

// IsCI reports whether we run under CI or mock audio was requested.
func IsCI() bool {
	return isCI(os.Getenv)
}

func isCI(getenv func(string) string) bool {
	if getenv(mockAudioVar) == "true" {
		return true
	}
	for _, v := range ciVars {
		if val := getenv(v); val != "" && val != "false" {
			return true
		}
	}
	return false
}

// host is what detection reads: a filesystem rooted at root and an
// environment. Tests point it at fixtures.
type host struct {
	goos   string
	root   string
	getenv func(string) string
}

// Detect inspects the host.
func Detect() *Info {
	info := host{goos: runtime.GOOS, root: "/", getenv: os.Getenv}.detect()

	info.Details["arch"] = runtime.GOARCH
	info.Details["goversion"] = runtime.Version()
	if release := kernelRelease(); release != "" {
		info.Details["kernel"] = release
	}

	log.Debug("Platform detected",
		"os", info.OS,
		"audio", info.AudioSubsystem,
		"has_device", info.HasAudioDevice,
		"is_ci", info.IsCI)
	return info
}

func (h host) detect() *Info {
	info := &Info{
		OS:      Unknown,
		IsCI:    isCI(h.getenv),
		Details: map[string]string{"os": h.goos},
	}

	switch h.goos {
	case "linux":
		info.OS = Linux
		info.AudioSubsystem, info.HasAudioDevice = h.linuxAudio()
	case "darwin":
		// oto reports a missing device when the context is opened.
		info.OS, info.AudioSubsystem, info.HasAudioDevice = Darwin, SubsystemCoreAudio, true
	case "windows":
		info.OS, info.AudioSubsystem, info.HasAudioDevice = Windows, SubsystemWASAPI, true
	default:
		info.AudioSubsystem = SubsystemNone
	}
	return info
}

// linuxAudio prefers a reachable PulseAudio (or pipewire-pulse) server, then
// falls back to ALSA playback devices.
func (h host) linuxAudio() (AudioSubsystem, bool) {
	if h.getenv("PULSE_SERVER") != "" {
		return SubsystemPulseAudio, true
	}
	if dir := h.getenv("XDG_RUNTIME_DIR"); dir != "" && exists(filepath.Join(dir, "pulse", "native")) {
		return SubsystemPulseAudio, true
	}

	if !exists(filepath.Join(h.root, "proc", "asound")) {
		return SubsystemNone, false
	}
	return SubsystemALSA, h.hasALSAPlayback()
}

func (h host) hasALSAPlayback() bool {
	entries, err := os.ReadDir(filepath.Join(h.root, "dev", "snd"))
	if err == nil {
		for _, e := range entries {
			// pcmC0D0p is a playback device, pcmC0D0c a capture one.
			if name := e.Name(); strings.HasPrefix(name, "pcm") && strings.HasSuffix(name, "p") {
				return true
			}
		}
	}

	cards, err := os.ReadFile(filepath.Join(h.root, "proc", "asound", "cards"))
	return err == nil && len(cards) > 0 && !strings.Contains(string(cards), "no soundcards")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ShouldUseMockAudio reports whether real output is unlikely to work.
func (i *Info) ShouldUseMockAudio() bool {
	return i.MockReason() != ""
}

// MockReason explains ShouldUseMockAudio; it is empty when real output
// should be tried.
func (i *Info) MockReason() string {
	switch {
	case i.IsCI:
		return "CI environment"
	case !i.HasAudioDevice:
		return "no audio devices"
	case i.AudioSubsystem == SubsystemNone:
		return "no audio subsystem"
	default:
		return ""
	}
}

// BufferSize returns the recommended device buffer for the platform.
func (i *Info) BufferSize() time.Duration {
	switch {
	case i.OS == Darwin:
		return 100 * time.Millisecond
	case i.OS == Windows:
		return 80 * time.Millisecond
	case i.AudioSubsystem == SubsystemPulseAudio:
		return 60 * time.Millisecond
	default:
		return 50 * time.Millisecond
	}
}

// Retry returns how often and how far apart opening the output context
// should be attempted. CoreAudio and a starting PulseAudio daemon are known
// to fail the first attempt.
func (i *Info) Retry() (attempts int, delay time.Duration) {
	switch {
	case i.OS == Darwin:
		return 3, 200 * time.Millisecond
	case i.OS == Windows:
		return 2, 150 * time.Millisecond
	case i.AudioSubsystem == SubsystemPulseAudio:
		return 2, 100 * time.Millisecond
	default:
		return 1, 100 * time.Millisecond
	}
}

// ReadyTimeout is how long to wait for the output context to come up.
func (i *Info) ReadyTimeout() time.Duration {
	if i.OS == Darwin {
		return 10 * time.Second
	}
	return 5 * time.Second
}
