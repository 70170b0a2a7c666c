package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
)

func restoreDefault(t *testing.T) {
	t.Helper()
	prev := log.Default()
	log.SetDefault(log.New(os.Stderr))
	t.Cleanup(func() { log.SetDefault(prev) })
}

func TestSetupWritesToFile(t *testing.T) {
	restoreDefault(t)

	path := filepath.Join(t.TempDir(), "logs", "sinkpool.log")
	closer, err := Setup("debug", path)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	log.Debug("Sink cache closed", "stopped", 3)
	if err := closer(); err != nil {
		t.Fatalf("closer() error = %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(b), "Sink cache closed") {
		t.Errorf("log file missing entry:\n%s", b)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("level = %v, want debug", log.GetLevel())
	}
}

func TestSetupWithoutFile(t *testing.T) {
	restoreDefault(t)

	closer, err := Setup("warn", "")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := closer(); err != nil {
		t.Errorf("closer() error = %v", err)
	}
	if log.GetLevel() != log.WarnLevel {
		t.Errorf("level = %v, want warn", log.GetLevel())
	}
}

func TestSetupInvalidLevel(t *testing.T) {
	restoreDefault(t)

	if _, err := Setup("loud", ""); err == nil {
		t.Error("Setup() should reject an unknown level")
	}
}

func TestOpenFileExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	f, err := OpenFile("~/.sinkpool/debug.log")
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close() //nolint:errcheck

	want := filepath.Join(home, ".sinkpool", "debug.log")
	if f.Name() != want {
		t.Errorf("Name() = %s, want %s", f.Name(), want)
	}
}

func TestNewUsesPrefix(t *testing.T) {
	if got := New("cache").GetPrefix(); got != "cache" {
		t.Errorf("GetPrefix() = %q, want cache", got)
	}
}
