package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/dustin/go-humanize"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dgnsrekt/sinkpool/internal/cache"
	"github.com/dgnsrekt/sinkpool/internal/device"
	"github.com/dgnsrekt/sinkpool/internal/queue"
	"github.com/dgnsrekt/sinkpool/internal/sink"
)

// frameResult is what one simulated owner did.
type frameResult struct {
	Frame    string
	Info     device.Info
	Reused   bool
	Played   int
	Rendered int64
	State    sink.State
	Ended    string // "released", "stopped" or "destroyed"
}

// runReport summarizes a play run.
type runReport struct {
	Backend  sink.Backend
	Device   string
	Elapsed  time.Duration
	Frames   []frameResult
	Cache    cache.Stats
	Runner   queue.Stats
	Leftover int
}

// Markdown renders the report as a Markdown document.
func (r runReport) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# sinkpool run\n\n")
	fmt.Fprintf(&b, "Played on **%s** using the `%s` backend in %s.\n\n",
		deviceLabel(r.Device), r.Backend, r.Elapsed.Round(time.Millisecond))

	b.WriteString("## Frames\n\n")
	b.WriteString("| Frame | Status | Sink | Played | Ended |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, f := range r.Frames {
		origin := "new"
		if f.Reused {
			origin = "reused"
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %s |\n",
			shortID(f.Frame),
			statusLabel(f.Info.Status),
			origin,
			humanize.Bytes(uint64(f.Rendered)), //nolint:gosec
			f.Ended)
	}

	b.WriteString("\n## Cache\n\n")
	b.WriteString("| Counter | Value |\n")
	b.WriteString("|---|---|\n")
	rows := []struct {
		name  string
		value int64
	}{
		{"Info hits", r.Cache.Hits},
		{"Info misses", r.Cache.Misses},
		{"Session lookups", r.Cache.SessionLookups},
		{"Sinks created", r.Cache.Created},
		{"Sinks reused", r.Cache.Reused},
		{"Unhealthy sinks", r.Cache.Unhealthy},
		{"Sinks deleted", r.Cache.Deleted},
		{"Cleanup tasks run", r.Runner.Executed},
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "| %s | %s |\n", row.name, humanize.Comma(row.value))
	}
	fmt.Fprintf(&b, "\n%s left in the cache.\n", humanize.Comma(int64(r.Leftover)))

	return b.String()
}

// Render writes the report for a terminal, or as plain Markdown when styled
// output is off.
func (r runReport) Render(w io.Writer, styled bool, width int) error {
	md := r.Markdown()
	if !styled {
		_, err := io.WriteString(w, md)
		return err //nolint:wrapcheck
	}

	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(styles.AutoStyle),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("unable to create renderer: %w", err)
	}
	out, err := tr.Render(md)
	if err != nil {
		return fmt.Errorf("unable to render report: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err //nolint:wrapcheck
}

// HTML converts the report to an HTML fragment.
func (r runReport) HTML() ([]byte, error) {
	var buf bytes.Buffer
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	if err := md.Convert([]byte(r.Markdown()), &buf); err != nil {
		return nil, fmt.Errorf("unable to convert report: %w", err)
	}
	return buf.Bytes(), nil
}

func deviceLabel(id string) string {
	if device.IsDefaultDevice(id) {
		return "the default device"
	}
	return id
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
