package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"

	"github.com/voicebridge/voicebridge/internal/bridge"
	"github.com/voicebridge/voicebridge/internal/capture"
	"github.com/voicebridge/voicebridge/internal/pipe"
)

var (
	colorOK      = lipgloss.Color("#00FF00")
	colorWaiting = lipgloss.Color("#FFFF00")
	colorIdle    = lipgloss.Color("#888888")
	colorBusy    = lipgloss.Color("#00AAFF")
	colorFailed  = lipgloss.Color("#FF0000")
	colorOff     = lipgloss.Color("#666666")

	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(colorIdle)
)

// StatusDisplay renders bridge snapshots as dashboard panels.
type StatusDisplay struct {
	snap bridge.Snapshot
}

// NewStatusDisplay creates an empty display.
func NewStatusDisplay() *StatusDisplay {
	return &StatusDisplay{}
}

// Update replaces the snapshot being shown.
func (s *StatusDisplay) Update(snap bridge.Snapshot) {
	s.snap = snap
}

// CompactStatus returns a one-line summary for the status bar.
func (s *StatusDisplay) CompactStatus() string {
	parts := []string{
		s.badge("MIC", s.captureColor()),
		s.badge("PIPE", s.pipeColor()),
		s.badge("TTS", s.speechColor()),
	}
	if s.snap.SpeechEnabled && s.snap.Depth > 0 {
		parts = append(parts, dimStyle.Render(fmt.Sprintf("%d/%d", s.snap.Depth, s.snap.Capacity)))
	}
	return strings.Join(parts, " ")
}

func (s *StatusDisplay) badge(name string, color lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(color).Render("● " + name)
}

// CapturePanel describes the microphone.
func (s *StatusDisplay) CapturePanel(width int) string {
	lines := []string{headerStyle.Render("Capture")}
	if !s.snap.CaptureEnabled {
		return strings.Join(append(lines, dimStyle.Render("disabled")), "\n")
	}

	state := s.snap.Capture.State.String()
	if s.snap.CaptureEnded {
		state = "ended"
	}
	lines = append(lines,
		lipgloss.NewStyle().Foreground(s.captureColor()).Render("State: "+state),
		fmt.Sprintf("Captured: %s in %d chunks", humanize.Bytes(s.snap.Captured), s.snap.Capture.Chunks),
	)
	if s.snap.Capture.Queued > 0 {
		lines = append(lines, fmt.Sprintf("Queued: %d", s.snap.Capture.Queued))
	}
	return fit(lines, width)
}

// PipePanel describes the message channel and the latest messages.
func (s *StatusDisplay) PipePanel(width, maxMessages int) string {
	lines := []string{headerStyle.Render("Messages")}
	if !s.snap.PipeEnabled {
		return strings.Join(append(lines, dimStyle.Render("disabled")), "\n")
	}

	state := s.snap.PipeState.String()
	if s.snap.Connecting {
		state = "connecting"
	}
	lines = append(lines,
		lipgloss.NewStyle().Foreground(s.pipeColor()).Render(
			fmt.Sprintf("%s %s (%s)", s.pipeIcon(), state, s.snap.Transport)),
		dimStyle.Render(s.snap.PipeName),
		fmt.Sprintf("Received: %d", s.snap.Received),
	)

	msgs := s.snap.Messages
	if maxMessages > 0 && len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}
	for _, m := range msgs {
		lines = append(lines, "› "+m)
	}
	return fit(lines, width)
}

// SpeechPanel describes the speech queue.
func (s *StatusDisplay) SpeechPanel(width int) string {
	lines := []string{headerStyle.Render("Speech")}
	if !s.snap.SpeechEnabled {
		return strings.Join(append(lines, dimStyle.Render("disabled")), "\n")
	}

	lines = append(lines, lipgloss.NewStyle().Foreground(s.speechColor()).Render("Provider: "+s.snap.Provider))
	if s.snap.Speaking != "" {
		lines = append(lines, "Speaking: "+s.snap.Speaking)
	}
	lines = append(lines, fmt.Sprintf("Queue: %d of %d", s.snap.Depth, s.snap.Capacity))
	if width > 20 {
		lines = append(lines, s.renderQueueBar(width-4))
	}
	lines = append(lines, fmt.Sprintf("Spoken: %d  Billed: %s chars  Dropped: %d",
		s.snap.Spoken, humanize.Comma(s.snap.Billed), s.snap.Dropped))

	if s.snap.CacheEnabled {
		c := s.snap.Cache
		lines = append(lines, dimStyle.Render(fmt.Sprintf("Cache: %s, %.0f%% hits",
			humanize.Bytes(uint64(c.Size)), c.HitRate()*100)))
	}
	return fit(lines, width)
}

// renderQueueBar shows how full the speech queue is.
func (s *StatusDisplay) renderQueueBar(width int) string {
	if width < 10 || s.snap.Capacity <= 0 {
		return ""
	}

	filledWidth := s.snap.Depth * width / s.snap.Capacity
	if filledWidth > width {
		filledWidth = width
	}

	filled := strings.Repeat("█", filledWidth)
	empty := strings.Repeat("░", width-filledWidth)

	color := colorBusy
	if s.snap.Depth >= s.snap.Capacity {
		color = colorFailed
	}
	filledStyle := lipgloss.NewStyle().Foreground(color)
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#333333"))
	return filledStyle.Render(filled) + emptyStyle.Render(empty)
}

func (s *StatusDisplay) captureColor() lipgloss.Color {
	switch {
	case !s.snap.CaptureEnabled:
		return colorOff
	case s.snap.CaptureEnded:
		return colorIdle
	}
	switch s.snap.Capture.State {
	case capture.StateOpen:
		return colorOK
	case capture.StatePaused:
		return colorWaiting
	default:
		return colorFailed
	}
}

func (s *StatusDisplay) pipeColor() lipgloss.Color {
	switch {
	case !s.snap.PipeEnabled:
		return colorOff
	case s.snap.Connecting:
		return colorBusy
	}
	switch s.snap.PipeState {
	case pipe.Connected:
		return colorOK
	case pipe.Failed:
		return colorFailed
	default:
		return colorWaiting
	}
}

func (s *StatusDisplay) pipeIcon() string {
	if s.snap.Connecting {
		return "⟳"
	}
	switch s.snap.PipeState {
	case pipe.Connected:
		return "▶"
	case pipe.Failed:
		return "✗"
	default:
		return "○"
	}
}

func (s *StatusDisplay) speechColor() lipgloss.Color {
	switch {
	case !s.snap.SpeechEnabled:
		return colorOff
	case s.snap.Speaking != "":
		return colorOK
	case s.snap.Depth >= s.snap.Capacity && s.snap.Capacity > 0:
		return colorFailed
	default:
		return colorIdle
	}
}

// fit truncates every line to width.
func fit(lines []string, width int) string {
	if width > 2 {
		for i, l := range lines {
			lines[i] = truncate.StringWithTail(l, uint(width-2), ellipsis) //nolint:gosec
		}
	}
	return strings.Join(lines, "\n")
}
