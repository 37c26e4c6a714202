package ui

import (
	"strings"
	"testing"

	"github.com/muesli/reflow/ansi"

	"github.com/voicebridge/voicebridge/internal/bridge"
	"github.com/voicebridge/voicebridge/internal/pipe"
)

func TestStatusDisplay_Disabled(t *testing.T) {
	s := NewStatusDisplay()
	for name, panel := range map[string]string{
		"capture": s.CapturePanel(40),
		"pipe":    s.PipePanel(40, 5),
		"speech":  s.SpeechPanel(40),
	} {
		if !strings.Contains(panel, "disabled") {
			t.Errorf("%s panel should say disabled, got %q", name, panel)
		}
	}
}

func TestStatusDisplay_PipePanel(t *testing.T) {
	tests := []struct {
		name string
		snap bridge.Snapshot
		want string
	}{
		{"connected", bridge.Snapshot{PipeEnabled: true, PipeState: pipe.Connected}, "▶ connected"},
		{"connecting", bridge.Snapshot{PipeEnabled: true, Connecting: true}, "⟳ connecting"},
		{"failed", bridge.Snapshot{PipeEnabled: true, PipeState: pipe.Failed}, "✗ failed"},
		{"waiting", bridge.Snapshot{PipeEnabled: true}, "○ disconnected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStatusDisplay()
			s.Update(tt.snap)
			if got := s.PipePanel(60, 5); !strings.Contains(got, tt.want) {
				t.Errorf("expected %q in %q", tt.want, got)
			}
		})
	}
}

func TestStatusDisplay_KeepsLatestMessages(t *testing.T) {
	s := NewStatusDisplay()
	s.Update(bridge.Snapshot{PipeEnabled: true, Messages: []string{"one", "two", "three"}})

	panel := s.PipePanel(60, 2)
	if strings.Contains(panel, "one") || !strings.Contains(panel, "three") {
		t.Errorf("expected only the latest two messages, got %q", panel)
	}
}

func TestStatusDisplay_TruncatesToWidth(t *testing.T) {
	s := NewStatusDisplay()
	s.Update(bridge.Snapshot{PipeEnabled: true, Messages: []string{strings.Repeat("x", 200)}})

	for _, line := range strings.Split(s.PipePanel(30, 5), "\n") {
		if w := ansi.PrintableRuneWidth(line); w > 28 {
			t.Errorf("line is %d wide: %q", w, line)
		}
	}
}

func TestStatusDisplay_QueueBar(t *testing.T) {
	s := NewStatusDisplay()
	s.Update(bridge.Snapshot{SpeechEnabled: true, Depth: 5, Capacity: 10})

	bar := s.renderQueueBar(20)
	if got := strings.Count(bar, "█"); got != 10 {
		t.Errorf("expected half the bar filled, got %d cells", got)
	}
	if s.renderQueueBar(5) != "" {
		t.Error("narrow bars are not drawn")
	}
}

func TestStatusDisplay_CompactStatus(t *testing.T) {
	s := NewStatusDisplay()
	s.Update(bridge.Snapshot{SpeechEnabled: true, Depth: 3, Capacity: 10})

	got := s.CompactStatus()
	for _, want := range []string{"MIC", "PIPE", "TTS", "3/10"} {
		if !strings.Contains(got, want) {
			t.Errorf("compact status %q is missing %q", got, want)
		}
	}
}
