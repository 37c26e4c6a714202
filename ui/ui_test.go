package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/voicebridge/voicebridge/internal/bridge"
	"github.com/voicebridge/voicebridge/internal/capture"
	"github.com/voicebridge/voicebridge/internal/pipe"
)

type fakeHost struct {
	ticks      int
	spoken     []string
	reconnects int
	connected  bool
	speakErr   error
	snap       bridge.Snapshot
}

func (h *fakeHost) Tick()                     { h.ticks++ }
func (h *fakeHost) Snapshot() bridge.Snapshot { return h.snap }

func (h *fakeHost) Speak(text string) (string, error) {
	if h.speakErr != nil {
		return "", h.speakErr
	}
	h.spoken = append(h.spoken, text)
	return "id", nil
}

func (h *fakeHost) Reconnect() bool {
	h.reconnects++
	return !h.connected
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(m tea.Model, msgs ...tea.Msg) tea.Model {
	for _, msg := range msgs {
		m, _ = m.Update(msg)
	}
	return m
}

func TestModel_TickDrivesHost(t *testing.T) {
	host := &fakeHost{snap: bridge.Snapshot{SpeechEnabled: true, Provider: "mock", Depth: 2, Capacity: 10}}
	m := newModel(Config{PollInterval: 50 * time.Millisecond}, host)

	next, cmd := m.Update(tickMsg(time.Now()))
	if host.ticks != 1 {
		t.Errorf("expected one tick, got %d", host.ticks)
	}
	if cmd == nil {
		t.Error("expected the next tick to be scheduled")
	}
	if got := next.(model).status.snap.Depth; got != 2 {
		t.Errorf("expected the snapshot to be refreshed, got depth %d", got)
	}
}

func TestModel_SpeakPrompt(t *testing.T) {
	host := &fakeHost{}
	var m tea.Model = newModel(Config{}, host)

	m = send(m, key("s"), key("h"), key("i"), key("enter"))
	if len(host.spoken) != 1 || host.spoken[0] != "hi" {
		t.Fatalf("expected \"hi\" to be spoken, got %q", host.spoken)
	}
	if mm := m.(model); mm.prompting || mm.statusMessage == nil || mm.statusMessage.isError {
		t.Errorf("expected the prompt to close with a confirmation, got %+v", mm.statusMessage)
	}

	// esc abandons the prompt
	m = send(m, key("s"), key("x"), key("esc"))
	if len(host.spoken) != 1 || m.(model).prompting {
		t.Error("esc should cancel without speaking")
	}
}

func TestModel_SpeakErrorShown(t *testing.T) {
	host := &fakeHost{speakErr: errors.New("text-to-speech queue overflow")}
	m := send(newModel(Config{}, host), key("s"), key("a"), key("enter"))

	sm := m.(model).statusMessage
	if sm == nil || !sm.isError || !strings.Contains(sm.message, "overflow") {
		t.Errorf("expected an error message, got %+v", sm)
	}
}

func TestModel_Keys(t *testing.T) {
	host := &fakeHost{connected: true}
	m := send(newModel(Config{}, host), key("r"))
	if host.reconnects != 1 {
		t.Error("r should ask the host to reconnect")
	}
	if sm := m.(model).statusMessage; sm == nil || sm.message != "Already connected" {
		t.Errorf("unexpected status %+v", sm)
	}

	m = send(m, key("c"))
	if sm := m.(model).statusMessage; sm == nil || !sm.isError {
		t.Errorf("copy without messages should fail, got %+v", sm)
	}

	m = send(m, key("?"))
	if !m.(model).showHelp {
		t.Error("? should toggle help")
	}
	if !strings.Contains(m.View(), "copy last message") {
		t.Error("help should list the copy key")
	}

	m = send(m, statusMessageTimeoutMsg{})
	if m.(model).statusMessage != nil {
		t.Error("status message should clear on timeout")
	}

	if _, cmd := m.Update(key("q")); cmd == nil {
		t.Error("q should quit")
	}
}

func TestModel_View(t *testing.T) {
	host := &fakeHost{}
	m := newModel(Config{ConfigFile: "/etc/voicebridge.yml"}, host)
	m.width, m.height = 120, 30
	m.status.Update(bridge.Snapshot{
		CaptureEnabled: true,
		Capture:        capture.Stats{State: capture.StateOpen, Chunks: 4},
		Captured:       2048,
		PipeEnabled:    true,
		PipeState:      pipe.Connected,
		Transport:      "pipe",
		Messages:       []string{"hello", "world"},
		SpeechEnabled:  true,
		Provider:       "google",
		Capacity:       10,
	})

	view := m.View()
	for _, want := range []string{"Capture", "2.0 kB", "connected", "world", "Queue: 0 of 10", "voicebridge.yml"} {
		if !strings.Contains(view, want) {
			t.Errorf("view is missing %q", want)
		}
	}
}
