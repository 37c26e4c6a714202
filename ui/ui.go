// Package ui provides the voicebridge dashboard. The dashboard is the host:
// it ticks the bridge on a timer and renders what the bridge reports.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"

	"github.com/voicebridge/voicebridge/internal/bridge"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied!"
	ellipsis             = "…"
	defaultPollInterval  = 100 * time.Millisecond
)

var (
	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	fuchsia   = lipgloss.Color("#EE6FF8")

	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ECFD65")).
			Background(fuchsia).
			Bold(true).
			Render

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg).
				Render

	statusBarHelpStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(lipgloss.AdaptiveColor{Light: "#DCDCDC", Dark: "#323232"}).
				Render

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen).
				Render

	errorMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(lipgloss.Color("#FF5F87")).
				Render

	helpViewStyle = lipgloss.NewStyle().
			Foreground(statusBarNoteFg).
			Render

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#DCDCDC", Dark: "#3C3C3C"}).
			Padding(0, 1)
)

// Host is what the dashboard drives. *bridge.Bridge implements it.
type Host interface {
	Tick()
	Snapshot() bridge.Snapshot
	Speak(text string) (string, error)
	Reconnect() bool
}

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, host Host) *tea.Program {
	log.Debug("Starting dashboard", "poll_interval", cfg.PollInterval)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, host), opts...)
}

type (
	tickMsg                 time.Time
	statusMessageTimeoutMsg struct{}
)

type statusMessage struct {
	message string
	isError bool
}

type model struct {
	cfg    Config
	host   Host
	status *StatusDisplay

	width  int
	height int

	spinner   spinner.Model
	input     textinput.Model
	prompting bool
	showHelp  bool

	statusMessage      *statusMessage
	statusMessageTimer *time.Timer
}

func newModel(cfg Config, host Host) model {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(fuchsia)

	ti := textinput.New()
	ti.Placeholder = "Text to speak"
	ti.Prompt = "say › "
	ti.CharLimit = 500

	return model{
		cfg:     cfg,
		host:    host,
		status:  NewStatusDisplay(),
		spinner: sp,
		input:   ti,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.spinner.Tick)
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.cfg.PollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tickMsg:
		m.host.Tick()
		m.status.Update(m.host.Snapshot())
		return m, m.tick()

	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "ctrl+z":
			return m, tea.Suspend

		case "?":
			m.showHelp = !m.showHelp

		case "s", "enter":
			m.prompting = true
			m.input.SetValue("")
			return m, m.input.Focus()

		case "r":
			if m.host.Reconnect() {
				return m, m.showStatusMessage(statusMessage{message: "Connecting…"})
			}
			return m, m.showStatusMessage(statusMessage{message: "Already connected"})

		case "c":
			last, ok := m.status.snap.LastMessage()
			if !ok {
				return m, m.showStatusMessage(statusMessage{message: "Nothing to copy", isError: true})
			}
			if err := clipboard.WriteAll(last); err != nil {
				log.Debug("Clipboard unavailable", "error", err)
				return m, m.showStatusMessage(statusMessage{message: "Clipboard unavailable", isError: true})
			}
			return m, m.showStatusMessage(statusMessage{message: "Copied last message"})
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-10)

	case statusMessageTimeoutMsg:
		m.statusMessage = nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		m.prompting = false
		m.input.Blur()
		return m, nil

	case "enter":
		m.prompting = false
		m.input.Blur()
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		if _, err := m.host.Speak(text); err != nil {
			return m, m.showStatusMessage(statusMessage{message: err.Error(), isError: true})
		}
		return m, m.showStatusMessage(statusMessage{message: "Queued for speech"})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) showStatusMessage(msg statusMessage) tea.Cmd {
	m.statusMessage = &msg
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)
	return waitForStatusMessageTimeout(m.statusMessageTimer)
}

func waitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{}
	}
}

func (m model) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	colWidth := max(20, width/3-2)

	panels := lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Width(colWidth).Render(m.status.CapturePanel(colWidth)),
		panelStyle.Width(colWidth).Render(m.status.PipePanel(colWidth, m.messageRows())),
		panelStyle.Width(colWidth).Render(m.status.SpeechPanel(colWidth)),
	)

	var b strings.Builder
	fmt.Fprintln(&b, panels)
	if m.prompting {
		fmt.Fprintln(&b, m.input.View())
	}
	if m.showHelp {
		fmt.Fprintln(&b, m.helpView())
	}
	m.statusBarView(&b, width)
	return b.String()
}

func (m model) messageRows() int {
	if m.height <= 0 {
		return 5
	}
	return max(1, m.height-12)
}

func (m model) statusBarView(b *strings.Builder, width int) {
	logo := logoStyle(" voicebridge ") + " "
	if m.status.snap.Speaking != "" || m.status.snap.Connecting {
		logo += m.spinner.View() + " "
	}

	compact := m.status.CompactStatus() + " "
	helpNote := statusBarHelpStyle(" ? Help ")

	var note string
	switch {
	case m.statusMessage != nil:
		note = m.statusMessage.message
	case m.cfg.ConfigFile != "":
		note = m.cfg.ConfigFile
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(compact)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)

	style := statusBarNoteStyle
	if m.statusMessage != nil {
		style = statusBarMessageStyle
		if m.statusMessage.isError {
			style = errorMessageStyle
		}
	}
	note = style(note)

	padding := max(0,
		width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(compact)-
			ansi.PrintableRuneWidth(helpNote),
	)
	emptySpace := style(strings.Repeat(" ", padding))

	fmt.Fprintf(b, "%s%s%s%s%s", logo, note, emptySpace, compact, helpNote)
}

func (m model) helpView() string {
	keys := [][2]string{
		{"s/enter", "speak text"},
		{"r", "reconnect message channel"},
		{"c", "copy last message"},
		{"?", "toggle help"},
		{"q", "quit"},
	}
	var lines []string
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%-8s %s", k[0], k[1]))
	}
	return helpViewStyle(strings.Join(lines, "\n"))
}
