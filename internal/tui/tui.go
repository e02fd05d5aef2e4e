// Package tui is a terminal transport view: the step grid of every track
// with the playing step highlighted, and keys for the live controls.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/stepsynth-go/internal/song"
)

// Controller is the part of the player the view drives.
type Controller interface {
	Toggle()
	Playing() bool
	CurrentStep() int
	StepCount() int
	Tempo() float64
	SetTempo(bpm float64)
	Amplitude() float64
	SetAmplitude(amplitude float64)
	SetLoop(loop bool)
	SetMuted(track int, muted bool)
	Song() song.Song
}

const (
	refreshInterval = 50 * time.Millisecond
	tempoStep       = 5.0
	amplitudeStep   = 0.05
	minTempo        = 20.0
	maxTempo        = 400.0
	cellWidth       = 4
	labelWidth      = 12
)

var (
	accent = lipgloss.Color("#39FF14")
	dim    = lipgloss.Color("#666666")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#C0C0C0"))
	labelStyle   = lipgloss.NewStyle().Width(labelWidth)
	mutedStyle   = labelStyle.Foreground(dim).Strikethrough(true)
	cellStyle    = lipgloss.NewStyle().Width(cellWidth)
	noteStyle    = cellStyle.Foreground(lipgloss.Color("#FFD700"))
	restStyle    = cellStyle.Foreground(dim)
	currentStyle = cellStyle.Background(lipgloss.Color("#7D56F4")).Bold(true)
	helpStyle    = lipgloss.NewStyle().Foreground(dim).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
)

type tickMsg time.Time

// ExportDoneMsg reports the end of an export started with the e key.
type ExportDoneMsg struct{ Err error }

type Options struct {
	// Export, when set, is bound to the e key. It must call done exactly
	// once, from any goroutine.
	Export func(done func(error))
}

type row struct {
	track  int
	label  string
	labels []string
}

type Model struct {
	ctrl     Controller
	opts     Options
	rows     []row
	message  string
	quitting bool
}

func New(ctrl Controller, opts Options) Model {
	m := Model{ctrl: ctrl, opts: opts}
	m.rows = buildRows(ctrl.Song())
	return m
}

func buildRows(s song.Song) []row {
	var rows []row
	for i, t := range s.Tracks {
		name := t.Name
		if name == "" {
			name = fmt.Sprintf("Track %d", i+1)
		}
		for r, seq := range t.Sequences() {
			label := name
			if r > 0 {
				label = ""
			}
			rows = append(rows, row{track: i, label: label, labels: seq.Labels()})
		}
	}
	return rows
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tickMsg:
		return m, tick()
	case ExportDoneMsg:
		if msg.Err != nil {
			m.message = "export failed: " + msg.Err.Error()
		} else {
			m.message = "export finished"
		}
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case " ", "p":
		m.ctrl.Toggle()
	case "+", "=":
		m.ctrl.SetTempo(min(m.ctrl.Tempo()+tempoStep, maxTempo))
	case "-", "_":
		m.ctrl.SetTempo(max(m.ctrl.Tempo()-tempoStep, minTempo))
	case "]":
		m.ctrl.SetAmplitude(min(m.ctrl.Amplitude()+amplitudeStep, 1))
	case "[":
		m.ctrl.SetAmplitude(max(m.ctrl.Amplitude()-amplitudeStep, 0))
	case "l":
		m.ctrl.SetLoop(!m.ctrl.Song().Loop)
	case "e":
		if m.opts.Export == nil {
			return m, nil
		}
		m.message = "exporting..."
		return m, m.export()
	default:
		if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
			track := int(key[0] - '1')
			tracks := m.ctrl.Song().Tracks
			if track < len(tracks) {
				m.ctrl.SetMuted(track, !tracks[track].Muted)
			}
		}
	}
	return m, nil
}

func (m Model) export() tea.Cmd {
	return func() tea.Msg {
		done := make(chan error, 1)
		m.opts.Export(func(err error) { done <- err })
		return ExportDoneMsg{Err: <-done}
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	s := m.ctrl.Song()
	step := m.ctrl.CurrentStep()

	b.WriteString(titleStyle.Render("stepsynth") + "\n\n")

	state := "■ stopped"
	if m.ctrl.Playing() {
		state = "▶ playing"
	}
	loop := "off"
	if s.Loop {
		loop = "on"
	}
	position := "-"
	if step >= 0 {
		position = fmt.Sprintf("%d", step+1)
	}
	b.WriteString(statusStyle.Render(fmt.Sprintf("%s   tempo %.0f   amplitude %.2f   loop %s   step %s/%d",
		state, m.ctrl.Tempo(), m.ctrl.Amplitude(), loop, position, m.ctrl.StepCount())))
	b.WriteString("\n\n")

	for _, r := range m.rows {
		label := labelStyle
		if r.track < len(s.Tracks) && s.Tracks[r.track].Muted {
			label = mutedStyle
		}
		b.WriteString(label.Render(r.label))
		for i, l := range r.labels {
			style := noteStyle
			switch {
			case i == step:
				style = currentStyle
			case l == "." || l == "-":
				style = restStyle
			}
			b.WriteString(style.Render(l))
		}
		b.WriteString("\n")
	}

	if m.message != "" {
		style := statusStyle
		if strings.HasPrefix(m.message, "export failed") {
			style = errorStyle
		}
		b.WriteString("\n" + style.Render(m.message) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("space: play/stop • +/-: tempo • [/]: amplitude • 1-9: mute • l: loop • e: export • q: quit"))
	return b.String()
}
