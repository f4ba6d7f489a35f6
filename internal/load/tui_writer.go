package load

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"vehicleops-load/internal/config"
	"vehicleops-load/internal/telemetry"
)

const maxTUILines = 500

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// resultMsg carries one result row and its rendered line.
type resultMsg struct {
	row  ResultRow
	line string
}

// doneMsg marks the end of the run.
type doneMsg struct{}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	alertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// TUIWriter renders results using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter.
// Quitting the TUI interrupts the process so the run stops too.
func NewTUIWriter(cfg *config.LoadTestConfig) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(cfg), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Write implements ResultWriter.
func (w *TUIWriter) Write(row ResultRow) error {
	w.program.Send(resultMsg{row: row, line: formatResultLine(row)})
	return nil
}

// Finish tells the TUI the run has ended. The view stays up until the user quits.
func (w *TUIWriter) Finish() {
	w.program.Send(doneMsg{})
}

// Wait blocks until the user quits the TUI.
func (w *TUIWriter) Wait() {
	w.sendSignal.Store(false)
	if w.done != nil {
		<-w.done
	}
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

func formatResultLine(row ResultRow) string {
	ts := row.Timestamp.Format(time.RFC3339)
	if row.Error != "" {
		return failStyle.Render(fmt.Sprintf("[%s] vu=%d idx=%d ERROR %s", ts, row.VirtualUser, row.GlobalIndex, row.Error))
	}
	status := okStyle.Render(fmt.Sprintf("status=%d", row.Status))
	if !row.CheckPassed {
		status = failStyle.Render(fmt.Sprintf("status=%d", row.Status))
	}
	kind := string(row.Record.Type)
	if row.Record.Type == telemetry.TypeEmergency {
		kind = alertStyle.Render(kind)
	}
	return fmt.Sprintf("[%s] vu=%d idx=%d %s plate=%s lat=%s lon=%s %s %.1fms",
		ts, row.VirtualUser, row.GlobalIndex, kind, row.Record.VehiclePlate,
		row.Record.Coordinates.Latitude, row.Record.Coordinates.Longitude,
		status, row.DurationMS)
}

type tuiModel struct {
	cfg         *config.LoadTestConfig
	table       table.Model
	vp          viewport.Model
	lines       []string
	wrap        bool
	autoscroll  bool
	done        bool
	header      string
	width       int
	height      int
	total       int
	passed      int
	failed      int
	errors      int
	positions   int
	emergencies int
	lastMS      float64
}

func newTUIModel(cfg *config.LoadTestConfig) tuiModel {
	cols := []table.Column{
		{Title: "Metric", Width: 18},
		{Title: "Value", Width: 12},
	}
	m := tuiModel{
		cfg:        cfg,
		table:      table.New(table.WithColumns(cols), table.WithHeight(8), table.WithWidth(32)),
		vp:         viewport.New(0, 0),
		autoscroll: true,
	}
	m.refreshTable()
	m.header = m.renderHeader()
	return m
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.vp.Width = msg.Width
		m.updateViewportHeight()
		m.refreshViewport()
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	case resultMsg:
		m.apply(msg.row)
		m.lines = append(m.lines, msg.line)
		if len(m.lines) > maxTUILines {
			m.lines = m.lines[len(m.lines)-maxTUILines:]
		}
		m.refreshTable()
		m.refreshViewport()
		return m, nil
	case doneMsg:
		m.done = true
		m.header = m.renderHeader()
		return m, nil
	}
	return m, nil
}

func (m *tuiModel) apply(row ResultRow) {
	m.total++
	if row.Error != "" {
		m.errors++
		return
	}
	if row.CheckPassed {
		m.passed++
	} else {
		m.failed++
	}
	if row.Record.Type == telemetry.TypeEmergency {
		m.emergencies++
	} else {
		m.positions++
	}
	m.lastMS = row.DurationMS
}

func (m *tuiModel) refreshTable() {
	target := 0
	if m.cfg != nil {
		target = m.cfg.Iterations
	}
	m.table.SetRows([]table.Row{
		{"Requests", fmt.Sprintf("%d/%d", m.total, target)},
		{"Checks passed", fmt.Sprintf("%d", m.passed)},
		{"Checks failed", fmt.Sprintf("%d", m.failed)},
		{"Transport errors", fmt.Sprintf("%d", m.errors)},
		{"Position", fmt.Sprintf("%d", m.positions)},
		{"Emergency", fmt.Sprintf("%d", m.emergencies)},
		{"Last duration", fmt.Sprintf("%.1fms", m.lastMS)},
	})
}

func (m *tuiModel) refreshViewport() {
	width := m.vp.Width
	lines := make([]string, 0, len(m.lines))
	for _, l := range m.lines {
		switch {
		case width <= 0:
			lines = append(lines, l)
		case m.wrap:
			lines = append(lines, wordwrap.String(l, width))
		default:
			lines = append(lines, truncate.String(l, uint(width)))
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) updateViewportHeight() {
	used := lipgloss.Height(m.header) + lipgloss.Height(m.table.View()) + 2
	h := m.height - used
	if h < 1 {
		h = 1
	}
	m.vp.Height = h
}

func (m tuiModel) renderHeader() string {
	target, vus := "", 0
	if m.cfg != nil {
		target, vus = m.cfg.TargetURL, m.cfg.VirtualUsers
	}
	state := "running"
	if m.done {
		state = "finished"
	}
	return titleStyle.Render("vehicleops-load") + " " +
		fmt.Sprintf("target=%s vus=%d [%s]", target, vus, state)
}

func (m tuiModel) View() string {
	help := helpStyle.Render("q quit • w wrap • s autoscroll")
	return lipgloss.JoinVertical(lipgloss.Left, m.header, m.table.View(), m.vp.View(), help)
}
