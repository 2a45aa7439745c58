package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	apperrors "github.com/agbru/dayrun/internal/errors"
	"github.com/agbru/dayrun/internal/format"
	"github.com/agbru/dayrun/internal/orchestration"
	"github.com/agbru/dayrun/internal/pipeline"
	"github.com/agbru/dayrun/internal/sysmon"
)

// Layout constants for the dashboard.
const (
	headerHeight       = 1
	footerHeight       = 1
	progressHeight     = 5
	minBodyHeight      = 4
	LogPanelWidthPct   = 65
	maxLogEntries      = 500
	tickInterval       = 500 * time.Millisecond
	defaultHistorySize = 40
)

// Options describes the run shown by the dashboard.
type Options struct {
	Pipeline  string
	Version   string
	TotalDays int
}

// RunFunc runs the driver with the given observer.
type RunFunc func(ctx context.Context, observer orchestration.Observer) error

// logEntry is one line of the results panel.
type logEntry struct {
	text  string
	style lipgloss.Style
}

// Model is the root bubbletea model of the dashboard.
type Model struct {
	header HeaderModel
	keymap KeyMap
	help   help.Model

	progress *orchestration.ProgressAggregator
	snapshot orchestration.AggregatedProgress
	total    int
	day      string
	dayPos   int
	stage    string
	failed   int

	entries []logEntry
	offset  int // lines scrolled up from the bottom
	paused  bool

	cpu *History
	mem *History

	width  int
	height int

	cancel context.CancelFunc
	done   bool
	err    error
}

// NewModel creates the dashboard model. cancel is called when the user quits.
func NewModel(opts Options, cancel context.CancelFunc) Model {
	h := help.New()
	h.Styles.ShortKey = accentStyle
	h.Styles.ShortDesc = dimStyle
	h.Styles.FullKey = accentStyle
	h.Styles.FullDesc = dimStyle

	return Model{
		header:   NewHeaderModel(opts.Version, opts.Pipeline),
		keymap:   DefaultKeyMap(),
		help:     h,
		progress: orchestration.NewProgressAggregator(opts.TotalDays),
		snapshot: orchestration.AggregatedProgress{Total: opts.TotalDays},
		total:    opts.TotalDays,
		cpu:      NewHistory(defaultHistorySize),
		mem:      NewHistory(defaultHistorySize),
		cancel:   cancel,
	}
}

// Init starts the tick loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), sampleSysStatsCmd())
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.header.SetWidth(msg.Width)
		m.help.Width = msg.Width
		m.cpu.SetLimit(m.sparkWidth())
		m.mem.SetLimit(m.sparkWidth())
		return m, nil

	case SetupStartedMsg:
		m.addEntry(fmt.Sprintf("setup: %s", strings.Join(msg.Stages, ", ")), dimStyle)
		return m, nil

	case DayStartedMsg:
		m.day = msg.Day.String()
		m.dayPos = msg.Day.Index + 1
		if msg.Total > 0 {
			m.total = msg.Total
		}
		return m, nil

	case StageStartedMsg:
		m.stage = msg.Invocation.Step.Label()
		return m, nil

	case StageFinishedMsg:
		m.addEntry(formatStageEntry(msg.Result), stageStyle(msg.Result.Status))
		return m, nil

	case DayFinishedMsg:
		if m.progress != nil {
			m.snapshot = m.progress.DayFinished()
		}
		if msg.Day.Status == orchestration.DayFailed {
			m.failed++
		}
		m.addEntry(fmt.Sprintf("%s  day %d %s in %s", msg.Day.Date, msg.Day.Index,
			msg.Day.Status, format.FormatExecutionDuration(msg.Day.Duration)), dayStyle(msg.Day.Status))
		m.stage = ""
		return m, nil

	case RunFinishedMsg:
		if msg.Err != nil {
			m.addEntry("run ended: "+msg.Err.Error(), errorStyle)
		} else {
			m.addEntry(fmt.Sprintf("run %s finished: %d days", msg.Summary.RunID, len(msg.Summary.Days)), successStyle)
		}
		return m, nil

	case runCompleteMsg:
		m.done = true
		m.err = msg.Err
		m.header.SetDone()
		switch apperrors.ExitCodeFor(msg.Err) {
		case apperrors.ExitSuccess:
			m.header.SetState("done")
		case apperrors.ExitErrorCanceled:
			m.header.SetState("canceled")
		default:
			m.header.SetState("failed")
		}
		return m, nil

	case TickMsg:
		if m.done {
			return m, nil
		}
		return m, tea.Batch(sampleSysStatsCmd(), tickCmd())

	case SysStatsMsg:
		m.cpu.Push(msg.CPUPercent)
		m.mem.Push(msg.MemPercent)
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Pause):
		m.paused = !m.paused
		if m.paused {
			m.header.SetState("paused")
		} else if !m.done {
			m.header.SetState("running")
		}
		return m, nil

	case key.Matches(msg, m.keymap.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keymap.Up):
		m.scroll(1)
	case key.Matches(msg, m.keymap.Down):
		m.scroll(-1)
	case key.Matches(msg, m.keymap.PageUp):
		m.scroll(m.logLines())
	case key.Matches(msg, m.keymap.PageDown):
		m.scroll(-m.logLines())
	}
	return m, nil
}

// addEntry appends a line to the results panel. While paused the view stays
// on the same lines.
func (m *Model) addEntry(text string, style lipgloss.Style) {
	m.entries = append(m.entries, logEntry{text: text, style: style})
	if m.paused {
		m.offset++
	}
	if over := len(m.entries) - maxLogEntries; over > 0 {
		m.entries = append(m.entries[:0], m.entries[over:]...)
	}
	m.offset = min(m.offset, m.maxOffset())
}

func (m *Model) scroll(delta int) {
	m.offset = min(max(m.offset+delta, 0), m.maxOffset())
}

func (m Model) maxOffset() int {
	return max(len(m.entries)-m.logLines(), 0)
}

func (m Model) bodyHeight() int {
	return max(m.height-headerHeight-footerHeight-progressHeight, minBodyHeight)
}

// logLines is the number of entries visible in the results panel.
func (m Model) logLines() int {
	return max(m.bodyHeight()-3, 1)
}

func (m Model) logWidth() int {
	return m.width * LogPanelWidthPct / 100
}

func (m Model) sideWidth() int {
	return m.width - m.logWidth()
}

func (m Model) sparkWidth() int {
	return max(m.sideWidth()-12, 1)
}

// View renders the dashboard.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.logView(), m.systemView())
	return lipgloss.JoinVertical(lipgloss.Left, m.header.View(), m.progressView(), body, m.footerView())
}

func (m Model) progressView() string {
	barWidth := max(m.width-30, 10)
	day := "waiting for setup"
	if m.day != "" {
		day = fmt.Sprintf("Day %d/%d  %s", m.dayPos, m.total, m.day)
	}
	stage := m.stage
	if stage == "" {
		stage = "-"
	}
	lines := []string{
		labelStyle.Render("Day:   ") + valueStyle.Render(day),
		labelStyle.Render("Stage: ") + valueStyle.Render(stage),
		progressBarStyle.Render(format.FormatProgressBarWithETA(m.snapshot.Fraction, m.snapshot.ETA, barWidth)) +
			dimStyle.Render(fmt.Sprintf("  %d done, %d failed", m.snapshot.Done, m.failed)),
	}
	return panelStyle.Width(max(m.width-2, 0)).Render(strings.Join(lines, "\n"))
}

func (m Model) logView() string {
	visible := m.logLines()
	end := len(m.entries) - m.offset
	start := max(end-visible, 0)

	lines := []string{titleStyle.Render("Stage results")}
	for _, e := range m.entries[start:end] {
		lines = append(lines, e.style.Render(truncate(e.text, m.logWidth()-4)))
	}
	return panelStyle.Width(max(m.logWidth()-2, 0)).Height(m.bodyHeight() - 2).Render(strings.Join(lines, "\n"))
}

func (m Model) systemView() string {
	lines := []string{
		titleStyle.Render("System"),
		labelStyle.Render(fmt.Sprintf("CPU %5.1f%% ", m.cpu.Last())) + cpuSparkStyle.Render(RenderSparkline(m.cpu.Values())),
		labelStyle.Render(fmt.Sprintf("MEM %5.1f%% ", m.mem.Last())) + memSparkStyle.Render(RenderSparkline(m.mem.Values())),
	}
	return panelStyle.Width(max(m.sideWidth()-2, 0)).Height(m.bodyHeight() - 2).Render(strings.Join(lines, "\n"))
}

func (m Model) footerView() string {
	status := ""
	if m.done {
		if m.err != nil {
			status = errorStyle.Render("finished with error, press q to exit") + "  "
		} else {
			status = successStyle.Render("finished, press q to exit") + "  "
		}
	}
	return status + m.help.View(m.keymap)
}

func formatStageEntry(res pipeline.Result) string {
	date := res.Invocation.Date
	if date == "" {
		date = "setup     "
	}
	return fmt.Sprintf("%s  %-18s %-9s exit %-3d %s", date, res.Name(), res.Status,
		res.ExitCode, format.FormatExecutionDuration(res.Duration))
}

func stageStyle(s pipeline.Status) lipgloss.Style {
	switch s {
	case pipeline.Succeeded:
		return successStyle
	case pipeline.Canceled, pipeline.TimedOut:
		return warningStyle
	}
	return errorStyle
}

func dayStyle(s orchestration.DayStatus) lipgloss.Style {
	switch s {
	case orchestration.DayCompleted:
		return accentStyle
	case orchestration.DayFailed:
		return errorStyle
	}
	return warningStyle
}

func truncate(s string, width int) string {
	if width <= 1 || lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	return string(r[:min(len(r), width-1)]) + "…"
}

// Run starts the driver in a goroutine and shows the dashboard until the user
// quits. Quitting cancels the run. It returns the driver's error.
func Run(ctx context.Context, run RunFunc, opts Options) error {
	// Styles depend on the theme chosen after package init.
	initTUIStyles()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ref := &programRef{}
	p := tea.NewProgram(NewModel(opts, cancel), tea.WithAltScreen())
	ref.SetProgram(p)

	errCh := make(chan error, 1)
	go func() {
		err := run(ctx, &Bridge{ref: ref})
		ref.Send(runCompleteMsg{Err: err})
		errCh <- err
	}()

	_, uiErr := p.Run()
	cancel()
	runErr := <-errCh
	if runErr == nil && uiErr != nil {
		return apperrors.WrapError(uiErr, "dashboard")
	}
	return runErr
}

// tickCmd sends a TickMsg after tickInterval.
func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// sampleSysStatsCmd reads system-wide CPU and memory usage.
func sampleSysStatsCmd() tea.Cmd {
	return func() tea.Msg {
		return SysStatsMsg(sysmon.Sample())
	}
}
