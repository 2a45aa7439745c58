package tui

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/agbru/dayrun/internal/daterange"
	"github.com/agbru/dayrun/internal/orchestration"
	"github.com/agbru/dayrun/internal/pipeline"
	"github.com/agbru/dayrun/internal/sysmon"
)

// programRef is a shared reference to the tea.Program. bubbletea copies the
// model on every Update, so the driver goroutine needs a pointer that
// survives the copies.
type programRef struct {
	mu      sync.RWMutex
	program *tea.Program
}

// SetProgram sets the program reference.
func (r *programRef) SetProgram(p *tea.Program) {
	r.mu.Lock()
	r.program = p
	r.mu.Unlock()
}

// Send forwards msg to the program, dropping it if none is set.
func (r *programRef) Send(msg tea.Msg) {
	r.mu.RLock()
	p := r.program
	r.mu.RUnlock()
	if p != nil {
		p.Send(msg)
	}
}

// Messages forwarded from the driver.
type (
	SetupStartedMsg struct{ Stages []string }
	DayStartedMsg   struct {
		Day   daterange.Day
		Total int
	}
	StageStartedMsg  struct{ Invocation pipeline.Invocation }
	StageFinishedMsg struct{ Result pipeline.Result }
	DayFinishedMsg   struct{ Day orchestration.DayResult }
	RunFinishedMsg   struct {
		Summary orchestration.RunSummary
		Err     error
	}
)

// Local messages.
type (
	// TickMsg drives the elapsed timer and system sampling.
	TickMsg time.Time
	// SysStatsMsg carries a system sample.
	SysStatsMsg sysmon.Stats
	// runCompleteMsg is sent once the driver goroutine has returned.
	runCompleteMsg struct{ Err error }
)

// Bridge is the orchestration.Observer that turns driver events into
// bubbletea messages.
type Bridge struct {
	ref *programRef
}

var _ orchestration.Observer = (*Bridge)(nil)

func (b *Bridge) SetupStarted(stages []pipeline.Stage) {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	b.ref.Send(SetupStartedMsg{Stages: names})
}

func (b *Bridge) DayStarted(day daterange.Day, total int) {
	b.ref.Send(DayStartedMsg{Day: day, Total: total})
}

func (b *Bridge) StageStarted(inv pipeline.Invocation) {
	b.ref.Send(StageStartedMsg{Invocation: inv})
}

func (b *Bridge) StageFinished(res pipeline.Result) {
	b.ref.Send(StageFinishedMsg{Result: res})
}

func (b *Bridge) DayFinished(day orchestration.DayResult) {
	b.ref.Send(DayFinishedMsg{Day: day})
}

func (b *Bridge) RunFinished(summary orchestration.RunSummary, err error) {
	b.ref.Send(RunFinishedMsg{Summary: summary, Err: err})
}
