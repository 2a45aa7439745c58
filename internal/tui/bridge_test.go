package tui

import (
	"errors"
	"testing"

	"github.com/agbru/dayrun/internal/daterange"
	"github.com/agbru/dayrun/internal/orchestration"
	"github.com/agbru/dayrun/internal/pipeline"
)

func TestProgramRef_Send_NilProgram(t *testing.T) {
	t.Parallel()
	ref := &programRef{}
	// Must not panic or block.
	ref.Send(TickMsg{})
}

func TestBridge_NilProgramIsNoop(t *testing.T) {
	t.Parallel()
	b := &Bridge{ref: &programRef{}}
	p := pipeline.Daily()

	b.SetupStarted(p.Setup)
	b.DayStarted(daterange.Day{Index: 0}, 364)
	b.StageStarted(pipeline.Invocation{Step: pipeline.Step{Stage: p.Stages[0], Hour: -1}})
	b.StageFinished(pipeline.Result{Status: pipeline.Succeeded})
	b.DayFinished(orchestration.DayResult{Status: orchestration.DayCompleted})
	b.RunFinished(orchestration.RunSummary{}, errors.New("boom"))
}

func TestBridge_ImplementsObserver(t *testing.T) {
	t.Parallel()
	var _ orchestration.Observer = &Bridge{ref: &programRef{}}
}
