package orchestration

import (
	"time"

	"github.com/agbru/dayrun/internal/format"
)

// ProgressAggregator turns finished days into progress and ETA figures.
// Both the CLI presenter and the dashboard use it so that their numbers agree.
type ProgressAggregator struct {
	state *format.ProgressWithETA
	done  int
}

// NewProgressAggregator tracks a run of totalDays. It returns nil when
// totalDays <= 0.
func NewProgressAggregator(totalDays int) *ProgressAggregator {
	if totalDays <= 0 {
		return nil
	}
	return &ProgressAggregator{state: format.NewProgressWithETA(totalDays)}
}

// AggregatedProgress is the state after a day finished.
type AggregatedProgress struct {
	Done     int
	Total    int
	Fraction float64
	ETA      time.Duration
}

// DayFinished counts one more reached day.
func (a *ProgressAggregator) DayFinished() AggregatedProgress {
	a.done++
	fraction, eta := a.state.Advance(a.done)
	return AggregatedProgress{Done: a.state.Done(), Total: a.state.Total(), Fraction: fraction, ETA: eta}
}

// Snapshot returns the current state without counting a day.
func (a *ProgressAggregator) Snapshot() AggregatedProgress {
	return AggregatedProgress{
		Done:     a.state.Done(),
		Total:    a.state.Total(),
		Fraction: a.state.Fraction(),
		ETA:      a.state.GetETA(),
	}
}

// Elapsed returns the time since the aggregator was created.
func (a *ProgressAggregator) Elapsed() time.Duration {
	return a.state.Elapsed()
}
