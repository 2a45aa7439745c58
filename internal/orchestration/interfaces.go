package orchestration

import (
	"time"

	"github.com/agbru/dayrun/internal/daterange"
	"github.com/agbru/dayrun/internal/pipeline"
)

// DayStatus is the outcome of one day of the loop.
type DayStatus int

const (
	// DayCompleted means every stage of the day succeeded.
	DayCompleted DayStatus = iota
	// DayFailed means a stage did not succeed.
	DayFailed
	// DayStopped means the run stopped on purpose after a --stop-after stage.
	DayStopped
	// DayCanceled means the run was interrupted during the day.
	DayCanceled
)

// String returns the label used in reports and metrics.
func (s DayStatus) String() string {
	switch s {
	case DayCompleted:
		return "completed"
	case DayFailed:
		return "failed"
	case DayStopped:
		return "stopped"
	case DayCanceled:
		return "canceled"
	}
	return "unknown"
}

// DayResult is the record of one reached iteration.
type DayResult struct {
	// Index is the zero-based iteration index, also written to the accumulators.
	Index    int
	Date     string
	Stages   []pipeline.Result
	Status   DayStatus
	Duration time.Duration
}

// Failure returns the first stage that did not succeed, if any.
func (d DayResult) Failure() (pipeline.Result, bool) {
	for _, r := range d.Stages {
		if !r.Status.OK() {
			return r, true
		}
	}
	return pipeline.Result{}, false
}

// RunSummary aggregates a whole run.
type RunSummary struct {
	RunID    string
	Pipeline string
	// TotalDays is the number of days the run was planned to cover.
	TotalDays int
	Setup     []pipeline.Result
	Days      []DayResult
	Elapsed   time.Duration
}

// Count returns how many days ended with the given status.
func (s RunSummary) Count(status DayStatus) int {
	n := 0
	for _, d := range s.Days {
		if d.Status == status {
			n++
		}
	}
	return n
}

// Observer receives the events of a run. Calls are made synchronously from
// the driver goroutine, in order.
type Observer interface {
	SetupStarted(stages []pipeline.Stage)
	DayStarted(day daterange.Day, total int)
	StageStarted(inv pipeline.Invocation)
	StageFinished(res pipeline.Result)
	DayFinished(day DayResult)
	RunFinished(summary RunSummary, err error)
}

// NullObserver ignores every event. Embed it to implement only some methods.
type NullObserver struct{}

func (NullObserver) SetupStarted([]pipeline.Stage)    {}
func (NullObserver) DayStarted(daterange.Day, int)    {}
func (NullObserver) StageStarted(pipeline.Invocation) {}
func (NullObserver) StageFinished(pipeline.Result)    {}
func (NullObserver) DayFinished(DayResult)            {}
func (NullObserver) RunFinished(RunSummary, error)    {}

// Observers fans every event out to each member in order.
type Observers []Observer

func (o Observers) SetupStarted(stages []pipeline.Stage) {
	for _, ob := range o {
		ob.SetupStarted(stages)
	}
}

func (o Observers) DayStarted(day daterange.Day, total int) {
	for _, ob := range o {
		ob.DayStarted(day, total)
	}
}

func (o Observers) StageStarted(inv pipeline.Invocation) {
	for _, ob := range o {
		ob.StageStarted(inv)
	}
}

func (o Observers) StageFinished(res pipeline.Result) {
	for _, ob := range o {
		ob.StageFinished(res)
	}
}

func (o Observers) DayFinished(day DayResult) {
	for _, ob := range o {
		ob.DayFinished(day)
	}
}

func (o Observers) RunFinished(summary RunSummary, err error) {
	for _, ob := range o {
		ob.RunFinished(summary, err)
	}
}
