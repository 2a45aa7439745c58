package cli

import (
	"time"

	"github.com/briandowns/spinner"
)

// SpinnerRefreshRate is the animation interval of the stage spinner.
const SpinnerRefreshRate = 200 * time.Millisecond

// Spinner abstracts the terminal spinner shown while a stage runs, so the
// presenter can be tested without a terminal.
type Spinner interface {
	Start()
	Stop()
	// UpdateSuffix sets the text displayed after the spinner.
	UpdateSuffix(suffix string)
}

// realSpinner adapts spinner.Spinner to the Spinner interface.
type realSpinner struct {
	s *spinner.Spinner
}

func (rs *realSpinner) Start() { rs.s.Start() }

func (rs *realSpinner) Stop() { rs.s.Stop() }

func (rs *realSpinner) UpdateSuffix(suffix string) {
	rs.s.Lock()
	rs.s.Suffix = suffix
	rs.s.Unlock()
}

var newSpinner = func(options ...spinner.Option) Spinner {
	s := spinner.New(spinner.CharSets[11], SpinnerRefreshRate, options...)
	return &realSpinner{s}
}

// nopSpinner is used in quiet mode and when the output is not a terminal.
type nopSpinner struct{}

func (nopSpinner) Start()              {}
func (nopSpinner) Stop()               {}
func (nopSpinner) UpdateSuffix(string) {}
