package format

import (
	"fmt"
	"strings"
	"time"
)

const (
	// rateSmoothing is the weight of the newest rate sample.
	rateSmoothing = 0.3
	// MaxETA caps estimates produced from very slow early progress.
	MaxETA = 30 * 24 * time.Hour
)

// ProgressWithETA tracks how many of a known number of units (days) are
// done and estimates the remaining time from a smoothed completion rate.
// It is not safe for concurrent use.
type ProgressWithETA struct {
	total        int
	done         int
	startTime    time.Time
	lastUpdate   time.Time
	lastProgress float64
	progressRate float64 // fraction of the total per second
	now          func() time.Time
}

// NewProgressWithETA starts tracking total units from now.
func NewProgressWithETA(total int) *ProgressWithETA {
	return newProgressWithClock(total, time.Now)
}

func newProgressWithClock(total int, now func() time.Time) *ProgressWithETA {
	start := now()
	return &ProgressWithETA{total: total, startTime: start, lastUpdate: start, now: now}
}

// Total returns the number of units being tracked.
func (p *ProgressWithETA) Total() int { return p.total }

// Done returns the number of completed units.
func (p *ProgressWithETA) Done() int { return p.done }

// Fraction returns the completed share in [0, 1].
func (p *ProgressWithETA) Fraction() float64 {
	if p.total <= 0 {
		return 0
	}
	return clamp(float64(p.done) / float64(p.total))
}

// Advance records that done units are complete and returns the completed
// fraction together with the new ETA. Values outside [0, total] are clamped.
func (p *ProgressWithETA) Advance(done int) (float64, time.Duration) {
	p.done = max(0, min(done, p.total))
	progress := p.Fraction()

	now := p.now()
	if elapsed := now.Sub(p.lastUpdate).Seconds(); elapsed > 0 && progress > p.lastProgress {
		rate := (progress - p.lastProgress) / elapsed
		if p.progressRate == 0 {
			p.progressRate = rate
		} else {
			p.progressRate = rateSmoothing*rate + (1-rateSmoothing)*p.progressRate
		}
		p.lastUpdate = now
		p.lastProgress = progress
	}
	return progress, p.GetETA()
}

// GetETA returns the estimated remaining time, 0 while no rate is known
// and 0 once everything is done.
func (p *ProgressWithETA) GetETA() time.Duration {
	progress := p.Fraction()
	if p.progressRate <= 0 || progress >= 1 {
		return 0
	}
	secs := (1 - progress) / p.progressRate
	eta := time.Duration(secs * float64(time.Second))
	if eta > MaxETA || eta < 0 {
		return MaxETA
	}
	return eta
}

// Elapsed returns the time since tracking started.
func (p *ProgressWithETA) Elapsed() time.Duration {
	return p.now().Sub(p.startTime)
}

// ProgressBar renders a bar of the given length for a fraction in [0, 1].
func ProgressBar(progress float64, length int) string {
	filled := int(clamp(progress) * float64(length))
	return strings.Repeat("█", filled) + strings.Repeat("░", length-filled)
}

// FormatProgressBarWithETA renders "[bar] 42.0% ETA: 3m10s".
func FormatProgressBarWithETA(progress float64, eta time.Duration, width int) string {
	return fmt.Sprintf("[%s] %5.1f%% ETA: %s", ProgressBar(progress, width), clamp(progress)*100, FormatETA(eta))
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
