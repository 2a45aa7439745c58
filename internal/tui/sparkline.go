package tui

// sparklineChars maps a 0..100 value to one of eight block heights.
var sparklineChars = [8]rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// History keeps the most recent samples of a gauge, oldest first.
type History struct {
	samples []float64
	limit   int
}

// NewHistory creates a history holding at most limit samples.
func NewHistory(limit int) *History {
	return &History{limit: max(limit, 1)}
}

// Push appends a sample and drops the oldest ones beyond the limit.
func (h *History) Push(v float64) {
	h.samples = append(h.samples, v)
	if over := len(h.samples) - h.limit; over > 0 {
		h.samples = append(h.samples[:0], h.samples[over:]...)
	}
}

// SetLimit changes the capacity, keeping the most recent samples.
func (h *History) SetLimit(limit int) {
	h.limit = max(limit, 1)
	if over := len(h.samples) - h.limit; over > 0 {
		h.samples = append(h.samples[:0], h.samples[over:]...)
	}
}

// Len returns the number of samples held.
func (h *History) Len() int { return len(h.samples) }

// Last returns the newest sample, 0 when empty.
func (h *History) Last() float64 {
	if len(h.samples) == 0 {
		return 0
	}
	return h.samples[len(h.samples)-1]
}

// Values returns a copy of the samples.
func (h *History) Values() []float64 {
	return append([]float64(nil), h.samples...)
}

// RenderSparkline draws values in 0..100 as block characters.
func RenderSparkline(values []float64) string {
	runes := make([]rune, len(values))
	for i, v := range values {
		v = min(max(v, 0), 100)
		runes[i] = sparklineChars[min(int(v/100*7), 7)]
	}
	return string(runes)
}
