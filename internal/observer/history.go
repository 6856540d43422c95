package observer

// history is a bounded rolling sample buffer. Appending beyond capacity
// evicts the oldest sample. It is owned by the Observer and only touched from
// the control-loop goroutine.
type history struct {
	samples []float64
	max     int
}

func newHistory(max int) *history {
	return &history{samples: make([]float64, 0, max), max: max}
}

func (h *history) Append(v float64) {
	if len(h.samples) == h.max {
		copy(h.samples, h.samples[1:])
		h.samples = h.samples[:h.max-1]
	}
	h.samples = append(h.samples, v)
}

func (h *history) Len() int {
	return len(h.samples)
}

// Samples returns a copy of the buffered values, oldest first.
func (h *history) Samples() []float64 {
	out := make([]float64, len(h.samples))
	copy(out, h.samples)
	return out
}
