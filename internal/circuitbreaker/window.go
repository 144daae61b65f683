package circuitbreaker

// window is a ring buffer of the most recent call outcomes.
type window struct {
	outcomes []bool // true means failure
	next     int
	count    int
	failures int
}

func newWindow(size int) *window {
	return &window{outcomes: make([]bool, size)}
}

func (w *window) record(failed bool) {
	if w.count == len(w.outcomes) {
		if w.outcomes[w.next] {
			w.failures--
		}
	} else {
		w.count++
	}
	w.outcomes[w.next] = failed
	if failed {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.outcomes)
}

// failureRate returns the failure percentage, or 0 for an empty window.
func (w *window) failureRate() float64 {
	if w.count == 0 {
		return 0
	}
	return float64(w.failures) * 100 / float64(w.count)
}

func (w *window) reset() {
	clear(w.outcomes)
	w.next, w.count, w.failures = 0, 0, 0
}
