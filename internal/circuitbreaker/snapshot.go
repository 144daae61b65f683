package circuitbreaker

import "time"

// Snapshot is the externally visible state of one breaker.
type Snapshot struct {
	Name  string `json:"name"`
	State State  `json:"state"`
	// FailureRate is the window failure percentage, or -1 while fewer than
	// the minimum number of calls have been recorded.
	FailureRate         float64    `json:"failureRate"`
	BufferedCalls       int        `json:"bufferedCalls"`
	FailedCalls         int        `json:"failedCalls"`
	NotPermittedCalls   uint64     `json:"notPermittedCalls"`
	OpenedAt            *time.Time `json:"openedAt,omitempty"`
	RemainingOpenMillis int64      `json:"remainingOpenMillis,omitempty"`
}
