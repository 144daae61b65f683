package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func statuses(counts map[Status]int) []Status {
	var out []Status
	for s, n := range counts {
		for i := 0; i < n; i++ {
			out = append(out, s)
		}
	}
	return out
}

func TestComputeOverall(t *testing.T) {
	tests := []struct {
		name   string
		counts map[Status]int
		want   OverallStatus
	}{
		{"empty", nil, OverallUnhealthy},
		{"all up", map[Status]int{StatusUp: 6}, OverallHealthy},
		{"up and starting", map[Status]int{StatusUp: 5, StatusStarting: 1}, OverallHealthy},
		{"one degraded of six", map[Status]int{StatusUp: 5, StatusDegraded: 1}, OverallPartiallyHealthy},
		{"one unknown of six", map[Status]int{StatusUp: 5, StatusUnknown: 1}, OverallPartiallyHealthy},
		{"one degraded of five", map[Status]int{StatusUp: 4, StatusDegraded: 1}, OverallPartiallyHealthy},
		{"two degraded of six", map[Status]int{StatusUp: 4, StatusDegraded: 2}, OverallDegraded},
		{"one down of six", map[Status]int{StatusUp: 5, StatusDown: 1}, OverallDegraded},
		{"three down of ten", map[Status]int{StatusUp: 7, StatusDown: 3}, OverallDegraded},
		{"two down of six", map[Status]int{StatusUp: 4, StatusDown: 2}, OverallUnhealthy},
		{"three down of six", map[Status]int{StatusUp: 3, StatusDown: 3}, OverallUnhealthy},
		{"four down of six", map[Status]int{StatusUp: 2, StatusDown: 4}, OverallCritical},
		{"all down", map[Status]int{StatusDown: 7}, OverallCritical},
		{"single down", map[Status]int{StatusDown: 1}, OverallCritical},
		{"all unknown", map[Status]int{StatusUnknown: 7}, OverallPartiallyHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeOverall(statuses(tt.counts)))
		})
	}
}

func TestOverallStatus_IsUp(t *testing.T) {
	assert.True(t, OverallHealthy.IsUp())
	assert.True(t, OverallPartiallyHealthy.IsUp())
	assert.False(t, OverallDegraded.IsUp())
	assert.False(t, OverallUnhealthy.IsUp())
	assert.False(t, OverallCritical.IsUp())
}

func TestOverallStatus_Description(t *testing.T) {
	for _, s := range overallStatuses {
		assert.NotEmpty(t, s.Description(), s)
	}
	assert.Empty(t, OverallStatus("other").Description())
}
