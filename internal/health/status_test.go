package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"UP", StatusUp},
		{"up", StatusUp},
		{"Healthy", StatusUp},
		{" ok ", StatusUp},
		{"DOWN", StatusDown},
		{"unhealthy", StatusDown},
		{"Error", StatusDown},
		{"degraded", StatusDegraded},
		{"SLOW", StatusDegraded},
		{"warning", StatusDegraded},
		{"starting", StatusStarting},
		{"INITIALIZING", StatusStarting},
		{"stopping", StatusStopping},
		{"shutting_down", StatusStopping},
		{"Maintenance", StatusMaintenance},
		{"under_maintenance", StatusMaintenance},
		{"", StatusUnknown},
		{"OUT_OF_SERVICE", StatusUnknown},
		{"shutting-down", StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestStatus_IsHealthy(t *testing.T) {
	healthy := map[Status]bool{
		StatusUp:          true,
		StatusStarting:    true,
		StatusDown:        false,
		StatusDegraded:    false,
		StatusUnknown:     false,
		StatusStopping:    false,
		StatusMaintenance: false,
	}
	for status, want := range healthy {
		assert.Equal(t, want, status.IsHealthy(), status)
	}
}

func TestStatus_Severity(t *testing.T) {
	tests := []struct {
		status Status
		want   Severity
		alert  bool
	}{
		{StatusUp, SeverityNormal, false},
		{StatusStarting, SeverityInfo, false},
		{StatusMaintenance, SeverityInfo, false},
		{StatusDegraded, SeverityWarning, true},
		{StatusStopping, SeverityWarning, true},
		{StatusUnknown, SeverityWarning, true},
		{StatusDown, SeverityCritical, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Severity())
			assert.Equal(t, tt.alert, tt.status.Severity().RequiresAlert())
		})
	}
}

func TestPriority_Level(t *testing.T) {
	assert.Equal(t, 1, PriorityCritical.Level())
	assert.Equal(t, 2, PriorityHigh.Level())
	assert.Equal(t, 3, PriorityMedium.Level())
	assert.Equal(t, 4, PriorityLow.Level())
	assert.Equal(t, 5, Priority("").Level())
}
