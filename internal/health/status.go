package health

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is the normalized health of one service.
type Status string

// Service statuses.
const (
	StatusUp          Status = "UP"
	StatusDown        Status = "DOWN"
	StatusDegraded    Status = "DEGRADED"
	StatusUnknown     Status = "UNKNOWN"
	StatusStarting    Status = "STARTING"
	StatusStopping    Status = "STOPPING"
	StatusMaintenance Status = "MAINTENANCE"
)

// Severity grades a status for alerting.
type Severity string

// Severities, least severe first.
const (
	SeverityNormal   Severity = "NORMAL"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

var upper = cases.Upper(language.Und)

// Normalize maps a status string reported by a backend onto a Status.
// Matching ignores case and surrounding whitespace; unrecognized values
// become UNKNOWN.
func Normalize(raw string) Status {
	switch upper.String(strings.TrimSpace(raw)) {
	case "UP", "HEALTHY", "OK":
		return StatusUp
	case "DOWN", "UNHEALTHY", "ERROR":
		return StatusDown
	case "DEGRADED", "SLOW", "WARNING":
		return StatusDegraded
	case "STARTING", "INITIALIZING":
		return StatusStarting
	case "STOPPING", "SHUTTING_DOWN":
		return StatusStopping
	case "MAINTENANCE", "UNDER_MAINTENANCE":
		return StatusMaintenance
	default:
		return StatusUnknown
	}
}

// IsHealthy reports whether the status counts as healthy.
func (s Status) IsHealthy() bool {
	return s == StatusUp || s == StatusStarting
}

// Severity returns the alerting severity of the status.
func (s Status) Severity() Severity {
	switch s {
	case StatusUp:
		return SeverityNormal
	case StatusStarting, StatusMaintenance:
		return SeverityInfo
	case StatusDown:
		return SeverityCritical
	default:
		// DEGRADED, STOPPING and UNKNOWN
		return SeverityWarning
	}
}

// RequiresAlert reports whether the severity warrants an alert.
func (s Severity) RequiresAlert() bool {
	return s == SeverityWarning || s == SeverityCritical
}

// Priority ranks a service by the impact of its outage.
type Priority string

// Service priorities.
const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// Level returns 1 for CRITICAL through 4 for LOW, 5 when unset.
func (p Priority) Level() int {
	switch p {
	case PriorityCritical:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	case PriorityLow:
		return 4
	default:
		return 5
	}
}
