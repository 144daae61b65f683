package health

import "github.com/samber/lo"

// OverallStatus summarizes every service into one gateway status.
type OverallStatus string

// Overall statuses, best first.
const (
	OverallHealthy          OverallStatus = "HEALTHY"
	OverallPartiallyHealthy OverallStatus = "PARTIALLY_HEALTHY"
	OverallDegraded         OverallStatus = "DEGRADED"
	OverallUnhealthy        OverallStatus = "UNHEALTHY"
	OverallCritical         OverallStatus = "CRITICAL"
)

// ComputeOverall derives the gateway status from the service statuses.
// With T services of which H are healthy, D are DOWN and G are DEGRADED,
// the first matching rule wins:
//
//	HEALTHY            H == T
//	PARTIALLY_HEALTHY  D == 0 and G <= 0.2*T
//	DEGRADED           D <= 0.3*T
//	UNHEALTHY          D <= 0.5*T
//	CRITICAL           otherwise
//
// An empty set is UNHEALTHY. The ratios are compared in integers.
func ComputeOverall(statuses []Status) OverallStatus {
	total := len(statuses)
	if total == 0 {
		return OverallUnhealthy
	}

	healthy := lo.CountBy(statuses, Status.IsHealthy)
	down := lo.Count(statuses, StatusDown)
	degraded := lo.Count(statuses, StatusDegraded)

	switch {
	case healthy == total:
		return OverallHealthy
	case down == 0 && degraded*5 <= total:
		return OverallPartiallyHealthy
	case down*10 <= total*3:
		return OverallDegraded
	case down*2 <= total:
		return OverallUnhealthy
	default:
		return OverallCritical
	}
}

// IsUp reports whether the gateway as a whole is serving normally.
func (o OverallStatus) IsUp() bool {
	return o == OverallHealthy || o == OverallPartiallyHealthy
}

// Description returns a human readable explanation of the status.
func (o OverallStatus) Description() string {
	switch o {
	case OverallHealthy:
		return "All services are operating normally"
	case OverallPartiallyHealthy:
		return "Some services report problems but core functions work"
	case OverallDegraded:
		return "Several services report problems and performance is degraded"
	case OverallUnhealthy:
		return "Many services are down and normal service is not possible"
	case OverallCritical:
		return "Core services are down and the platform is unavailable"
	default:
		return ""
	}
}
