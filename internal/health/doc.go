// Package health aggregates the health of the backend services.
//
// An Aggregator polls each configured service's health endpoint on a
// timer and keeps the latest ServiceHealth per service in a per-key atomic
// cache. Entries start UNKNOWN and are overwritten on every poll; they are
// never removed. Probe failures are folded into a DOWN status and never
// surface as errors.
//
// The overall gateway status is derived from the cached statuses on
// demand by ComputeOverall. The gin handlers in this package expose the
// gateway's own liveness, the per-service report and runtime metrics.
package health
