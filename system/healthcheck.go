package system

import "context"

// HealthChecker is implemented by anything that wants the admin API to
// check it. Either returned func may be nil when the checker has nothing
// to report for readiness or liveness.
type HealthChecker interface {
	HealthChecks() (name string, ready, live func(ctx context.Context) error)
}
