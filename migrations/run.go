package migrations

import (
	"sync"
	"time"
)

// State is the lifecycle of one migration run. A run is pending until it
// starts, then running, and finishes completed or failed. A failed run
// becomes rolled_back once a rollback reverts it.
type State string

const (
	StatePending    State = "pending"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateRolledBack State = "rolled_back"
)

// Run is a snapshot of one migration run.
type Run struct {
	TenantID   string
	State      State
	StartedAt  time.Time
	FinishedAt time.Time
	Applied    []Applied
	Error      string
}

type runState struct {
	mu   sync.Mutex
	info Run
}

func (r *runState) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info.State = StateFailed
	r.info.Error = err.Error()
	r.info.FinishedAt = time.Now()
}

func (r *runState) complete(applied []Applied) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info.State = StateCompleted
	r.info.Applied = applied
	r.info.FinishedAt = time.Now()
}

func (r *runState) snapshot() Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

func (r *Runner) startRun(tenantID string) *runState {
	run := &runState{info: Run{
		TenantID:  tenantID,
		State:     StateRunning,
		StartedAt: time.Now(),
	}}
	r.mu.Lock()
	r.runs[tenantID] = run
	r.mu.Unlock()
	return run
}

func (r *Runner) markRolledBack(tenantID string) {
	r.mu.Lock()
	run, ok := r.runs[tenantID]
	r.mu.Unlock()
	if !ok {
		return
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	if run.info.State == StateFailed {
		run.info.State = StateRolledBack
	}
}

// LastRun reports the most recent migration run against the primary database
// (empty tenant id) or a tenant database.
func (r *Runner) LastRun(tenantID string) (Run, bool) {
	r.mu.Lock()
	run, ok := r.runs[tenantID]
	r.mu.Unlock()
	if !ok {
		return Run{}, false
	}
	return run.snapshot(), true
}
