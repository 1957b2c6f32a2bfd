package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hl8/datalayer/closer"
)

// HealthCheck exposes one pool's readiness check and gauges to the system.
type HealthCheck struct {
	Name  string
	DB    *sqlx.DB
	Stats *Stats
}

func (h *HealthCheck) HealthChecks() (name string, ready, live func(ctx context.Context) error) {
	return h.Name, newPGHealthCheck(h.DB), nil
}

func (h *HealthCheck) MetricName() string {
	return h.Name
}

func (h *HealthCheck) Gauges(_ context.Context) map[string]float64 {
	stats := h.DB.Stats()
	g := map[string]float64{
		"in_use":               float64(stats.InUse),
		"idle":                 float64(stats.Idle),
		"wait_count":           float64(stats.WaitCount),
		"wait_duration":        float64(stats.WaitDuration / time.Millisecond),
		"max_idle_closed":      float64(stats.MaxIdleClosed),
		"max_idle_time_closed": float64(stats.MaxIdleTimeClosed),
		"max_lifetime_closed":  float64(stats.MaxLifetimeClosed),
	}
	if h.Stats != nil {
		for k, v := range h.Stats.Gauges() {
			g[k] = v
		}
	}
	return g
}

// newPGHealthCheck confirms the pool can reach postgres with a ping and a
// trivial query, a ping alone can pass against a half-dead connection.
func newPGHealthCheck(db *sqlx.DB) func(ctx context.Context) error {
	return func(ctx context.Context) (err error) {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres health check failed on ping: %w", err)
		}

		rows, err := db.QueryContext(ctx, `SELECT VERSION()`)
		if err != nil {
			return fmt.Errorf("postgres health check failed on select: %w", err)
		}
		defer closer.ErrorHandler(rows, &err)

		return rows.Err()
	}
}
