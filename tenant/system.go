package tenant

import (
	"context"
	"fmt"

	"github.com/hl8/datalayer/system"
)

func (m *Manager) MetricName() string {
	return "tenant-manager"
}

func (m *Manager) Gauges(_ context.Context) map[string]float64 {
	g := m.stats.Gauges()
	stats := m.Stats()
	g["tenant_connections"] = float64(stats.TenantConnections)

	pool := m.primary.Stats()
	g["primary_in_use"] = float64(pool.InUse)
	g["primary_idle"] = float64(pool.Idle)
	g["primary_wait_count"] = float64(pool.WaitCount)
	return g
}

// poolGauges reports each tenant pool's connection counts tagged with the
// tenant id, so one noisy tenant stands out from the rest.
type poolGauges struct {
	m *Manager
}

func (p *poolGauges) GaugeName() string {
	return "tenant-pools"
}

func (p *poolGauges) Gauges(_ context.Context) map[string][]system.TaggedValue {
	p.m.mu.RLock()
	defer p.m.mu.RUnlock()

	out := map[string][]system.TaggedValue{
		"in_use": {},
		"idle":   {},
	}
	for id, e := range p.m.tenants {
		pool := e.db.Stats()
		tags := []string{"tenant:" + id}
		out["in_use"] = append(out["in_use"], system.TaggedValue{Val: float32(pool.InUse), Tags: tags})
		out["idle"] = append(out["idle"], system.TaggedValue{Val: float32(pool.Idle), Tags: tags})
	}
	return out
}

func (m *Manager) HealthChecks() (name string, ready, live func(ctx context.Context) error) {
	return "tenant-manager", func(ctx context.Context) error {
		if err := m.primary.PingContext(ctx); err != nil {
			return fmt.Errorf("primary database health check failed: %w", err)
		}
		return nil
	}, nil
}

// Load connects the manager and registers its health check, gauges and
// cleanup with the system.
func Load(ctx context.Context, cfg Config, sys *system.System) (*Manager, error) {
	m, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sys.AddMetrics(m)
	sys.AddGauges(&poolGauges{m: m})
	sys.AddHealthCheck(m)
	sys.AddCleanup(m.CloseAll)

	return m, nil
}
