package db

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestStats_Counters(t *testing.T) {
	s := NewStats(10 * time.Millisecond)

	s.record("", "SELECT 1", nil, time.Millisecond, nil)
	s.record("", "SELECT 2", nil, 2*time.Millisecond, errors.New("boom"))
	s.record("", "SELECT 3", nil, 3*time.Millisecond, ErrNop)
	s.record("acme", "SELECT pg_sleep(1)", nil, 20*time.Millisecond, nil)

	snap := s.Snapshot()
	assert.Equal(t, snap.Total, int64(4))
	assert.Equal(t, snap.Failed, int64(1))
	// warnings are not failures
	assert.Equal(t, snap.Succeeded, int64(3))
	assert.Equal(t, snap.Slow, int64(1))
	assert.Equal(t, snap.MaxElapsed, 20*time.Millisecond)

	slow := s.SlowQueries()
	assert.Equal(t, len(slow), 1)
	assert.Equal(t, slow[0].Query, "SELECT pg_sleep(1)")
	assert.Equal(t, slow[0].TenantID, "acme")
	assert.Assert(t, slow[0].ID != "")
}

func TestStats_SlowQueryRing(t *testing.T) {
	s := NewStats(time.Millisecond)

	for i := 0; i < defaultSlowQueryCapacity+10; i++ {
		s.record("", fmt.Sprintf("SELECT %d", i), nil, 2*time.Millisecond, nil)
	}

	slow := s.SlowQueries()
	assert.Equal(t, len(slow), defaultSlowQueryCapacity)
	// oldest retained entry first, the first ten were evicted
	assert.Equal(t, slow[0].Query, "SELECT 10")
	assert.Equal(t, slow[len(slow)-1].Query, fmt.Sprintf("SELECT %d", defaultSlowQueryCapacity+9))
}

func TestStats_Gauges(t *testing.T) {
	s := NewStats(0)
	s.record("", "SELECT 1", nil, 4*time.Millisecond, nil)

	g := s.Gauges()
	assert.Equal(t, g["queries_total"], float64(1))
	assert.Equal(t, g["query_avg_ms"], float64(4))
}
