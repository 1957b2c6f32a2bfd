package db

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hl8/datalayer/o11y"
)

const defaultSlowQueryCapacity = 128

// QueryStats is a point in time snapshot of the aggregate query counters.
type QueryStats struct {
	Total      int64
	Succeeded  int64
	Failed     int64
	Slow       int64
	AvgElapsed time.Duration
	MaxElapsed time.Duration
}

// SlowQueryRecord captures one query whose measured duration exceeded the
// configured threshold.
type SlowQueryRecord struct {
	ID       string
	Query    string
	Params   string
	Duration time.Duration
	At       time.Time
	TenantID string
}

// Stats aggregates query counters and retains the most recent slow queries
// in a bounded ring, oldest evicted first. Counters reset only on process
// restart.
type Stats struct {
	mu            sync.Mutex
	total         int64
	succeeded     int64
	failed        int64
	slow          int64
	totalElapsed  time.Duration
	maxElapsed    time.Duration
	slowThreshold time.Duration

	ring []SlowQueryRecord
	next int
	full bool
}

func NewStats(slowThreshold time.Duration) *Stats {
	return &Stats{
		slowThreshold: slowThreshold,
		ring:          make([]SlowQueryRecord, defaultSlowQueryCapacity),
	}
}

func (s *Stats) record(tenantID, query string, params []interface{}, d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.totalElapsed += d
	if d > s.maxElapsed {
		s.maxElapsed = d
	}
	if err != nil && !o11y.IsWarning(err) {
		s.failed++
	} else {
		s.succeeded++
	}
	if s.slowThreshold > 0 && d >= s.slowThreshold {
		s.slow++
		s.ring[s.next] = SlowQueryRecord{
			ID:       uuid.New().String(),
			Query:    query,
			Params:   fmt.Sprint(params...),
			Duration: d,
			At:       time.Now(),
			TenantID: tenantID,
		}
		s.next = (s.next + 1) % len(s.ring)
		if s.next == 0 {
			s.full = true
		}
	}
}

// Snapshot returns the aggregate counters. It has no side effects.
func (s *Stats) Snapshot() QueryStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := QueryStats{
		Total:      s.total,
		Succeeded:  s.succeeded,
		Failed:     s.failed,
		Slow:       s.slow,
		MaxElapsed: s.maxElapsed,
	}
	if s.total > 0 {
		snap.AvgElapsed = s.totalElapsed / time.Duration(s.total)
	}
	return snap
}

// SlowQueries returns the retained slow queries, oldest first.
func (s *Stats) SlowQueries() []SlowQueryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []SlowQueryRecord
	if s.full {
		out = append(out, s.ring[s.next:]...)
	}
	out = append(out, s.ring[:s.next]...)
	return out
}

// Gauges allows query stats to be reported on the system metrics interval.
func (s *Stats) Gauges() map[string]float64 {
	snap := s.Snapshot()
	return map[string]float64{
		"queries_total":     float64(snap.Total),
		"queries_succeeded": float64(snap.Succeeded),
		"queries_failed":    float64(snap.Failed),
		"queries_slow":      float64(snap.Slow),
		"query_avg_ms":      float64(snap.AvgElapsed) / float64(time.Millisecond),
		"query_max_ms":      float64(snap.MaxElapsed) / float64(time.Millisecond),
	}
}
