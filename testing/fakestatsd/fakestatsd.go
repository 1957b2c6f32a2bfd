// Package fakestatsd is a UDP statsd sink for tests. It records every metric
// it receives so assertions can be made on name, value and tags.
package fakestatsd

import (
	"bytes"
	"net"
	"strings"
	"sync"
	"testing"

	"gotest.tools/v3/assert"
)

type Metric struct {
	Name  string
	Value string
	Tags  []string
}

type FakeStatsd struct {
	conn *net.UDPConn

	mu      sync.RWMutex
	metrics []Metric
}

// New starts a statsd listener on a random local port. It stops when the
// test ends.
func New(t testing.TB) *FakeStatsd {
	t.Helper()

	addr, err := net.ResolveUDPAddr("udp", "localhost:0")
	assert.Assert(t, err)

	conn, err := net.ListenUDP("udp", addr)
	assert.Assert(t, err)

	s := &FakeStatsd{conn: conn}
	go s.receive()
	t.Cleanup(func() {
		_ = s.conn.Close()
	})

	return s
}

// Addr is the host:port to point a statsd client at.
func (s *FakeStatsd) Addr() string {
	return s.conn.LocalAddr().String()
}

// Metrics returns a copy of everything received so far.
func (s *FakeStatsd) Metrics() []Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Metric, len(s.metrics))
	copy(out, s.metrics)
	return out
}

// Reset discards any recorded metrics.
func (s *FakeStatsd) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics = nil
}

func (s *FakeStatsd) receive() {
	buf := make([]byte, 10000)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			if strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			continue
		}

		for _, line := range bytes.Split(buf[:n], []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			s.record(parse(string(line)))
		}
	}
}

func (s *FakeStatsd) record(m Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics = append(s.metrics, m)
}

// parse splits a raw statsd datagram, "name:value|type|#tag1,tag2".
func parse(raw string) Metric {
	name, rest, _ := strings.Cut(raw, ":")
	value, rawTags, hasTags := strings.Cut(rest, "#")

	var tags []string
	if hasTags {
		tags = strings.Split(rawTags, ",")
	}
	return Metric{Name: name, Value: value, Tags: tags}
}
