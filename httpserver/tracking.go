package httpserver

import (
	"context"
	"net"
	"net/url"
	"sync"
)

// trackedListener wraps a net.Listener counting connections, so the server
// can report gauges about who is connected to it.
type trackedListener struct {
	net.Listener

	mu         sync.RWMutex
	name       string
	accepted   int
	activeConn int
	remotes    map[string]int
}

// Accept returns the next connection wrapped so that its Close updates the
// listener's counts.
func (l *trackedListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return conn, err
	}
	tracked := &trackedConn{
		l:    l,
		Conn: conn,
	}
	l.track(tracked, true)

	return tracked, nil
}

// MetricName satisfies MetricProducer.
func (l *trackedListener) MetricName() string {
	return l.name + "-listener"
}

// Gauges satisfies MetricProducer with a snapshot of the connection counts.
func (l *trackedListener) Gauges(_ context.Context) map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var minPer, maxPer int
	if l.activeConn > 0 {
		minPer = 100000
		for _, c := range l.remotes {
			if c > maxPer {
				maxPer = c
			}
			if c < minPer {
				minPer = c
			}
		}
	}
	return map[string]float64{
		"number_of_remotes":  float64(len(l.remotes)),
		"total_connections":  float64(l.accepted),
		"active_connections": float64(l.activeConn),
		// the per remote spread shows whether clients balance across us well
		"max_connections_per_remote": float64(maxPer),
		"min_connections_per_remote": float64(minPer),
	}
}

func (l *trackedListener) track(c *trackedConn, add bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remotes == nil {
		l.remotes = make(map[string]int)
	}
	// key on the remote host only, the port varies per connection
	host := (&url.URL{Host: c.RemoteAddr().String()}).Hostname()
	if add {
		l.accepted++
		l.activeConn++
		l.remotes[host]++
	} else {
		l.activeConn--
		l.remotes[host]--
		if l.remotes[host] == 0 {
			delete(l.remotes, host)
		}
	}
}

// trackedConn undoes its listener accounting when closed.
type trackedConn struct {
	net.Conn

	l *trackedListener
}

func (c *trackedConn) Close() error {
	c.l.track(c, false)
	return c.Conn.Close()
}
