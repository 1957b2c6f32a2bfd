package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hl8/datalayer/o11y"
)

type Config struct {
	// Name labels the server in spans and metrics.
	Name string
	// Addr is the address to listen on.
	Addr string
	// Handler receives the requests.
	Handler http.Handler

	// Network is optional. One of "tcp", "tcp4", "tcp6", "unix" or
	// "unixpacket". Empty means tcp.
	Network string
}

type HTTPServer struct {
	listener *trackedListener
	server   *http.Server
}

// New binds the listener immediately, so a bad address fails at startup
// rather than when the system starts serving. The server does not accept
// requests until Serve is called.
func New(ctx context.Context, cfg Config) (s *HTTPServer, err error) {
	ctx, span := o11y.StartSpan(ctx, "server: new-server "+cfg.Name)
	defer o11y.End(span, &err)
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	span.AddField("server_name", cfg.Name)
	span.AddField("network", cfg.Network)

	ln, err := net.Listen(cfg.Network, cfg.Addr)
	if err != nil {
		return nil, err
	}

	tracked := &trackedListener{
		Listener: ln,
		name:     cfg.Name,
	}
	// the listener resolves :0 to a real port
	span.AddField("address", tracked.Addr().String())

	return &HTTPServer{
		listener: tracked,
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      cfg.Handler,
			ReadTimeout:  55 * time.Second,
			WriteTimeout: 55 * time.Second,
		},
	}, nil
}

// Serve accepts requests until ctx is cancelled, then shuts down gracefully,
// giving in-flight requests up to ten seconds to finish.
func (s *HTTPServer) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(sctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := s.server.Serve(s.listener)
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	return g.Wait()
}

// MetricsProducer exposes the listener's connection gauges.
func (s *HTTPServer) MetricsProducer() MetricProducer {
	return s.listener
}

// Addr is the bound address, useful when the config asked for port 0.
func (s HTTPServer) Addr() string {
	return s.listener.Addr().String()
}
