package httpserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sync/errgroup"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/hl8/datalayer/testing/testcontext"
)

func startServer(ctx context.Context, t *testing.T, cfg Config) *HTTPServer {
	t.Helper()

	srv, err := New(ctx, cfg)
	assert.Assert(t, err)

	g, ctx := errgroup.WithContext(ctx)
	t.Cleanup(func() {
		assert.Check(t, g.Wait())
	})
	g.Go(func() error {
		return srv.Serve(ctx)
	})
	return srv
}

func helloHandler() http.Handler {
	r := http.NewServeMux()
	r.HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "hello from the data layer")
	})
	return r
}

func TestServer_TCP(t *testing.T) {
	ctx, cancel := context.WithCancel(testcontext.Background())
	defer cancel()

	srv := startServer(ctx, t, Config{
		Name:    "test-server",
		Addr:    "localhost:0",
		Handler: helloHandler(),
	})

	body, status := get(t, http.DefaultClient, srv.Addr(), "hello")
	assert.Check(t, cmp.Equal(status, http.StatusOK))
	assert.Check(t, cmp.Equal(body, "hello from the data layer"))
}

func TestServer_TracksConnections(t *testing.T) {
	ctx, cancel := context.WithCancel(testcontext.Background())
	defer cancel()

	srv := startServer(ctx, t, Config{
		Name:    "test-server",
		Addr:    "localhost:0",
		Handler: helloHandler(),
	})

	_, status := get(t, http.DefaultClient, srv.Addr(), "hello")
	assert.Check(t, cmp.Equal(status, http.StatusOK))

	mp := srv.MetricsProducer()
	assert.Check(t, cmp.Equal(mp.MetricName(), "test-server-listener"))
	gauges := mp.Gauges(ctx)
	assert.Check(t, gauges["total_connections"] >= 1)
}

func TestServer_UnixSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(testcontext.Background())
	defer cancel()

	socket := filepath.Join(os.TempDir(), "datalayer-httpserver-test.sock")
	_ = os.Remove(socket)
	startServer(ctx, t, Config{
		Name:    "test-server",
		Addr:    socket,
		Handler: helloHandler(),
		Network: "unix",
	})

	c := &http.Client{
		Transport: &http.Transport{
			DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", socket)
			},
		},
	}

	body, status := get(t, c, "localhost", "hello")
	assert.Check(t, cmp.Equal(status, http.StatusOK))
	assert.Check(t, cmp.Equal(body, "hello from the data layer"))
}

func get(t *testing.T, c *http.Client, baseurl, path string) (string, int) {
	t.Helper()

	r, err := c.Get(fmt.Sprintf("http://%s/%s", baseurl, path))
	assert.Assert(t, err)

	defer func() {
		assert.Assert(t, r.Body.Close())
	}()

	b, err := io.ReadAll(r.Body)
	assert.Assert(t, err)

	return string(b), r.StatusCode
}
