package integration_tests

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/specialistvlad/netbus/internal/app"
	"github.com/specialistvlad/netbus/internal/cli"
	"github.com/specialistvlad/netbus/internal/hcl_adapter"
	"github.com/specialistvlad/netbus/internal/testutil"
	"github.com/stretchr/testify/require"
)

// writeFiles creates files under a fresh temporary directory and returns it.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return root
}

// freeAddr returns a loopback address that was free a moment ago.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// runResult holds everything a CLI run produced.
type runResult struct {
	Err    error
	Output *testutil.SafeBuffer
}

// newApp goes through the same path as the binary: flags, loader, app.
func newApp(t *testing.T, args ...string) (*app.App, *testutil.SafeBuffer) {
	t.Helper()
	out := &testutil.SafeBuffer{}
	cfg, exit, err := cli.Parse(append([]string{"-log-format", "text", "-log-level", "debug"}, args...), out)
	require.NoError(t, err)
	require.False(t, exit)
	return app.NewApp(out, cfg, hcl_adapter.NewLoader()), out
}

// runCLI runs a configuration to completion.
func runCLI(t *testing.T, args ...string) runResult {
	t.Helper()
	a, out := newApp(t, args...)
	err := a.Run(context.Background())
	t.Cleanup(func() {
		if testutil.LogsEnabled() {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), out.String())
		}
	})
	return runResult{Err: err, Output: out}
}

// startCLI runs a server configuration until the test ends and waits until
// addr answers its health check.
func startCLI(t *testing.T, addr string, args ...string) *testutil.SafeBuffer {
	t.Helper()
	a, out := newApp(t, args...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		if testutil.LogsEnabled() {
			t.Logf("--- Server Log Output for %s ---\n%s", t.Name(), out.String())
		}
	})

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond, "server never became healthy; logs:\n%s", out)
	return out
}

// quote renders s as an HCL string literal.
func quote(s string) string {
	return strconv.Quote(s)
}
