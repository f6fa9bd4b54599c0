// ABOUTME: Tests for subcommand dispatch, serve, and health
// ABOUTME: Runs a real echo toolset on a loopback port

package cli

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tokengate-mcp/internal/config"
	"github.com/2389/tokengate-mcp/internal/tools"
)

func init() {
	color.NoColor = true
}

// isolate keeps the test from reading the developer's config or environment.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("TOKENGATE_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, name := range []string{"HOST", "PORT", "PORT_RANGE_START", "PORT_RANGE_END", "LOG_LEVEL", "LOG_FORMAT", "METRICS_ENABLED"} {
		t.Setenv(name, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

func echoApp() App {
	return App{
		Name:        "echo-test",
		Version:     "test",
		DefaultPort: 1,
		Build: func(context.Context, *config.Config, *slog.Logger) (*Services, error) {
			set, err := tools.NewToolset(tools.Echo())
			if err != nil {
				return nil, err
			}
			return &Services{Toolset: set, Summary: [][2]string{{"Mode", "open"}}}, nil
		},
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, echoApp().Run(context.Background(), []string{"help"}, &out))
	assert.Contains(t, out.String(), "Usage: echo-test [command]")

	out.Reset()
	err := echoApp().Run(context.Background(), []string{"bogus"}, &out)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, out.String(), "Unknown command: bogus")
}

func TestRun_ServeAndHealth(t *testing.T) {
	isolate(t)
	port := freePort(t)
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", strconv.Itoa(port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var serveOut bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- echoApp().Run(ctx, nil, &serveOut) }()

	require.Eventually(t, func() bool {
		var out bytes.Buffer
		return echoApp().Run(context.Background(), []string{"health"}, &out) == nil
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}

	assert.Contains(t, serveOut.String(), "tokengate-mcp · echo-test")
	assert.Contains(t, serveOut.String(), "127.0.0.1:"+strconv.Itoa(port))
	assert.Contains(t, serveOut.String(), "Mode:")
}

func TestRun_HealthScansRange(t *testing.T) {
	isolate(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()
	port := ts.Listener.Addr().(*net.TCPAddr).Port
	if port < 3 {
		t.Skip("unexpected port")
	}

	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT_RANGE_START", strconv.Itoa(port-2))
	t.Setenv("PORT_RANGE_END", strconv.Itoa(port))

	var out bytes.Buffer
	require.NoError(t, echoApp().Run(context.Background(), []string{"health"}, &out))
	assert.Equal(t, "healthy\n", out.String())
}

func TestRun_HealthFails(t *testing.T) {
	isolate(t)
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", strconv.Itoa(freePort(t)))

	var out bytes.Buffer
	err := echoApp().Run(context.Background(), []string{"health"}, &out)
	assert.Error(t, err)
}

func TestRun_BuildErrorStopsServe(t *testing.T) {
	isolate(t)
	app := echoApp()
	app.Build = func(context.Context, *config.Config, *slog.Logger) (*Services, error) {
		return nil, assert.AnError
	}

	var out bytes.Buffer
	err := app.Run(context.Background(), []string{"serve"}, &out)
	assert.ErrorIs(t, err, assert.AnError)
}
