// ABOUTME: TCP listener selection: a fixed port or the first free port in a range.
// ABOUTME: Also runs the HTTP server with graceful shutdown.

package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// ErrNoFreePort is returned when every port in the range is taken.
var ErrNoFreePort = errors.New("no free port in range")

// Listen binds host:port. When port is 0 and a range is given, it binds the
// first port in [rangeStart, rangeEnd] that is free. Port 0 with no range
// lets the kernel choose.
func Listen(host string, port, rangeStart, rangeEnd int) (net.Listener, error) {
	if port != 0 || (rangeStart == 0 && rangeEnd == 0) {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			return nil, fmt.Errorf("listening on port %d: %w", port, err)
		}
		return ln, nil
	}

	if rangeStart < 1 || rangeEnd > 65535 || rangeStart > rangeEnd {
		return nil, fmt.Errorf("invalid port range %d-%d", rangeStart, rangeEnd)
	}

	var lastErr error
	for p := rangeStart; p <= rangeEnd; p++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err == nil {
			return ln, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w %d-%d: %v", ErrNoFreePort, rangeStart, rangeEnd, lastErr)
}

// Run serves on ln until ctx is canceled or the server fails.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening",
			"addr", ln.Addr().String(),
			"sse", "/sse",
			"streamable_http", "/mcp",
		)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	// Fresh context: the original is already canceled
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	shutdownErr := httpServer.Shutdown(shutdownCtx)
	if errors.Is(shutdownErr, context.DeadlineExceeded) {
		// Open SSE streams never finish on their own
		shutdownErr = httpServer.Close()
	}

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}
