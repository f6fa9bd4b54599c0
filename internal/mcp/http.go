// ABOUTME: HTTP surface: health, SSE and streamable MCP endpoints, metrics, extras.
// ABOUTME: Routing and middleware come from chi.

package mcp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Handler returns the HTTP handler serving every endpoint:
//
//	GET  /health    liveness and tool count
//	     /sse       MCP over server-sent events
//	     /mcp       MCP streamable HTTP
//	GET  /metrics   Prometheus metrics (when configured)
//	     ...        extra routes from Config.Routes
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	getServer := func(*http.Request) *sdk.Server { return s.mcp }
	r.Handle("/sse", sdk.NewSSEHandler(getServer, nil))
	r.Handle("/mcp", sdk.NewStreamableHTTPHandler(getServer, nil))

	if s.metrics != nil {
		r.Handle(s.metricsPath, s.metrics.Handler())
	}

	paths := make([]string, 0, len(s.routes))
	for path := range s.routes {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		r.Handle(path, s.routes[path])
	}

	return r
}

type healthResponse struct {
	Status  string `json:"status"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Tools   int    `json:"tools"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(healthResponse{
		Status:  "ok",
		Name:    s.name,
		Version: s.version,
		Tools:   len(s.toolset.Descriptors()),
	})
	if err != nil {
		s.logger.Warn("failed to encode health response", "error", err)
	}
}

// requestLogger logs each request at debug level. SSE streams are logged
// when they close.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.LogAttrs(r.Context(), slog.LevelDebug, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
