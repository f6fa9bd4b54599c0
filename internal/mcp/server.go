// ABOUTME: MCP server wrapper: registers a toolset with the go-sdk server.
// ABOUTME: Typed tool results become protocol results only at this boundary.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2389/tokengate-mcp/internal/metrics"
	"github.com/2389/tokengate-mcp/internal/tools"
)

// Config holds configuration for the MCP server.
type Config struct {
	Name    string
	Version string
	Toolset *tools.Toolset
	Logger  *slog.Logger

	// Metrics is optional. When set, MetricsPath (default /metrics) serves it.
	Metrics     *metrics.Metrics
	MetricsPath string

	// Routes are extra HTTP handlers mounted next to the protocol endpoints.
	Routes map[string]http.Handler

	ShutdownTimeout time.Duration
}

// Server exposes a fixed toolset over the MCP SSE and streamable HTTP transports.
type Server struct {
	name            string
	version         string
	toolset         *tools.Toolset
	logger          *slog.Logger
	metrics         *metrics.Metrics
	metricsPath     string
	routes          map[string]http.Handler
	shutdownTimeout time.Duration

	mcp *sdk.Server
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, errors.New("server name is required")
	}
	if cfg.Toolset == nil {
		return nil, errors.New("toolset is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	s := &Server{
		name:            cfg.Name,
		version:         version,
		toolset:         cfg.Toolset,
		logger:          logger,
		metrics:         cfg.Metrics,
		metricsPath:     metricsPath,
		routes:          cfg.Routes,
		shutdownTimeout: shutdownTimeout,
		mcp:             sdk.NewServer(&sdk.Implementation{Name: cfg.Name, Version: version}, nil),
	}

	for _, d := range cfg.Toolset.Descriptors() {
		s.mcp.AddTool(&sdk.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		}, s.toolHandler(d.Name))
	}
	s.mcp.AddReceivingMiddleware(s.unknownToolMiddleware)

	return s, nil
}

// MCP returns the underlying protocol server, for transports other than HTTP.
func (s *Server) MCP() *sdk.Server {
	return s.mcp
}

// toolHandler adapts one tool to the SDK's raw handler. The SDK does no
// argument validation for raw handlers; the toolset does it.
func (s *Server) toolHandler(name string) sdk.ToolHandler {
	return func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		var raw json.RawMessage
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}

		var res tools.Result
		args, err := decodeArguments(raw)
		if err != nil {
			res = tools.Failf(tools.KindValidation, err, "Invalid arguments for %s: arguments must be a JSON object", name)
		} else {
			res = s.Call(ctx, name, args)
		}
		return toCallToolResult(res), nil
	}
}

// unknownToolMiddleware answers tools/call for unregistered names with an
// unknown_tool result instead of the SDK's JSON-RPC error.
func (s *Server) unknownToolMiddleware(next sdk.MethodHandler) sdk.MethodHandler {
	return func(ctx context.Context, method string, req sdk.Request) (sdk.Result, error) {
		if method == "tools/call" {
			if call, ok := req.(*sdk.CallToolRequest); ok && call.Params != nil && !s.toolset.Has(call.Params.Name) {
				return toCallToolResult(s.Call(ctx, call.Params.Name, nil)), nil
			}
		}
		return next(ctx, method, req)
	}
}

// Call runs a tool through the toolset with logging and metrics. It is what
// the protocol handlers invoke and is exported for in-process callers.
func (s *Server) Call(ctx context.Context, name string, args tools.Arguments) tools.Result {
	requestID := uuid.New().String()
	start := time.Now()

	s.logger.Debug("tools/call",
		"tool_name", name,
		"request_id", requestID,
	)

	res := s.toolset.Call(ctx, name, args)
	elapsed := time.Since(start)

	s.metrics.RecordToolCall(name, res.Outcome(), elapsed)

	if f := res.Failure(); f != nil {
		if f.Kind == tools.KindAccessDenied {
			s.metrics.RecordAccessDenied(name)
		}
		level := slog.LevelInfo
		if f.Kind == tools.KindUpstream || f.Kind == tools.KindInternal {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "tool call failed",
			"tool_name", name,
			"request_id", requestID,
			"kind", string(f.Kind),
			"error", f.Err,
			"duration", elapsed,
		)
		return res
	}

	s.logger.Debug("tools/call complete",
		"tool_name", name,
		"request_id", requestID,
		"duration", elapsed,
	)
	return res
}

// decodeArguments parses the raw argument object. Absent arguments mean {}.
func decodeArguments(raw json.RawMessage) (tools.Arguments, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return tools.Arguments{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("decoding arguments: %w", err)
	}
	if args == nil {
		return tools.Arguments{}, nil
	}
	return tools.Arguments(args), nil
}

// toCallToolResult converts a typed result to protocol form.
func toCallToolResult(res tools.Result) *sdk.CallToolResult {
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: res.Text()}},
		IsError: res.IsError(),
	}
}
