// Package mcp serves a fixed toolset over the Model Context Protocol.
//
// # Overview
//
// MCP (Model Context Protocol) is a standard for AI tool integration. This
// package registers a tools.Toolset with the official Go SDK server and
// exposes it over HTTP. The protocol itself (JSON-RPC framing, sessions,
// initialize, tools/list) is handled by the SDK.
//
// # Endpoints
//
//   - GET /health - liveness, server name, version and tool count
//   - /sse - MCP over server-sent events (GET opens the stream, POST sends)
//   - /mcp - MCP streamable HTTP transport
//   - GET /metrics - Prometheus metrics, when a metrics.Metrics is configured
//
// Extra handlers, such as the gated server's /access/stats, are mounted via
// Config.Routes.
//
// # Tool Results
//
// Tools return tools.Result values. Only this package turns them into
// protocol results: a failure becomes a text content block with isError set,
// never a JSON-RPC error. Failure causes are logged with the call's
// request_id and never sent to the client.
//
// An unknown tool name gets the same treatment: an isError result reading
// "Unknown tool: <name>", counted under the unknown_tool outcome.
//
// # Listening
//
// Listen binds a fixed port or scans a port range for the first free port:
//
//	ln, err := mcp.Listen("0.0.0.0", 0, 3001, 3100)
//	if err != nil {
//	    return err
//	}
//	return server.Run(ctx, ln)
//
// Run blocks until ctx is canceled, then shuts down gracefully. Open SSE
// streams are closed once the shutdown timeout passes.
//
// # Integration with Claude Desktop
//
//	{
//	  "mcpServers": {
//	    "echo": {
//	      "url": "http://localhost:3000/sse"
//	    }
//	  }
//	}
package mcp
