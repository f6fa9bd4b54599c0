// ABOUTME: Entry point for the open echo MCP server
// ABOUTME: Serves a single echo tool with no access control

package main

import (
	"context"
	"log/slog"

	"github.com/2389/tokengate-mcp/internal/cli"
	"github.com/2389/tokengate-mcp/internal/config"
	"github.com/2389/tokengate-mcp/internal/tools"
)

// version is set with -ldflags at build time.
var version = "dev"

func main() {
	cli.Main(cli.App{
		Name:        "echo-server",
		Version:     version,
		DefaultPort: 3000,
		Build: func(_ context.Context, _ *config.Config, _ *slog.Logger) (*cli.Services, error) {
			set, err := tools.NewToolset(tools.Echo())
			if err != nil {
				return nil, err
			}
			return &cli.Services{Toolset: set}, nil
		},
	})
}
