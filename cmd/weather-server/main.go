// ABOUTME: Entry point for the weather MCP server
// ABOUTME: Serves NWS forecast and alert tools on the first free port in a range

package main

import (
	"context"
	"log/slog"

	"github.com/2389/tokengate-mcp/internal/cli"
	"github.com/2389/tokengate-mcp/internal/config"
	"github.com/2389/tokengate-mcp/internal/tools"
	"github.com/2389/tokengate-mcp/internal/weather"
)

// version is set with -ldflags at build time.
var version = "dev"

func main() {
	cli.Main(cli.App{
		Name:              "weather-server",
		Version:           version,
		DefaultRangeStart: 3001,
		DefaultRangeEnd:   3100,
		Build:             build,
	})
}

func build(_ context.Context, cfg *config.Config, logger *slog.Logger) (*cli.Services, error) {
	client := weather.New(weather.Options{
		BaseURL:   cfg.Weather.BaseURL,
		UserAgent: cfg.Weather.UserAgent,
		Timeout:   cfg.Weather.Timeout,
		CacheTTL:  cfg.Weather.CacheTTL,
		CacheSize: cfg.Weather.CacheSize,
	})
	toolLogger := logger.With("component", "weather")

	set, err := tools.NewToolset(
		weather.ForecastTool(client, toolLogger),
		weather.AlertsTool(client, toolLogger),
	)
	if err != nil {
		return nil, err
	}

	return &cli.Services{
		Toolset: set,
		Summary: [][2]string{{"NWS", client.BaseURL}},
	}, nil
}
