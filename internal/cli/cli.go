// ABOUTME: Shared entry point for the server binaries: subcommands, banner, config, logging
// ABOUTME: Each binary supplies a Build function that returns its toolset

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/tokengate-mcp/internal/config"
	"github.com/2389/tokengate-mcp/internal/logging"
	"github.com/2389/tokengate-mcp/internal/mcp"
	"github.com/2389/tokengate-mcp/internal/metrics"
	"github.com/2389/tokengate-mcp/internal/tools"
)

// Services is what a binary contributes to the shared server.
type Services struct {
	Toolset *tools.Toolset
	Routes  map[string]http.Handler
	// Summary lines printed under the banner, e.g. {"Token", "0x..."}.
	Summary [][2]string
	// Close releases resources opened by Build. May be nil.
	Close func() error
}

// App describes one server binary.
type App struct {
	Name    string
	Version string

	// Port defaults applied when neither a port nor a range is configured.
	DefaultPort       int
	DefaultRangeStart int
	DefaultRangeEnd   int

	// Build validates binary-specific configuration and constructs the toolset.
	Build func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error)
}

// Main runs the app with os.Args and exits non-zero on failure.
func Main(app App) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := app.Run(ctx, os.Args[1:], os.Stdout)
	cancel()

	if errors.Is(err, errUsage) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

// Run dispatches a subcommand. serve is the default when none is given.
func (a App) Run(ctx context.Context, args []string, out io.Writer) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "serve":
		return a.runServe(ctx, out)
	case "health":
		return a.runHealth(ctx, out)
	case "help", "-h", "--help":
		a.usage(out)
		return nil
	default:
		fmt.Fprintf(out, "Unknown command: %s\n\n", cmd)
		a.usage(out)
		return errUsage
	}
}

func (a App) usage(out io.Writer) {
	fmt.Fprintf(out, "Usage: %s [command]\n", a.Name)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  serve    Start the MCP server (default)")
	fmt.Fprintln(out, "  health   Check a running server's health endpoint")
}

// loadConfig loads configuration and applies the app's port defaults.
func (a App) loadConfig() (*config.Config, string, error) {
	path := config.ResolvePath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Server.PortConfigured() {
		cfg.Server.Port = a.DefaultPort
		cfg.Server.PortRangeStart = a.DefaultRangeStart
		cfg.Server.PortRangeEnd = a.DefaultRangeEnd
	}
	return cfg, path, nil
}

func (a App) runServe(ctx context.Context, out io.Writer) error {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Fprintf(out, "\n    ◆ tokengate-mcp · %s\n", a.Name)
	gray.Fprintf(out, "    version: %s\n\n", a.Version)

	cfg, path, err := a.loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging, os.Stderr)

	services, err := a.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if services.Close != nil {
		defer func() {
			if err := services.Close(); err != nil {
				logger.Warn("failed to release resources", "error", err)
			}
		}()
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	server, err := mcp.NewServer(mcp.Config{
		Name:            a.Name,
		Version:         a.Version,
		Toolset:         services.Toolset,
		Logger:          logger.With("component", "mcp"),
		Metrics:         m,
		MetricsPath:     cfg.Metrics.Path,
		Routes:          services.Routes,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	ln, err := mcp.Listen(cfg.Server.Host, cfg.Server.Port, cfg.Server.PortRangeStart, cfg.Server.PortRangeEnd)
	if err != nil {
		return err
	}

	if path == "" {
		path = "(environment only)"
	}
	lines := [][2]string{
		{"Config", path},
		{"Listen", ln.Addr().String()},
		{"SSE", "/sse"},
		{"HTTP", "/mcp"},
	}
	if m != nil {
		lines = append(lines, [2]string{"Metrics", cfg.Metrics.Path})
	}
	lines = append(lines, services.Summary...)
	for _, l := range lines {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "%-9s %s\n", l[0]+":", l[1])
	}
	fmt.Fprintln(out)

	logger.Info("starting "+a.Name,
		"addr", ln.Addr().String(),
		"tools", len(services.Toolset.Descriptors()),
	)

	return server.Run(ctx, ln)
}

// runHealth probes /health on the configured port, or on each port of the
// configured range until one answers.
func (a App) runHealth(ctx context.Context, out io.Writer) error {
	cfg, _, err := a.loadConfig()
	if err != nil {
		return err
	}

	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	ports := []int{cfg.Server.Port}
	if cfg.Server.Port == 0 {
		ports = ports[:0]
		for p := cfg.Server.PortRangeStart; p <= cfg.Server.PortRangeEnd; p++ {
			ports = append(ports, p)
		}
	}

	client := &http.Client{Timeout: 2 * time.Second}
	var lastErr error = errors.New("no port configured")
	for _, p := range ports {
		url := "http://" + net.JoinHostPort(host, strconv.Itoa(p)) + "/health"
		if lastErr = probe(ctx, client, url); lastErr == nil {
			fmt.Fprintln(out, "healthy")
			return nil
		}
	}
	return fmt.Errorf("health check failed: %w", lastErr)
}

func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
