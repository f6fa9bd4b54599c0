// ABOUTME: Configuration loading and parsing for the tokengate MCP servers
// ABOUTME: YAML or TOML files with env var expansion, env overrides, and duration parsing

package config

import (
	"fmt"
	"math/big"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Gate    GateConfig    `yaml:"gate" toml:"gate"`
	Weather WeatherConfig `yaml:"weather" toml:"weather"`
	Ledger  LedgerConfig  `yaml:"ledger" toml:"ledger"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the listen address. A non-zero Port takes precedence
// over the port range.
type ServerConfig struct {
	Host           string `yaml:"host" toml:"host"`
	Port           int    `yaml:"port" toml:"port"`
	PortRangeStart int    `yaml:"port_range_start" toml:"port_range_start"`
	PortRangeEnd   int    `yaml:"port_range_end" toml:"port_range_end"`

	ShutdownTimeout    time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// PortConfigured reports whether a fixed port or a port range was set.
func (s ServerConfig) PortConfigured() bool {
	return s.Port != 0 || s.PortRangeStart != 0 || s.PortRangeEnd != 0
}

// GateConfig holds token gating settings, used only by the gated server
type GateConfig struct {
	RPCURL        string `yaml:"rpc_url" toml:"rpc_url"`
	ChainID       int64  `yaml:"chain_id" toml:"chain_id"`
	TokenAddress  string `yaml:"token_address" toml:"token_address"`
	MinBalance    string `yaml:"min_balance" toml:"min_balance"` // base units, decimal
	DomainName    string `yaml:"domain_name" toml:"domain_name"`
	DomainVersion string `yaml:"domain_version" toml:"domain_version"`

	// BalanceCacheSize caps cached (token, holder) balances.
	BalanceCacheSize int `yaml:"balance_cache_size" toml:"balance_cache_size"`

	MaxProofLifetime time.Duration `yaml:"-" toml:"-"`
	BalanceCacheTTL  time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	MaxProofLifetimeRaw string `yaml:"max_proof_lifetime" toml:"max_proof_lifetime"`
	BalanceCacheTTLRaw  string `yaml:"balance_cache_ttl" toml:"balance_cache_ttl"`
}

// MinBalanceInt parses MinBalance.
func (g GateConfig) MinBalanceInt() (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(g.MinBalance), 10)
	if !ok {
		return nil, fmt.Errorf("gate.min_balance %q is not a decimal integer", g.MinBalance)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("gate.min_balance must not be negative")
	}
	return v, nil
}

// WeatherConfig holds National Weather Service client settings
type WeatherConfig struct {
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	UserAgent string `yaml:"user_agent" toml:"user_agent"`
	CacheSize int    `yaml:"cache_size" toml:"cache_size"`

	Timeout  time.Duration `yaml:"-" toml:"-"`
	CacheTTL time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw  string `yaml:"timeout" toml:"timeout"`
	CacheTTLRaw string `yaml:"cache_ttl" toml:"cache_ttl"`
}

// LedgerConfig holds access ledger configuration. An empty path disables it.
type LedgerConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			ShutdownTimeout: 5 * time.Second,
		},
		Gate: GateConfig{
			MinBalance:       "1",
			DomainName:       "TokenGate",
			DomainVersion:    "1",
			MaxProofLifetime: 10 * time.Minute,
			BalanceCacheTTL:  30 * time.Second,
			BalanceCacheSize: 10000,
		},
		Weather: WeatherConfig{
			BaseURL:   "https://api.weather.gov",
			UserAgent: "tokengate-mcp-weather/1.0",
			Timeout:   15 * time.Second,
			CacheTTL:  5 * time.Minute,
			CacheSize: 512,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// ResolvePath returns the config file to load.
// Priority: TOKENGATE_CONFIG env var > XDG_CONFIG_HOME/tokengate/config.yaml
// (or ~/.config/tokengate/config.yaml) if it exists > "" (environment only).
func ResolvePath() string {
	if envPath := os.Getenv("TOKENGATE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	path := filepath.Join(configDir, "tokengate", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Load reads a configuration file from the given path and returns a parsed Config.
// An empty path skips the file and starts from defaults.
// Environment variables in the format ${VAR_NAME} are expanded, then the
// override variables (PORT, EVM_RPC_URL, ...) are applied on top.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		// Expand environment variables in the raw content
		expandedData := expandEnvVars(string(data))

		if strings.EqualFold(filepath.Ext(path), ".toml") {
			if _, err := toml.Decode(expandedData, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnvOverrides applies the documented environment variables. Set
// variables win over file values.
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"HOST":                   &cfg.Server.Host,
		"EVM_RPC_URL":            &cfg.Gate.RPCURL,
		"TOKEN_CONTRACT_ADDRESS": &cfg.Gate.TokenAddress,
		"MIN_TOKEN_BALANCE":      &cfg.Gate.MinBalance,
		"LEDGER_PATH":            &cfg.Ledger.Path,
		"WEATHER_API_BASE":       &cfg.Weather.BaseURL,
		"WEATHER_USER_AGENT":     &cfg.Weather.UserAgent,
		"LOG_LEVEL":              &cfg.Logging.Level,
		"LOG_FORMAT":             &cfg.Logging.Format,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PORT":             &cfg.Server.Port,
		"PORT_RANGE_START": &cfg.Server.PortRangeStart,
		"PORT_RANGE_END":   &cfg.Server.PortRangeEnd,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s=%q is not an integer", name, v)
		}
		*dst = n
	}

	if v := os.Getenv("EVM_CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("EVM_CHAIN_ID=%q is not an integer", v)
		}
		cfg.Gate.ChainID = id
	}

	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("METRICS_ENABLED=%q is not a boolean", v)
		}
		cfg.Metrics.Enabled = enabled
	}

	return nil
}

// Validate checks the settings every server needs.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Server.Port == 0 && (c.Server.PortRangeStart != 0 || c.Server.PortRangeEnd != 0) {
		start, end := c.Server.PortRangeStart, c.Server.PortRangeEnd
		if start < 1 || end > 65535 || start > end {
			return fmt.Errorf("server port range %d-%d is invalid", start, end)
		}
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
	}

	if err := checkURL("weather.base_url", c.Weather.BaseURL, "http", "https"); err != nil {
		return err
	}
	if c.Weather.UserAgent == "" {
		return fmt.Errorf("weather.user_agent is required")
	}
	if c.Weather.CacheSize <= 0 {
		return fmt.Errorf("weather.cache_size must be positive")
	}

	return nil
}

// ValidateGate checks the token gating settings. The gated server calls it
// at startup and refuses to run when it fails.
func (c *Config) ValidateGate() error {
	g := c.Gate

	if g.RPCURL == "" {
		return fmt.Errorf("gate.rpc_url is required (or set EVM_RPC_URL)")
	}
	if err := checkURL("gate.rpc_url", g.RPCURL, "http", "https", "ws", "wss"); err != nil {
		return err
	}
	if g.ChainID <= 0 {
		return fmt.Errorf("gate.chain_id must be a positive integer (or set EVM_CHAIN_ID)")
	}
	if g.TokenAddress == "" {
		return fmt.Errorf("gate.token_address is required (or set TOKEN_CONTRACT_ADDRESS)")
	}
	if !common.IsHexAddress(g.TokenAddress) {
		return fmt.Errorf("gate.token_address %q is not a hex address", g.TokenAddress)
	}
	if common.HexToAddress(g.TokenAddress) == (common.Address{}) {
		return fmt.Errorf("gate.token_address must not be the zero address")
	}
	if _, err := g.MinBalanceInt(); err != nil {
		return err
	}
	if g.DomainName == "" || g.DomainVersion == "" {
		return fmt.Errorf("gate.domain_name and gate.domain_version are required")
	}
	if g.MaxProofLifetime <= 0 {
		return fmt.Errorf("gate.max_proof_lifetime must be positive")
	}
	if g.BalanceCacheSize <= 0 {
		return fmt.Errorf("gate.balance_cache_size must be positive")
	}

	return nil
}

func checkURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %q is not a valid URL: %w", field, raw, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s %q must be an absolute %s URL", field, raw, strings.Join(schemes, "/"))
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"max_proof_lifetime", cfg.Gate.MaxProofLifetimeRaw, &cfg.Gate.MaxProofLifetime},
		{"balance_cache_ttl", cfg.Gate.BalanceCacheTTLRaw, &cfg.Gate.BalanceCacheTTL},
		{"timeout", cfg.Weather.TimeoutRaw, &cfg.Weather.Timeout},
		{"cache_ttl", cfg.Weather.CacheTTLRaw, &cfg.Weather.CacheTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
