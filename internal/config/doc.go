// Package config handles configuration loading for the tokengate MCP servers.
//
// # Overview
//
// Configuration comes from an optional YAML or TOML file plus environment
// variables. Every setting has a default, so the open echo and weather
// servers run with no configuration at all.
//
// # Configuration File
//
// Locations (in order):
//
//  1. Path from TOKENGATE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/tokengate/config.yaml (~/.config when unset), if it exists
//  3. None: defaults plus environment
//
// Files ending in .toml are decoded as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	gate:
//	  rpc_url: "${ALCHEMY_URL}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Environment Overrides
//
// These variables win over file values when set and non-empty:
//
//	HOST, PORT, PORT_RANGE_START, PORT_RANGE_END
//	EVM_RPC_URL, EVM_CHAIN_ID, TOKEN_CONTRACT_ADDRESS, MIN_TOKEN_BALANCE
//	LEDGER_PATH, WEATHER_API_BASE, WEATHER_USER_AGENT
//	LOG_LEVEL, LOG_FORMAT, METRICS_ENABLED
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  host: "0.0.0.0"
//	  port: 3000              # fixed port; wins over the range
//	  port_range_start: 3001  # first free port in [start, end]
//	  port_range_end: 3100
//	  shutdown_timeout: "5s"
//
// Token gating (gated server only):
//
//	gate:
//	  rpc_url: "https://sepolia.base.org"
//	  chain_id: 84532
//	  token_address: "0x..."
//	  min_balance: "1"             # base units
//	  domain_name: "TokenGate"     # EIP-712 domain
//	  domain_version: "1"
//	  max_proof_lifetime: "10m"
//	  balance_cache_ttl: "30s"
//	  balance_cache_size: 10000    # LRU entries
//
// Weather (weather server only):
//
//	weather:
//	  base_url: "https://api.weather.gov"
//	  user_agent: "tokengate-mcp-weather/1.0"
//	  timeout: "15s"
//	  cache_ttl: "5m"
//	  cache_size: 512              # LRU entries
//
// Access ledger, logging and metrics:
//
//	ledger:
//	  path: "/var/lib/tokengate/access.db"   # empty disables the ledger
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: false
//	  path: "/metrics"
//
// # Validation
//
// Load() validates the sections every server uses: port and port range
// bounds, logging format, metrics path, and the weather base URL.
//
// ValidateGate() checks the gate section. The gated server calls it at
// startup and exits when the RPC URL, chain ID, or token address is missing
// or malformed.
//
// # Usage
//
//	cfg, err := config.Load(config.ResolvePath())
//	if err != nil {
//	    return err
//	}
package config
