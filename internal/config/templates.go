package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Option Sentinel Configuration

[engine]
# Supervisor cadence for snapshot refresh and decisions
cycle_interval = "3s"
# Cadence for diffing live-price subscriptions
subscribe_interval = "10s"
# Cadence for the diagnostic summary of tracked instruments
summary_interval = "60s"
# Derivative exchanges in scope
exchanges = ["NFO", "BFO"]
# Product types in scope; the first entry is used for placed orders
products = ["NRML", "MIS"]
# Minimum price increment the exchange accepts
tick_size = 0.05
# Margin added above cost basis for the protective SELL LIMIT
sell_margin = 0.25
# Price tolerance when matching a live order against the target
price_epsilon = 0.000001

[costing]
# Enable execution-based costing (session + ledger engines)
use_executions = true
# How far back to search for executions
lookback_days = 45
# Seed the ledger with the broker-reported position on first cycle
synthetic_bootstrap = true
# Minimum observed-buy coverage of net quantity to trust an engine
coverage_ratio = 0.95
# Grace period after a session starts before degraded fallbacks apply
defer_window = "2s"
# Maximum execution ids remembered for de-duplication
dedup_capacity = 10000

[metrics]
# Serve prometheus metrics over HTTP
enabled = true
listen = ":9107"

[logging]
# Log level: debug, info, warn, error
level = "info"
console = true
file = true
max_size = 100
max_backups = 7
max_age = 30
`

const credentialsTemplate = `# Option Sentinel Credentials
# You can also set KITE_API_KEY, KITE_API_SECRET, KITE_USER_ID in the
# environment or a .env file; environment values take precedence.

[kite]
api_key = ""
api_secret = ""
user_id = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	// Restricted permissions: credentials
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return nil
}
