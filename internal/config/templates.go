package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Wheel Ledger Configuration

[database]
# Ledger backend: "sqlite" or "postgres"
driver = "sqlite"
# SQLite database file (defaults to wheel.db next to this file)
# path = "/home/me/.config/wheel-ledger/wheel.db"
# PostgreSQL connection string, used when driver = "postgres"
dsn = ""

[log]
# Log level: debug, info, warn, error
level = "warn"
console = true
# Rotating log file
file = false
max_size = 20
max_backups = 5
max_age = 30

[engine]
# Maximum parent links followed when walking a campaign
max_chain_depth = 100
# Positions expiring within this many days are flagged
alert_dte_threshold = 5
# User owning the accounts when --user is not given
default_user_id = 1

[quotes]
# How long a quote is reused
cache_ttl = "30s"

[quotes.prices]
# Static prices used when no quote is passed on the command line
# AAPL = "189.50"

[ui]
color_enabled = true
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
