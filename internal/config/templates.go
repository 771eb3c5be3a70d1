package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# VizBot Configuration

[server]
# HTTP listen address
listen_addr = ":8080"
# SQLite database path (defaults under the config directory)
# db_path = "/home/you/.config/vizbot/vizbot.db"

[trading]
# Virtual starting cash in INR
initial_funds = 400000.0
# NIFTY option lot size
lot_size = 75
# Fraction of strike notional blocked as margin on SELL
short_margin_rate = 0.15

[costs]
# Flat brokerage per executed leg in INR
brokerage_per_leg = 20.0
# Fraction of premium turnover charged per leg
turnover_rate = 0.0005

[analysis]
# Both PCR ratios above this -> Bullish
bullish_pcr = 1.10
# Both PCR ratios below this -> Bearish
bearish_pcr = 0.90
# Distance from 1.0 beyond which confidence is High
high_band = 0.30
# Distance from 1.0 beyond which confidence is Medium
medium_band = 0.20

[scoring]
# Minimum open interest for a strike to qualify
min_oi = 100000
# Minimum traded volume for a strike to qualify
min_volume = 50000
# Premium bounds for qualified strikes
min_premium = 10.0
max_premium = 300.0
# Maximum distance from spot as percent
max_distance_percent = 5.0
# Lots used in the recommended trade command
default_lots = 1

[market]
# Upstox API base URL
base_url = "https://api.upstox.com/v2"
# Market data request timeout
timeout = "10s"
`

const credentialsTemplate = `# VizBot Credentials
# Keep this file private (chmod 600)

[upstox]
api_key = ""
api_secret = ""
redirect_uri = "http://localhost:8080/callback"
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

	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
