// Package config provides configuration management for the assistant.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig   `mapstructure:"server"`
	Trading     TradingConfig  `mapstructure:"trading"`
	Costs       CostConfig     `mapstructure:"costs"`
	Analysis    AnalysisConfig `mapstructure:"analysis"`
	Scoring     ScoringConfig  `mapstructure:"scoring"`
	Market      MarketConfig   `mapstructure:"market"`
	Credentials Credentials    `mapstructure:"-"` // Loaded separately
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	DBPath     string `mapstructure:"db_path"`
}

// TradingConfig holds the virtual account and margin policy constants.
type TradingConfig struct {
	InitialFunds    float64 `mapstructure:"initial_funds"`
	LotSize         int     `mapstructure:"lot_size"`
	ShortMarginRate float64 `mapstructure:"short_margin_rate"` // fraction of strike notional blocked on SELL
}

// CostConfig holds the transaction cost model constants.
type CostConfig struct {
	BrokeragePerLeg float64 `mapstructure:"brokerage_per_leg"` // flat INR per executed leg
	TurnoverRate    float64 `mapstructure:"turnover_rate"`     // fraction of premium turnover per leg
}

// AnalysisConfig holds the PCR sentiment thresholds.
type AnalysisConfig struct {
	BullishPCR float64 `mapstructure:"bullish_pcr"` // both ratios above -> Bullish
	BearishPCR float64 `mapstructure:"bearish_pcr"` // both ratios below -> Bearish
	HighBand   float64 `mapstructure:"high_band"`   // distance from 1.0 for High confidence
	MediumBand float64 `mapstructure:"medium_band"` // distance from 1.0 for Medium confidence
}

// ScoringConfig holds the opportunity scorer filters.
type ScoringConfig struct {
	MinOI              int64   `mapstructure:"min_oi"`
	MinVolume          int64   `mapstructure:"min_volume"`
	MinPremium         float64 `mapstructure:"min_premium"`
	MaxPremium         float64 `mapstructure:"max_premium"`
	MaxDistancePercent float64 `mapstructure:"max_distance_percent"`
	DefaultLots        int     `mapstructure:"default_lots"`
}

// MarketConfig holds market data gateway configuration.
type MarketConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Credentials holds API credentials.
type Credentials struct {
	Upstox UpstoxCredentials `mapstructure:"upstox"`
}

// UpstoxCredentials holds Upstox API credentials.
type UpstoxCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	RedirectURI string `mapstructure:"redirect_uri"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/vizbot"
	}
	return filepath.Join(home, ".config", "vizbot")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir string, target *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := createTemplateConfig(configDir); err != nil {
				return err
			}
			return v.Unmarshal(target)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.db_path", filepath.Join(DefaultConfigDir(), "vizbot.db"))

	v.SetDefault("trading.initial_funds", 400000.0)
	v.SetDefault("trading.lot_size", 75)
	v.SetDefault("trading.short_margin_rate", 0.15)

	v.SetDefault("costs.brokerage_per_leg", 20.0)
	v.SetDefault("costs.turnover_rate", 0.0005)

	v.SetDefault("analysis.bullish_pcr", 1.10)
	v.SetDefault("analysis.bearish_pcr", 0.90)
	v.SetDefault("analysis.high_band", 0.30)
	v.SetDefault("analysis.medium_band", 0.20)

	v.SetDefault("scoring.min_oi", 100000)
	v.SetDefault("scoring.min_volume", 50000)
	v.SetDefault("scoring.min_premium", 10.0)
	v.SetDefault("scoring.max_premium", 300.0)
	v.SetDefault("scoring.max_distance_percent", 5.0)
	v.SetDefault("scoring.default_lots", 1)

	v.SetDefault("market.base_url", "https://api.upstox.com/v2")
	v.SetDefault("market.timeout", 10*time.Second)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UPSTOX_API_KEY"); v != "" {
		cfg.Credentials.Upstox.APIKey = v
	}
	if v := os.Getenv("UPSTOX_API_SECRET"); v != "" {
		cfg.Credentials.Upstox.APISecret = v
	}
	if v := os.Getenv("UPSTOX_REDIRECT_URI"); v != "" {
		cfg.Credentials.Upstox.RedirectURI = v
	}
	if v := os.Getenv("VIZBOT_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("VIZBOT_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.InitialFunds <= 0 {
		return fmt.Errorf("initial_funds must be positive")
	}
	if c.Trading.LotSize <= 0 {
		return fmt.Errorf("lot_size must be positive")
	}
	if c.Trading.ShortMarginRate <= 0 || c.Trading.ShortMarginRate > 1 {
		return fmt.Errorf("short_margin_rate must be in (0, 1]")
	}
	if c.Costs.BrokeragePerLeg < 0 {
		return fmt.Errorf("brokerage_per_leg must be non-negative")
	}
	if c.Costs.TurnoverRate < 0 || c.Costs.TurnoverRate > 0.1 {
		return fmt.Errorf("turnover_rate must be in [0, 0.1]")
	}
	if c.Analysis.BearishPCR >= c.Analysis.BullishPCR {
		return fmt.Errorf("bearish_pcr must be below bullish_pcr")
	}
	if c.Analysis.MediumBand >= c.Analysis.HighBand {
		return fmt.Errorf("medium_band must be below high_band")
	}
	if c.Scoring.MinPremium >= c.Scoring.MaxPremium {
		return fmt.Errorf("min_premium must be below max_premium")
	}
	if c.Scoring.DefaultLots <= 0 {
		return fmt.Errorf("default_lots must be positive")
	}
	if c.Market.Timeout <= 0 {
		return fmt.Errorf("market timeout must be positive")
	}
	return nil
}
