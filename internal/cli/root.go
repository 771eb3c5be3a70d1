package cli

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"vizbot/internal/analysis"
	"vizbot/internal/analysis/scoring"
	"vizbot/internal/bot"
	"vizbot/internal/config"
	"vizbot/internal/ledger"
	"vizbot/internal/logging"
	"vizbot/internal/market"
	"vizbot/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2025-06-01"
)

// App holds the application dependencies.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Gateway market.Gateway
	Ledger  *ledger.Ledger
	Engine  *bot.Engine
	Store   store.UserStore
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	app.Gateway = market.NewUpstoxClient(market.UpstoxConfig{
		BaseURL:     cfg.Market.BaseURL,
		APIKey:      cfg.Credentials.Upstox.APIKey,
		APISecret:   cfg.Credentials.Upstox.APISecret,
		RedirectURI: cfg.Credentials.Upstox.RedirectURI,
		Timeout:     cfg.Market.Timeout,
		LotSize:     cfg.Trading.LotSize,
		Logger:      logger,
	})

	app.Ledger = ledger.New(ledger.Config{
		InitialFunds: decimal.NewFromFloat(cfg.Trading.InitialFunds),
		LotSize:      cfg.Trading.LotSize,
		Margins: ledger.MarginPolicy{
			ShortMarginRate: decimal.NewFromFloat(cfg.Trading.ShortMarginRate),
		},
		Costs: ledger.CostModel{
			BrokeragePerLeg: decimal.NewFromFloat(cfg.Costs.BrokeragePerLeg),
			TurnoverRate:    decimal.NewFromFloat(cfg.Costs.TurnoverRate),
		},
	})

	app.Engine = bot.NewEngine(bot.Config{
		Gateway: app.Gateway,
		Ledger:  app.Ledger,
		Thresholds: analysis.Thresholds{
			BullishPCR: cfg.Analysis.BullishPCR,
			BearishPCR: cfg.Analysis.BearishPCR,
			HighBand:   cfg.Analysis.HighBand,
			MediumBand: cfg.Analysis.MediumBand,
		},
		Scorer: scoring.NewScorer(scoring.Filters{
			MinOI:              cfg.Scoring.MinOI,
			MinVolume:          cfg.Scoring.MinVolume,
			MinPremium:         cfg.Scoring.MinPremium,
			MaxPremium:         cfg.Scoring.MaxPremium,
			MaxDistancePercent: cfg.Scoring.MaxDistancePercent,
			DefaultLots:        cfg.Scoring.DefaultLots,
		}),
		Logger: logger,
	})

	userStore, err := store.NewSQLiteStore(cfg.Server.DBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, persistence unavailable")
	} else {
		app.Store = userStore
	}

	rootCmd := &cobra.Command{
		Use:   "vizbot",
		Short: "VizBot - NIFTY options paper trading assistant",
		Long: `VizBot is a chat-driven paper trading assistant for NIFTY index options.

It analyzes option chains from Upstox (PCR sentiment, short-premium
opportunities) and tracks a virtual portfolio with realistic margin
blocking and transaction costs.

Use 'vizbot chat' for an interactive session or 'vizbot serve' to run
the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/vizbot)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newChatCmd(app))
	rootCmd.AddCommand(newPortfolioCmd(app))
	rootCmd.AddCommand(newJournalCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("VizBot v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Trading Configuration")
	output.Printf("  Initial Funds:   %s\n", FormatIndianCurrency(cfg.Trading.InitialFunds))
	output.Printf("  Lot Size:        %d\n", cfg.Trading.LotSize)
	output.Printf("  Short Margin:    %.0f%% of notional\n", cfg.Trading.ShortMarginRate*100)
	output.Println()

	output.Bold("Cost Model")
	output.Printf("  Brokerage/Leg:   %s\n", FormatIndianCurrency(cfg.Costs.BrokeragePerLeg))
	output.Printf("  Turnover Rate:   %.3f%%\n", cfg.Costs.TurnoverRate*100)
	output.Println()

	output.Bold("Analysis Thresholds")
	output.Printf("  Bullish PCR:     %.2f\n", cfg.Analysis.BullishPCR)
	output.Printf("  Bearish PCR:     %.2f\n", cfg.Analysis.BearishPCR)
	output.Printf("  High Band:       %.2f\n", cfg.Analysis.HighBand)
	output.Printf("  Medium Band:     %.2f\n", cfg.Analysis.MediumBand)
	output.Println()

	output.Bold("Scoring Filters")
	output.Printf("  Min OI:          %s\n", FormatVolume(cfg.Scoring.MinOI))
	output.Printf("  Min Volume:      %s\n", FormatVolume(cfg.Scoring.MinVolume))
	output.Printf("  Premium Range:   %.0f - %.0f\n", cfg.Scoring.MinPremium, cfg.Scoring.MaxPremium)
	output.Printf("  Max Distance:    %.1f%%\n", cfg.Scoring.MaxDistancePercent)
	output.Println()

	output.Bold("Server")
	output.Printf("  Listen Addr:     %s\n", cfg.Server.ListenAddr)
	output.Printf("  DB Path:         %s\n", cfg.Server.DBPath)

	return nil
}
