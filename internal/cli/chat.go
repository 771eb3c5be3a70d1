package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"vizbot/internal/models"
	"vizbot/internal/store"
	"vizbot/pkg/utils"
)

func newChatCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session",
		Long:  "Starts a terminal chat session driving the same engine as the HTTP API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			return runChat(cmd, app, userID)
		},
	}

	cmd.Flags().String("user", "local", "user id for the session state")
	return cmd
}

func runChat(cmd *cobra.Command, app *App, userID string) error {
	ctx := cmd.Context()

	portfolio := models.NewPortfolio(initialFunds(app))
	accessToken := ""
	persisted := false

	if app.Store != nil {
		data, found, err := app.Store.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}
		if found {
			portfolio = data.Portfolio
			accessToken = data.AccessToken
		}
		persisted = true
	}

	color.Cyan("VizBot — NIFTY options paper trading. Type 'help' for commands, 'exit' to quit.")
	color.White("Market: %s  |  Funds: %s", utils.GetMarketStatus(time.Now()), FormatMoney(portfolio.AvailableFunds()))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			break
		}

		payload := app.Engine.HandleChatInput(ctx, text, accessToken, portfolio)

		if payload.Type == models.PayloadReset {
			portfolio = models.NewPortfolio(initialFunds(app))
			accessToken = ""
			if persisted {
				if err := app.Store.Delete(ctx, userID); err != nil {
					app.Logger.Warn().Err(err).Msg("Failed to clear session")
				}
			}
			color.Green("Portfolio reset. Fresh funds: %s", FormatMoney(portfolio.InitialFunds))
			continue
		}

		if payload.Portfolio != nil {
			portfolio = *payload.Portfolio
		}
		if payload.AccessToken != "" {
			accessToken = payload.AccessToken
		}

		renderPayload(payload)

		if persisted {
			patch := store.UserDataPatch{
				Portfolio: &portfolio,
				Messages: []models.Message{
					{ID: uuid.NewString(), Role: models.RoleUser, Content: text},
					{ID: uuid.NewString(), Role: models.RoleBot, Content: payload.Message, Payload: &payload},
				},
			}
			if payload.AccessToken != "" {
				patch.AccessToken = &payload.AccessToken
			}
			if err := app.Store.Save(ctx, userID, patch); err != nil {
				app.Logger.Warn().Err(err).Msg("Failed to persist session")
			}
		}
	}

	return scanner.Err()
}

func initialFunds(app *App) decimal.Decimal {
	return decimal.NewFromFloat(app.Config.Trading.InitialFunds)
}

func renderPayload(p models.BotResponsePayload) {
	switch p.Type {
	case models.PayloadError:
		color.Red("%s", p.Message)
		if p.AuthURL != "" {
			color.Yellow("Authorize here: %s", p.AuthURL)
		}

	case models.PayloadExpiries:
		color.Cyan("Available NIFTY expiries:")
		for _, e := range p.Expiries {
			fmt.Printf("  exp:%s  %s\n", e.Value, e.Label)
		}

	case models.PayloadAnalysis:
		renderAnalysis(p)

	case models.PayloadPaperTrade, models.PayloadClosePosition:
		color.Green("%s", p.Message)
		if p.Portfolio != nil {
			renderPortfolio(*p.Portfolio)
		}

	case models.PayloadPortfolio:
		if p.Message != "" {
			fmt.Println(p.Message)
		}
		if p.Portfolio != nil {
			renderPortfolio(*p.Portfolio)
		}

	default:
		if p.Message != "" {
			fmt.Println(p.Message)
		}
	}
}

func renderAnalysis(p models.BotResponsePayload) {
	color.Cyan("NIFTY %s  Spot: %.2f  Expiry: %s (%d DTE)  Lot: %d",
		"Analysis", p.SpotPrice, p.Expiry, p.DaysToExpiry, p.LotSize)

	if ma := p.MarketAnalysis; ma != nil {
		fmt.Printf("  PCR (OI): %s  PCR (Vol): %s\n", FormatPCR(ma.PCROI), FormatPCR(ma.PCRVolume))
		switch ma.Sentiment {
		case models.SentimentBullish:
			color.Green("  %s (%s confidence)", ma.Sentiment, ma.Confidence)
		case models.SentimentBearish:
			color.Red("  %s (%s confidence)", ma.Sentiment, ma.Confidence)
		default:
			color.Yellow("  %s (%s confidence)", ma.Sentiment, ma.Confidence)
		}
		fmt.Printf("  %s\n", ma.Interpretation)
		fmt.Printf("  %s\n", ma.TradingBias)
	}

	if len(p.Opportunities) > 0 {
		color.Cyan("Top opportunities:")
		for i, opp := range p.Opportunities {
			fmt.Printf("  %d. %s %.0f %s @ %.2f  score %.2f  %s\n",
				i+1, opp.Action, opp.Strike, opp.Type, opp.Premium, opp.Score, opp.Reason)
		}
	}

	if p.TradeRecommendation != nil {
		color.Green("Recommended: %s", p.TradeRecommendation.TradeCommand)
		fmt.Printf("  %s\n", p.TradeRecommendation.Reason)
	}
}

func renderPortfolio(p models.Portfolio) {
	fmt.Printf("  Available: %s  Blocked: %s  Realized P&L: %s\n",
		FormatMoney(p.AvailableFunds()), FormatMoney(p.BlockedMargin), FormatPnL(p.RealizedPnL))
	fmt.Printf("  Trades: %d total, %d winning. Open: %d\n",
		p.TotalTrades, p.WinningTrades, len(p.Positions))
	for _, pos := range p.Positions {
		fmt.Printf("    [%s] %s %d lot(s) %.0f %s @ %s\n",
			shortID(pos.ID), pos.Action, pos.Quantity, pos.Strike, pos.Type,
			pos.EntryPrice.StringFixed(2))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
