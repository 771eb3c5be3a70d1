package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vizbot/internal/models"
)

func newPortfolioCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Show a user's portfolio",
		Long:  "Prints the stored portfolio snapshot: funds, open positions, and closed trades.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return fmt.Errorf("user store unavailable")
			}

			userID, _ := cmd.Flags().GetString("user")
			output := NewOutput(cmd)

			data, found, err := app.Store.Get(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("loading user: %w", err)
			}
			portfolio := data.Portfolio
			if !found {
				portfolio = models.NewPortfolio(initialFunds(app))
			}

			if output.IsJSON() {
				return output.JSON(portfolio)
			}

			renderPortfolioTables(output, portfolio)
			return nil
		},
	}

	cmd.Flags().String("user", "local", "user id to show")
	return cmd
}

func renderPortfolioTables(output *Output, p models.Portfolio) {
	output.Bold("Portfolio")
	output.Printf("  Available:     %s\n", FormatMoney(p.AvailableFunds()))
	output.Printf("  Blocked:       %s\n", FormatMoney(p.BlockedMargin))
	output.Printf("  Realized P&L:  %s\n", FormatPnL(p.RealizedPnL))
	output.Printf("  Trades:        %d total, %d winning\n", p.TotalTrades, p.WinningTrades)
	output.Println()

	if len(p.Positions) > 0 {
		output.Bold("Open Positions")
		table := NewTable(output, "ID", "Action", "Instrument", "Lots", "Entry", "Margin")
		for _, pos := range p.Positions {
			table.AddRow(
				shortID(pos.ID),
				string(pos.Action),
				fmt.Sprintf("NIFTY %.0f %s", pos.Strike, pos.Type),
				fmt.Sprintf("%d", pos.Quantity),
				pos.EntryPrice.StringFixed(2),
				FormatMoney(pos.BlockedMargin),
			)
		}
		table.Render()
		output.Println()
	}

	if len(p.TradeHistory) > 0 {
		output.Bold("Closed Trades")
		table := NewTable(output, "Instrument", "Action", "Entry", "Exit", "Closed At", "Net P&L", "Result")
		for _, item := range p.TradeHistory {
			result := "Loss"
			if item.IsWin() {
				result = "Win"
			}
			table.AddRow(
				fmt.Sprintf("NIFTY %.0f %s", item.Strike, item.Type),
				string(item.Action),
				item.EntryPrice.StringFixed(2),
				item.ExitPrice.StringFixed(2),
				FormatDateTime(item.ExitTimestamp),
				item.NetPnl.StringFixed(2),
				result,
			)
		}
		table.Render()
	}
}
