package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vizbot/internal/journal"
)

func newJournalCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Trade journal",
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export closed trades as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return fmt.Errorf("user store unavailable")
			}

			userID, _ := cmd.Flags().GetString("user")
			outPath, _ := cmd.Flags().GetString("output")

			data, found, err := app.Store.Get(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("loading user: %w", err)
			}
			if !found || len(data.Portfolio.TradeHistory) == 0 {
				NewOutput(cmd).Warning("No closed trades to export.")
				return nil
			}

			w := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("creating output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := journal.WriteCSV(w, data.Portfolio.TradeHistory); err != nil {
				return err
			}
			if outPath != "" {
				NewOutput(cmd).Success("Exported %d trade(s) to %s", len(data.Portfolio.TradeHistory), outPath)
			}
			return nil
		},
	}

	exportCmd.Flags().String("user", "local", "user id to export")
	exportCmd.Flags().String("output", "", "output file (default stdout)")

	cmd.AddCommand(exportCmd)
	return cmd
}
