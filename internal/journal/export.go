// Package journal exports closed-trade history as CSV.
package journal

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"vizbot/internal/models"
)

// timeLayout is the timestamp format used in exported rows.
const timeLayout = "2006-01-02 15:04:05"

// Row is one closed trade in the export. Column order matches the header
// order external tooling expects.
type Row struct {
	TradeID    string `csv:"Trade ID"`
	Instrument string `csv:"Instrument"`
	Expiry     string `csv:"Expiry"`
	Action     string `csv:"Action"`
	Lots       int    `csv:"Quantity (Lots)"`
	EntryTime  string `csv:"Entry Time"`
	ExitTime   string `csv:"Exit Time"`
	EntryPrice string `csv:"Entry Price"`
	ExitPrice  string `csv:"Exit Price"`
	EntryDelta string `csv:"Entry Delta"`
	ExitDelta  string `csv:"Exit Delta"`
	GrossPnl   string `csv:"Gross P&L"`
	NetPnl     string `csv:"Net P&L"`
	TotalCosts string `csv:"Total Costs"`
	Status     string `csv:"Status"`
}

// WriteCSV writes the trade history to w as CSV, oldest trade first.
func WriteCSV(w io.Writer, history []models.TradeHistoryItem) error {
	rows := make([]Row, 0, len(history))
	for _, item := range history {
		rows = append(rows, toRow(item))
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write journal csv: %w", err)
	}
	return nil
}

func toRow(item models.TradeHistoryItem) Row {
	status := "Loss"
	if item.IsWin() {
		status = "Win"
	}
	return Row{
		TradeID:    item.ID,
		Instrument: fmt.Sprintf("NIFTY %.0f %s", item.Strike, item.Type),
		Expiry:     item.Expiry,
		Action:     string(item.Action),
		Lots:       item.Quantity,
		EntryTime:  item.EntryTimestamp.Format(timeLayout),
		ExitTime:   item.ExitTimestamp.Format(timeLayout),
		EntryPrice: item.EntryPrice.StringFixed(2),
		ExitPrice:  item.ExitPrice.StringFixed(2),
		EntryDelta: formatDelta(item.EntryDelta),
		ExitDelta:  formatDelta(item.ExitDelta),
		GrossPnl:   item.GrossPnl.StringFixed(2),
		NetPnl:     item.NetPnl.StringFixed(2),
		TotalCosts: item.TotalCosts.StringFixed(2),
		Status:     status,
	}
}

func formatDelta(d *float64) string {
	if d == nil {
		return ""
	}
	return fmt.Sprintf("%.4f", *d)
}
