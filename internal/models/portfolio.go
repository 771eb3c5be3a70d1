// Package models provides domain models for the paper trading assistant.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OptionType represents the option contract type.
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// TradeAction represents the side of a paper trade.
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// Position represents an open paper trade.
type Position struct {
	ID             string          `json:"id"`
	Type           OptionType      `json:"type"`
	Strike         float64         `json:"strike"`
	Action         TradeAction     `json:"action"`
	Quantity       int             `json:"quantity"` // lots
	LotSize        int             `json:"lotSize"`
	EntryPrice     decimal.Decimal `json:"entryPrice"`
	EntryTimestamp time.Time       `json:"entryTimestamp"`
	EntryDelta     *float64        `json:"entryDelta,omitempty"`
	Expiry         string          `json:"expiry"`
	BlockedMargin  decimal.Decimal `json:"blockedMargin"`
}

// TradeHistoryItem represents a closed paper trade. It is immutable once
// created: the ledger appends it to the trade history and never edits it.
type TradeHistoryItem struct {
	Position
	ExitPrice     decimal.Decimal `json:"exitPrice"`
	ExitTimestamp time.Time       `json:"exitTimestamp"`
	ExitDelta     *float64        `json:"exitDelta,omitempty"`
	GrossPnl      decimal.Decimal `json:"grossPnl"`
	TotalCosts    decimal.Decimal `json:"totalCosts"`
	NetPnl        decimal.Decimal `json:"netPnl"`
}

// IsWin reports whether the closed trade counts as a winning trade.
func (t TradeHistoryItem) IsWin() bool {
	return t.NetPnl.GreaterThanOrEqual(decimal.Zero)
}

// Portfolio is the ledger root for one user's virtual account.
type Portfolio struct {
	InitialFunds  decimal.Decimal    `json:"initialFunds"`
	BlockedMargin decimal.Decimal    `json:"blockedMargin"`
	RealizedPnL   decimal.Decimal    `json:"realizedPnL"`
	WinningTrades int                `json:"winningTrades"`
	TotalTrades   int                `json:"totalTrades"`
	Positions     []Position         `json:"positions"`
	TradeHistory  []TradeHistoryItem `json:"tradeHistory"`
}

// NewPortfolio returns the canonical empty portfolio with the given starting cash.
func NewPortfolio(initialFunds decimal.Decimal) Portfolio {
	return Portfolio{
		InitialFunds:  initialFunds,
		BlockedMargin: decimal.Zero,
		RealizedPnL:   decimal.Zero,
		Positions:     []Position{},
		TradeHistory:  []TradeHistoryItem{},
	}
}

// AvailableFunds returns initialFunds + realizedPnL - blockedMargin.
func (p Portfolio) AvailableFunds() decimal.Decimal {
	return p.InitialFunds.Add(p.RealizedPnL).Sub(p.BlockedMargin)
}

// Clone returns a deep copy so ledger operations never alias caller state.
func (p Portfolio) Clone() Portfolio {
	out := p
	out.Positions = make([]Position, len(p.Positions))
	copy(out.Positions, p.Positions)
	out.TradeHistory = make([]TradeHistoryItem, len(p.TradeHistory))
	copy(out.TradeHistory, p.TradeHistory)
	return out
}
