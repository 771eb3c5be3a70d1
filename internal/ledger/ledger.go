// Package ledger implements the paper-trading portfolio ledger: margin
// blocking, position lifecycle, realized P&L, and trade history.
//
// All money arithmetic uses decimal values so that chained margin and cost
// subtraction never accumulates float drift. Every operation takes a portfolio
// snapshot and returns a new one; the input is never mutated, and a failed
// operation returns the input unchanged.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vizbot/internal/models"
)

// ErrInsufficientFunds indicates the open would push available cash negative.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrNoMatchingPosition indicates no open position matched the close selector.
var ErrNoMatchingPosition = errors.New("no matching open position")

// MarginPolicy defines how much cash an open blocks.
type MarginPolicy struct {
	// ShortMarginRate is the fraction of strike notional blocked on SELL.
	// BUY blocks the premium paid only.
	ShortMarginRate decimal.Decimal
}

// CostModel defines per-leg transaction costs.
type CostModel struct {
	BrokeragePerLeg decimal.Decimal // flat charge per executed leg
	TurnoverRate    decimal.Decimal // fraction of premium turnover per leg
}

// Ledger applies portfolio mutations under a fixed policy.
type Ledger struct {
	initialFunds decimal.Decimal
	lotSize      int
	margins      MarginPolicy
	costs        CostModel
	now          func() time.Time
	newID        func() string
}

// Config holds ledger construction parameters.
type Config struct {
	InitialFunds decimal.Decimal
	LotSize      int
	Margins      MarginPolicy
	Costs        CostModel

	// Now and NewID are overridable for tests; defaults are time.Now and uuid.
	Now   func() time.Time
	NewID func() string
}

// New creates a ledger with the given policy.
func New(cfg Config) *Ledger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	return &Ledger{
		initialFunds: cfg.InitialFunds,
		lotSize:      cfg.LotSize,
		margins:      cfg.Margins,
		costs:        cfg.Costs,
		now:          now,
		newID:        newID,
	}
}

// OpenRequest describes a paper-trade open.
type OpenRequest struct {
	Type       models.OptionType
	Strike     float64
	Action     models.TradeAction
	Lots       int
	Price      decimal.Decimal
	Expiry     string
	EntryDelta *float64
}

// CloseSelector locates an open position either by ID or by strike+type.
// When strike+type matches several opens, the oldest is chosen (FIFO).
type CloseSelector struct {
	ID     string
	Type   models.OptionType
	Strike float64
}

// RequiredMargin returns the cash an open request would block.
func (l *Ledger) RequiredMargin(req OpenRequest) decimal.Decimal {
	units := decimal.NewFromInt(int64(req.Lots * l.lotSize))
	if req.Action == models.ActionSell {
		strike := decimal.NewFromFloat(req.Strike)
		return strike.Mul(units).Mul(l.margins.ShortMarginRate).Round(2)
	}
	return req.Price.Mul(units).Round(2)
}

// OpenPosition blocks margin, appends the position, and bumps totalTrades.
// The mutation is all-or-nothing: any validation failure returns the input
// portfolio untouched.
func (l *Ledger) OpenPosition(p models.Portfolio, req OpenRequest) (models.Portfolio, models.Position, error) {
	if req.Lots <= 0 {
		return p, models.Position{}, fmt.Errorf("lots must be positive, got %d", req.Lots)
	}
	if req.Price.LessThanOrEqual(decimal.Zero) {
		return p, models.Position{}, fmt.Errorf("price must be positive, got %s", req.Price)
	}
	if req.Strike <= 0 {
		return p, models.Position{}, fmt.Errorf("strike must be positive, got %.0f", req.Strike)
	}

	margin := l.RequiredMargin(req)
	available := p.AvailableFunds()
	if margin.GreaterThan(available) {
		return p, models.Position{}, fmt.Errorf("%w: need %s, available %s",
			ErrInsufficientFunds, margin.StringFixed(2), available.StringFixed(2))
	}

	pos := models.Position{
		ID:             l.newID(),
		Type:           req.Type,
		Strike:         req.Strike,
		Action:         req.Action,
		Quantity:       req.Lots,
		LotSize:        l.lotSize,
		EntryPrice:     req.Price,
		EntryTimestamp: l.now(),
		EntryDelta:     req.EntryDelta,
		Expiry:         req.Expiry,
		BlockedMargin:  margin,
	}

	out := p.Clone()
	out.Positions = append(out.Positions, pos)
	out.BlockedMargin = out.BlockedMargin.Add(margin)
	out.TotalTrades++
	return out, pos, nil
}

// ClosePosition closes the matching open position at exitPrice: releases its
// blocked margin, realizes net P&L, appends the trade history entry, and
// removes the position. Win counting treats net P&L >= 0 as a win.
//
// The virtual account never goes below zero: a short closed at a runaway
// exit price can lose more than its blocked margin, so the realized loss is
// floored at the balance remaining after the margin release. The floored
// value is what the trade history records.
func (l *Ledger) ClosePosition(p models.Portfolio, sel CloseSelector, exitPrice decimal.Decimal, exitDelta *float64) (models.Portfolio, models.TradeHistoryItem, error) {
	if exitPrice.LessThanOrEqual(decimal.Zero) {
		return p, models.TradeHistoryItem{}, fmt.Errorf("exit price must be positive, got %s", exitPrice)
	}

	idx := l.findPosition(p.Positions, sel)
	if idx < 0 {
		return p, models.TradeHistoryItem{}, fmt.Errorf("%w: %s", ErrNoMatchingPosition, sel.describe())
	}

	pos := p.Positions[idx]
	units := decimal.NewFromInt(int64(pos.Quantity * pos.LotSize))

	// gross = (exit - entry) x units, sign flipped for shorts.
	gross := exitPrice.Sub(pos.EntryPrice).Mul(units)
	if pos.Action == models.ActionSell {
		gross = gross.Neg()
	}
	gross = gross.Round(2)

	costs := l.transactionCosts(pos.EntryPrice, exitPrice, units)
	net := gross.Sub(costs)

	// Balance after the margin release but before the P&L lands. net may not
	// push it negative.
	balance := p.InitialFunds.Add(p.RealizedPnL).Sub(p.BlockedMargin.Sub(pos.BlockedMargin))
	if balance.Add(net).IsNegative() {
		net = balance.Neg()
	}

	item := models.TradeHistoryItem{
		Position:      pos,
		ExitPrice:     exitPrice,
		ExitTimestamp: l.now(),
		ExitDelta:     exitDelta,
		GrossPnl:      gross,
		TotalCosts:    costs,
		NetPnl:        net,
	}

	out := p.Clone()
	out.Positions = append(out.Positions[:idx], out.Positions[idx+1:]...)
	out.BlockedMargin = out.BlockedMargin.Sub(pos.BlockedMargin)
	out.RealizedPnL = out.RealizedPnL.Add(net)
	out.TradeHistory = append(out.TradeHistory, item)
	if item.IsWin() {
		out.WinningTrades++
	}
	return out, item, nil
}

// FindOpen returns the open position a selector would close, without closing
// it. Resolution order matches ClosePosition.
func (l *Ledger) FindOpen(p models.Portfolio, sel CloseSelector) (models.Position, bool) {
	idx := l.findPosition(p.Positions, sel)
	if idx < 0 {
		return models.Position{}, false
	}
	return p.Positions[idx], true
}

// Reset returns the canonical empty portfolio.
func (l *Ledger) Reset() models.Portfolio {
	return models.NewPortfolio(l.initialFunds)
}

// LotSize returns the configured contract lot size.
func (l *Ledger) LotSize() int {
	return l.lotSize
}

// findPosition resolves a selector to a position index. Matching by
// strike+type picks the earliest entry, which is the oldest open because
// positions append in entry order.
func (l *Ledger) findPosition(positions []models.Position, sel CloseSelector) int {
	for i, pos := range positions {
		if sel.ID != "" {
			if pos.ID == sel.ID {
				return i
			}
			continue
		}
		if pos.Type == sel.Type && pos.Strike == sel.Strike {
			return i
		}
	}
	return -1
}

// transactionCosts totals both legs: flat brokerage plus turnover charges on
// entry and exit premium value.
func (l *Ledger) transactionCosts(entry, exit, units decimal.Decimal) decimal.Decimal {
	entryLeg := l.costs.BrokeragePerLeg.Add(entry.Mul(units).Mul(l.costs.TurnoverRate))
	exitLeg := l.costs.BrokeragePerLeg.Add(exit.Mul(units).Mul(l.costs.TurnoverRate))
	return entryLeg.Add(exitLeg).Round(2)
}

func (s CloseSelector) describe() string {
	if s.ID != "" {
		return "id " + s.ID
	}
	return fmt.Sprintf("%s %.0f", s.Type, s.Strike)
}
