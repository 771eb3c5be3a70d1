// Package bot implements the chat command interpreter: it parses free-text
// input into trading intents and dispatches to the matching handler.
package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vizbot/internal/analysis"
	"vizbot/internal/analysis/scoring"
	"vizbot/internal/ledger"
	"vizbot/internal/logging"
	"vizbot/internal/market"
	"vizbot/internal/models"
)

// maxInputLength is the longest chat input accepted before dispatch.
const maxInputLength = 500

// authCodePattern matches a bare authorization code pasted from the redirect
// URL. Kept permissive on charset, strict on shape: one token, no spaces.
var authCodePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{4,64}$`)

// looksLikeAuthCode reports whether a lone token is plausibly a pasted
// authorization code. Requiring a digit keeps ordinary words like "hello"
// from triggering a token exchange.
func looksLikeAuthCode(s string) bool {
	return authCodePattern.MatchString(s) && strings.ContainsAny(s, "0123456789")
}

// Engine interprets chat input and produces response payloads. It holds no
// per-user state: the portfolio is threaded in and a possibly-updated copy
// threaded out inside the payload.
type Engine struct {
	gateway    market.Gateway
	ledger     *ledger.Ledger
	thresholds analysis.Thresholds
	scorer     *scoring.Scorer
	logger     zerolog.Logger
}

// Config holds engine construction parameters.
type Config struct {
	Gateway    market.Gateway
	Ledger     *ledger.Ledger
	Thresholds analysis.Thresholds
	Scorer     *scoring.Scorer
	Logger     zerolog.Logger
}

// NewEngine creates a new command interpreter engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		gateway:    cfg.Gateway,
		ledger:     cfg.Ledger,
		thresholds: cfg.Thresholds,
		scorer:     cfg.Scorer,
		logger:     cfg.Logger,
	}
}

// HandleChatInput interprets one chat turn. It never returns an error: every
// failure maps to an error payload, and the portfolio is only carried in a
// payload when a handler actually changed it.
func (e *Engine) HandleChatInput(ctx context.Context, text, accessToken string, portfolio models.Portfolio) models.BotResponsePayload {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return models.ErrorPayload("Please type a command. Try 'help' to see what I understand.")
	}
	if len(trimmed) > maxInputLength {
		return models.ErrorPayload("That message is too long. Commands are short — try 'help'.")
	}

	lower := strings.ToLower(trimmed)

	switch {
	case lower == "start":
		return e.handleStart(ctx, accessToken)
	case lower == "auth":
		return models.AuthErrorPayload(
			"Authorize VizBot with Upstox, then paste the 'code' parameter from the redirect URL into the chat.",
			e.gateway.LoginURL())
	case lower == "help":
		return models.PortfolioPayload(helpText, portfolio)
	case lower == "/portfolio":
		return models.PortfolioPayload(summarize(portfolio), portfolio)
	case lower == "/reset":
		return models.ResetPayload()
	case strings.HasPrefix(lower, "exp:"):
		return e.handleExpiry(ctx, accessToken, strings.TrimSpace(trimmed[len("exp:"):]))
	case strings.HasPrefix(lower, "/paper"):
		return e.handlePaperTrade(trimmed, portfolio)
	case strings.HasPrefix(lower, "/close"):
		return e.handleClose(ctx, trimmed, accessToken, portfolio)
	case looksLikeAuthCode(trimmed):
		return e.handleAuthCode(ctx, trimmed, portfolio)
	default:
		return models.ErrorPayload(fmt.Sprintf("I didn't understand %q. Type 'help' for the command list.", firstToken(trimmed)))
	}
}

func (e *Engine) handleStart(ctx context.Context, accessToken string) models.BotResponsePayload {
	if accessToken == "" {
		return models.AuthErrorPayload(
			"I need access to market data first. Authorize with Upstox, then paste the code from the redirect URL here.",
			e.gateway.LoginURL())
	}

	expiries, err := e.gateway.ListExpiries(ctx, accessToken)
	if err != nil {
		return e.marketErrorPayload(err)
	}
	if len(expiries) == 0 {
		return models.ErrorPayload("No NIFTY expiries are available right now. Please try again later.")
	}
	return models.ExpiriesPayload(expiries)
}

func (e *Engine) handleAuthCode(ctx context.Context, code string, portfolio models.Portfolio) models.BotResponsePayload {
	token, err := e.gateway.ExchangeAuthCode(ctx, code)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Auth code exchange failed")
		return models.AuthErrorPayload(
			"That code didn't work. Codes are single-use — authorize again and paste the fresh one.",
			e.gateway.LoginURL())
	}

	payload := models.PortfolioPayload("Access token saved. Type 'start' to pick an expiry.", portfolio)
	payload.AccessToken = token
	return payload
}

func (e *Engine) handleExpiry(ctx context.Context, accessToken, value string) models.BotResponsePayload {
	expiryDate, err := time.Parse(models.ExpiryDateLayout, value)
	if err != nil {
		return models.ErrorPayload(fmt.Sprintf("%q is not a valid expiry date. Pick one from the expiry list.", value))
	}

	chain, err := e.gateway.GetOptionChain(ctx, accessToken, value)
	if err != nil {
		return e.marketErrorPayload(err)
	}
	if len(chain.Strikes) == 0 {
		return models.ErrorPayload("The option chain for that expiry is empty. Try another expiry.")
	}

	ma := analysis.Analyze(chain, e.thresholds)
	scored := e.scorer.Score(chain, ma)

	return models.BotResponsePayload{
		Type:                models.PayloadAnalysis,
		SpotPrice:           chain.SpotPrice,
		DaysToExpiry:        models.DaysToExpiry(expiryDate, time.Now()),
		LotSize:             e.ledger.LotSize(),
		Expiry:              value,
		MarketAnalysis:      &ma,
		Opportunities:       scored.Opportunities,
		QualifiedStrikes:    &scored.Qualified,
		TradeRecommendation: scored.Recommendation,
	}
}

// handlePaperTrade parses "/paper <CE|PE> <strike> <BUY|SELL> <lots> <price>"
// and opens the position. Parse failures name the offending token and leave
// the portfolio untouched.
func (e *Engine) handlePaperTrade(input string, portfolio models.Portfolio) models.BotResponsePayload {
	fields := strings.Fields(input)
	if len(fields) != 6 {
		return models.ErrorPayload("Usage: /paper <CE|PE> <strike> <BUY|SELL> <lots> <price>")
	}

	optType, err := parseOptionType(fields[1])
	if err != nil {
		return models.ErrorPayload(err.Error())
	}
	strike, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || strike <= 0 {
		return models.ErrorPayload(fmt.Sprintf("Invalid strike %q: expected a positive number.", fields[2]))
	}
	action, err := parseAction(fields[3])
	if err != nil {
		return models.ErrorPayload(err.Error())
	}
	lots, err := strconv.Atoi(fields[4])
	if err != nil || lots <= 0 {
		return models.ErrorPayload(fmt.Sprintf("Invalid lots %q: expected a positive whole number.", fields[4]))
	}
	price, err := decimal.NewFromString(fields[5])
	if err != nil || price.LessThanOrEqual(decimal.Zero) {
		return models.ErrorPayload(fmt.Sprintf("Invalid price %q: expected a positive number.", fields[5]))
	}

	updated, pos, err := e.ledger.OpenPosition(portfolio, ledger.OpenRequest{
		Type:   optType,
		Strike: strike,
		Action: action,
		Lots:   lots,
		Price:  price,
	})
	if err != nil {
		return models.ErrorPayload(fmt.Sprintf("Trade rejected: %s.", err))
	}

	logging.LogTrade(e.logger, fmt.Sprintf("NIFTY %.0f %s", pos.Strike, pos.Type),
		string(pos.Action), pos.Quantity, pos.EntryPrice.StringFixed(2))

	msg := fmt.Sprintf("Paper trade placed: %s %d lot(s) of %.0f %s @ %s. Margin blocked: %s.",
		pos.Action, pos.Quantity, pos.Strike, pos.Type,
		pos.EntryPrice.StringFixed(2), pos.BlockedMargin.StringFixed(2))
	return models.PaperTradePayload(msg, updated)
}

// handleClose parses "/close <CE|PE> <strike> [price]" or "/close <id> [price]".
// When the price is omitted, the current LTP is fetched from the chain.
func (e *Engine) handleClose(ctx context.Context, input, accessToken string, portfolio models.Portfolio) models.BotResponsePayload {
	fields := strings.Fields(input)
	if len(fields) < 2 || len(fields) > 4 {
		return models.ErrorPayload("Usage: /close <CE|PE> <strike> [price] or /close <position-id> [price]")
	}

	var sel ledger.CloseSelector
	var priceField string

	if optType, err := parseOptionType(fields[1]); err == nil {
		if len(fields) < 3 {
			return models.ErrorPayload("Usage: /close <CE|PE> <strike> [price]")
		}
		strike, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || strike <= 0 {
			return models.ErrorPayload(fmt.Sprintf("Invalid strike %q: expected a positive number.", fields[2]))
		}
		sel = ledger.CloseSelector{Type: optType, Strike: strike}
		if len(fields) == 4 {
			priceField = fields[3]
		}
	} else {
		if len(fields) > 3 {
			return models.ErrorPayload("Usage: /close <position-id> [price]")
		}
		sel = ledger.CloseSelector{ID: fields[1]}
		if len(fields) == 3 {
			priceField = fields[2]
		}
	}

	pos, ok := e.ledger.FindOpen(portfolio, sel)
	if !ok {
		return models.ErrorPayload("No matching open position. Check /portfolio for what's open.")
	}

	var exitPrice decimal.Decimal
	var exitDelta *float64
	if priceField != "" {
		p, err := decimal.NewFromString(priceField)
		if err != nil || p.LessThanOrEqual(decimal.Zero) {
			return models.ErrorPayload(fmt.Sprintf("Invalid price %q: expected a positive number.", priceField))
		}
		exitPrice = p
	} else {
		ltp, delta, err := e.lookupExit(ctx, accessToken, pos)
		if err != nil {
			return models.ErrorPayload("Couldn't fetch the current price. Supply one: /close " + describeSelector(sel) + " <price>")
		}
		exitPrice = ltp
		exitDelta = delta
	}

	updated, item, err := e.ledger.ClosePosition(portfolio, sel, exitPrice, exitDelta)
	if err != nil {
		if errors.Is(err, ledger.ErrNoMatchingPosition) {
			return models.ErrorPayload("No matching open position. Check /portfolio for what's open.")
		}
		return models.ErrorPayload(fmt.Sprintf("Close rejected: %s.", err))
	}

	logging.LogTrade(e.logger, fmt.Sprintf("NIFTY %.0f %s", item.Strike, item.Type),
		"CLOSE", item.Quantity, item.ExitPrice.StringFixed(2))

	msg := fmt.Sprintf("Closed %.0f %s @ %s. Net P&L: %s (gross %s, costs %s).",
		item.Strike, item.Type, item.ExitPrice.StringFixed(2),
		item.NetPnl.StringFixed(2), item.GrossPnl.StringFixed(2), item.TotalCosts.StringFixed(2))
	return models.ClosePositionPayload(msg, updated)
}

// lookupExit fetches the position's current premium and delta from the chain.
// Positions opened without an expiry are priced off the nearest listed one.
func (e *Engine) lookupExit(ctx context.Context, accessToken string, pos models.Position) (decimal.Decimal, *float64, error) {
	expiry := pos.Expiry
	if expiry == "" {
		expiries, err := e.gateway.ListExpiries(ctx, accessToken)
		if err != nil {
			return decimal.Zero, nil, err
		}
		if len(expiries) == 0 {
			return decimal.Zero, nil, fmt.Errorf("no expiries available")
		}
		expiry = expiries[0].Value
	}
	chain, err := e.gateway.GetOptionChain(ctx, accessToken, expiry)
	if err != nil {
		return decimal.Zero, nil, err
	}
	for _, s := range chain.Strikes {
		if s.Strike != pos.Strike {
			continue
		}
		var data *models.OptionData
		if pos.Type == models.OptionCall {
			data = s.Call
		} else {
			data = s.Put
		}
		if data == nil || data.LTP <= 0 {
			break
		}
		delta := data.Greeks.Delta
		return decimal.NewFromFloat(data.LTP).Round(2), &delta, nil
	}
	return decimal.Zero, nil, fmt.Errorf("strike %.0f %s not found in chain", pos.Strike, pos.Type)
}

// marketErrorPayload maps gateway failures onto the error taxonomy: auth
// failures carry the re-authorization URL, everything else becomes a generic
// retry message with the original error logged.
func (e *Engine) marketErrorPayload(err error) models.BotResponsePayload {
	if errors.Is(err, market.ErrUnauthorized) {
		return models.AuthErrorPayload(
			"Your Upstox session has expired. Authorize again and paste the fresh code here.",
			e.gateway.LoginURL())
	}
	e.logger.Error().Err(err).Msg("Market data fetch failed")
	return models.ErrorPayload("Market data is unavailable right now. Please try again in a moment.")
}

func parseOptionType(token string) (models.OptionType, error) {
	switch strings.ToUpper(token) {
	case "CE":
		return models.OptionCall, nil
	case "PE":
		return models.OptionPut, nil
	default:
		return "", fmt.Errorf("Invalid option type %q: expected CE or PE.", token)
	}
}

func parseAction(token string) (models.TradeAction, error) {
	switch strings.ToUpper(token) {
	case "BUY":
		return models.ActionBuy, nil
	case "SELL":
		return models.ActionSell, nil
	default:
		return "", fmt.Errorf("Invalid action %q: expected BUY or SELL.", token)
	}
}

func describeSelector(sel ledger.CloseSelector) string {
	if sel.ID != "" {
		return sel.ID
	}
	return fmt.Sprintf("%s %.0f", sel.Type, sel.Strike)
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	// Truncate on runes so a multi-byte token is never split mid-character.
	if runes := []rune(fields[0]); len(runes) > 40 {
		return string(runes[:40]) + "..."
	}
	return fields[0]
}

// summarize renders the portfolio snapshot as chat text.
func summarize(p models.Portfolio) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Portfolio: available %s | blocked margin %s | realized P&L %s\n",
		p.AvailableFunds().StringFixed(2), p.BlockedMargin.StringFixed(2), p.RealizedPnL.StringFixed(2))
	fmt.Fprintf(&b, "Trades: %d total, %d winning. Open positions: %d.",
		p.TotalTrades, p.WinningTrades, len(p.Positions))
	for _, pos := range p.Positions {
		fmt.Fprintf(&b, "\n  %s %d lot(s) %.0f %s @ %s (margin %s)",
			pos.Action, pos.Quantity, pos.Strike, pos.Type,
			pos.EntryPrice.StringFixed(2), pos.BlockedMargin.StringFixed(2))
	}
	return b.String()
}
