package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vizbot/internal/analysis"
	"vizbot/internal/analysis/scoring"
	"vizbot/internal/ledger"
	"vizbot/internal/market"
	"vizbot/internal/models"
)

// fakeGateway is a scripted Gateway for interpreter tests.
type fakeGateway struct {
	expiries    []models.Expiry
	chain       *models.OptionChain
	token       string
	exchangeErr error
	listErr     error
	chainErr    error
}

func (f *fakeGateway) LoginURL() string { return "https://example.test/authorize" }

func (f *fakeGateway) ExchangeAuthCode(ctx context.Context, code string) (string, error) {
	if f.exchangeErr != nil {
		return "", f.exchangeErr
	}
	return f.token, nil
}

func (f *fakeGateway) ListExpiries(ctx context.Context, accessToken string) ([]models.Expiry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.expiries, nil
}

func (f *fakeGateway) GetOptionChain(ctx context.Context, accessToken, expiry string) (*models.OptionChain, error) {
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	return f.chain, nil
}

func testEngine(gw market.Gateway) *Engine {
	return NewEngine(Config{
		Gateway: gw,
		Ledger: ledger.New(ledger.Config{
			InitialFunds: decimal.NewFromInt(400000),
			LotSize:      75,
			Margins:      ledger.MarginPolicy{ShortMarginRate: decimal.NewFromFloat(0.15)},
			Costs: ledger.CostModel{
				BrokeragePerLeg: decimal.NewFromInt(20),
				TurnoverRate:    decimal.NewFromFloat(0.0005),
			},
			NewID: func() string { return "pos-test" },
		}),
		Thresholds: analysis.DefaultThresholds(),
		Scorer:     scoring.NewScorer(scoring.DefaultFilters()),
		Logger:     zerolog.Nop(),
	})
}

func freshPortfolio() models.Portfolio {
	return models.NewPortfolio(decimal.NewFromInt(400000))
}

func liquidChain() *models.OptionChain {
	leg := func(ltp float64) *models.OptionData {
		return &models.OptionData{LTP: ltp, OI: 2000000, Volume: 300000, Greeks: models.OptionGreeks{Delta: 0.4}}
	}
	return &models.OptionChain{
		Symbol:    "NIFTY",
		SpotPrice: 23500,
		Expiry:    "2025-06-12",
		LotSize:   75,
		Strikes: []models.OptionStrike{
			{Strike: 23300, Call: leg(260), Put: leg(95)},
			{Strike: 23500, Call: leg(170), Put: leg(160)},
			{Strike: 23700, Call: leg(90), Put: leg(250)},
		},
	}
}

func TestHandleEmptyInput(t *testing.T) {
	e := testEngine(&fakeGateway{})

	for _, input := range []string{"", "   ", "\t"} {
		payload := e.HandleChatInput(context.Background(), input, "", freshPortfolio())
		if payload.Type != models.PayloadError {
			t.Errorf("input %q: type = %s, want error", input, payload.Type)
		}
	}
}

func TestHandleOverlongInput(t *testing.T) {
	e := testEngine(&fakeGateway{})

	payload := e.HandleChatInput(context.Background(), strings.Repeat("x", 501), "", freshPortfolio())
	if payload.Type != models.PayloadError {
		t.Fatalf("type = %s, want error", payload.Type)
	}
}

func TestHandleStartWithoutToken(t *testing.T) {
	e := testEngine(&fakeGateway{})

	payload := e.HandleChatInput(context.Background(), "start", "", freshPortfolio())
	if payload.Type != models.PayloadError {
		t.Fatalf("type = %s, want error", payload.Type)
	}
	if payload.AuthURL == "" {
		t.Error("missing auth URL when unauthenticated")
	}
}

func TestHandleStartListsExpiries(t *testing.T) {
	e := testEngine(&fakeGateway{
		expiries: []models.Expiry{{Value: "2025-06-12", Label: "12 Jun 2025 (2 DTE)"}},
	})

	payload := e.HandleChatInput(context.Background(), "start", "token", freshPortfolio())
	if payload.Type != models.PayloadExpiries {
		t.Fatalf("type = %s, want expiries", payload.Type)
	}
	if len(payload.Expiries) != 1 || payload.Expiries[0].Value != "2025-06-12" {
		t.Errorf("expiries = %+v", payload.Expiries)
	}
}

func TestHandleStartExpiredSession(t *testing.T) {
	e := testEngine(&fakeGateway{listErr: market.ErrUnauthorized})

	payload := e.HandleChatInput(context.Background(), "start", "stale-token", freshPortfolio())
	if payload.Type != models.PayloadError || payload.AuthURL == "" {
		t.Fatalf("expired session should return an auth error payload, got %+v", payload)
	}
}

func TestHandleAuthCode(t *testing.T) {
	e := testEngine(&fakeGateway{token: "fresh-token"})

	payload := e.HandleChatInput(context.Background(), "AbCd1234", "", freshPortfolio())
	if payload.Type != models.PayloadPortfolio {
		t.Fatalf("type = %s, want portfolio", payload.Type)
	}
	if payload.AccessToken != "fresh-token" {
		t.Errorf("access token = %q, want fresh-token", payload.AccessToken)
	}
}

func TestHandleAuthCodeRejected(t *testing.T) {
	e := testEngine(&fakeGateway{exchangeErr: errors.New("invalid code")})

	payload := e.HandleChatInput(context.Background(), "AbCd1234", "", freshPortfolio())
	if payload.Type != models.PayloadError || payload.AuthURL == "" {
		t.Fatalf("failed exchange should return auth error payload, got %+v", payload)
	}
}

func TestHandleExpiryAnalysis(t *testing.T) {
	e := testEngine(&fakeGateway{chain: liquidChain()})

	payload := e.HandleChatInput(context.Background(), "exp:2025-06-12", "token", freshPortfolio())
	if payload.Type != models.PayloadAnalysis {
		t.Fatalf("type = %s, want analysis", payload.Type)
	}
	if payload.SpotPrice != 23500 {
		t.Errorf("spot = %v, want 23500", payload.SpotPrice)
	}
	if payload.MarketAnalysis == nil {
		t.Fatal("missing market analysis")
	}
	if payload.QualifiedStrikes == nil {
		t.Fatal("missing qualified strikes")
	}
	if len(payload.Opportunities) == 0 {
		t.Error("missing opportunities")
	}
	if payload.TradeRecommendation == nil {
		t.Error("missing trade recommendation")
	}
	if payload.LotSize != 75 {
		t.Errorf("lot size = %d, want 75", payload.LotSize)
	}
}

func TestHandleExpiryBadDate(t *testing.T) {
	e := testEngine(&fakeGateway{chain: liquidChain()})

	payload := e.HandleChatInput(context.Background(), "exp:next-thursday", "token", freshPortfolio())
	if payload.Type != models.PayloadError {
		t.Fatalf("type = %s, want error", payload.Type)
	}
}

func TestHandlePaperTrade(t *testing.T) {
	e := testEngine(&fakeGateway{})

	payload := e.HandleChatInput(context.Background(), "/paper CE 23700 SELL 1 180", "", freshPortfolio())
	if payload.Type != models.PayloadPaperTrade {
		t.Fatalf("type = %s, want paper-trade: %s", payload.Type, payload.Message)
	}
	if payload.Portfolio == nil {
		t.Fatal("missing updated portfolio")
	}
	if got := payload.Portfolio.BlockedMargin.StringFixed(2); got != "266625.00" {
		t.Errorf("blocked margin = %s, want 266625.00", got)
	}
	if len(payload.Portfolio.Positions) != 1 {
		t.Errorf("positions = %d, want 1", len(payload.Portfolio.Positions))
	}
}

func TestHandlePaperTradeParseErrors(t *testing.T) {
	e := testEngine(&fakeGateway{})

	tests := []struct {
		input   string
		mention string
	}{
		{"/paper", "Usage"},
		{"/paper CE 23700 SELL 1", "Usage"},
		{"/paper XX 23700 SELL 1 180", "XX"},
		{"/paper CE banana SELL 1 180", "banana"},
		{"/paper CE 23700 HOLD 1 180", "HOLD"},
		{"/paper CE 23700 SELL zero 180", "zero"},
		{"/paper CE 23700 SELL 1 -5", "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p := freshPortfolio()
			payload := e.HandleChatInput(context.Background(), tt.input, "", p)
			if payload.Type != models.PayloadError {
				t.Fatalf("type = %s, want error", payload.Type)
			}
			if !strings.Contains(payload.Message, tt.mention) {
				t.Errorf("message %q should mention %q", payload.Message, tt.mention)
			}
		})
	}
}

func TestHandlePaperTradeInsufficientFunds(t *testing.T) {
	e := testEngine(&fakeGateway{})

	payload := e.HandleChatInput(context.Background(), "/paper CE 23700 SELL 2 180", "", freshPortfolio())
	if payload.Type != models.PayloadError {
		t.Fatalf("type = %s, want error", payload.Type)
	}
	if !strings.Contains(payload.Message, "insufficient funds") {
		t.Errorf("message %q should explain the rejection", payload.Message)
	}
}

func TestHandleCloseWithPrice(t *testing.T) {
	e := testEngine(&fakeGateway{})

	open := e.HandleChatInput(context.Background(), "/paper CE 23700 SELL 1 180", "", freshPortfolio())
	if open.Type != models.PayloadPaperTrade {
		t.Fatalf("open failed: %s", open.Message)
	}

	payload := e.HandleChatInput(context.Background(), "/close CE 23700 100", "", *open.Portfolio)
	if payload.Type != models.PayloadClosePosition {
		t.Fatalf("type = %s, want close-position: %s", payload.Type, payload.Message)
	}
	if got := payload.Portfolio.RealizedPnL.StringFixed(2); got != "5949.50" {
		t.Errorf("realized pnl = %s, want 5949.50", got)
	}
	if len(payload.Portfolio.Positions) != 0 {
		t.Errorf("positions = %d, want 0", len(payload.Portfolio.Positions))
	}
}

func TestHandleCloseAtMarket(t *testing.T) {
	gw := &fakeGateway{
		chain:    liquidChain(),
		expiries: []models.Expiry{{Value: "2025-06-12", Label: "12 Jun 2025 (2 DTE)"}},
	}
	e := testEngine(gw)

	open := e.HandleChatInput(context.Background(), "/paper CE 23700 SELL 1 180", "token", freshPortfolio())
	if open.Type != models.PayloadPaperTrade {
		t.Fatalf("open failed: %s", open.Message)
	}

	// No price given: the chain LTP for the 23700 call (90) is used.
	payload := e.HandleChatInput(context.Background(), "/close CE 23700", "token", *open.Portfolio)
	if payload.Type != models.PayloadClosePosition {
		t.Fatalf("type = %s, want close-position: %s", payload.Type, payload.Message)
	}
	item := payload.Portfolio.TradeHistory[0]
	if got := item.ExitPrice.StringFixed(2); got != "90.00" {
		t.Errorf("exit price = %s, want 90.00 from chain LTP", got)
	}
	if item.ExitDelta == nil {
		t.Error("exit delta should be captured from the chain")
	}
}

func TestHandleCloseNoMatch(t *testing.T) {
	e := testEngine(&fakeGateway{})

	payload := e.HandleChatInput(context.Background(), "/close PE 22000 50", "", freshPortfolio())
	if payload.Type != models.PayloadError {
		t.Fatalf("type = %s, want error", payload.Type)
	}
}

func TestHandlePortfolio(t *testing.T) {
	e := testEngine(&fakeGateway{})
	p := freshPortfolio()

	payload := e.HandleChatInput(context.Background(), "/portfolio", "", p)
	if payload.Type != models.PayloadPortfolio {
		t.Fatalf("type = %s, want portfolio", payload.Type)
	}
	if payload.Portfolio == nil {
		t.Fatal("missing portfolio")
	}
	if !payload.Portfolio.AvailableFunds().Equal(p.AvailableFunds()) {
		t.Error("portfolio view changed state")
	}
}

func TestHandleReset(t *testing.T) {
	e := testEngine(&fakeGateway{})

	payload := e.HandleChatInput(context.Background(), "/reset", "token", freshPortfolio())
	if payload.Type != models.PayloadReset {
		t.Fatalf("type = %s, want reset", payload.Type)
	}
	if payload.Portfolio != nil {
		t.Error("reset payload must not carry a portfolio; the caller owns the wipe")
	}
}

func TestHandleHelpIsIdempotent(t *testing.T) {
	e := testEngine(&fakeGateway{})
	p := freshPortfolio()

	first := e.HandleChatInput(context.Background(), "help", "", p)
	second := e.HandleChatInput(context.Background(), "help", "", p)

	if first.Type != models.PayloadPortfolio || second.Type != models.PayloadPortfolio {
		t.Fatal("help should be a portfolio payload")
	}
	if first.Message != second.Message {
		t.Error("help is not stable across calls")
	}
	if !strings.Contains(first.Message, "/paper") || !strings.Contains(first.Message, "/close") {
		t.Error("help must document the trading commands")
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	e := testEngine(&fakeGateway{})

	payload := e.HandleChatInput(context.Background(), "buy me some nifty please", "", freshPortfolio())
	if payload.Type != models.PayloadError {
		t.Fatalf("type = %s, want error", payload.Type)
	}
	if !strings.Contains(payload.Message, "help") {
		t.Errorf("message %q should point at help", payload.Message)
	}
}

func TestBareWordsAreNotAuthCodes(t *testing.T) {
	// The gateway would hand out a token if the input reached the exchange.
	e := testEngine(&fakeGateway{token: "fresh-token"})

	for _, input := range []string{"hello", "thanks", "okay", "please"} {
		payload := e.HandleChatInput(context.Background(), input, "", freshPortfolio())
		if payload.Type != models.PayloadError {
			t.Errorf("input %q: type = %s, want error", input, payload.Type)
		}
		if payload.AccessToken != "" {
			t.Errorf("input %q: bare word triggered a token exchange", input)
		}
	}
}

func TestUnknownCommandTruncatesOnRunes(t *testing.T) {
	e := testEngine(&fakeGateway{})

	payload := e.HandleChatInput(context.Background(), strings.Repeat("₹", 60)+" x", "", freshPortfolio())
	if payload.Type != models.PayloadError {
		t.Fatalf("type = %s, want error", payload.Type)
	}
	if !utf8.ValidString(payload.Message) {
		t.Errorf("message is not valid UTF-8: %q", payload.Message)
	}
	if !strings.Contains(payload.Message, strings.Repeat("₹", 40)+"...") {
		t.Errorf("message %q should carry the token truncated at 40 runes", payload.Message)
	}
}

func TestCaseInsensitiveCommands(t *testing.T) {
	e := testEngine(&fakeGateway{
		expiries: []models.Expiry{{Value: "2025-06-12", Label: "12 Jun 2025 (2 DTE)"}},
	})

	for _, input := range []string{"START", "Start", "start"} {
		payload := e.HandleChatInput(context.Background(), input, "token", freshPortfolio())
		if payload.Type != models.PayloadExpiries {
			t.Errorf("input %q: type = %s, want expiries", input, payload.Type)
		}
	}
}

func TestErrorsLeavePortfolioUntouched(t *testing.T) {
	e := testEngine(&fakeGateway{})
	p := freshPortfolio()

	inputs := []string{
		"/paper CE 23700 SELL 2 180", // insufficient funds
		"/close CE 23700 100",        // no match
		"do something clever",
		fmt.Sprintf("/paper CE %d SELL 1 x", 23700),
	}
	for _, input := range inputs {
		payload := e.HandleChatInput(context.Background(), input, "", p)
		if payload.Type != models.PayloadError {
			t.Errorf("input %q: type = %s, want error", input, payload.Type)
		}
		if payload.Portfolio != nil {
			t.Errorf("input %q: error payload must not carry a portfolio", input)
		}
	}
	if len(p.Positions) != 0 || p.TotalTrades != 0 {
		t.Error("input portfolio mutated by failed commands")
	}
}
