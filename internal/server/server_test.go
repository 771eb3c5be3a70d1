package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vizbot/internal/analysis"
	"vizbot/internal/analysis/scoring"
	"vizbot/internal/bot"
	"vizbot/internal/ledger"
	"vizbot/internal/models"
	"vizbot/internal/store"
)

type stubGateway struct{}

func (stubGateway) LoginURL() string { return "https://example.test/authorize" }
func (stubGateway) ExchangeAuthCode(ctx context.Context, code string) (string, error) {
	return "stub-token", nil
}
func (stubGateway) ListExpiries(ctx context.Context, accessToken string) ([]models.Expiry, error) {
	return []models.Expiry{{Value: "2025-06-12", Label: "12 Jun 2025 (2 DTE)"}}, nil
}
func (stubGateway) GetOptionChain(ctx context.Context, accessToken, expiry string) (*models.OptionChain, error) {
	return &models.OptionChain{Symbol: "NIFTY", SpotPrice: 23500, Expiry: expiry, LotSize: 75}, nil
}

func testServer(t *testing.T) (*Server, store.UserStore) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "server_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	engine := bot.NewEngine(bot.Config{
		Gateway: stubGateway{},
		Ledger: ledger.New(ledger.Config{
			InitialFunds: decimal.NewFromInt(400000),
			LotSize:      75,
			Margins:      ledger.MarginPolicy{ShortMarginRate: decimal.NewFromFloat(0.15)},
			Costs: ledger.CostModel{
				BrokeragePerLeg: decimal.NewFromInt(20),
				TurnoverRate:    decimal.NewFromFloat(0.0005),
			},
		}),
		Thresholds: analysis.DefaultThresholds(),
		Scorer:     scoring.NewScorer(scoring.DefaultFilters()),
		Logger:     zerolog.Nop(),
	})

	srv := NewServer(Config{
		ListenAddr:   ":0",
		InitialFunds: decimal.NewFromInt(400000),
	}, engine, st, zerolog.Nop())

	return srv, st
}

func postChat(t *testing.T, h http.Handler, userID, text string) (*httptest.ResponseRecorder, models.BotResponsePayload) {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"userId": userID, "text": text})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out struct {
		Response models.BotResponsePayload `json:"response"`
	}
	if rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return rec, out.Response
}

func TestChatRejectsBadRequests(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rec.Code)
	}

	rec2, _ := postChat(t, h, "", "help")
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("missing userId: status = %d, want 400", rec2.Code)
	}
}

func TestChatSeedsAndPersists(t *testing.T) {
	srv, st := testServer(t)
	h := srv.Handler()

	rec, payload := postChat(t, h, "alice", "/paper CE 23700 SELL 1 180")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if payload.Type != models.PayloadPaperTrade {
		t.Fatalf("payload type = %s: %s", payload.Type, payload.Message)
	}

	data, ok, err := st.Get(context.Background(), "alice")
	if err != nil || !ok {
		t.Fatalf("stored user: ok=%v err=%v", ok, err)
	}
	if got := data.Portfolio.BlockedMargin.StringFixed(2); got != "266625.00" {
		t.Errorf("persisted blocked margin = %s, want 266625.00", got)
	}
	if len(data.Messages) != 3 {
		t.Fatalf("messages = %d, want greeting + user + bot", len(data.Messages))
	}
	if data.Messages[0].Role != models.RoleBot || !strings.Contains(data.Messages[0].Content, "Welcome") {
		t.Errorf("first message should be the greeting, got %+v", data.Messages[0])
	}
	if data.Messages[1].Role != models.RoleUser || data.Messages[2].Role != models.RoleBot {
		t.Errorf("message roles = %s/%s", data.Messages[1].Role, data.Messages[2].Role)
	}
}

func TestChatTurnsAccumulate(t *testing.T) {
	srv, st := testServer(t)
	h := srv.Handler()

	postChat(t, h, "bob", "help")
	postChat(t, h, "bob", "/portfolio")

	data, _, err := st.Get(context.Background(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(data.Messages) != 5 {
		t.Errorf("messages = %d, want greeting + 2 turns", len(data.Messages))
	}
}

func TestChatStoresAccessToken(t *testing.T) {
	srv, st := testServer(t)
	h := srv.Handler()

	_, payload := postChat(t, h, "carol", "AbCd1234")
	if payload.AccessToken != "stub-token" {
		t.Fatalf("payload token = %q", payload.AccessToken)
	}

	data, _, err := st.Get(context.Background(), "carol")
	if err != nil {
		t.Fatal(err)
	}
	if data.AccessToken != "stub-token" {
		t.Errorf("stored token = %q, want stub-token", data.AccessToken)
	}

	// The token now authorizes subsequent turns.
	_, next := postChat(t, h, "carol", "start")
	if next.Type != models.PayloadExpiries {
		t.Errorf("start after auth: type = %s, want expiries", next.Type)
	}
}

func TestResetWipesUser(t *testing.T) {
	srv, st := testServer(t)
	h := srv.Handler()

	postChat(t, h, "dave", "/paper CE 23700 SELL 1 180")
	_, payload := postChat(t, h, "dave", "/reset")
	if payload.Type != models.PayloadReset {
		t.Fatalf("type = %s, want reset", payload.Type)
	}

	_, ok, err := st.Get(context.Background(), "dave")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("reset should delete the stored row")
	}

	// Next turn starts from a fresh 400000 portfolio.
	_, after := postChat(t, h, "dave", "/portfolio")
	if after.Portfolio == nil {
		t.Fatal("missing portfolio after reset")
	}
	if got := after.Portfolio.AvailableFunds().StringFixed(2); got != "400000.00" {
		t.Errorf("available after reset = %s, want 400000.00", got)
	}
}

func TestGetPortfolioUnknownUserSeeded(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/users/nobody/portfolio", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var p models.Portfolio
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := p.AvailableFunds().StringFixed(2); got != "400000.00" {
		t.Errorf("available = %s, want 400000.00", got)
	}
}

func TestJournalCSV(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.Handler()

	postChat(t, h, "erin", "/paper CE 23700 SELL 1 180")
	postChat(t, h, "erin", "/close CE 23700 100")

	req := httptest.NewRequest(http.MethodGet, "/api/users/erin/journal.csv", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content-type = %q, want text/csv", ct)
	}

	body := rec.Body.String()
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, want header + 1 row:\n%s", len(lines), body)
	}
	if !strings.Contains(lines[0], "Net P&L") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "5949.5") || !strings.Contains(lines[1], "Win") {
		t.Errorf("row = %q, want net pnl and Win status", lines[1])
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body)
	}
}
