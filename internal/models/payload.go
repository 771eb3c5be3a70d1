package models

// PayloadType discriminates BotResponsePayload variants.
type PayloadType string

const (
	PayloadError         PayloadType = "error"
	PayloadExpiries      PayloadType = "expiries"
	PayloadAnalysis      PayloadType = "analysis"
	PayloadPaperTrade    PayloadType = "paper-trade"
	PayloadPortfolio     PayloadType = "portfolio"
	PayloadClosePosition PayloadType = "close-position"
	PayloadReset         PayloadType = "reset"
)

// BotResponsePayload is the tagged union returned for every chat turn.
// Only the fields relevant to Type are populated; Portfolio and AccessToken
// are state deltas the caller may apply or ignore.
type BotResponsePayload struct {
	Type    PayloadType `json:"type"`
	Message string      `json:"message,omitempty"`
	AuthURL string      `json:"authUrl,omitempty"`

	Expiries []Expiry `json:"expiries,omitempty"`

	SpotPrice           float64              `json:"spotPrice,omitempty"`
	DaysToExpiry        int                  `json:"daysToExpiry,omitempty"`
	LotSize             int                  `json:"lotSize,omitempty"`
	Expiry              string               `json:"expiry,omitempty"`
	MarketAnalysis      *MarketAnalysis      `json:"marketAnalysis,omitempty"`
	Opportunities       []Opportunity        `json:"opportunities,omitempty"`
	QualifiedStrikes    *QualifiedStrikes    `json:"qualifiedStrikes,omitempty"`
	TradeRecommendation *TradeRecommendation `json:"tradeRecommendation,omitempty"`

	Portfolio   *Portfolio `json:"portfolio,omitempty"`
	AccessToken string     `json:"accessToken,omitempty"`
}

// ErrorPayload builds an error variant.
func ErrorPayload(message string) BotResponsePayload {
	return BotResponsePayload{Type: PayloadError, Message: message}
}

// AuthErrorPayload builds an error variant carrying a re-authorization URL.
func AuthErrorPayload(message, authURL string) BotResponsePayload {
	return BotResponsePayload{Type: PayloadError, Message: message, AuthURL: authURL}
}

// ExpiriesPayload builds an expiries variant.
func ExpiriesPayload(expiries []Expiry) BotResponsePayload {
	return BotResponsePayload{Type: PayloadExpiries, Expiries: expiries}
}

// PortfolioPayload builds a portfolio variant.
func PortfolioPayload(message string, p Portfolio) BotResponsePayload {
	return BotResponsePayload{Type: PayloadPortfolio, Message: message, Portfolio: &p}
}

// PaperTradePayload builds a paper-trade variant with the updated portfolio.
func PaperTradePayload(message string, p Portfolio) BotResponsePayload {
	return BotResponsePayload{Type: PayloadPaperTrade, Message: message, Portfolio: &p}
}

// ClosePositionPayload builds a close-position variant with the updated portfolio.
func ClosePositionPayload(message string, p Portfolio) BotResponsePayload {
	return BotResponsePayload{Type: PayloadClosePosition, Message: message, Portfolio: &p}
}

// ResetPayload builds a reset variant. The caller owns clearing persisted state.
func ResetPayload() BotResponsePayload {
	return BotResponsePayload{Type: PayloadReset}
}
