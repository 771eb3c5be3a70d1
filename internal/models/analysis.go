package models

// Sentiment is the market sentiment label derived from put/call ratios.
type Sentiment string

const (
	SentimentBearish Sentiment = "Bearish"
	SentimentNeutral Sentiment = "Neutral"
	SentimentBullish Sentiment = "Bullish"
)

// Confidence grades how far the ratios sit from the neutral band.
type Confidence string

const (
	ConfidenceLow    Confidence = "Low"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceHigh   Confidence = "High"
)

// MarketAnalysis summarizes sentiment for one option chain snapshot.
type MarketAnalysis struct {
	PCROI          float64    `json:"pcrOi"`
	PCRVolume      float64    `json:"pcrVolume"`
	Sentiment      Sentiment  `json:"sentiment"`
	Confidence     Confidence `json:"confidence"`
	Interpretation string     `json:"interpretation"`
	TradingBias    string     `json:"tradingBias"`
}

// QualifiedStrike is a strike that passed the liquidity and premium filters.
type QualifiedStrike struct {
	Strike           float64    `json:"strike"`
	Type             OptionType `json:"type"`
	Premium          float64    `json:"premium"`
	OI               int64      `json:"oi"`
	Volume           int64      `json:"volume"`
	Delta            float64    `json:"delta"`
	DistanceFromSpot float64    `json:"distanceFromSpot"` // percent
}

// QualifiedStrikes groups qualified candidates by option type.
type QualifiedStrikes struct {
	Calls []QualifiedStrike `json:"calls"`
	Puts  []QualifiedStrike `json:"puts"`
}

// Opportunity is a scored trade setup.
type Opportunity struct {
	Strike  float64     `json:"strike"`
	Type    OptionType  `json:"type"`
	Action  TradeAction `json:"action"`
	Premium float64     `json:"premium"`
	Score   float64     `json:"score"`
	Reason  string      `json:"reason"`
}

// TradeRecommendation is the top opportunity rendered as a ready-to-paste command.
type TradeRecommendation struct {
	TradeCommand string `json:"tradeCommand"`
	Reason       string `json:"reason"`
}
