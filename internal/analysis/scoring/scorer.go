// Package scoring filters option strikes into qualified candidates and ranks
// trade opportunities. Scoring is deterministic: identical inputs always
// produce identical recommendations.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"vizbot/internal/models"
)

// Filters defines the qualification and scoring policy constants.
type Filters struct {
	MinOI              int64
	MinVolume          int64
	MinPremium         float64
	MaxPremium         float64
	MaxDistancePercent float64
	DefaultLots        int
}

// DefaultFilters returns the default scorer filters.
func DefaultFilters() Filters {
	return Filters{
		MinOI:              100000,
		MinVolume:          50000,
		MinPremium:         10.0,
		MaxPremium:         300.0,
		MaxDistancePercent: 5.0,
		DefaultLots:        1,
	}
}

// Scorer ranks option strikes for premium-selling setups.
type Scorer struct {
	filters Filters
}

// NewScorer creates a new scorer with the given filters.
func NewScorer(filters Filters) *Scorer {
	return &Scorer{filters: filters}
}

// Result bundles the scorer output for one chain snapshot.
type Result struct {
	Qualified      models.QualifiedStrikes
	Opportunities  []models.Opportunity
	Recommendation *models.TradeRecommendation
}

// Score qualifies strikes, ranks opportunities, and emits the top
// recommendation as a ready-to-paste trade command.
func (s *Scorer) Score(chain *models.OptionChain, ma models.MarketAnalysis) Result {
	qualified := s.qualify(chain)

	opportunities := s.rank(qualified, ma, chain.SpotPrice)

	var rec *models.TradeRecommendation
	if len(opportunities) > 0 {
		top := opportunities[0]
		rec = &models.TradeRecommendation{
			TradeCommand: fmt.Sprintf("/paper %s %.0f %s %d %.2f",
				top.Type, top.Strike, top.Action, s.filters.DefaultLots, top.Premium),
			Reason: top.Reason,
		}
	}

	return Result{
		Qualified:      qualified,
		Opportunities:  opportunities,
		Recommendation: rec,
	}
}

// qualify filters strikes by liquidity, premium, and distance from spot.
func (s *Scorer) qualify(chain *models.OptionChain) models.QualifiedStrikes {
	q := models.QualifiedStrikes{
		Calls: []models.QualifiedStrike{},
		Puts:  []models.QualifiedStrike{},
	}
	if chain.SpotPrice <= 0 {
		return q
	}

	for _, strike := range chain.Strikes {
		distance := math.Abs(strike.Strike-chain.SpotPrice) / chain.SpotPrice * 100
		if distance > s.filters.MaxDistancePercent {
			continue
		}
		if c := strike.Call; c != nil && s.passes(c) {
			q.Calls = append(q.Calls, models.QualifiedStrike{
				Strike:           strike.Strike,
				Type:             models.OptionCall,
				Premium:          c.LTP,
				OI:               c.OI,
				Volume:           c.Volume,
				Delta:            c.Greeks.Delta,
				DistanceFromSpot: round2(distance),
			})
		}
		if p := strike.Put; p != nil && s.passes(p) {
			q.Puts = append(q.Puts, models.QualifiedStrike{
				Strike:           strike.Strike,
				Type:             models.OptionPut,
				Premium:          p.LTP,
				OI:               p.OI,
				Volume:           p.Volume,
				Delta:            p.Greeks.Delta,
				DistanceFromSpot: round2(distance),
			})
		}
	}
	return q
}

func (s *Scorer) passes(d *models.OptionData) bool {
	return d.OI >= s.filters.MinOI &&
		d.Volume >= s.filters.MinVolume &&
		d.LTP >= s.filters.MinPremium &&
		d.LTP <= s.filters.MaxPremium
}

// rank scores every qualified strike as a short-premium setup. Premium earned
// per unit of distance from spot drives the base score; alignment with the
// sentiment bias adds a bonus, fighting it takes a penalty. Only SELL setups
// are emitted: long options need a directional price target the PCR-based
// sentiment model cannot supply, so buying is left to the user.
func (s *Scorer) rank(q models.QualifiedStrikes, ma models.MarketAnalysis, spot float64) []models.Opportunity {
	var out []models.Opportunity

	for _, c := range q.Calls {
		// Short calls profit when price stays below the strike: a bearish setup.
		score := baseScore(c) + alignmentBonus(models.SentimentBearish, ma)
		out = append(out, models.Opportunity{
			Strike:  c.Strike,
			Type:    models.OptionCall,
			Action:  models.ActionSell,
			Premium: c.Premium,
			Score:   round2(score),
			Reason:  reason(c, models.OptionCall, ma),
		})
	}
	for _, p := range q.Puts {
		// Short puts profit when price stays above the strike: a bullish setup.
		score := baseScore(p) + alignmentBonus(models.SentimentBullish, ma)
		out = append(out, models.Opportunity{
			Strike:  p.Strike,
			Type:    models.OptionPut,
			Action:  models.ActionSell,
			Premium: p.Premium,
			Score:   round2(score),
			Reason:  reason(p, models.OptionPut, ma),
		})
	}

	// Deterministic order: score desc, then strike asc, then puts before calls.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Strike != out[j].Strike {
			return out[i].Strike < out[j].Strike
		}
		return out[i].Type == models.OptionPut && out[j].Type == models.OptionCall
	})
	return out
}

// baseScore rewards premium collected per percent of distance from spot,
// with a liquidity kicker for deep OI.
func baseScore(qs models.QualifiedStrike) float64 {
	distance := qs.DistanceFromSpot
	if distance < 0.1 {
		distance = 0.1
	}
	score := qs.Premium / distance
	score += math.Log10(float64(qs.OI)) * 2
	return score
}

// alignmentBonus adds points when the setup's directional need agrees with the
// analyzed sentiment, scaled by confidence, and subtracts when it fights it.
func alignmentBonus(setupNeeds models.Sentiment, ma models.MarketAnalysis) float64 {
	weight := 5.0
	switch ma.Confidence {
	case models.ConfidenceHigh:
		weight = 15.0
	case models.ConfidenceMedium:
		weight = 10.0
	}

	switch {
	case ma.Sentiment == models.SentimentNeutral:
		return 0
	case ma.Sentiment == setupNeeds:
		return weight
	default:
		return -weight
	}
}

func reason(qs models.QualifiedStrike, t models.OptionType, ma models.MarketAnalysis) string {
	side := "call"
	if t == models.OptionPut {
		side = "put"
	}
	return fmt.Sprintf("Sell the %.0f %s: %.2f premium at %.2f%% from spot with %s OI and %s sentiment (%s confidence).",
		qs.Strike, side, qs.Premium, qs.DistanceFromSpot,
		formatCount(qs.OI), ma.Sentiment, ma.Confidence)
}

func formatCount(n int64) string {
	switch {
	case n >= 10000000:
		return fmt.Sprintf("%.1fCr", float64(n)/10000000)
	case n >= 100000:
		return fmt.Sprintf("%.1fL", float64(n)/100000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
