package market

import "math"

// ScoreWeights tunes the offer ranking function. Weights are configuration,
// not business rules baked into call sites.
type ScoreWeights struct {
	Base       float64 `json:"base"`
	Price      float64 `json:"price"`      // penalty per ln(price+1)
	ETA        float64 `json:"eta"`        // penalty per ln(etaSeconds+1)
	Reputation float64 `json:"reputation"` // reward per reputation point
}

// DefaultScoreWeights returns balanced weights favoring cheap, fast offers
// from reputable agents.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Base:       10.0,
		Price:      1.0,
		ETA:        0.5,
		Reputation: 2.0,
	}
}

// OfferScorer ranks offers deterministically. It is pure math: price and
// etaSeconds must be positive, validated by the caller. Reputation is read
// at the moment of scoring and the result is frozen on the offer; later
// reputation changes never re-rank existing offers.
type OfferScorer struct {
	w ScoreWeights
}

func NewOfferScorer(w ScoreWeights) *OfferScorer {
	return &OfferScorer{w: w}
}

// Score computes base − price·ln(price+1) − eta·ln(eta+1) + rep·reputation,
// rounded to 3 decimal places. Higher wins.
func (s *OfferScorer) Score(price, etaSeconds int64, reputation float64) float64 {
	v := s.w.Base -
		s.w.Price*math.Log(float64(price)+1) -
		s.w.ETA*math.Log(float64(etaSeconds)+1) +
		s.w.Reputation*reputation
	return round3(v)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
