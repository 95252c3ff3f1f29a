package market

import (
	"math"
	"testing"
)

func TestScore_Deterministic(t *testing.T) {
	s := NewOfferScorer(DefaultScoreWeights())
	a := s.Score(5000, 3600, 3.0)
	b := s.Score(5000, 3600, 3.0)
	if a != b {
		t.Fatalf("scoring is not deterministic: %v != %v", a, b)
	}
}

func TestScore_MatchesFormula(t *testing.T) {
	w := ScoreWeights{Base: 10.0, Price: 1.0, ETA: 0.5, Reputation: 2.0}
	s := NewOfferScorer(w)
	price, eta, rep := int64(100), int64(60), 4.0
	want := w.Base - math.Log(101) - 0.5*math.Log(61) + 2.0*rep
	want = math.Round(want*1000) / 1000
	if got := s.Score(price, eta, rep); got != want {
		t.Fatalf("score = %v, want %v", got, want)
	}
}

func TestScore_RoundedToThreeDecimals(t *testing.T) {
	s := NewOfferScorer(DefaultScoreWeights())
	got := s.Score(1234, 567, 2.71828)
	if got != math.Round(got*1000)/1000 {
		t.Fatalf("score %v is not rounded to 3 decimals", got)
	}
}

func TestScore_DecreasesWithPrice(t *testing.T) {
	s := NewOfferScorer(DefaultScoreWeights())
	prev := s.Score(1, 60, 3.0)
	for _, price := range []int64{10, 100, 1000, 100000} {
		cur := s.Score(price, 60, 3.0)
		if cur >= prev {
			t.Fatalf("score did not decrease with price: %v (price %d) >= %v", cur, price, prev)
		}
		prev = cur
	}
}

func TestScore_DecreasesWithETA(t *testing.T) {
	s := NewOfferScorer(DefaultScoreWeights())
	prev := s.Score(100, 1, 3.0)
	for _, eta := range []int64{60, 3600, 86400} {
		cur := s.Score(100, eta, 3.0)
		if cur >= prev {
			t.Fatalf("score did not decrease with eta: %v (eta %d) >= %v", cur, eta, prev)
		}
		prev = cur
	}
}

func TestScore_IncreasesWithReputation(t *testing.T) {
	s := NewOfferScorer(DefaultScoreWeights())
	prev := s.Score(100, 60, 0.0)
	for _, rep := range []float64{1.0, 2.5, 5.0} {
		cur := s.Score(100, 60, rep)
		if cur <= prev {
			t.Fatalf("score did not increase with reputation: %v (rep %v) <= %v", cur, rep, prev)
		}
		prev = cur
	}
}
