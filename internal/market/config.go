package market

import "time"

// Config carries the tunables for the matching and lifecycle core.
type Config struct {
	// AuctionDuration is the offer window length for each auction.
	AuctionDuration time.Duration

	// Weights for the offer scoring function.
	Weights ScoreWeights

	// ReputationBase is the score of an agent with no history.
	ReputationBase float64
	// ReputationDecay is the per-step weight multiplier, newest event first.
	ReputationDecay float64
	// ReputationWindow caps how many recent events are considered.
	ReputationWindow int

	// SuccessDelta and FailureDelta are the reputation deltas applied when
	// an execution completes.
	SuccessDelta float64
	FailureDelta float64

	// TokenSymbol is the settlement currency passed to the ledger.
	TokenSymbol string
}

func DefaultConfig() Config {
	return Config{
		AuctionDuration:  15 * time.Second,
		Weights:          DefaultScoreWeights(),
		ReputationBase:   3.0,
		ReputationDecay:  0.95,
		ReputationWindow: 100,
		SuccessDelta:     0.1,
		FailureDelta:     -0.2,
		TokenSymbol:      "USDC",
	}
}
