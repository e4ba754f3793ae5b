// Package signal computes the technical indicators the engine trades on.
// Inputs are chronological close series (oldest first); the broker's
// candle endpoints return newest first, so callers reverse before calling.
package signal

import (
	"context"

	"github.com/shopspring/decimal"
)

// Decision is the directional verdict for one ticker at one instant.
type Decision struct {
	Buy  bool
	Sell bool
}

// Provider answers buy/sell questions for a ticker. The engine treats it
// as an oracle; implementations own their own data fetching.
type Provider interface {
	Evaluate(ctx context.Context, ticker string) (Decision, error)
}

// Reverse returns the series in opposite order. Candle endpoints report
// newest first; indicator math wants oldest first.
func Reverse(in []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
