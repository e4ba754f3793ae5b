package signal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RSI computes the Wilder relative strength index over a chronological
// close series and returns the latest value in [0, 100]. Needs at least
// period+1 closes.
func RSI(closes []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Zero, fmt.Errorf("rsi: period must be positive, got %d", period)
	}
	if len(closes) < period+1 {
		return decimal.Zero, fmt.Errorf("rsi: need %d closes, have %d", period+1, len(closes))
	}

	var avgGain, avgLoss decimal.Decimal
	for i := 1; i <= period; i++ {
		diff := closes[i].Sub(closes[i-1])
		if diff.IsPositive() {
			avgGain = avgGain.Add(diff)
		} else {
			avgLoss = avgLoss.Add(diff.Neg())
		}
	}
	p := decimal.NewFromInt(int64(period))
	avgGain = avgGain.Div(p)
	avgLoss = avgLoss.Div(p)

	// Wilder smoothing over the remainder of the series.
	pMinus1 := decimal.NewFromInt(int64(period - 1))
	for i := period + 1; i < len(closes); i++ {
		diff := closes[i].Sub(closes[i-1])
		gain, loss := decimal.Zero, decimal.Zero
		if diff.IsPositive() {
			gain = diff
		} else {
			loss = diff.Neg()
		}
		avgGain = avgGain.Mul(pMinus1).Add(gain).Div(p)
		avgLoss = avgLoss.Mul(pMinus1).Add(loss).Div(p)
	}

	if avgLoss.IsZero() {
		return decimal.NewFromInt(100), nil
	}
	rs := avgGain.Div(avgLoss)
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs))), nil
}
