package signal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MACDSeries holds the per-bar MACD line and its signal line, aligned to
// the input series from index slow-1 onward.
type MACDSeries struct {
	MACD   []decimal.Decimal
	Signal []decimal.Decimal
}

// ema computes the exponential moving average series with the standard
// 2/(n+1) multiplier, seeded by the simple average of the first n closes.
// Output index i corresponds to input index i+n-1.
func ema(closes []decimal.Decimal, n int) []decimal.Decimal {
	seed := decimal.Zero
	for _, c := range closes[:n] {
		seed = seed.Add(c)
	}
	seed = seed.Div(decimal.NewFromInt(int64(n)))

	k := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(n + 1)))
	out := make([]decimal.Decimal, 0, len(closes)-n+1)
	out = append(out, seed)
	prev := seed
	for _, c := range closes[n:] {
		prev = c.Sub(prev).Mul(k).Add(prev)
		out = append(out, prev)
	}
	return out
}

// MACD computes the MACD line (fast EMA minus slow EMA) and its signal
// EMA over a chronological close series. Needs at least
// slow+signalPeriod-1 closes.
func MACD(closes []decimal.Decimal, fast, slow, signalPeriod int) (MACDSeries, error) {
	if fast <= 0 || slow <= fast || signalPeriod <= 0 {
		return MACDSeries{}, fmt.Errorf("macd: invalid periods fast=%d slow=%d signal=%d", fast, slow, signalPeriod)
	}
	min := slow + signalPeriod - 1
	if len(closes) < min {
		return MACDSeries{}, fmt.Errorf("macd: need %d closes, have %d", min, len(closes))
	}

	fastEMA := ema(closes, fast)
	slowEMA := ema(closes, slow)

	// Align: slowEMA starts at input index slow-1; trim fastEMA's head.
	offset := slow - fast
	macdLine := make([]decimal.Decimal, len(slowEMA))
	for i := range slowEMA {
		macdLine[i] = fastEMA[i+offset].Sub(slowEMA[i])
	}

	signalLine := ema(macdLine, signalPeriod)
	// Trim the MACD line so both series end-align.
	return MACDSeries{
		MACD:   macdLine[signalPeriod-1:],
		Signal: signalLine,
	}, nil
}

// RecentGoldenCross reports whether the MACD line crossed above its
// signal line within the last lookback bars of the series.
func (s MACDSeries) RecentGoldenCross(lookback int) bool {
	n := len(s.MACD)
	if n < 2 || len(s.Signal) != n {
		return false
	}
	start := n - lookback
	if start < 1 {
		start = 1
	}
	for i := start; i < n; i++ {
		below := s.MACD[i-1].LessThanOrEqual(s.Signal[i-1])
		above := s.MACD[i].GreaterThan(s.Signal[i])
		if below && above {
			return true
		}
	}
	return false
}
