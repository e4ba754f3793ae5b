package signal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/geongi-im/kis-us-auto-trading/internal/broker"
	"github.com/geongi-im/kis-us-auto-trading/internal/domain"
	"github.com/geongi-im/kis-us-auto-trading/internal/infra"
	"github.com/shopspring/decimal"
)

// candleHistory is how many daily bars the provider requests; enough for
// a 26-bar slow EMA plus warmup.
const candleHistory = 120

// CandleSource supplies price bars, newest first. *broker.Client
// satisfies it.
type CandleSource interface {
	DailyCandles(ctx context.Context, ticker string, market domain.Market, count int) ([]broker.Candle, error)
	MinuteCandles(ctx context.Context, ticker string, market domain.Market, intervalMin int) ([]broker.Candle, error)
}

// ChartProvider derives buy/sell decisions from chart indicators: RSI
// thresholds gate both directions, and sells additionally require a
// recent MACD golden cross as momentum confirmation.
type ChartProvider struct {
	source CandleSource
	cfg    infra.SignalConfig
	market func(ticker string) domain.Market
	log    *slog.Logger
}

// NewChartProvider builds a provider. market resolves each ticker to its
// exchange.
func NewChartProvider(source CandleSource, cfg infra.SignalConfig, market func(string) domain.Market, log *slog.Logger) *ChartProvider {
	return &ChartProvider{source: source, cfg: cfg, market: market, log: log}
}

// Evaluate computes the current verdict for the ticker.
func (p *ChartProvider) Evaluate(ctx context.Context, ticker string) (Decision, error) {
	mkt := p.market(ticker)

	rsiCloses, err := p.closes(ctx, ticker, mkt, p.cfg.RSIInterval)
	if err != nil {
		return Decision{}, fmt.Errorf("rsi candles for %s: %w", ticker, err)
	}
	rsi, err := RSI(rsiCloses, p.cfg.RSIPeriod)
	if err != nil {
		return Decision{}, fmt.Errorf("rsi for %s: %w", ticker, err)
	}

	macdCloses := rsiCloses
	if p.cfg.MACDInterval != p.cfg.RSIInterval {
		macdCloses, err = p.closes(ctx, ticker, mkt, p.cfg.MACDInterval)
		if err != nil {
			return Decision{}, fmt.Errorf("macd candles for %s: %w", ticker, err)
		}
	}
	series, err := MACD(macdCloses, p.cfg.MACDFast, p.cfg.MACDSlow, p.cfg.MACDSignal)
	if err != nil {
		return Decision{}, fmt.Errorf("macd for %s: %w", ticker, err)
	}
	crossed := series.RecentGoldenCross(p.cfg.CrossLookback)

	oversold := decimal.NewFromFloat(p.cfg.RSIOversold)
	overbought := decimal.NewFromFloat(p.cfg.RSIOverbought)

	d := Decision{
		Buy:  rsi.LessThanOrEqual(oversold),
		Sell: rsi.GreaterThanOrEqual(overbought) && crossed,
	}
	p.log.Debug("signal evaluated",
		"ticker", ticker,
		"rsi", rsi.StringFixed(2),
		"golden_cross", crossed,
		"buy", d.Buy,
		"sell", d.Sell)
	return d, nil
}

// closes fetches bars for the interval and returns them oldest first.
func (p *ChartProvider) closes(ctx context.Context, ticker string, mkt domain.Market, interval string) ([]decimal.Decimal, error) {
	var candles []broker.Candle
	var err error
	if interval == "day" {
		candles, err = p.source.DailyCandles(ctx, ticker, mkt, candleHistory)
	} else {
		min, convErr := strconv.Atoi(interval)
		if convErr != nil || min <= 0 {
			return nil, fmt.Errorf("bad candle interval %q", interval)
		}
		candles, err = p.source.MinuteCandles(ctx, ticker, mkt, min)
	}
	if err != nil {
		return nil, err
	}
	newest := make([]decimal.Decimal, 0, len(candles))
	for _, c := range candles {
		newest = append(newest, c.Close)
	}
	return Reverse(newest), nil
}
