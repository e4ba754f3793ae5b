package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/geongi-im/kis-us-auto-trading/internal/broker"
	"github.com/geongi-im/kis-us-auto-trading/internal/domain"
	"github.com/geongi-im/kis-us-auto-trading/internal/infra"
	"github.com/geongi-im/kis-us-auto-trading/internal/metrics"
	"github.com/geongi-im/kis-us-auto-trading/internal/notify"
	"github.com/geongi-im/kis-us-auto-trading/internal/signal"
	"github.com/geongi-im/kis-us-auto-trading/internal/storage"
	"github.com/shopspring/decimal"
)

// Broker is the slice of the KIS client the decision engine needs.
type Broker interface {
	SubmitOrder(ctx context.Context, req broker.OrderRequest) (string, error)
	CurrentPrice(ctx context.Context, ticker string, market domain.Market) (decimal.Decimal, error)
	FetchBalance(ctx context.Context, market domain.Market) (*broker.Balance, error)
	FetchPresentHoldings(ctx context.Context) ([]domain.Holding, error)
}

// HistorySource pages through the account's order history.
type HistorySource interface {
	FetchAll(ctx context.Context, q broker.HistoryQuery) ([]broker.HistoryRecord, error)
}

// Journal records trade lifecycle rows; *storage.Store satisfies it.
type Journal interface {
	AppendTrade(ctx context.Context, e storage.TradeEntry) error
}

// Engine evaluates one ticker per call and submits at most one order.
// Gates run in a fixed sequence: the stop loss first (it overrides
// everything), then the open-order guard, the indicator signal, the
// cooldown, and finally resource sizing.
type Engine struct {
	cfg      *infra.Config
	broker   Broker
	history  HistorySource
	provider signal.Provider
	tracker  *Tracker
	journal  Journal
	notifier notify.Notifier
	log      *slog.Logger

	now func() time.Time
}

// New builds a decision engine. journal may be nil to disable the audit
// trail.
func New(cfg *infra.Config, b Broker, h HistorySource, p signal.Provider, tr *Tracker, j Journal, n notify.Notifier, log *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		broker:   b,
		history:  h,
		provider: p,
		tracker:  tr,
		journal:  j,
		notifier: n,
		log:      log,
		now:      time.Now,
	}
}

// Tracker exposes the engine's order tracker for the push channel.
func (e *Engine) Tracker() *Tracker { return e.tracker }

// Market resolves a ticker's exchange from configuration. Unknown
// tickers default to NASDAQ.
func (e *Engine) Market(ticker string) domain.Market {
	return domain.MarketFor(e.cfg.Trading.Tickers[ticker])
}

// EvaluateTicker runs one decision pass for one ticker. It returns an
// error only for operational failures; a gate stopping the pass is the
// normal quiet outcome.
func (e *Engine) EvaluateTicker(ctx context.Context, ticker string) error {
	mkt := e.Market(ticker)

	holdings, err := e.broker.FetchPresentHoldings(ctx)
	if err != nil {
		return fmt.Errorf("holdings: %w", err)
	}
	held := findHolding(holdings, ticker)

	// Stop loss overrides every other gate, including the signal.
	if held != nil && e.stopLossHit(held) {
		return e.liquidate(ctx, ticker, mkt, held)
	}

	// One in-flight order per ticker; re-evaluation waits for the fill.
	if e.tracker.HasOpenOrder(ticker) {
		e.log.Debug("open order pending, skipping", "ticker", ticker)
		return nil
	}

	decision, err := e.provider.Evaluate(ctx, ticker)
	if err != nil {
		return fmt.Errorf("signal: %w", err)
	}

	switch {
	case decision.Sell && held != nil && held.Quantity > 0:
		return e.trySell(ctx, ticker, mkt, held)
	case decision.Buy:
		return e.tryBuy(ctx, ticker, mkt)
	default:
		return nil
	}
}

func (e *Engine) stopLossHit(h *domain.Holding) bool {
	if e.cfg.Trading.StopLossRate == nil {
		return false
	}
	floor := decimal.NewFromFloat(*e.cfg.Trading.StopLossRate)
	return h.ProfitRate.LessThan(floor)
}

// liquidate market-sells the full position. It runs even while an order
// for the ticker is in flight; capping losses beats order hygiene.
func (e *Engine) liquidate(ctx context.Context, ticker string, mkt domain.Market, h *domain.Holding) error {
	e.log.Warn("stop loss triggered",
		"ticker", ticker,
		"profit_rate", h.ProfitRate.StringFixed(2),
		"qty", h.Quantity)
	metrics.StopLossTriggers.Inc()

	req := broker.OrderRequest{
		Ticker:  ticker,
		Side:    domain.SideSell,
		Qty:     h.Quantity,
		Price:   decimal.Zero,
		Market:  mkt,
		OrdDvsn: broker.OrdDvsnMarket,
	}
	orderID, err := e.submit(ctx, req)
	if err != nil {
		return fmt.Errorf("stop loss sell: %w", err)
	}
	e.notifier.Send(ctx, fmt.Sprintf(
		"🛑 <b>STOP LOSS</b> %s\nqty %d at market (return %s%%)",
		ticker, h.Quantity, h.ProfitRate.StringFixed(2)))
	e.log.Info("stop loss order submitted", "ticker", ticker, "order_id", orderID)
	return nil
}

func (e *Engine) trySell(ctx context.Context, ticker string, mkt domain.Market, held *domain.Holding) error {
	ok, err := e.cooldownPassed(ctx, ticker, mkt, domain.SideSell, e.cfg.Trading.SellDelayMin)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	price, err := e.broker.CurrentPrice(ctx, ticker, mkt)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}

	qty := sellQty(held.Quantity, e.cfg.Trading.SellRate)
	if qty <= 0 {
		return nil
	}

	orderID, err := e.submit(ctx, broker.OrderRequest{
		Ticker:  ticker,
		Side:    domain.SideSell,
		Qty:     qty,
		Price:   price,
		Market:  mkt,
		OrdDvsn: broker.OrdDvsnLimit,
	})
	if err != nil {
		return fmt.Errorf("sell: %w", err)
	}
	e.notifier.Send(ctx, fmt.Sprintf(
		"📤 <b>SELL</b> %s\nqty %d @ %s", ticker, qty, price.StringFixed(2)))
	e.log.Info("sell order submitted", "ticker", ticker, "order_id", orderID, "qty", qty, "price", price)
	return nil
}

func (e *Engine) tryBuy(ctx context.Context, ticker string, mkt domain.Market) error {
	ok, err := e.cooldownPassed(ctx, ticker, mkt, domain.SideBuy, e.cfg.Trading.BuyDelayMin)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	price, err := e.broker.CurrentPrice(ctx, ticker, mkt)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}

	bal, err := e.broker.FetchBalance(ctx, mkt)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}

	qty := buyQty(bal.Cash, price, e.cfg.Trading.BuyRate)
	if qty <= 0 {
		e.log.Debug("insufficient cash for buy", "ticker", ticker, "cash", bal.Cash, "price", price)
		return nil
	}

	orderID, err := e.submit(ctx, broker.OrderRequest{
		Ticker:  ticker,
		Side:    domain.SideBuy,
		Qty:     qty,
		Price:   price,
		Market:  mkt,
		OrdDvsn: broker.OrdDvsnLimit,
	})
	if err != nil {
		return fmt.Errorf("buy: %w", err)
	}
	e.notifier.Send(ctx, fmt.Sprintf(
		"📥 <b>BUY</b> %s\nqty %d @ %s", ticker, qty, price.StringFixed(2)))
	e.log.Info("buy order submitted", "ticker", ticker, "order_id", orderID, "qty", qty, "price", price)
	return nil
}

// cooldownPassed checks the per-side trade delay against recent account
// history. No matching history means no cooldown to wait out.
func (e *Engine) cooldownPassed(ctx context.Context, ticker string, mkt domain.Market, side domain.Side, delayMin int) (bool, error) {
	if delayMin <= 0 {
		return true, nil
	}
	start, end := HistoryWindow(e.now())
	records, err := e.history.FetchAll(ctx, broker.HistoryQuery{
		Ticker:    ticker,
		StartDate: start,
		EndDate:   end,
		Market:    mkt,
	})
	if err != nil {
		return false, fmt.Errorf("order history: %w", err)
	}

	last := LastOrderTime(records, ticker, side)
	elapsed := ElapsedMinutes(last, e.now())
	if elapsed < delayMin {
		e.log.Debug("cooldown active",
			"ticker", ticker,
			"side", side.String(),
			"elapsed_min", elapsed,
			"delay_min", delayMin)
		return false, nil
	}
	return true, nil
}

// submit places the order, registers it with the tracker and journals it.
// There is no same-pass retry; a failed submission waits for the next tick.
func (e *Engine) submit(ctx context.Context, req broker.OrderRequest) (string, error) {
	orderID, err := e.broker.SubmitOrder(ctx, req)
	if err != nil {
		if broker.IsBusiness(err) {
			metrics.OrdersRejected.Inc()
		}
		return "", err
	}
	metrics.OrdersSubmitted.WithLabelValues(req.Ticker, req.Side.String()).Inc()

	if err := e.tracker.Add(domain.OrderRecord{
		OrderID:    orderID,
		Ticker:     req.Ticker,
		Side:       req.Side,
		TotalQty:   req.Qty,
		LimitPrice: req.Price,
		Market:     req.Market,
	}); err != nil {
		// Submission already went out; tracking is best effort from here.
		e.log.Error("tracker rejected submitted order", "order_id", orderID, "error", err)
	}

	if e.journal != nil {
		if err := e.journal.AppendTrade(ctx, storage.TradeEntry{
			Kind:    "SUBMIT",
			OrderID: orderID,
			Ticker:  req.Ticker,
			Side:    req.Side.String(),
			Qty:     req.Qty,
			Price:   req.Price.String(),
			TsUnix:  e.now().Unix(),
		}); err != nil {
			e.log.Warn("trade journal write failed", "order_id", orderID, "error", err)
		}
	}
	return orderID, nil
}

// buyQty sizes a buy: the configured fraction of available cash at the
// current price, at least one share when any is affordable.
func buyQty(cash, price decimal.Decimal, rate float64) int64 {
	if price.IsZero() || !price.IsPositive() {
		return 0
	}
	budget := cash.Mul(decimal.NewFromFloat(rate))
	qty := budget.Div(price).IntPart()
	if qty < 1 {
		// A single share still fits the full cash balance.
		if cash.GreaterThanOrEqual(price) {
			return 1
		}
		return 0
	}
	return qty
}

// sellQty sizes a sell: the configured fraction of the held quantity,
// at least one share, never more than held.
func sellQty(held int64, rate float64) int64 {
	if held <= 0 {
		return 0
	}
	qty := decimal.NewFromInt(held).Mul(decimal.NewFromFloat(rate)).IntPart()
	if qty < 1 {
		qty = 1
	}
	if qty > held {
		qty = held
	}
	return qty
}

func findHolding(holdings []domain.Holding, ticker string) *domain.Holding {
	for i := range holdings {
		if holdings[i].Ticker == ticker {
			return &holdings[i]
		}
	}
	return nil
}
