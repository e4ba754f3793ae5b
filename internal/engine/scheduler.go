package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/geongi-im/kis-us-auto-trading/internal/broker"
	"github.com/geongi-im/kis-us-auto-trading/internal/domain"
	"github.com/geongi-im/kis-us-auto-trading/internal/infra"
	"github.com/geongi-im/kis-us-auto-trading/internal/metrics"
	"github.com/geongi-im/kis-us-auto-trading/internal/notify"
)

// Scheduler drives the polling loop: it gates on the trading calendar and
// market hours, walks the configured tickers and enforces the runtime
// limits. One scheduler owns one engine.
type Scheduler struct {
	cfg      *infra.Config
	engine   *Engine
	calendar *Calendar
	notifier notify.Notifier
	log      *slog.Logger

	push PushStarter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// PushStarter is the realtime fill channel. The scheduler brings it up
// only after the boot sync has rebuilt the tracker, so every notice that
// arrives finds its order already tracked.
type PushStarter interface {
	Start(ctx context.Context)
}

// NewScheduler wires a scheduler around an engine.
func NewScheduler(cfg *infra.Config, e *Engine, cal *Calendar, n notify.Notifier, log *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		engine:   e,
		calendar: cal,
		notifier: n,
		log:      log,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// AttachPush hands the scheduler the realtime channel to start once the
// open-order sync has completed.
func (s *Scheduler) AttachPush(p PushStarter) { s.push = p }

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Run blocks until the context is cancelled, the auto-shutdown clock is
// reached or the maximum runtime elapses. Synchronizing open orders from
// the venue happens before anything else so the one-order-per-ticker
// guard holds across restarts, and the realtime channel only starts once
// the tracker can attribute its fills.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.SyncOpenOrders(ctx); err != nil {
		return fmt.Errorf("open order sync: %w", err)
	}
	if s.push != nil {
		s.push.Start(ctx)
	}

	deadline := s.now().Add(time.Duration(s.cfg.Trading.MaxRuntimeHours) * time.Hour)
	interval := time.Duration(s.cfg.Trading.CheckIntervalMin) * time.Minute

	s.log.Info("trading loop started",
		"tickers", s.tickers(),
		"interval", interval,
		"deadline", deadline.Format(time.RFC3339))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		now := s.now()

		if now.After(deadline) {
			s.log.Info("maximum runtime reached, shutting down")
			s.notifier.Send(ctx, "⏱ Maximum runtime reached, bot shutting down.")
			return nil
		}
		if s.pastShutdown(now) {
			s.log.Info("auto shutdown time reached, shutting down")
			s.notifier.Send(ctx, "🌙 Auto-shutdown time reached, bot shutting down.")
			return nil
		}

		if !s.calendar.IsTradingDay(now) || !s.withinMarketHours(now) {
			if !s.sleep(ctx, time.Minute) {
				return ctx.Err()
			}
			continue
		}

		s.runPass(ctx)

		if !s.sleep(ctx, interval) {
			return ctx.Err()
		}
	}
}

// runPass evaluates every ticker once. A failing or panicking ticker is
// logged and counted but never stops the others.
func (s *Scheduler) runPass(ctx context.Context) {
	for _, ticker := range s.tickers() {
		if ctx.Err() != nil {
			return
		}
		if err := s.evaluateOne(ctx, ticker); err != nil {
			metrics.TickErrors.WithLabelValues(ticker).Inc()
			s.log.Error("ticker evaluation failed", "ticker", ticker, "error", err)
		}
	}
}

func (s *Scheduler) evaluateOne(ctx context.Context, ticker string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.engine.EvaluateTicker(ctx, ticker)
}

// SyncOpenOrders loads the venue's unfilled orders into the tracker.
// Run once at startup; orders submitted by a previous process keep
// blocking new submissions for their tickers.
func (s *Scheduler) SyncOpenOrders(ctx context.Context) error {
	start, end := HistoryWindow(s.now())

	seen := make(map[string]bool)
	for _, mkt := range s.markets() {
		records, err := s.engine.history.FetchAll(ctx, broker.HistoryQuery{
			StartDate: start,
			EndDate:   end,
			Settle:    broker.SettleUnfilled,
			Market:    mkt,
		})
		if err != nil {
			return err
		}
		for _, r := range records {
			if r.Remaining() <= 0 {
				continue // vendor sometimes returns settled rows under the unfilled filter
			}
			id := broker.NormalizeOrderID(r.OrderNo)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true

			total := r.Total()
			rec := domain.OrderRecord{
				OrderID:     id,
				Ticker:      r.Ticker,
				Side:        r.Side(),
				TotalQty:    total,
				ExecutedQty: total - r.Remaining(),
				LimitPrice:  r.Price(),
				Market:      mkt,
			}
			if err := s.engine.tracker.Add(rec); err != nil {
				s.log.Warn("skipping open order from sync", "order_id", id, "error", err)
				continue
			}
			s.log.Info("recovered open order",
				"order_id", id,
				"ticker", r.Ticker,
				"side", r.Side().String(),
				"remaining", r.Remaining())
		}
	}
	return nil
}

func (s *Scheduler) tickers() []string {
	out := make([]string, 0, len(s.cfg.Trading.Tickers))
	for t := range s.cfg.Trading.Tickers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s *Scheduler) markets() []domain.Market {
	seen := make(map[domain.Market]bool)
	var out []domain.Market
	for _, code := range s.cfg.Trading.Tickers {
		m := domain.MarketFor(code)
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// withinMarketHours checks the configured session window on the New York
// clock.
func (s *Scheduler) withinMarketHours(now time.Time) bool {
	d := now.In(nyLoc)
	open := clockOn(d, s.cfg.Trading.MarketStart)
	end := clockOn(d, s.cfg.Trading.MarketEnd)
	return !d.Before(open) && d.Before(end)
}

// pastShutdown checks the daily auto-shutdown clock, also New York time.
func (s *Scheduler) pastShutdown(now time.Time) bool {
	if s.cfg.Trading.AutoShutdown == "" {
		return false
	}
	d := now.In(nyLoc)
	return !d.Before(clockOn(d, s.cfg.Trading.AutoShutdown))
}

// clockOn places an HH:MM clock value on the date of d.
func clockOn(d time.Time, hhmm string) time.Time {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return d
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, d.Location())
}
