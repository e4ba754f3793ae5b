package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/geongi-im/kis-us-auto-trading/internal/broker"
	"github.com/geongi-im/kis-us-auto-trading/internal/domain"
	"github.com/geongi-im/kis-us-auto-trading/internal/infra"
	"github.com/geongi-im/kis-us-auto-trading/internal/signal"
	"github.com/geongi-im/kis-us-auto-trading/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	price     decimal.Decimal
	cash      decimal.Decimal
	holdings  []domain.Holding
	submitErr error

	submitted []broker.OrderRequest
	nextID    int
}

func (f *fakeBroker) SubmitOrder(_ context.Context, req broker.OrderRequest) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	f.nextID++
	return fmt.Sprintf("%d", 1000+f.nextID), nil
}

func (f *fakeBroker) CurrentPrice(context.Context, string, domain.Market) (decimal.Decimal, error) {
	return f.price, nil
}

func (f *fakeBroker) FetchBalance(context.Context, domain.Market) (*broker.Balance, error) {
	return &broker.Balance{Cash: f.cash, Holdings: f.holdings}, nil
}

func (f *fakeBroker) FetchPresentHoldings(context.Context) ([]domain.Holding, error) {
	return f.holdings, nil
}

type fakeHistory struct {
	records []broker.HistoryRecord
	err     error
	calls   int
}

func (f *fakeHistory) FetchAll(context.Context, broker.HistoryQuery) ([]broker.HistoryRecord, error) {
	f.calls++
	return f.records, f.err
}

type fixedSignal struct {
	d   signal.Decision
	err error
}

func (f fixedSignal) Evaluate(context.Context, string) (signal.Decision, error) {
	return f.d, f.err
}

type recordingJournal struct {
	entries []storage.TradeEntry
}

func (j *recordingJournal) AppendTrade(_ context.Context, e storage.TradeEntry) error {
	j.entries = append(j.entries, e)
	return nil
}

type dropNotifier struct{}

func (dropNotifier) Send(context.Context, string) {}

func engineConfig() *infra.Config {
	cfg := &infra.Config{}
	cfg.Trading.Tickers = map[string]string{"AAPL": "NASD"}
	cfg.Trading.BuyRate = 0.5
	cfg.Trading.SellRate = 0.5
	cfg.Trading.BuyDelayMin = 30
	cfg.Trading.SellDelayMin = 30
	return cfg
}

func newTestEngine(cfg *infra.Config, b *fakeBroker, h *fakeHistory, sig fixedSignal) (*Engine, *recordingJournal) {
	j := &recordingJournal{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(cfg, b, h, sig, NewTracker(), j, dropNotifier{}, log)
	e.now = func() time.Time { return time.Date(2026, 8, 31, 23, 0, 0, 0, seoulLoc) }
	return e, j
}

func TestEvaluateTicker_BuySizing(t *testing.T) {
	b := &fakeBroker{
		price: decimal.RequireFromString("50.00"),
		cash:  decimal.RequireFromString("1000.00"),
	}
	e, j := newTestEngine(engineConfig(), b, &fakeHistory{}, fixedSignal{d: signal.Decision{Buy: true}})

	require.NoError(t, e.EvaluateTicker(context.Background(), "AAPL"))

	require.Len(t, b.submitted, 1)
	got := b.submitted[0]
	assert.Equal(t, domain.SideBuy, got.Side)
	assert.Equal(t, int64(10), got.Qty, "half of 1000 at 50 buys 10 shares")
	assert.Equal(t, broker.OrdDvsnLimit, got.OrdDvsn)

	assert.True(t, e.Tracker().HasOpenOrder("AAPL"), "submitted order must be tracked")
	require.Len(t, j.entries, 1)
	assert.Equal(t, "SUBMIT", j.entries[0].Kind)
}

func TestEvaluateTicker_BuySkippedWhenUnaffordable(t *testing.T) {
	b := &fakeBroker{
		price: decimal.RequireFromString("500.00"),
		cash:  decimal.RequireFromString("100.00"),
	}
	e, _ := newTestEngine(engineConfig(), b, &fakeHistory{}, fixedSignal{d: signal.Decision{Buy: true}})

	require.NoError(t, e.EvaluateTicker(context.Background(), "AAPL"))
	assert.Empty(t, b.submitted)
	assert.False(t, e.Tracker().HasOpenOrder("AAPL"))
}

func TestEvaluateTicker_BuyMinimumOneShare(t *testing.T) {
	// Budget (rate x cash) below one share, but the cash covers it: still
	// buy a single share.
	b := &fakeBroker{
		price: decimal.RequireFromString("90.00"),
		cash:  decimal.RequireFromString("100.00"),
	}
	e, _ := newTestEngine(engineConfig(), b, &fakeHistory{}, fixedSignal{d: signal.Decision{Buy: true}})

	require.NoError(t, e.EvaluateTicker(context.Background(), "AAPL"))
	require.Len(t, b.submitted, 1)
	assert.Equal(t, int64(1), b.submitted[0].Qty)
}

func TestEvaluateTicker_SellSizing(t *testing.T) {
	b := &fakeBroker{
		price:    decimal.RequireFromString("50.00"),
		holdings: []domain.Holding{{Ticker: "AAPL", Quantity: 7, ProfitRate: decimal.NewFromInt(5)}},
	}
	e, _ := newTestEngine(engineConfig(), b, &fakeHistory{}, fixedSignal{d: signal.Decision{Sell: true}})

	require.NoError(t, e.EvaluateTicker(context.Background(), "AAPL"))
	require.Len(t, b.submitted, 1)
	got := b.submitted[0]
	assert.Equal(t, domain.SideSell, got.Side)
	assert.Equal(t, int64(3), got.Qty, "half of 7 floors to 3")
}

func TestEvaluateTicker_SellWithoutPositionIsNoop(t *testing.T) {
	b := &fakeBroker{price: decimal.RequireFromString("50.00")}
	e, _ := newTestEngine(engineConfig(), b, &fakeHistory{}, fixedSignal{d: signal.Decision{Sell: true}})

	require.NoError(t, e.EvaluateTicker(context.Background(), "AAPL"))
	assert.Empty(t, b.submitted)
}

func TestEvaluateTicker_OpenOrderBlocksSubmission(t *testing.T) {
	b := &fakeBroker{
		price: decimal.RequireFromString("50.00"),
		cash:  decimal.RequireFromString("1000.00"),
	}
	e, _ := newTestEngine(engineConfig(), b, &fakeHistory{}, fixedSignal{d: signal.Decision{Buy: true}})
	require.NoError(t, e.Tracker().Add(domain.OrderRecord{
		OrderID: "1", Ticker: "AAPL", Side: domain.SideBuy, TotalQty: 5,
	}))

	require.NoError(t, e.EvaluateTicker(context.Background(), "AAPL"))
	assert.Empty(t, b.submitted, "an in-flight order must block new submissions")
}

func TestEvaluateTicker_CooldownBlocksBuy(t *testing.T) {
	b := &fakeBroker{
		price: decimal.RequireFromString("50.00"),
		cash:  decimal.RequireFromString("1000.00"),
	}
	// Last buy 10 minutes before the engine clock; delay is 30.
	h := &fakeHistory{records: []broker.HistoryRecord{{
		OrderDate: "20260831",
		OrderTime: "225000",
		OrderNo:   "0000000001",
		Ticker:    "AAPL",
		SideCode:  string(domain.SideBuy),
	}}}
	e, _ := newTestEngine(engineConfig(), b, h, fixedSignal{d: signal.Decision{Buy: true}})

	require.NoError(t, e.EvaluateTicker(context.Background(), "AAPL"))
	assert.Empty(t, b.submitted)
	assert.Equal(t, 1, h.calls)
}

func TestEvaluateTicker_EmptyHistoryPassesCooldown(t *testing.T) {
	b := &fakeBroker{
		price: decimal.RequireFromString("50.00"),
		cash:  decimal.RequireFromString("1000.00"),
	}
	e, _ := newTestEngine(engineConfig(), b, &fakeHistory{}, fixedSignal{d: signal.Decision{Buy: true}})

	require.NoError(t, e.EvaluateTicker(context.Background(), "AAPL"))
	assert.Len(t, b.submitted, 1, "no prior orders means no cooldown")
}

func TestEvaluateTicker_StopLossOverridesSignal(t *testing.T) {
	cfg := engineConfig()
	floor := -5.0
	cfg.Trading.StopLossRate = &floor

	b := &fakeBroker{
		price: decimal.RequireFromString("50.00"),
		holdings: []domain.Holding{{
			Ticker: "AAPL", Quantity: 9,
			ProfitRate: decimal.RequireFromString("-7.2"),
		}},
	}
	// Signal says nothing; the stop loss must fire regardless.
	e, _ := newTestEngine(cfg, b, &fakeHistory{}, fixedSignal{d: signal.Decision{}})

	require.NoError(t, e.EvaluateTicker(context.Background(), "AAPL"))
	require.Len(t, b.submitted, 1)
	got := b.submitted[0]
	assert.Equal(t, domain.SideSell, got.Side)
	assert.Equal(t, int64(9), got.Qty, "stop loss liquidates the whole position")
	assert.Equal(t, broker.OrdDvsnMarket, got.OrdDvsn)
}

func TestEvaluateTicker_StopLossIgnoresOpenOrderGuard(t *testing.T) {
	cfg := engineConfig()
	floor := -5.0
	cfg.Trading.StopLossRate = &floor

	b := &fakeBroker{
		holdings: []domain.Holding{{
			Ticker: "AAPL", Quantity: 4,
			ProfitRate: decimal.RequireFromString("-9.0"),
		}},
	}
	e, _ := newTestEngine(cfg, b, &fakeHistory{}, fixedSignal{d: signal.Decision{}})
	require.NoError(t, e.Tracker().Add(domain.OrderRecord{
		OrderID: "1", Ticker: "AAPL", Side: domain.SideBuy, TotalQty: 5,
	}))

	require.NoError(t, e.EvaluateTicker(context.Background(), "AAPL"))
	require.Len(t, b.submitted, 1, "stop loss fires even with in-flight orders")
}

func TestEvaluateTicker_StopLossDisabledByDefault(t *testing.T) {
	b := &fakeBroker{
		price: decimal.RequireFromString("50.00"),
		holdings: []domain.Holding{{
			Ticker: "AAPL", Quantity: 4,
			ProfitRate: decimal.RequireFromString("-50.0"),
		}},
	}
	e, _ := newTestEngine(engineConfig(), b, &fakeHistory{}, fixedSignal{d: signal.Decision{}})

	require.NoError(t, e.EvaluateTicker(context.Background(), "AAPL"))
	assert.Empty(t, b.submitted, "nil stop_loss_rate disables the check")
}

func TestEvaluateTicker_SubmitFailureNotTracked(t *testing.T) {
	b := &fakeBroker{
		price:     decimal.RequireFromString("50.00"),
		cash:      decimal.RequireFromString("1000.00"),
		submitErr: &broker.BusinessError{TrID: "TTTT1002U", MsgCd: "APBK0919", Msg: "insufficient funds"},
	}
	e, j := newTestEngine(engineConfig(), b, &fakeHistory{}, fixedSignal{d: signal.Decision{Buy: true}})

	err := e.EvaluateTicker(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, broker.IsBusiness(err))
	assert.False(t, e.Tracker().HasOpenOrder("AAPL"), "rejected order must not be tracked")
	assert.Empty(t, j.entries)
}

func TestBuyQty(t *testing.T) {
	tests := []struct {
		cash, price string
		rate        float64
		want        int64
	}{
		{"1000", "50", 0.5, 10},
		{"1000", "50", 1.0, 20},
		{"100", "90", 0.5, 1},  // budget short, cash covers one share
		{"100", "500", 1.0, 0}, // cannot afford any
		{"1000", "0", 0.5, 0},  // degenerate quote
	}
	for _, tt := range tests {
		got := buyQty(decimal.RequireFromString(tt.cash), decimal.RequireFromString(tt.price), tt.rate)
		assert.Equal(t, tt.want, got, "cash=%s price=%s rate=%v", tt.cash, tt.price, tt.rate)
	}
}

func TestSellQty(t *testing.T) {
	tests := []struct {
		held int64
		rate float64
		want int64
	}{
		{7, 0.5, 3},
		{1, 0.5, 1},  // floors to zero, minimum one
		{10, 1.0, 10},
		{0, 0.5, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sellQty(tt.held, tt.rate), "held=%d rate=%v", tt.held, tt.rate)
	}
}
