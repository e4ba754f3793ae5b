package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/geongi-im/kis-us-auto-trading/internal/domain"
	"github.com/shopspring/decimal"
)

// Candle is one bar of price history, scoped to whatever interval the
// fetching call requested. Vendor order is newest first; callers that
// feed indicators reverse into chronological order themselves.
type Candle struct {
	Close decimal.Decimal
}

// CurrentPrice returns the latest traded price for the ticker.
func (c *Client) CurrentPrice(ctx context.Context, ticker string, market domain.Market) (decimal.Decimal, error) {
	query := url.Values{
		"AUTH": {""},
		"EXCD": {market.QuoteCode()},
		"SYMB": {ticker},
	}
	env, _, err := c.send(ctx, http.MethodGet, "uapi/overseas-price/v1/quotations/price", "HHDFS00000300", "", query, nil)
	if err != nil {
		return decimal.Zero, err
	}
	var out struct {
		Last string `json:"last"`
	}
	if err := json.Unmarshal(env.Output, &out); err != nil {
		return decimal.Zero, fmt.Errorf("price output: %w", err)
	}
	p := parseDecimal(out.Last)
	if p.IsZero() {
		return decimal.Zero, fmt.Errorf("price: empty quote for %s", ticker)
	}
	return p, nil
}

// DailyCandles returns up to count daily closes for the ticker, newest
// first.
func (c *Client) DailyCandles(ctx context.Context, ticker string, market domain.Market, count int) ([]Candle, error) {
	query := url.Values{
		"AUTH": {""},
		"EXCD": {market.QuoteCode()},
		"SYMB": {ticker},
		"GUBN": {"0"}, // daily
		"BYMD": {""},  // up to today
		"MODP": {"1"}, // adjusted
	}
	env, _, err := c.send(ctx, http.MethodGet, "uapi/overseas-price/v1/quotations/dailyprice", "HHDFS76240000", "", query, nil)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Close string `json:"clos"`
	}
	if err := json.Unmarshal(env.Output2, &rows); err != nil {
		return nil, fmt.Errorf("daily output2: %w", err)
	}
	candles := make([]Candle, 0, len(rows))
	for _, r := range rows {
		if len(candles) == count {
			break
		}
		candles = append(candles, Candle{Close: parseDecimal(r.Close)})
	}
	return candles, nil
}

// MinuteCandles returns intraday closes at the given minute interval,
// newest first. The vendor caps a single response at 120 bars.
func (c *Client) MinuteCandles(ctx context.Context, ticker string, market domain.Market, intervalMin int) ([]Candle, error) {
	query := url.Values{
		"AUTH": {""},
		"EXCD": {market.QuoteCode()},
		"SYMB": {ticker},
		"NMIN": {strconv.Itoa(intervalMin)},
		"PINC": {"1"}, // include previous sessions
		"NEXT": {""},
		"NREC": {"120"},
		"FILL": {""},
		"KEYB": {""},
	}
	env, _, err := c.send(ctx, http.MethodGet, "uapi/overseas-price/v1/quotations/inquire-time-itemchartprice", "HHDFS76950200", "", query, nil)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Close string `json:"last"`
	}
	if err := json.Unmarshal(env.Output2, &rows); err != nil {
		return nil, fmt.Errorf("minute output2: %w", err)
	}
	candles := make([]Candle, 0, len(rows))
	for _, r := range rows {
		candles = append(candles, Candle{Close: parseDecimal(r.Close)})
	}
	return candles, nil
}
