package domain

import "github.com/shopspring/decimal"

// Side is the order direction, carrying the KIS wire code
// (sll_buy_dvsn_cd: "01" sell, "02" buy).
type Side string

const (
	SideBuy  Side = "02"
	SideSell Side = "01"
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "SIDE(" + string(s) + ")"
	}
}

// Market is the KIS overseas exchange code used on trading endpoints
// (OVRS_EXCG_CD). Quotation endpoints use a shorter code, see QuoteCode.
type Market string

const (
	MarketNasdaq Market = "NASD"
	MarketNYSE   Market = "NYSE"
	MarketAmex   Market = "AMEX"
)

// MarketFor maps a configured exchange code to a Market. An unconfigured
// ticker trades on NASDAQ.
func MarketFor(code string) Market {
	if code == "" {
		return MarketNasdaq
	}
	return Market(code)
}

// QuoteCode returns the 3-letter exchange code (EXCD) the quotation
// endpoints expect.
func (m Market) QuoteCode() string {
	switch m {
	case MarketNasdaq:
		return "NAS"
	case MarketNYSE:
		return "NYS"
	case MarketAmex:
		return "AMS"
	default:
		s := string(m)
		if len(s) > 3 {
			return s[:3]
		}
		return s
	}
}

// OrderRecord tracks one submitted order from submission to full execution.
// It is owned exclusively by the engine's Tracker; callers only ever see
// copies.
type OrderRecord struct {
	OrderID     string
	Ticker      string
	Side        Side
	TotalQty    int64
	ExecutedQty int64
	LimitPrice  decimal.Decimal // zero signals a market order
	Market      Market
}

// RemainingQty is the unfilled quantity.
func (r OrderRecord) RemainingQty() int64 {
	return r.TotalQty - r.ExecutedQty
}

// IsOpen reports whether any quantity remains unfilled.
func (r OrderRecord) IsOpen() bool {
	return r.RemainingQty() > 0
}
