package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/geongi-im/kis-us-auto-trading/internal/domain"
	"github.com/shopspring/decimal"
)

// Settlement filter values for history queries (CCLD_NCCS_DVSN).
const (
	SettleAll      = "00"
	SettleFilled   = "01"
	SettleUnfilled = "02"
)

// Side filter values (SLL_BUY_DVSN): 00 all, 01 sell, 02 buy.
const (
	SideFilterAll  = "00"
	SideFilterSell = "01"
	SideFilterBuy  = "02"
)

// HistoryQuery selects a slice of the account's order/execution history.
// Dates are YYYYMMDD in the exchange-clearing (Seoul) calendar.
type HistoryQuery struct {
	Ticker     string // empty queries all tickers
	StartDate  string
	EndDate    string
	SideFilter string
	Settle     string
	Market     domain.Market
}

// HistoryRecord is one row of the order history. All quantities and
// prices arrive as strings from the vendor; accessors normalize them.
type HistoryRecord struct {
	OrderDate    string `json:"ord_dt"`
	OrderTime    string `json:"ord_tmd"` // HHMMSS, Seoul clock
	OrderNo      string `json:"odno"`
	Ticker       string `json:"pdno"`
	SideCode     string `json:"sll_buy_dvsn_cd"`
	UnfilledQty  string `json:"nccs_qty"`
	TotalOrdQty  string `json:"ft_ord_qty"`
	TotalOrdQty2 string `json:"ord_qty"`
	FilledQty    string `json:"ft_ccld_qty"`
	OrderPrice   string `json:"ft_ord_unpr3"`
	OrderPrice2  string `json:"ord_unpr"`
}

// Remaining is the unfilled quantity.
func (r HistoryRecord) Remaining() int64 { return parseInt(r.UnfilledQty) }

// Total is the originally ordered quantity; the vendor reports it under
// different keys depending on endpoint generation, and paper accounts may
// omit it entirely, in which case the remaining quantity is the best floor.
func (r HistoryRecord) Total() int64 {
	if q := parseInt(r.TotalOrdQty); q > 0 {
		return q
	}
	if q := parseInt(r.TotalOrdQty2); q > 0 {
		return q
	}
	return r.Remaining()
}

// Price is the order unit price, zero when absent.
func (r HistoryRecord) Price() decimal.Decimal {
	if p := parseDecimal(r.OrderPrice); !p.IsZero() {
		return p
	}
	return parseDecimal(r.OrderPrice2)
}

// Side maps the raw side code.
func (r HistoryRecord) Side() domain.Side { return domain.Side(r.SideCode) }

// Cursor is the opaque continuation token pair echoed between successive
// history page requests. The zero value denotes the first page.
type Cursor struct {
	FK string
	NK string
}

// HistoryPage is one page of history plus the continuation state.
type HistoryPage struct {
	Records []HistoryRecord
	Next    Cursor
	TrCont  string
}

// FetchHistoryPage retrieves a single page of order history. Callers that
// want the whole result set go through Paginator.FetchAll instead.
func (c *Client) FetchHistoryPage(ctx context.Context, q HistoryQuery, cur Cursor) (HistoryPage, error) {
	ticker := q.Ticker
	if ticker == "" {
		ticker = "%"
	}
	settle := q.Settle
	if settle == "" {
		settle = SettleAll
	}
	sideFilter := q.SideFilter
	if sideFilter == "" {
		sideFilter = SideFilterAll
	}

	query := url.Values{
		"CANO":           {c.cfg.CANO()},
		"ACNT_PRDT_CD":   {c.cfg.AcntPrdtCd()},
		"PDNO":           {ticker},
		"ORD_STRT_DT":    {q.StartDate},
		"ORD_END_DT":     {q.EndDate},
		"SLL_BUY_DVSN":   {sideFilter},
		"CCLD_NCCS_DVSN": {settle},
		"OVRS_EXCG_CD":   {string(q.Market)},
		"SORT_SQN":       {"DS"},
		"ORD_DT":         {""},
		"ORD_GNO_BRNO":   {""},
		"ODNO":           {""},
		"CTX_AREA_FK200": {cur.FK},
		"CTX_AREA_NK200": {cur.NK},
	}

	trCont := ""
	if cur != (Cursor{}) {
		trCont = "N" // follow-up page request
	}

	env, respTrCont, err := c.send(ctx, http.MethodGet, "uapi/overseas-stock/v1/trading/inquire-ccnl", c.trID("TTTS3035R"), trCont, query, nil)
	if err != nil {
		return HistoryPage{}, err
	}

	var records []HistoryRecord
	raw := env.Output
	if len(raw) == 0 {
		raw = env.Output1
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &records); err != nil {
			return HistoryPage{}, fmt.Errorf("history output: %w", err)
		}
	}

	return HistoryPage{
		Records: records,
		Next:    Cursor{FK: env.CtxAreaFK200, NK: env.CtxAreaNK200},
		TrCont:  respTrCont,
	}, nil
}
