package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/geongi-im/kis-us-auto-trading/internal/domain"
	"github.com/shopspring/decimal"
)

// Balance is the account snapshot for one exchange: purchasable cash plus
// held positions.
type Balance struct {
	Cash     decimal.Decimal
	Holdings []domain.Holding
}

type balanceSummary struct {
	PurchasableCash string `json:"frcr_pchs_amt1"`
}

type balanceStock struct {
	Ticker       string `json:"ovrs_pdno"`
	Name         string `json:"ovrs_item_name"`
	OrderableQty string `json:"ord_psbl_qty"`
	AvgPrice     string `json:"pchs_avg_pric"`
	CurrentPrice string `json:"now_pric2"`
	ProfitLoss   string `json:"frcr_evlu_pfls_amt"`
	ProfitRate   string `json:"evlu_pfls_rt"`
}

// FetchBalance queries cash and holdings for one exchange.
func (c *Client) FetchBalance(ctx context.Context, market domain.Market) (*Balance, error) {
	query := url.Values{
		"CANO":           {c.cfg.CANO()},
		"ACNT_PRDT_CD":   {c.cfg.AcntPrdtCd()},
		"OVRS_EXCG_CD":   {string(market)},
		"TR_CRCY_CD":     {"USD"},
		"CTX_AREA_FK200": {""},
		"CTX_AREA_NK200": {""},
	}

	env, _, err := c.send(ctx, http.MethodGet, "uapi/overseas-stock/v1/trading/inquire-balance", c.trID("TTTS3012R"), "", query, nil)
	if err != nil {
		return nil, err
	}

	var stocks []balanceStock
	if len(env.Output1) > 0 {
		if err := json.Unmarshal(env.Output1, &stocks); err != nil {
			return nil, fmt.Errorf("balance output1: %w", err)
		}
	}

	var summary balanceSummary
	decodeSummary(env.Output2, &summary)

	b := &Balance{Cash: parseDecimal(summary.PurchasableCash)}
	for _, s := range stocks {
		b.Holdings = append(b.Holdings, domain.Holding{
			Ticker:       s.Ticker,
			Name:         s.Name,
			Quantity:     parseInt(s.OrderableQty),
			AvgPrice:     parseDecimal(s.AvgPrice),
			CurrentPrice: parseDecimal(s.CurrentPrice),
			ProfitLoss:   parseDecimal(s.ProfitLoss),
			ProfitRate:   parseDecimal(s.ProfitRate),
		})
	}
	return b, nil
}

type presentBalanceStock struct {
	Ticker     string `json:"ovrs_pdno"`
	PdNo       string `json:"pdno"`
	Name       string `json:"prdt_name"`
	Qty        string `json:"cblc_qty13"`
	AvgPrice   string `json:"avg_unpr3"`
	ProfitRate string `json:"evlu_pfls_rt1"`
	ProfitAmt  string `json:"evlu_pfls_amt2"`
}

// FetchPresentHoldings queries the settlement-basis current balance
// (CTRP6504R). Its per-position evaluation return rate feeds the
// stop-loss check.
func (c *Client) FetchPresentHoldings(ctx context.Context) ([]domain.Holding, error) {
	query := url.Values{
		"CANO":              {c.cfg.CANO()},
		"ACNT_PRDT_CD":      {c.cfg.AcntPrdtCd()},
		"WCRC_FRCR_DVSN_CD": {"02"},
		"NATN_CD":           {"840"}, // US
		"TR_MKET_CD":        {"00"},
		"INQR_DVSN_CD":      {"00"},
	}

	env, _, err := c.send(ctx, http.MethodGet, "uapi/overseas-stock/v1/trading/inquire-present-balance", c.trID("CTRP6504R"), "", query, nil)
	if err != nil {
		return nil, err
	}

	var stocks []presentBalanceStock
	if len(env.Output1) > 0 {
		if err := json.Unmarshal(env.Output1, &stocks); err != nil {
			return nil, fmt.Errorf("present balance output1: %w", err)
		}
	}

	holdings := make([]domain.Holding, 0, len(stocks))
	for _, s := range stocks {
		ticker := s.Ticker
		if ticker == "" {
			ticker = s.PdNo
		}
		holdings = append(holdings, domain.Holding{
			Ticker:     strings.ToUpper(strings.TrimSpace(ticker)),
			Name:       s.Name,
			Quantity:   parseInt(s.Qty),
			AvgPrice:   parseDecimal(s.AvgPrice),
			ProfitLoss: parseDecimal(s.ProfitAmt),
			ProfitRate: parseDecimal(s.ProfitRate),
		})
	}
	return holdings, nil
}

// FetchPurchasableAmount returns the foreign-currency cash available to
// buy one specific ticker at the given price.
func (c *Client) FetchPurchasableAmount(ctx context.Context, market domain.Market, ticker string, price decimal.Decimal) (decimal.Decimal, error) {
	query := url.Values{
		"CANO":          {c.cfg.CANO()},
		"ACNT_PRDT_CD":  {c.cfg.AcntPrdtCd()},
		"OVRS_EXCG_CD":  {string(market)},
		"OVRS_ORD_UNPR": {price.String()},
		"ITEM_CD":       {ticker},
	}

	env, _, err := c.send(ctx, http.MethodGet, "uapi/overseas-stock/v1/trading/inquire-psamount", c.trID("TTTS3007R"), "", query, nil)
	if err != nil {
		return decimal.Zero, err
	}

	var out struct {
		OrdPsblFrcrAmt string `json:"ord_psbl_frcr_amt"`
	}
	if err := json.Unmarshal(env.Output, &out); err != nil {
		return decimal.Zero, fmt.Errorf("psamount output: %w", err)
	}
	return parseDecimal(out.OrdPsblFrcrAmt), nil
}

// decodeSummary tolerates the vendor returning output2 as either an
// object or a one-element array.
func decodeSummary(raw json.RawMessage, out any) {
	if len(raw) == 0 {
		return
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil || len(arr) == 0 {
			return
		}
		raw = arr[0]
	}
	_ = json.Unmarshal(raw, out)
}

// parseDecimal reads a vendor numeric string, tolerating commas, percent
// signs and blanks. Unparseable input yields zero.
func parseDecimal(s string) decimal.Decimal {
	cleaned := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(s, ",", ""), "%", ""))
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseInt reads a vendor integer string the same way. Fractional input
// is truncated toward zero.
func parseInt(s string) int64 {
	d := parseDecimal(s)
	return d.IntPart()
}
