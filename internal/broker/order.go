package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/geongi-im/kis-us-auto-trading/internal/domain"
	"github.com/shopspring/decimal"
)

// Order division codes (ORD_DVSN). Virtual accounts only support limit.
const (
	OrdDvsnLimit  = "00"
	OrdDvsnMarket = "01"
)

const orderPath = "uapi/overseas-stock/v1/trading/order"

// OrderRequest describes one order submission.
type OrderRequest struct {
	Ticker  string
	Side    domain.Side
	Qty     int64
	Price   decimal.Decimal // ignored by the venue for market orders
	Market  domain.Market
	OrdDvsn string // OrdDvsnLimit or OrdDvsnMarket
}

type orderOutput struct {
	OrgNo string `json:"KRX_FWDG_ORD_ORGNO"`
	OdNo  string `json:"ODNO"`
	OrdTm string `json:"ORD_TMD"`
}

// SubmitOrder places one order and returns the vendor-assigned order id.
// Submission goes through a circuit breaker so a flapping vendor cannot
// absorb an unbounded stream of doomed requests.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	if !c.breaker.Allow() {
		return "", fmt.Errorf("order submission suspended: circuit open")
	}

	trID := c.trID("TTTT1002U") // buy
	body := map[string]string{
		"CANO":            c.cfg.CANO(),
		"ACNT_PRDT_CD":    c.cfg.AcntPrdtCd(),
		"OVRS_EXCG_CD":    string(req.Market),
		"PDNO":            req.Ticker,
		"ORD_QTY":         strconv.FormatInt(req.Qty, 10),
		"OVRS_ORD_UNPR":   req.Price.String(),
		"ORD_SVR_DVSN_CD": "0",
		"ORD_DVSN":        req.OrdDvsn,
	}
	if req.Side == domain.SideSell {
		trID = c.trID("TTTT1001U")
		body["SLL_TYPE"] = "00"
	}

	env, _, err := c.send(ctx, http.MethodPost, orderPath, trID, "", nil, body)
	if err != nil {
		if !IsBusiness(err) {
			c.breaker.RecordFailure()
		}
		return "", err
	}
	c.breaker.RecordSuccess()

	var out orderOutput
	if err := json.Unmarshal(env.Output, &out); err != nil {
		return "", fmt.Errorf("order response: %w", err)
	}
	orderID := NormalizeOrderID(out.OdNo)
	if orderID == "" {
		return "", fmt.Errorf("order response carried no ODNO")
	}
	return orderID, nil
}

// ModifyOrder revises the quantity/price of an unfilled order.
func (c *Client) ModifyOrder(ctx context.Context, market domain.Market, ticker, origOrderID string, qty int64, price decimal.Decimal) error {
	body := map[string]string{
		"CANO":            c.cfg.CANO(),
		"ACNT_PRDT_CD":    c.cfg.AcntPrdtCd(),
		"OVRS_EXCG_CD":    string(market),
		"PDNO":            ticker,
		"ORGN_ODNO":       origOrderID,
		"ORD_QTY":         strconv.FormatInt(qty, 10),
		"OVRS_ORD_UNPR":   price.String(),
		"ORD_SVR_DVSN_CD": "0",
	}
	_, _, err := c.send(ctx, http.MethodPost, "uapi/overseas-stock/v1/trading/order-rvsecncl", c.trID("TTTT1003U"), "", nil, body)
	return err
}

// CancelOrder cancels the unfilled remainder of an order.
func (c *Client) CancelOrder(ctx context.Context, market domain.Market, ticker, origOrderID string, qty int64) error {
	body := map[string]string{
		"CANO":            c.cfg.CANO(),
		"ACNT_PRDT_CD":    c.cfg.AcntPrdtCd(),
		"OVRS_EXCG_CD":    string(market),
		"PDNO":            ticker,
		"ORGN_ODNO":       origOrderID,
		"ORD_QTY":         strconv.FormatInt(qty, 10),
		"OVRS_ORD_UNPR":   "0",
		"ORD_SVR_DVSN_CD": "0",
	}
	_, _, err := c.send(ctx, http.MethodPost, "uapi/overseas-stock/v1/trading/order-rvsecncl", c.trID("TTTT1004U"), "", nil, body)
	return err
}

// NormalizeOrderID strips the zero padding KIS applies to ODNO so the
// polling side and the push side agree on one id form.
func NormalizeOrderID(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, "0")
	if s == "" && strings.TrimSpace(raw) != "" {
		return "0"
	}
	return s
}
