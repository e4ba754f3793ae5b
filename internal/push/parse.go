package push

import (
	"strings"

	"github.com/geongi-im/kis-us-auto-trading/internal/broker"
	"github.com/geongi-im/kis-us-auto-trading/internal/domain"
	"github.com/shopspring/decimal"
)

// Positions of the fields inside a decrypted execution notice. The
// payload is caret-separated and purely positional.
const (
	posCustomerID = 0
	posAccountNo  = 1
	posOrderNo    = 2
	posOrigNo     = 3
	posSide       = 4
	posTicker     = 7
	posExecQty    = 8
	posExecPrice  = 9
	posExecTime   = 10
	posRejectYN   = 11
	posExecYN     = 12
	posAcceptYN   = 13
	posStockName  = 17
)

// priceScale: execution prices arrive as integers scaled by 10^4.
var priceScale = decimal.New(1, 4)

// parseNotice turns one decrypted caret-separated notice into a fill
// event. Short payloads are tolerated; missing trailing positions read
// as empty.
func parseNotice(plain string) domain.FillEvent {
	parts := strings.Split(plain, "^")
	at := func(i int) string {
		if i < len(parts) {
			return strings.TrimSpace(parts[i])
		}
		return ""
	}

	qty := int64(0)
	if q, err := decimal.NewFromString(at(posExecQty)); err == nil {
		qty = q.IntPart()
	}

	price := decimal.Zero
	if p, err := decimal.NewFromString(at(posExecPrice)); err == nil {
		price = p.Div(priceScale)
	}

	return domain.FillEvent{
		OrderID:   broker.NormalizeOrderID(at(posOrderNo)),
		OrigID:    broker.NormalizeOrderID(at(posOrigNo)),
		Ticker:    strings.ToUpper(at(posTicker)),
		StockName: at(posStockName),
		Side:      domain.Side(at(posSide)),
		FilledQty: qty,
		FillPrice: price,
		FillTime:  at(posExecTime),
		Status:    noticeStatus(at(posRejectYN), at(posExecYN), at(posAcceptYN)),
	}
}

// noticeStatus classifies the notice: rejections win, then the
// execution flag (1 accepted, 2 filled).
func noticeStatus(rejectYN, execYN, acceptYN string) domain.NoticeStatus {
	if rejectYN != "" && rejectYN != "0" && rejectYN != "N" {
		return domain.NoticeRejected
	}
	switch execYN {
	case "2":
		return domain.NoticeFilled
	case "1":
		return domain.NoticeAccepted
	}
	if acceptYN == "Y" || acceptYN == "1" {
		return domain.NoticeAccepted
	}
	return domain.NoticeOther
}
