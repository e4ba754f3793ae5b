package domain

import "github.com/shopspring/decimal"

// NoticeStatus is the execution notice class from the push channel
// (execution_yn / rejected flag on the wire).
type NoticeStatus string

const (
	NoticeAccepted NoticeStatus = "accepted"
	NoticeFilled   NoticeStatus = "filled"
	NoticeRejected NoticeStatus = "rejected"
	NoticeOther    NoticeStatus = "other"
)

// FillEvent is one decrypted execution notice. It is consumed once by the
// Tracker and then discarded; nothing persists it.
type FillEvent struct {
	OrderID   string
	OrigID    string
	Ticker    string
	StockName string
	Side      Side
	FilledQty int64
	FillPrice decimal.Decimal
	FillTime  string // HHMMSS, exchange-clearing local time
	Status    NoticeStatus
}

// Holding is a single position from the balance endpoints.
type Holding struct {
	Ticker       string
	Name         string
	Quantity     int64 // orderable quantity
	AvgPrice     decimal.Decimal
	CurrentPrice decimal.Decimal
	ProfitLoss   decimal.Decimal
	ProfitRate   decimal.Decimal // evaluation return percentage
}
