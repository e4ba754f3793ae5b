package engine

import (
	"sort"
	"strconv"
	"time"

	"github.com/geongi-im/kis-us-auto-trading/internal/broker"
	"github.com/geongi-im/kis-us-auto-trading/internal/domain"
)

// seoulLoc is the vendor's clearing timezone. Order history dates and
// times are reported on this clock regardless of the traded exchange.
var seoulLoc = mustLoadLocation("Asia/Seoul")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("timezone database missing " + name)
	}
	return loc
}

// HistoryWindow returns the [start, end] date strings (YYYYMMDD, Seoul
// calendar) for cooldown queries. The window reaches one day back for
// orders placed before the clearing-date rollover and one day forward
// because US overnight sessions clear on the next Seoul date.
func HistoryWindow(now time.Time) (string, string) {
	d := now.In(seoulLoc)
	return d.AddDate(0, 0, -1).Format("20060102"), d.AddDate(0, 0, 1).Format("20060102")
}

// LastOrderTime finds the most recent order of the given side for the
// ticker within the supplied history records. Ordering is by (date, order
// number) descending; the order number breaks ties because same-second
// submissions share a timestamp but ids grow monotonically. Returns the
// zero time when no matching order exists.
func LastOrderTime(records []broker.HistoryRecord, ticker string, side domain.Side) time.Time {
	matched := make([]broker.HistoryRecord, 0, len(records))
	for _, r := range records {
		if r.Ticker == ticker && r.Side() == side {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return time.Time{}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].OrderDate != matched[j].OrderDate {
			return matched[i].OrderDate > matched[j].OrderDate
		}
		return orderNoValue(matched[i].OrderNo) > orderNoValue(matched[j].OrderNo)
	})

	latest := matched[0]
	ts, err := time.ParseInLocation("20060102150405", latest.OrderDate+latest.OrderTime, seoulLoc)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// orderNoValue reads an order number for comparison; ids are numeric but
// arrive zero padded at varying widths.
func orderNoValue(raw string) int64 {
	n, err := strconv.ParseInt(broker.NormalizeOrderID(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ElapsedMinutes is the whole minutes from ts to now. A zero ts means no
// prior order, reported as a very large elapse so every cooldown passes.
func ElapsedMinutes(ts, now time.Time) int {
	if ts.IsZero() {
		return 1 << 30
	}
	return int(now.Sub(ts).Minutes())
}
