package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/geongi-im/kis-us-auto-trading/internal/domain"
)

// FillOutcome classifies what applying one execution notice did to the
// tracked order.
type FillOutcome int

const (
	// UnknownOrder means the notice did not match any tracked order.
	UnknownOrder FillOutcome = iota
	// PartiallyFilled means quantity remains after applying the notice.
	PartiallyFilled
	// FullyFilled means the order completed; it is no longer tracked.
	FullyFilled
)

// Tracker holds the set of in-flight orders and reconciles execution
// notices against them. All access is serialized through its mutex: the
// polling loop adds orders, the push channel applies fills, and both read.
type Tracker struct {
	mu     sync.Mutex
	orders map[string]*domain.OrderRecord
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{orders: make(map[string]*domain.OrderRecord)}
}

// Add registers a newly submitted order. An order id can only be tracked
// once; a duplicate is a caller bug and is rejected.
func (t *Tracker) Add(rec domain.OrderRecord) error {
	if rec.OrderID == "" {
		return fmt.Errorf("tracker: order without id")
	}
	if rec.TotalQty <= 0 {
		return fmt.Errorf("tracker: order %s with non-positive quantity %d", rec.OrderID, rec.TotalQty)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.orders[rec.OrderID]; ok {
		return fmt.Errorf("tracker: order %s already tracked", rec.OrderID)
	}
	cp := rec
	t.orders[rec.OrderID] = &cp
	return nil
}

// ApplyFill reconciles one execution notice. The returned record is a
// snapshot after the update; for FullyFilled it is the final state of the
// order, which is removed from tracking in the same step so a duplicate
// notice cannot complete it twice. Cumulative fills are clamped to the
// order's total quantity.
func (t *Tracker) ApplyFill(ev domain.FillEvent) (FillOutcome, domain.OrderRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.orders[ev.OrderID]
	if !ok && ev.OrigID != "" {
		rec, ok = t.orders[ev.OrigID]
	}
	if !ok {
		return UnknownOrder, domain.OrderRecord{}
	}

	rec.ExecutedQty += ev.FilledQty
	if rec.ExecutedQty > rec.TotalQty {
		rec.ExecutedQty = rec.TotalQty
	}

	snapshot := *rec
	if !rec.IsOpen() {
		delete(t.orders, rec.OrderID)
		return FullyFilled, snapshot
	}
	return PartiallyFilled, snapshot
}

// Remove drops an order from tracking, typically after a rejection or
// cancellation notice. It reports whether the order was tracked.
func (t *Tracker) Remove(orderID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.orders[orderID]; !ok {
		return false
	}
	delete(t.orders, orderID)
	return true
}

// HasOpenOrder reports whether any tracked order exists for the ticker.
// The engine uses this as its submission guard: one in-flight order per
// ticker at a time.
func (t *Tracker) HasOpenOrder(ticker string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range t.orders {
		if rec.Ticker == ticker {
			return true
		}
	}
	return false
}

// Len is the number of tracked orders.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.orders)
}

// Snapshot returns copies of every tracked order, sorted by order id for
// stable presentation.
func (t *Tracker) Snapshot() []domain.OrderRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.OrderRecord, 0, len(t.orders))
	for _, rec := range t.orders {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}
