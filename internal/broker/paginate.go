package broker

import (
	"context"
	"strings"
	"time"
)

// maxHistoryPages bounds a single continuation walk. A healthy account
// never comes close; hitting the cap means the vendor is looping cursors.
const maxHistoryPages = 500

// pageDelay is the courtesy pause between successive continuation
// requests, on top of the client's token-bucket limiter.
const pageDelay = 100 * time.Millisecond

// Paginator walks a continuation-token ("tr_cont") paged history query to
// completion.
type Paginator struct {
	client *Client
	Delay  time.Duration
	// MaxPages bounds one walk; zero means maxHistoryPages.
	MaxPages int
}

// NewPaginator returns a paginator over the given client.
func NewPaginator(c *Client) *Paginator {
	return &Paginator{client: c, Delay: pageDelay}
}

// FetchAll collects every page the query matches, in vendor order
// (SORT_SQN "DS": newest first). The walk continues while the response
// tr_cont is F or M, echoing the cursor pair back, and terminates on
// D, E, or blank. Any other marker stops the walk with what was
// gathered so far. Exceeding the page cap returns PaginationOverrunError
// together with the records accumulated before the cap.
func (p *Paginator) FetchAll(ctx context.Context, q HistoryQuery) ([]HistoryRecord, error) {
	limit := p.MaxPages
	if limit <= 0 {
		limit = maxHistoryPages
	}
	var (
		all []HistoryRecord
		cur Cursor
	)
	for page := 1; ; page++ {
		if page > limit {
			return all, &PaginationOverrunError{Pages: limit}
		}
		res, err := p.client.FetchHistoryPage(ctx, q, cur)
		if err != nil {
			return all, err
		}
		all = append(all, res.Records...)

		switch strings.TrimSpace(res.TrCont) {
		case "F", "M":
			cur = res.Next
		default: // D, E, or anything unexpected: done
			return all, nil
		}

		if p.Delay > 0 {
			select {
			case <-ctx.Done():
				return all, ctx.Err()
			case <-time.After(p.Delay):
			}
		}
	}
}
