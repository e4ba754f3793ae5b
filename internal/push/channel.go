// Package push consumes the KIS realtime execution-notice channel and
// reconciles fills against the engine's order tracker.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/geongi-im/kis-us-auto-trading/internal/domain"
	"github.com/geongi-im/kis-us-auto-trading/internal/engine"
	"github.com/geongi-im/kis-us-auto-trading/internal/infra"
	"github.com/geongi-im/kis-us-auto-trading/internal/metrics"
	"github.com/geongi-im/kis-us-auto-trading/internal/notify"
	"github.com/geongi-im/kis-us-auto-trading/internal/storage"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Execution notice transaction ids: real and paper environments.
const (
	noticeTrIDReal    = "H0GSCNI0"
	noticeTrIDVirtual = "H0GSCNI9"
)

// Credentials issues the websocket approval key; *broker.Client
// satisfies it.
type Credentials interface {
	ApprovalKey(ctx context.Context) (string, error)
}

// Journal mirrors the engine's trade journal for fill rows.
type Journal interface {
	AppendTrade(ctx context.Context, e storage.TradeEntry) error
}

// Channel is the infra.WSHandler for the execution-notice stream. It
// subscribes on connect, answers PINGPONG, decrypts data frames and
// feeds fills into the tracker.
type Channel struct {
	cfg      *infra.Config
	creds    Credentials
	tracker  *engine.Tracker
	journal  Journal
	notifier notify.Notifier
	log      *slog.Logger

	worker    *infra.WSWorker
	sessionID string

	// Session crypto material from the subscription response. Only the
	// worker goroutine touches these.
	aesKey string
	aesIV  string
}

// NewChannel builds the push channel. journal may be nil.
func NewChannel(cfg *infra.Config, creds Credentials, tracker *engine.Tracker, journal Journal, n notify.Notifier, log *slog.Logger) *Channel {
	ch := &Channel{
		cfg:       cfg,
		creds:     creds,
		tracker:   tracker,
		journal:   journal,
		notifier:  n,
		log:       log,
		sessionID: uuid.NewString(),
	}
	ch.worker = infra.NewWSWorker(ch)
	ch.worker.OnExhausted = func(err error) {
		// Polling keeps trading without realtime fills; open orders are
		// recovered from history on the next start.
		log.Error("execution notice channel down", "error", err)
		n.Send(context.Background(), "🚨 Execution notice channel gave up reconnecting: "+err.Error())
	}
	return ch
}

// Start launches the websocket worker.
func (c *Channel) Start(ctx context.Context) { c.worker.Start(ctx) }

// Stop tears the connection down.
func (c *Channel) Stop() { c.worker.Stop() }

func (c *Channel) trID() string {
	if c.cfg.API.Virtual {
		return noticeTrIDVirtual
	}
	return noticeTrIDReal
}

// URL implements infra.WSHandler.
func (c *Channel) URL() string {
	return c.cfg.API.WSURL + "/tryitout/" + c.trID()
}

// ID implements infra.WSHandler.
func (c *Channel) ID() string { return "kis-notice-" + c.sessionID[:8] }

// OnConnect implements infra.WSHandler: it sends the subscription
// request for this account's execution notices.
func (c *Channel) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	metrics.PushReconnects.Inc()

	key, err := c.creds.ApprovalKey(ctx)
	if err != nil {
		return fmt.Errorf("approval key: %w", err)
	}

	sub := subscribeRequest{}
	sub.Header.ApprovalKey = key
	sub.Header.CustType = "P"
	sub.Header.TrType = "1" // subscribe
	sub.Header.ContentType = "utf-8"
	sub.Body.Input.TrID = c.trID()
	sub.Body.Input.TrKey = c.cfg.API.HTSID

	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("subscribe write: %w", err)
	}
	c.log.Info("execution notice subscription sent", "tr_id", c.trID())
	return nil
}

type subscribeRequest struct {
	Header struct {
		ApprovalKey string `json:"approval_key"`
		CustType    string `json:"custtype"`
		TrType      string `json:"tr_type"`
		ContentType string `json:"content-type"`
	} `json:"header"`
	Body struct {
		Input struct {
			TrID  string `json:"tr_id"`
			TrKey string `json:"tr_key"`
		} `json:"input"`
	} `json:"body"`
}

// controlMessage is the JSON the channel sends outside of data frames:
// subscription responses and keepalive pings.
type controlMessage struct {
	Header struct {
		TrID string `json:"tr_id"`
	} `json:"header"`
	Body struct {
		RtCd   string `json:"rt_cd"`
		MsgCd  string `json:"msg_cd"`
		Msg1   string `json:"msg1"`
		Output struct {
			Key string `json:"key"`
			IV  string `json:"iv"`
		} `json:"output"`
	} `json:"body"`
}

// OnMessage implements infra.WSHandler. Data frames start with '0' or
// '1'; everything else is control JSON.
func (c *Channel) OnMessage(ctx context.Context, msg []byte) {
	if len(msg) == 0 {
		return
	}
	if msg[0] == '0' || msg[0] == '1' {
		c.handleData(ctx, string(msg))
		return
	}
	c.handleControl(ctx, msg)
}

func (c *Channel) handleControl(_ context.Context, msg []byte) {
	var ctl controlMessage
	if err := json.Unmarshal(msg, &ctl); err != nil {
		c.log.Warn("unparseable control message", "raw", truncate(msg, 200))
		return
	}

	if ctl.Header.TrID == "PINGPONG" {
		// Echo the ping back verbatim to keep the session alive.
		if err := c.worker.Write(websocket.TextMessage, msg); err != nil {
			c.log.Warn("pong write failed", "error", err)
		}
		return
	}

	switch {
	case ctl.Body.RtCd == "0":
		c.aesKey = ctl.Body.Output.Key
		c.aesIV = ctl.Body.Output.IV
		c.log.Info("execution notice subscription confirmed")
	case strings.Contains(ctl.Body.Msg1, "ALREADY IN SUBSCRIBE"):
		c.log.Info("execution notice subscription already active")
	default:
		c.log.Warn("subscription rejected",
			"rt_cd", ctl.Body.RtCd,
			"msg_cd", ctl.Body.MsgCd,
			"msg", ctl.Body.Msg1)
	}
}

// handleData decrypts and applies one execution notice frame. Frame
// layout: flag|tr_id|count|payload, pipe-separated.
func (c *Channel) handleData(ctx context.Context, frame string) {
	parts := strings.Split(frame, "|")
	if len(parts) < 4 {
		c.log.Warn("short data frame", "fields", len(parts))
		return
	}
	if parts[1] != c.trID() {
		return
	}
	if c.aesKey == "" || c.aesIV == "" {
		c.log.Warn("data frame before subscription key, dropping")
		return
	}

	plain, err := decryptNotice(c.aesKey, c.aesIV, parts[3])
	if err != nil {
		c.log.Error("notice decrypt failed", "error", err)
		return
	}

	c.apply(ctx, parseNotice(string(plain)))
}

// apply routes one parsed notice. Only filled notices move quantity;
// acceptance echoes are logged and rejections drop the order from
// tracking so the ticker frees up.
func (c *Channel) apply(ctx context.Context, ev domain.FillEvent) {
	switch ev.Status {
	case domain.NoticeAccepted:
		c.log.Info("order accepted by venue", "order_id", ev.OrderID, "ticker", ev.Ticker)
		return
	case domain.NoticeRejected:
		if c.tracker.Remove(ev.OrderID) {
			metrics.FillNotices.WithLabelValues("rejected").Inc()
			c.log.Warn("order rejected by venue", "order_id", ev.OrderID, "ticker", ev.Ticker)
			c.notifier.Send(ctx, fmt.Sprintf("⚠️ Order %s for %s rejected by the venue.", ev.OrderID, ev.Ticker))
		}
		return
	case domain.NoticeFilled:
	default:
		return
	}

	outcome, rec := c.tracker.ApplyFill(ev)
	switch outcome {
	case engine.UnknownOrder:
		metrics.FillNotices.WithLabelValues("unknown").Inc()
		c.log.Warn("fill for untracked order",
			"order_id", ev.OrderID,
			"ticker", ev.Ticker,
			"qty", ev.FilledQty)
	case engine.PartiallyFilled:
		metrics.FillNotices.WithLabelValues("partial").Inc()
		c.log.Info("partial fill",
			"order_id", rec.OrderID,
			"ticker", rec.Ticker,
			"filled", ev.FilledQty,
			"remaining", rec.RemainingQty())
		c.journalFill(ctx, "FILL", rec, ev)
	case engine.FullyFilled:
		metrics.FillNotices.WithLabelValues("complete").Inc()
		c.log.Info("order fully filled",
			"order_id", rec.OrderID,
			"ticker", rec.Ticker,
			"qty", rec.TotalQty,
			"price", ev.FillPrice)
		c.journalFill(ctx, "COMPLETE", rec, ev)
		c.notifier.Send(ctx, fmt.Sprintf(
			"✅ <b>%s %s</b> fully filled\nqty %d @ %s",
			rec.Side.String(), rec.Ticker, rec.TotalQty, ev.FillPrice.StringFixed(2)))
	}
}

func (c *Channel) journalFill(ctx context.Context, kind string, rec domain.OrderRecord, ev domain.FillEvent) {
	if c.journal == nil {
		return
	}
	if err := c.journal.AppendTrade(ctx, storage.TradeEntry{
		Kind:    kind,
		OrderID: rec.OrderID,
		Ticker:  rec.Ticker,
		Side:    rec.Side.String(),
		Qty:     ev.FilledQty,
		Price:   ev.FillPrice.String(),
		TsUnix:  time.Now().Unix(),
	}); err != nil {
		c.log.Warn("trade journal write failed", "order_id", rec.OrderID, "error", err)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
