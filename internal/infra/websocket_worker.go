package infra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSHandler defines the endpoint-specific logic for a WSWorker.
type WSHandler interface {
	URL() string
	OnConnect(ctx context.Context, conn *websocket.Conn) error
	OnMessage(ctx context.Context, msg []byte)
	ID() string
}

// WSWorker manages the lifecycle of a persistent WebSocket connection:
// dialing, reconnection with exponential backoff, read deadlines, and
// write serialization. When MaxRetries consecutive connection attempts
// fail, the worker gives up and reports through OnExhausted.
type WSWorker struct {
	handler WSHandler
	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	ReadTimeout time.Duration
	MaxRetries  int
	OnExhausted func(err error)
}

// NewWSWorker creates a worker around the given handler.
func NewWSWorker(handler WSHandler) *WSWorker {
	return &WSWorker{
		handler:     handler,
		ReadTimeout: 60 * time.Second,
		MaxRetries:  5,
	}
}

// Start launches the connection loop.
func (w *WSWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop terminates the worker and waits for the read loop to exit.
func (w *WSWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.close()
	w.wg.Wait()
}

func (w *WSWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	retry := 0
	var lastErr error

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if w.MaxRetries > 0 && retry >= w.MaxRetries {
			slog.Error("WS retries exhausted", "id", w.handler.ID(), "attempts", retry, "err", lastErr)
			if w.OnExhausted != nil {
				w.OnExhausted(fmt.Errorf("websocket %s: %d connect attempts failed: %w", w.handler.ID(), retry, lastErr))
			}
			return
		}

		if err := w.connect(ctx); err != nil {
			lastErr = err
			slog.Warn("WS connect failed", "id", w.handler.ID(), "err", err, "retry", retry)
			delay := ReconnectBackoff(retry)
			retry++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0 // reset on successful connect
		w.process(ctx)
	}
}

func (w *WSWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, w.handler.URL(), nil)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.handler.OnConnect(ctx, conn); err != nil {
		w.close()
		return fmt.Errorf("OnConnect failed: %w", err)
	}

	slog.Info("WS connected", "id", w.handler.ID())
	return nil
}

func (w *WSWorker) process(ctx context.Context) {
	for {
		w.mu.RLock()
		c := w.conn
		w.mu.RUnlock()
		if c == nil {
			return
		}

		c.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("WS read error", "id", w.handler.ID(), "err", err)
			}
			w.close()
			return
		}

		w.handler.OnMessage(ctx, msg)
	}
}

// Write sends a message on the current connection. Safe for concurrent use.
func (w *WSWorker) Write(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()

	if c == nil {
		return fmt.Errorf("ws not connected")
	}

	return c.WriteMessage(msgType, data)
}

func (w *WSWorker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
