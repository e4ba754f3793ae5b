package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTelegram_SendsFormEncodedMessage(t *testing.T) {
	var gotPath, gotChat, gotText, gotMode string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		gotChat = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
		gotMode = r.PostForm.Get("parse_mode")
	}))
	defer srv.Close()

	tg := NewTelegram("bot-token", "12345", testLogger())
	tg.apiBase = srv.URL
	tg.Send(context.Background(), "<b>BUY</b> AAPL")

	if gotPath != "/botbot-token/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotChat != "12345" {
		t.Errorf("chat_id = %q", gotChat)
	}
	if gotText != "<b>BUY</b> AAPL" {
		t.Errorf("text = %q", gotText)
	}
	if gotMode != "HTML" {
		t.Errorf("parse_mode = %q", gotMode)
	}
}

func TestTelegram_DisabledWithoutCredentials(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	tg := NewTelegram("", "", testLogger())
	tg.apiBase = srv.URL
	if tg.Enabled() {
		t.Error("empty credentials must disable the notifier")
	}
	tg.Send(context.Background(), "hello")
	if called {
		t.Error("disabled notifier must not call out")
	}
}

func TestTelegram_ServerErrorSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tg := NewTelegram("t", "c", testLogger())
	tg.apiBase = srv.URL
	// Must not panic or propagate anything.
	tg.Send(context.Background(), "hello")
}
