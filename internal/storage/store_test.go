package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_MetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if v, err := s.GetMetadata(ctx, "token"); err != nil || v != "" {
		t.Fatalf("missing key should yield empty string, got %q err %v", v, err)
	}

	now := time.Now().Unix()
	if err := s.UpsertMetadata(ctx, "token", "abc", now); err != nil {
		t.Fatalf("UpsertMetadata: %v", err)
	}
	if err := s.UpsertMetadata(ctx, "token", "def", now+1); err != nil {
		t.Fatalf("UpsertMetadata overwrite: %v", err)
	}

	v, err := s.GetMetadata(ctx, "token")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if v != "def" {
		t.Errorf("expected latest value def, got %q", v)
	}
}

func TestStore_TradeJournal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []TradeEntry{
		{Kind: "SUBMIT", OrderID: "O1", Ticker: "TQQQ", Side: "BUY", Qty: 10, Price: "100.00", TsUnix: 1},
		{Kind: "FILL", OrderID: "O1", Ticker: "TQQQ", Side: "BUY", Qty: 4, Price: "100.00", TsUnix: 2},
		{Kind: "COMPLETE", OrderID: "O1", Ticker: "TQQQ", Side: "BUY", Qty: 10, Price: "100.00", TsUnix: 3},
		{Kind: "SUBMIT", OrderID: "O2", Ticker: "QQQ", Side: "SELL", Qty: 1, Price: "0", TsUnix: 4},
	}
	for _, e := range entries {
		if err := s.AppendTrade(ctx, e); err != nil {
			t.Fatalf("AppendTrade: %v", err)
		}
	}

	got, err := s.TradesForOrder(ctx, "O1")
	if err != nil {
		t.Fatalf("TradesForOrder: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries for O1, got %d", len(got))
	}
	wantKinds := []string{"SUBMIT", "FILL", "COMPLETE"}
	for i, k := range wantKinds {
		if got[i].Kind != k {
			t.Errorf("entry %d kind = %s, want %s", i, got[i].Kind, k)
		}
	}
}
