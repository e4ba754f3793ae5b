package domain

import "testing"

func TestMarketFor(t *testing.T) {
	tests := []struct {
		code string
		want Market
	}{
		{"NASD", MarketNasdaq},
		{"NYSE", MarketNYSE},
		{"AMEX", MarketAmex},
		{"", MarketNasdaq},
	}
	for _, tt := range tests {
		if got := MarketFor(tt.code); got != tt.want {
			t.Errorf("MarketFor(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestMarketQuoteCode(t *testing.T) {
	tests := []struct {
		market Market
		want   string
	}{
		{MarketNasdaq, "NAS"},
		{MarketNYSE, "NYS"},
		{MarketAmex, "AMS"},
		{Market("XETRA"), "XET"},
	}
	for _, tt := range tests {
		if got := tt.market.QuoteCode(); got != tt.want {
			t.Errorf("%v.QuoteCode() = %q, want %q", tt.market, got, tt.want)
		}
	}
}
