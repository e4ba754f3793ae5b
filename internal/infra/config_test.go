package infra

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
api:
  virtual: true
  app_key: key
  app_secret: secret
  account_no: "6489012301"
  hts_id: tester
trading:
  tickers:
    AAPL: NASD
  buy_rate: 0.5
  sell_rate: 0.5
  market_start: "09:30"
  market_end: "16:00"
  auto_shutdown: "16:30"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_DefaultsApplied(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.API.RestURL != VirtualRESTURL {
		t.Errorf("rest url = %q, want virtual default", cfg.API.RestURL)
	}
	if cfg.API.WSURL != VirtualWSURL {
		t.Errorf("ws url = %q, want virtual default", cfg.API.WSURL)
	}
	if cfg.Trading.CheckIntervalMin != 5 {
		t.Errorf("check interval = %d, want 5", cfg.Trading.CheckIntervalMin)
	}
	if cfg.Trading.MaxRuntimeHours != 8 {
		t.Errorf("max runtime = %d, want 8", cfg.Trading.MaxRuntimeHours)
	}
	if cfg.Signal.RSIPeriod != 14 || cfg.Signal.MACDSlow != 26 {
		t.Errorf("signal defaults not applied: %+v", cfg.Signal)
	}
	if cfg.Trading.StopLossRate != nil {
		t.Error("stop loss should default to disabled")
	}
}

func TestLoadConfig_AccountSplit(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.CANO(); got != "64890123" {
		t.Errorf("CANO = %q", got)
	}
	if got := cfg.AcntPrdtCd(); got != "01" {
		t.Errorf("AcntPrdtCd = %q", got)
	}
}

func TestLoadConfig_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("KIS_APP_KEY", "env-key")
	t.Setenv("KIS_APP_SECRET", "env-secret")

	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.AppKey != "env-key" || cfg.API.AppSecret != "env-secret" {
		t.Errorf("env override ignored: key=%q secret=%q", cfg.API.AppKey, cfg.API.AppSecret)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name  string
		yaml string
	}{
		{"missing secrets", `
api:
  account_no: "6489012301"
trading:
  tickers: {AAPL: NASD}
  buy_rate: 0.5
  sell_rate: 0.5
  market_start: "09:30"
  market_end: "16:00"
  auto_shutdown: "16:30"
`},
		{"short account number", `
api:
  app_key: k
  app_secret: s
  account_no: "123"
trading:
  tickers: {AAPL: NASD}
  buy_rate: 0.5
  sell_rate: 0.5
  market_start: "09:30"
  market_end: "16:00"
  auto_shutdown: "16:30"
`},
		{"no tickers", `
api:
  app_key: k
  app_secret: s
  account_no: "6489012301"
trading:
  buy_rate: 0.5
  sell_rate: 0.5
  market_start: "09:30"
  market_end: "16:00"
  auto_shutdown: "16:30"
`},
		{"buy rate out of range", `
api:
  app_key: k
  app_secret: s
  account_no: "6489012301"
trading:
  tickers: {AAPL: NASD}
  buy_rate: 1.5
  sell_rate: 0.5
  market_start: "09:30"
  market_end: "16:00"
  auto_shutdown: "16:30"
`},
		{"bad clock", `
api:
  app_key: k
  app_secret: s
  account_no: "6489012301"
trading:
  tickers: {AAPL: NASD}
  buy_rate: 0.5
  sell_rate: 0.5
  market_start: "930"
  market_end: "16:00"
  auto_shutdown: "16:30"
`},
		{"bad extra holiday", `
api:
  app_key: k
  app_secret: s
  account_no: "6489012301"
trading:
  tickers: {AAPL: NASD}
  buy_rate: 0.5
  sell_rate: 0.5
  market_start: "09:30"
  market_end: "16:00"
  auto_shutdown: "16:30"
  extra_holidays: ["2026-09-01"]
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfig_EmptyAutoShutdownDisables(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
api:
  virtual: true
  app_key: key
  app_secret: secret
  account_no: "6489012301"
trading:
  tickers:
    AAPL: NASD
  buy_rate: 0.5
  sell_rate: 0.5
  market_start: "09:30"
  market_end: "16:00"
`))
	if err != nil {
		t.Fatalf("empty auto_shutdown must validate: %v", err)
	}
	if cfg.Trading.AutoShutdown != "" {
		t.Errorf("auto_shutdown = %q, want empty (disabled)", cfg.Trading.AutoShutdown)
	}
}
