package infra

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// KIS open API endpoints. The virtual (paper trading) environment lives on
// separate ports.
const (
	RealRESTURL    = "https://openapi.koreainvestment.com:9443"
	RealWSURL      = "ws://ops.koreainvestment.com:21000"
	VirtualRESTURL = "https://openapivts.koreainvestment.com:29443"
	VirtualWSURL   = "ws://ops.koreainvestment.com:31000"
)

// Config holds the full application configuration. Secrets can be
// overridden through environment variables after the file is loaded.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		Virtual   bool   `yaml:"virtual"`
		AppKey    string `yaml:"app_key"`
		AppSecret string `yaml:"app_secret"`
		AccountNo string `yaml:"account_no"` // 8-digit CANO + 2-digit product code
		HTSID     string `yaml:"hts_id"`
		RestURL   string `yaml:"rest_url"` // empty: derived from virtual flag
		WSURL     string `yaml:"ws_url"`
	} `yaml:"api"`

	Trading struct {
		Tickers          map[string]string `yaml:"tickers"` // ticker -> exchange code (NASD, NYSE, AMEX)
		CheckIntervalMin int               `yaml:"check_interval_min"`
		BuyDelayMin      int               `yaml:"buy_delay_min"`
		SellDelayMin     int               `yaml:"sell_delay_min"`
		BuyRate          float64           `yaml:"buy_rate"`
		SellRate         float64           `yaml:"sell_rate"`
		StopLossRate     *float64          `yaml:"stop_loss_rate"` // percent; nil disables stop loss
		MarketStart      string            `yaml:"market_start"`   // HH:MM, US Eastern
		MarketEnd        string            `yaml:"market_end"`
		AutoShutdown     string            `yaml:"auto_shutdown"`
		MaxRuntimeHours  int               `yaml:"max_runtime_hours"`
		ExtraHolidays    []string          `yaml:"extra_holidays"` // YYYYMMDD
	} `yaml:"trading"`

	Signal SignalConfig `yaml:"signal"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// SignalConfig tunes the indicator thresholds the engine trades on.
// Intervals are "day" for daily bars or a minute frame ("1", "5", "15").
type SignalConfig struct {
	RSIPeriod     int     `yaml:"rsi_period"`
	RSIOversold   float64 `yaml:"rsi_oversold"`
	RSIOverbought float64 `yaml:"rsi_overbought"`
	RSIInterval   string  `yaml:"rsi_interval"`
	MACDFast      int     `yaml:"macd_fast"`
	MACDSlow      int     `yaml:"macd_slow"`
	MACDSignal    int     `yaml:"macd_signal"`
	MACDInterval  string  `yaml:"macd_interval"`
	CrossLookback int     `yaml:"cross_lookback"`
}

// LoadConfig reads and parses the config file, applies environment
// overrides, fills derived defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.API.RestURL == "" {
		if c.API.Virtual {
			c.API.RestURL = VirtualRESTURL
		} else {
			c.API.RestURL = RealRESTURL
		}
	}
	if c.API.WSURL == "" {
		if c.API.Virtual {
			c.API.WSURL = VirtualWSURL
		} else {
			c.API.WSURL = RealWSURL
		}
	}
	if c.Trading.CheckIntervalMin <= 0 {
		c.Trading.CheckIntervalMin = 5
	}
	if c.Trading.MaxRuntimeHours <= 0 {
		c.Trading.MaxRuntimeHours = 8
	}
	if c.Signal.RSIPeriod <= 0 {
		c.Signal.RSIPeriod = 14
	}
	if c.Signal.RSIOversold <= 0 {
		c.Signal.RSIOversold = 30
	}
	if c.Signal.RSIOverbought <= 0 {
		c.Signal.RSIOverbought = 70
	}
	if c.Signal.MACDFast <= 0 {
		c.Signal.MACDFast = 12
	}
	if c.Signal.MACDSlow <= 0 {
		c.Signal.MACDSlow = 26
	}
	if c.Signal.MACDSignal <= 0 {
		c.Signal.MACDSignal = 9
	}
	if c.Signal.CrossLookback <= 0 {
		c.Signal.CrossLookback = 5
	}
	if c.Signal.RSIInterval == "" {
		c.Signal.RSIInterval = "day"
	}
	if c.Signal.MACDInterval == "" {
		c.Signal.MACDInterval = "5"
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = "localhost:6060"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.AppKey == "" || c.API.AppSecret == "" {
		return fmt.Errorf("app_key and app_secret are required (set KIS_APP_KEY / KIS_APP_SECRET)")
	}
	if len(c.API.AccountNo) < 10 {
		return fmt.Errorf("account_no must be CANO(8) + product code(2), got %q", c.API.AccountNo)
	}
	if len(c.Trading.Tickers) == 0 {
		return fmt.Errorf("at least one trading ticker is required")
	}
	if c.Trading.BuyRate <= 0 || c.Trading.BuyRate > 1 {
		return fmt.Errorf("buy_rate must be in (0, 1], got %v", c.Trading.BuyRate)
	}
	if c.Trading.SellRate <= 0 || c.Trading.SellRate > 1 {
		return fmt.Errorf("sell_rate must be in (0, 1], got %v", c.Trading.SellRate)
	}
	for _, clock := range []struct{ name, v string }{
		{"market_start", c.Trading.MarketStart},
		{"market_end", c.Trading.MarketEnd},
		{"auto_shutdown", c.Trading.AutoShutdown},
	} {
		// Empty auto_shutdown means the daily shutdown is disabled.
		if clock.name == "auto_shutdown" && clock.v == "" {
			continue
		}
		if _, err := time.Parse("15:04", clock.v); err != nil {
			return fmt.Errorf("%s must be HH:MM, got %q", clock.name, clock.v)
		}
	}
	for _, d := range c.Trading.ExtraHolidays {
		if _, err := time.Parse("20060102", d); err != nil {
			return fmt.Errorf("extra_holidays entries must be YYYYMMDD, got %q", d)
		}
	}
	return nil
}

// CANO returns the 8-digit account number prefix.
func (c *Config) CANO() string { return c.API.AccountNo[:8] }

// AcntPrdtCd returns the 2-digit account product code suffix.
func (c *Config) AcntPrdtCd() string { return c.API.AccountNo[8:] }

// overrideWithEnv lets environment variables take precedence over the
// config file so secrets can stay out of it.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("KIS_APP_KEY"); v != "" {
		cfg.API.AppKey = v
	}
	if v := os.Getenv("KIS_APP_SECRET"); v != "" {
		cfg.API.AppSecret = v
	}
	if v := os.Getenv("KIS_ACCOUNT_NO"); v != "" {
		cfg.API.AccountNo = v
	}
	if v := os.Getenv("KIS_HTS_ID"); v != "" {
		cfg.API.HTSID = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
}
