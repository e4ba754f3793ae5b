package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/geongi-im/kis-us-auto-trading/internal/broker"
	"github.com/geongi-im/kis-us-auto-trading/internal/domain"
	"github.com/geongi-im/kis-us-auto-trading/internal/engine"
	"github.com/geongi-im/kis-us-auto-trading/internal/infra"
	"github.com/geongi-im/kis-us-auto-trading/internal/metrics"
	"github.com/geongi-im/kis-us-auto-trading/internal/notify"
	"github.com/geongi-im/kis-us-auto-trading/internal/push"
	sigpkg "github.com/geongi-im/kis-us-auto-trading/internal/signal"
	"github.com/geongi-im/kis-us-auto-trading/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err
	}

	log := infra.NewLogger(cfg.Logging.Level)
	log.Info("🚀 starting", "app", infra.AppName, "virtual", cfg.API.Virtual)

	workDir := infra.GetWorkspaceDir()
	if err := infra.EnsureDir(workDir); err != nil {
		return err
	}
	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	defer unlock()

	store, err := storage.NewStore(filepath.Join(workDir, "bot.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := broker.NewClient(cfg, store)
	notifier := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, log)
	metrics.Serve(cfg.Metrics.ListenAddr, log)

	eng := engine.New(cfg, client, broker.NewPaginator(client),
		sigpkg.NewChartProvider(client, cfg.Signal, marketFor(cfg), log),
		engine.NewTracker(), store, notifier, log)
	sched := engine.NewScheduler(cfg, eng, engine.NewCalendar(cfg.Trading.ExtraHolidays), notifier, log)

	// The scheduler starts the channel itself, after the open-order sync,
	// so early fill notices find their orders already tracked.
	channel := push.NewChannel(cfg, client, eng.Tracker(), store, notifier, log)
	sched.AttachPush(channel)
	defer channel.Stop()

	sendStartupSummary(ctx, cfg, client, notifier, log)

	err = sched.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("interrupted, shutting down")
		return nil
	}
	return err
}

func marketFor(cfg *infra.Config) func(string) domain.Market {
	return func(ticker string) domain.Market {
		return domain.MarketFor(cfg.Trading.Tickers[ticker])
	}
}

// sendStartupSummary posts the current portfolio so the operator sees
// what the bot woke up with. Failures only cost the message.
func sendStartupSummary(ctx context.Context, cfg *infra.Config, client *broker.Client, notifier notify.Notifier, log *slog.Logger) {
	holdings, err := client.FetchPresentHoldings(ctx)
	if err != nil {
		log.Warn("startup portfolio fetch failed", "error", err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🤖 <b>%s started</b> (virtual=%v)\n", infra.AppName, cfg.API.Virtual)
	if len(holdings) == 0 {
		b.WriteString("no open positions")
	}
	for _, h := range holdings {
		fmt.Fprintf(&b, "%s: %d @ %s (%s%%)\n",
			h.Ticker, h.Quantity, h.AvgPrice.StringFixed(2), h.ProfitRate.StringFixed(2))
	}
	notifier.Send(ctx, b.String())
}
