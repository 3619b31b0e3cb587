// Command pvsra watches Binance futures klines, classifies every closed bar by
// volume and body size, publishes climax and rising volume alerts, and
// optionally trades the momentum side when the alerts agree.
//
// Usage:
//
//	pvsra --config config.yaml
//	pvsra --pair SUI_USDT --interval 1m
//	pvsra setup (interactive wizard, then start)
//
// Environment variables (a .env file is read when present):
//
//	BINANCE_API_KEY, BINANCE_API_SECRET   required for live trading
//	TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID  alert delivery to Telegram
//	REDIS_ADDR, REDIS_PASSWORD            alert publishing to Redis
//	PVSRA_HTTP_ADDR                       dashboard and metrics, default :8080
//	PVSRA_JOURNAL_DIR                     event journal, default ./wal/journal
//	PVSRA_EXPORT_DIR                      parquet export of classified bars on exit
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vadiminshakov/pvsra/config"
	"github.com/vadiminshakov/pvsra/internal"
	"github.com/vadiminshakov/pvsra/internal/clients"
	"github.com/vadiminshakov/pvsra/internal/events"
	"github.com/vadiminshakov/pvsra/internal/metrics"
	"github.com/vadiminshakov/pvsra/internal/services/barstore"
	"github.com/vadiminshakov/pvsra/internal/services/notify"
	"github.com/vadiminshakov/pvsra/internal/services/pvsra"
	"github.com/vadiminshakov/pvsra/internal/setup"
	"github.com/vadiminshakov/pvsra/internal/storage/barexport"
	"github.com/vadiminshakov/pvsra/internal/storage/journal"
	"github.com/vadiminshakov/pvsra/internal/web"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	env := config.LoadEnv()

	configs, err := loadConfigs()
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, env, configs); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("pvsra stopped", zap.Error(err))
	}
	logger.Info("pvsra stopped")
}

func loadConfigs() ([]config.Config, error) {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		path, err := setup.RunTUI()
		if err != nil {
			return nil, err
		}
		return config.Load(path)
	}
	return config.Get()
}

type symbolRuntime struct {
	cfg     config.Config
	store   *barstore.Store
	monitor *internal.Monitor
}

func run(ctx context.Context, logger *zap.Logger, env config.Env, configs []config.Config) error {
	for _, c := range configs {
		if c.LiveTrading && (env.BinanceAPIKey == "" || env.BinanceSecretKey == "") {
			return errors.Errorf("%s: BINANCE_API_KEY and BINANCE_API_SECRET must be set for live trading", c.Pair)
		}
	}

	client := clients.NewFuturesClient(env.BinanceAPIKey, env.BinanceSecretKey)
	provider := internal.NewServiceProvider(client, configs, logger)
	m := metrics.New()

	wal, err := journal.NewWALStore(env.JournalDir)
	if err != nil {
		return err
	}
	defer wal.Close()

	alerts := events.NewAlertStream(logger, events.WithFailureHook(func(name string, _ error) {
		m.ObserveSubscriberFailure(name)
	}))
	defer alerts.Close()

	if err := subscribeNotifiers(ctx, alerts, env, logger); err != nil {
		return err
	}

	runtimes := make([]symbolRuntime, 0, len(configs))
	views := make(map[string]web.SymbolView, len(configs))
	for _, cfg := range configs {
		symLogger := logger.With(zap.String("symbol", cfg.Symbol()))
		store := barstore.New(cfg.StoreCapacity, cfg.IntervalDuration)

		tr, pr, err := internal.NewTrader(ctx, cfg, client, store, "", symLogger)
		if err != nil {
			return errors.Wrapf(err, "%s trader", cfg.Pair)
		}

		mon, err := internal.NewMonitor(cfg, internal.MonitorDeps{
			Logger:   logger,
			Store:    store,
			Alerts:   alerts,
			History:  provider.History(),
			Feed:     provider.Feed(),
			Filters:  provider.Filters(),
			Trader:   tr,
			Pricer:   pr,
			Journal:  wal,
			Recorder: m,
		})
		if err != nil {
			return errors.Wrapf(err, "%s monitor", cfg.Pair)
		}

		runtimes = append(runtimes, symbolRuntime{cfg: cfg, store: store, monitor: mon})
		views[cfg.Symbol()] = web.SymbolView{Bars: store, Params: mon.Params()}
	}

	server := &web.Server{
		Addr:    env.HTTPAddr,
		Journal: wal,
		Alerts:  []web.AlertFeed{alerts},
		Symbols: views,
		Metrics: m.Handler(),
		Logger:  logger,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", env.HTTPAddr))
		return server.Start(gctx)
	})
	monitors := make([]internal.SymbolRunner, 0, len(runtimes))
	for _, rt := range runtimes {
		monitors = append(monitors, rt.monitor)
	}
	g.Go(func() error {
		return internal.RunMonitors(gctx, logger, monitors...)
	})
	err = g.Wait()

	if env.ExportDir != "" {
		exportBars(env.ExportDir, runtimes, logger)
	}
	return err
}

func subscribeNotifiers(ctx context.Context, alerts *events.AlertStream, env config.Env, logger *zap.Logger) error {
	alerts.Subscribe("console", notify.NewConsole(os.Stdout).Notify)

	if env.TelegramToken != "" {
		chatID, err := strconv.ParseInt(env.TelegramChatID, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid TELEGRAM_CHAT_ID %q", env.TelegramChatID)
		}
		tg, err := notify.NewTelegram(env.TelegramToken, chatID, logger)
		if err != nil {
			return err
		}
		alerts.Subscribe("telegram", tg.Notify)
		logger.Info("telegram alerts enabled")
	}

	if env.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: env.RedisAddr, Password: env.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return errors.Wrapf(err, "redis %s unreachable", env.RedisAddr)
		}
		pub := notify.NewRedisPublisher(rdb, "pvsra", 0)
		alerts.Subscribe("redis", pub.Notify)
		logger.Info("redis alerts enabled", zap.String("channel", pub.Channel()))
	}
	return nil
}

func exportBars(dir string, runtimes []symbolRuntime, logger *zap.Logger) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error("failed to create export dir", zap.Error(err))
		return
	}
	for _, rt := range runtimes {
		symbol := rt.cfg.Symbol()
		classified := pvsra.Classify(rt.store.Closed(symbol, 0), rt.monitor.Params())
		if len(classified) == 0 {
			continue
		}
		path := filepath.Join(dir, symbol+".parquet")
		if err := barexport.Save(path, barexport.Rows(symbol, classified)); err != nil {
			logger.Error("failed to export bars", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		logger.Info("bars exported", zap.String("symbol", symbol), zap.String("path", path), zap.Int("bars", len(classified)))
	}
}
