package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mholloway/rtx-paperbot/internal/config"
	"github.com/mholloway/rtx-paperbot/internal/dashboard"
	"github.com/mholloway/rtx-paperbot/internal/ledger"
	"github.com/mholloway/rtx-paperbot/internal/marketdata"
	"github.com/mholloway/rtx-paperbot/internal/mock"
	"github.com/mholloway/rtx-paperbot/internal/report"
	"github.com/mholloway/rtx-paperbot/internal/strategy"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg)
	logger.WithFields(logrus.Fields{
		"symbol": cfg.Symbol,
		"mode":   cfg.Environment.Mode,
	}).Info("starting paper trading bot")

	engine := buildEngine(cfg, logger)

	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		logger.Fatalf("Failed to create storage dir: %v", err)
	}

	traders := make(map[string]*ledger.PaperTrader, len(cfg.Strategies))
	defer func() {
		for _, t := range traders {
			if err := t.Close(); err != nil {
				logger.WithError(err).Warn("closing ledger failed")
			}
		}
	}()
	for i := range cfg.Strategies {
		s := &cfg.Strategies[i]
		trader, err := ledger.NewPaperTrader(cfg.LedgerConfig(s), engine, logger)
		if err != nil {
			logger.Fatalf("Failed to open ledger for %s: %v", s.ID, err)
		}
		traders[s.ID] = trader

		if err := trader.VerifyBalance(context.Background()); err != nil {
			logger.Fatalf("Ledger %s failed balance verification: %v", s.ID, err)
		}
		logger.WithFields(logrus.Fields{
			"strategy": s.ID,
			"balance":  trader.Balance(),
			"open":     len(trader.OpenPositions()),
		}).Info("ledger restored")
	}

	reporter := report.NewReporter(buildSender(cfg, logger), traders, logger)

	runner, err := strategy.NewRunner(cfg, engine, traders, reporter, logger)
	if err != nil {
		logger.Fatalf("Failed to build runner: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var dash *dashboard.Server
	if cfg.Dashboard.Enabled {
		dash = dashboard.NewServer(dashboard.Config{
			Port:      cfg.Dashboard.Port,
			AuthToken: cfg.Dashboard.AuthToken,
		}, traders, logger)
		go func() {
			if err := dash.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("dashboard server failed")
			}
		}()
	}

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("trading loop exited")
	}

	if dash != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dash.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("dashboard shutdown failed")
		}
	}

	logger.Info("bot stopped")
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(cfg.Environment.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// buildEngine assembles the market data chain: client, retry, circuit
// breaker, then the filtering engine. Mock mode swaps in scripted data and
// skips the resilience decorators.
func buildEngine(cfg *config.Config, logger *logrus.Logger) *marketdata.Engine {
	var provider marketdata.Provider
	if cfg.UseMockProvider() {
		logger.Info("using mock market data")
		provider = mock.NewProvider(cfg.Symbol)
	} else {
		client := marketdata.NewClient(cfg.Provider.APIKey, cfg.Provider.BaseURL, cfg.Provider.Sandbox)
		if timeout := cfg.GetProviderTimeout(); timeout > 0 {
			client.WithTimeout(timeout)
		}
		provider = marketdata.NewCircuitBreakerProvider(
			marketdata.NewRetryProvider(client, logger), logger)
	}
	return marketdata.NewEngine(provider, cfg.FilterCriteria(), logger)
}

func buildSender(cfg *config.Config, logger *logrus.Logger) report.Sender {
	if cfg.Telegram.BotToken == "" {
		logger.Info("telegram disabled, reports go to the log")
		return &report.LogSender{Logger: logger}
	}
	sender, err := report.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if err != nil {
		logger.WithError(err).Warn("telegram unavailable, reports go to the log")
		return &report.LogSender{Logger: logger}
	}
	logger.WithField("chat_id", cfg.Telegram.ChatID).Info("telegram reporting enabled")
	return sender
}
