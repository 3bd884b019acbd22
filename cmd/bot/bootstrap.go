package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"als-trading-bot/internal/advisor/advisorobs"
	"als-trading-bot/internal/advisor/noop"
	"als-trading-bot/internal/advisor/openai"
	"als-trading-bot/internal/config"
	"als-trading-bot/internal/engine"
	"als-trading-bot/internal/engine/engineobs"
	"als-trading-bot/internal/eod"
	"als-trading-bot/internal/eod/eodobs"
	"als-trading-bot/internal/interfaces"
	"als-trading-bot/internal/logger"
	"als-trading-bot/internal/market/bridge"
	"als-trading-bot/internal/market/marketobs"
	"als-trading-bot/internal/market/sim"
	"als-trading-bot/internal/news"
	"als-trading-bot/internal/scheduler"
	"als-trading-bot/internal/store/memory"
	"als-trading-bot/internal/store/postgres"
	"als-trading-bot/internal/strategy"
	"als-trading-bot/internal/trace"
	"als-trading-bot/internal/tradelog"
)

// initializeSystem sets up env, logger, tracer and the EOD summarizer.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	eod.SetDefaultSummarizer(eodobs.Wrap(eod.NewSummarizer()))
	return nil
}

// loadConfig reads the YAML config, falling back to the built-in defaults
// when no file exists at the given path.
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn(ctx, "Config file not found, using defaults", "path", path)
			return config.Default(), nil
		}
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// initializeStore picks the persistence backend from the config.
func initializeStore(ctx context.Context, cfg *config.Config) (interfaces.Store, func(), error) {
	if cfg.Store.Driver == "postgres" {
		dsn := cfg.Store.DSN
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		st, err := postgres.Connect(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		logger.Info(ctx, "Using PostgreSQL store")
		return st, st.Close, nil
	}
	logger.Info(ctx, "Using in-memory store - state resets on restart")
	return memory.New(), func() {}, nil
}

// initializeMarket returns the market-data port: the MT5 bridge in LIVE
// mode, the simulated terminal otherwise. Both are wrapped with the
// observability middleware.
func initializeMarket(ctx context.Context, cfg *config.Config) interfaces.MarketData {
	if cfg.Mode == "LIVE" {
		logger.Info(ctx, "Using MT5 bridge", "base_url", cfg.Bridge.BaseURL)
		timeout := time.Duration(cfg.Bridge.TimeoutSeconds) * time.Second
		return marketobs.Wrap(bridge.New(cfg.Bridge.BaseURL, timeout))
	}
	logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
	return marketobs.Wrap(sim.New(cfg.Symbol))
}

// initializeNews starts the calendar feed when enabled and returns it as
// the blackout checker, or nil when disabled.
func initializeNews(ctx context.Context, cfg *config.Config, store interfaces.Store) strategy.BlackoutChecker {
	if !cfg.News.Enabled {
		logger.Info(ctx, "News calendar disabled - trading through scheduled releases")
		return nil
	}
	scraper := news.NewScraper(cfg.News.CalendarURL, 30*time.Second)
	svc := news.NewService(cfg, store, scraper)
	go svc.Run(ctx)
	logger.Info(ctx, "News calendar feed started", "url", cfg.News.CalendarURL)
	return svc
}

// initializeAdvisor wires the advisory provider behind the fail-open
// rate-limiting wrapper.
func initializeAdvisor(ctx context.Context, cfg *config.Config) interfaces.Advisor {
	var adv interfaces.Advisor
	switch cfg.Advisor.Provider {
	case "OPENAI":
		adv = openai.New(cfg)
		logger.Info(ctx, "Advisory provider configured", "provider", "OPENAI", "model", cfg.Advisor.Model)
	default:
		adv = noop.New()
		logger.Info(ctx, "No advisory provider configured - using noop")
	}
	timeout := time.Duration(cfg.Advisor.TimeoutSeconds) * time.Second
	cooldown := time.Duration(cfg.Advisor.CooldownSeconds) * time.Second
	return advisorobs.Wrap(adv, timeout, cooldown)
}

// startOpsServer serves /healthz, /status and /metrics.
func startOpsServer(ctx context.Context, listen string, sched interfaces.Scheduler) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sched.Status())
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: listen, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr(ctx, "Ops server failed", err, "listen", listen)
		}
	}()
	logger.Info(ctx, "Ops server listening", "addr", listen)
	return srv
}

func runBot(ctx context.Context, configPath string) error {
	if err := initializeSystem(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}
	compressOldLogs(ctx)

	store, closeStore, err := initializeStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	market := initializeMarket(ctx, cfg)
	blackout := initializeNews(ctx, cfg, store)
	advisor := initializeAdvisor(ctx, cfg)

	eng := engineobs.Wrap(engine.New(cfg, market, store, advisor, blackout))
	sched := scheduler.New(cfg, eng, store)

	srv := startOpsServer(ctx, cfg.Ops.Listen, sched)

	if err := sched.Start(ctx, cfg.Symbol); err != nil {
		return err
	}
	logger.Info(ctx, "Bot started", "symbol", cfg.Symbol, "mode", cfg.Mode)

	eodTick := time.NewTicker(60 * time.Second)
	defer eodTick.Stop()

	for {
		select {
		case <-eodTick.C:
			if ok, _ := eod.ShouldRunNow(); ok {
				if p, err := eod.SummarizeToday(); err == nil && p != "" {
					logger.Info(ctx, "EOD CSV written", "path", p)
				}
			}
		case <-ctx.Done():
			logger.Info(context.Background(), "Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := sched.Stop(shutdownCtx); err != nil {
				logger.Warn(shutdownCtx, "Scheduler stop timed out", "error", err)
			}
			_ = srv.Shutdown(shutdownCtx)
			if p, err := eod.SummarizeToday(); err == nil && p != "" {
				logger.Info(shutdownCtx, "EOD CSV written", "path", p)
			}
			_ = trace.Shutdown(shutdownCtx)
			return nil
		}
	}
}
