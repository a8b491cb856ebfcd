package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/web3-frozen/yield-guardian/internal/agent"
	"github.com/web3-frozen/yield-guardian/internal/alert"
	"github.com/web3-frozen/yield-guardian/internal/cache"
	"github.com/web3-frozen/yield-guardian/internal/chain"
	"github.com/web3-frozen/yield-guardian/internal/config"
	"github.com/web3-frozen/yield-guardian/internal/decision"
	"github.com/web3-frozen/yield-guardian/internal/execution"
	"github.com/web3-frozen/yield-guardian/internal/handler"
	"github.com/web3-frozen/yield-guardian/internal/middleware"
	"github.com/web3-frozen/yield-guardian/internal/risk"
	"github.com/web3-frozen/yield-guardian/internal/store"
	"github.com/web3-frozen/yield-guardian/internal/telegram"
	"github.com/web3-frozen/yield-guardian/internal/yield"
	"github.com/web3-frozen/yield-guardian/internal/yield/sources"
)

const (
	dryRunGasPerOp   = 150_000
	historyRetention = 30 * 24 * time.Hour
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load()

	registry, err := config.LoadRegistry(cfg.VenuesFile)
	if err != nil {
		logger.Error("failed to load venues", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		pingers  []handler.Pinger
		recorder agent.Recorder
		history  handler.CycleHistory
		db       *store.Store
	)

	// Database (optional)
	if cfg.DatabaseURL != "" {
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		recorder, history = db, db
		pingers = append(pingers, db)
		logger.Info("database connected and migrated")
	}

	// Quote cache: Redis when configured, otherwise in-process.
	quoteCache, closeCache := newCache(cfg, logger)
	defer closeCache()
	if p, ok := quoteCache.(handler.Pinger); ok {
		pingers = append(pingers, p)
	}

	// Quote sources
	srcs, err := buildSources(registry)
	if err != nil {
		logger.Error("failed to build quote sources", "error", err)
		os.Exit(1)
	}

	aggCfg := yield.DefaultConfig()
	aggCfg.CacheTTL = cfg.CacheTTL
	if aggCfg.NativeUSDPrice, err = decimal.NewFromString(cfg.NativeUSDPrice); err != nil {
		logger.Error("invalid NATIVE_USD_PRICE", "value", cfg.NativeUSDPrice, "error", err)
		os.Exit(1)
	}
	agg := yield.NewAggregator(srcs, quoteCache, aggCfg, logger)
	agg.SetVenues(registry.PortfolioVenues())

	// Chain access: RPC reads when configured, otherwise a simulated wallet.
	// Writes always go through the dry-run submitter.
	submitter := chain.NewDryRun(dryRunGasPerOp, logger)
	var client chain.Client
	if cfg.EthRPCURL != "" {
		rpc, err := chain.DialRPC(ctx, cfg.EthRPCURL, cfg.WalletAddress, submitter)
		if err != nil {
			logger.Error("failed to dial rpc", "error", err)
			os.Exit(1)
		}
		defer rpc.Close()
		client = rpc
		logger.Info("rpc connected", "account", rpc.Account().Hex())
	} else {
		client = chain.NewSimulated(big.NewInt(1e18), big.NewInt(20e9), submitter)
		logger.Warn("ETH_RPC_URL not set, using simulated wallet")
	}

	held, err := registry.PortfolioPositions()
	if err != nil {
		logger.Error("invalid positions", "error", err)
		os.Exit(1)
	}
	positions := chain.NewStaticPositions(held)

	// Risk, decisions and execution
	maxRisk := risk.Fraction(cfg.MaxRiskExposure)
	model := risk.NewModel(agg.TVL)
	enforcer := risk.NewEnforcer(risk.DefaultLimits(), model)

	engCfg := decision.DefaultConfig()
	engCfg.MaxRiskExposure = maxRisk
	engCfg.MinYieldImprovement = cfg.MinYieldImprovement
	engCfg.GasPriceWei = cfg.DecisionGasPriceWei
	engine := decision.NewEngine(engCfg, decision.MoveAll{}, logger)
	applier := execution.NewApplier(client, maxRisk, execution.ParsePolicy(cfg.ExecutionPolicy), logger)

	alerts := alert.NewSystem(alert.DefaultThresholds(), nil, logger)

	runner := agent.NewRunner(agent.Deps{
		Positions: positions,
		Finder:    agg,
		Model:     model,
		Engine:    engine,
		Executor:  applier,
		Alerts:    alerts,
		Recorder:  recorder,
	}, cfg.Assets, maxRisk, logger)

	// Telegram bot
	if cfg.TelegramToken != "" {
		bot := telegram.NewBot(cfg.TelegramToken, cfg.TelegramChats, runner, alerts, logger)
		if len(cfg.TelegramChats) > 0 {
			alerts.SetNotifier(bot)
		} else {
			logger.Warn("TELEGRAM_CHAT_IDS not set, alerts are only logged")
		}
		go bot.Run(ctx)
	}

	// Scheduler
	sched, err := agent.NewScheduler(ctx, runner, cfg.CycleSchedule, logger)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	if db != nil {
		if err := sched.PruneHistory(db, historyRetention); err != nil {
			logger.Error("failed to schedule history pruning", "error", err)
			os.Exit(1)
		}
	}
	sched.Start()

	// HTTP routes
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(pingers...))

	r.Route("/api", func(r chi.Router) {
		r.Get("/yields/{asset}", handler.ListYields(agg))
		r.Get("/yields/{asset}/best", handler.BestYield(agg))
		r.Get("/protocols/compare/{asset}", handler.CompareProtocols(agg))
		r.Get("/sources/{asset}", handler.SourceQuotes(agg))
		r.Post("/rebalance/check", handler.RebalanceCheck(agg, cfg.DecisionGasPriceWei))

		r.Post("/risk/portfolio", handler.PortfolioRisk(model, enforcer))
		r.Get("/limits", handler.GetLimits(enforcer))
		r.Put("/limits", handler.UpdateLimits(enforcer))
		r.Post("/limits/validate", handler.ValidatePosition(enforcer))
		r.Post("/limits/rebalance", handler.ValidateRebalance(enforcer))
		r.Post("/limits/allocation", handler.SuggestAllocation(enforcer))

		r.Get("/alerts", handler.ListAlerts(alerts))
		r.Get("/alerts/stats", handler.AlertStats(alerts))

		r.Get("/agent/status", handler.AgentStatus(runner))
		r.Post("/agent/cycle", handler.TriggerCycle(runner))
		r.Get("/agent/cycles", handler.RecentCycles(history))
		r.Get("/cache/stats", handler.CacheStats(quoteCache))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "assets", cfg.Assets, "venues", len(srcs))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	sched.Stop()
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

// newCache connects to Redis (retrying up to 30s for secrets to sync) or
// falls back to the in-memory cache.
func newCache(cfg config.Config, logger *slog.Logger) (cache.Cache, func()) {
	if cfg.RedisURL == "" {
		m := cache.NewMemory(time.Minute)
		logger.Info("using in-memory quote cache")
		return m, m.Close
	}

	var (
		rc  *cache.Redis
		err error
	)
	for i := 0; i < 6; i++ {
		rc, err = cache.NewRedis(cfg.RedisURL, cfg.RedisPassword, "yield-guardian:", logger)
		if err == nil {
			break
		}
		logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		logger.Error("failed to connect to redis after retries", "error", err)
		os.Exit(1)
	}
	logger.Info("redis connected for quote cache")
	return rc, func() { _ = rc.Close() }
}

func buildSources(reg *config.Registry) ([]yield.Source, error) {
	out := make([]yield.Source, 0, len(reg.Venues))
	for _, v := range reg.Venues {
		switch v.Source {
		case config.SourceDefiLlama:
			out = append(out, sources.NewDefiLlama(v.Name, v.Project, v.Chain, v.RiskScore))
		default:
			src, ok := sources.Builtin(v.Name)
			if !ok {
				return nil, fmt.Errorf("no built-in quotes for venue %q", v.Name)
			}
			out = append(out, src)
		}
	}
	return out, nil
}
