package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"robot_crypt/internal/agent/execution"
	"robot_crypt/internal/agent/risk"
	"robot_crypt/internal/agent/sentiment"
	"robot_crypt/internal/agent/strategy"
	"robot_crypt/internal/config"
	"robot_crypt/internal/domain"
	httpapi "robot_crypt/internal/http"
	"robot_crypt/internal/market"
	"robot_crypt/internal/notify"
	"robot_crypt/internal/orchestrator"
	"robot_crypt/internal/scheduler"
	"robot_crypt/internal/store"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading loop and the status API",
	Long: `Run the polling loop until SIGINT/SIGTERM.

On shutdown the in-flight symbol finishes, the state snapshot is saved and
the process exits.

Examples:
  robot-crypt run
  robot-crypt run --once
  robot-crypt run --no-http`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runOnce   bool
	runNoHTTP bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
	runCmd.Flags().BoolVar(&runNoHTTP, "no-http", false, "do not start the status API")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openRepo(ctx, cfg.SQLiteDSN)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := buildService(cfg, repo)
	if err != nil {
		return err
	}
	if err := svc.Restore(ctx); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}

	log.Printf("robot-crypt 启动 策略=%s 币对=%v 模拟=%v 行情=%s 间隔=%s",
		cfg.Strategy, cfg.Symbols, cfg.DryRun, cfg.MarketSource, cfg.CheckInterval)

	if runOnce {
		summary, err := svc.RunCycle(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "cycle %s: %s processed=%d entered=%d exited=%d skipped=%d errors=%d\n",
			summary.ID, summary.Status, summary.Processed, summary.Entered, summary.Exited, summary.Skipped, summary.Errors)
		return err
	}

	if !runNoHTTP {
		srv := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: httpapi.NewRouter(svc, 10*time.Minute),
		}
		go func() {
			log.Printf("[HTTP] 状态接口监听 %s", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[HTTP] ✘ 启动失败: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sched := scheduler.New(svc, scheduler.Options{
		Interval:         cfg.CheckInterval,
		BackoffBase:      cfg.BackoffBase,
		BackoffMax:       cfg.BackoffMax,
		RateLimitBackoff: cfg.RateLimitBackoff,
	})
	return sched.Run(ctx)
}

func openRepo(ctx context.Context, dsn string) (*store.SQLiteRepository, error) {
	repo, err := store.NewSQLiteRepository(dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.Init(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return repo, nil
}

// buildService 按配置组装行情、执行、情绪分、通知等适配器
func buildService(cfg config.Config, repo store.Repository) (*orchestrator.Service, error) {
	provider := buildMarket(cfg)

	engine, err := strategy.New(cfg.Strategy, provider)
	if err != nil {
		return nil, err
	}

	var executor execution.Executor
	if cfg.DryRun {
		executor = execution.NewPaper(provider, cfg.QuoteAsset, cfg.InitialCapital)
		log.Printf("[执行] 模拟成交模式，初始资金 %.2f %s", cfg.InitialCapital, cfg.QuoteAsset)
	} else {
		executor = execution.NewBinance(cfg.BinanceAPIKey, cfg.BinanceSecretKey, cfg.BinanceTestnet)
		log.Printf("[执行] ⚠ 实盘模式 testnet=%v", cfg.BinanceTestnet)
	}

	scorer, err := buildScorer(cfg)
	if err != nil {
		return nil, err
	}

	return orchestrator.New(orchestrator.Deps{
		Engine:   engine,
		Market:   provider,
		Executor: executor,
		Repo:     repo,
		Scorer:   scorer,
		Guard:    risk.New(cfg.MinOrderNotional, cfg.ContextWeight),
		Notifier: buildNotifier(cfg),
		Params:   cfg.Risk,
	}, orchestrator.Options{
		Symbols:        cfg.Symbols,
		Blacklist:      cfg.Blacklist,
		QuoteAsset:     cfg.QuoteAsset,
		InitialCapital: cfg.InitialCapital,
		SymbolDelay:    cfg.SymbolDelay,
		Concurrency:    cfg.Concurrency,
		CallTimeout:    cfg.CallTimeout,
	})
}

func buildMarket(cfg config.Config) market.Provider {
	if cfg.MarketSource == config.MarketSimulator {
		log.Printf("[交易所] 使用离线模拟行情 seed=%d", cfg.SimulatorSeed)
		return market.NewSimulator(cfg.SimulatorSeed, time.Now(), simulatorPrices(cfg.Symbols))
	}
	return market.NewBinanceProvider(cfg.BinanceAPIKey, cfg.BinanceSecretKey, cfg.BinanceTestnet)
}

// simulatorPrices 模拟行情的初始价格，未知币对从 1.0 开始
func simulatorPrices(symbols []string) map[string]float64 {
	known := map[string]float64{
		"BTC":  60000,
		"ETH":  3000,
		"BNB":  550,
		"SOL":  150,
		"DOGE": 0.12,
		"SHIB": 0.00002,
	}
	prices := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		base, _ := domain.SplitPair(sym)
		if p, ok := known[base]; ok {
			prices[sym] = p
		} else {
			prices[sym] = 1.0
		}
	}
	return prices
}

func buildScorer(cfg config.Config) (sentiment.Scorer, error) {
	switch cfg.ContextScorer {
	case config.ScorerMarket, config.ScorerLLM:
	default:
		return sentiment.Neutral{}, nil
	}

	client := market.NewClient()
	client.CryptoPanicKey = cfg.CryptoPanicAPIKey
	if cfg.ContextScorer == config.ScorerMarket {
		return sentiment.NewMarketScorer(client, cfg.Symbols), nil
	}
	scorer, err := sentiment.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, client, cfg.Symbols)
	if err != nil {
		return nil, fmt.Errorf("init llm scorer: %w", err)
	}
	return scorer, nil
}

func buildNotifier(cfg config.Config) notify.Notifier {
	notifiers := notify.Multi{notify.LogNotifier{}}
	if cfg.TelegramToken == "" {
		return notifiers
	}
	tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		// 通知失败不影响交易
		log.Printf("[通知] ⚠ Telegram 初始化失败，仅写日志: %v", err)
		return notifiers
	}
	return append(notifiers, tg)
}
