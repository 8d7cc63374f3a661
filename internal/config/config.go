package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"robot_crypt/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	MarketBinance   = "binance"
	MarketSimulator = "simulator"

	ScorerNone   = "none"
	ScorerMarket = "market"
	ScorerLLM    = "llm"
)

// Config 运行时配置，启动时加载并校验一次
type Config struct {
	Strategy  string   // scalping / swing
	Symbols   []string // 如 BTC/USDT,ETH/USDT
	Blacklist []string

	DryRun         bool   // true 时使用模拟成交
	MarketSource   string // binance / simulator
	SimulatorSeed  int64
	InitialCapital float64
	QuoteAsset     string

	// 轮询
	CheckInterval    time.Duration
	SymbolDelay      time.Duration
	Concurrency      int
	CallTimeout      time.Duration
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	RateLimitBackoff time.Duration

	HTTPAddr  string
	SQLiteDSN string

	BinanceAPIKey    string
	BinanceSecretKey string
	BinanceTestnet   bool

	TelegramToken  string
	TelegramChatID int64

	// 情绪分
	ContextScorer     string // none / market / llm
	ContextWeight     float64
	CryptoPanicAPIKey string
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string

	RiskProfileFile  string
	Risk             domain.RiskParameters
	MinOrderNotional float64
}

// Load 读取 .env 与环境变量，再叠加风险参数 YAML 文件，最后校验
func Load() (Config, error) {
	// .env 不覆盖已存在的环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	strategy := strings.ToLower(getEnv("STRATEGY", "scalping"))
	cfg := Config{
		Strategy:  strategy,
		Symbols:   upper(getEnvList("SYMBOLS", []string{"BTC/USDT", "ETH/USDT"})),
		Blacklist: upper(getEnvList("SYMBOL_BLACKLIST", nil)),

		DryRun:         getEnvBool("DRY_RUN", true),
		MarketSource:   strings.ToLower(getEnv("MARKET_SOURCE", MarketBinance)),
		SimulatorSeed:  int64(getEnvInt("SIMULATOR_SEED", 42)),
		InitialCapital: getEnvFloat("INITIAL_CAPITAL", 100),
		QuoteAsset:     strings.ToUpper(getEnv("QUOTE_ASSET", "USDT")),

		CheckInterval:    seconds(getEnvInt("CHECK_INTERVAL_SEC", 300)),
		SymbolDelay:      time.Duration(getEnvInt("SYMBOL_DELAY_MS", 1000)) * time.Millisecond,
		Concurrency:      getEnvInt("CONCURRENCY", 1),
		CallTimeout:      seconds(getEnvInt("CALL_TIMEOUT_SEC", 15)),
		BackoffBase:      seconds(getEnvInt("BACKOFF_BASE_SEC", 30)),
		BackoffMax:       seconds(getEnvInt("BACKOFF_MAX_SEC", 600)),
		RateLimitBackoff: seconds(getEnvInt("RATE_LIMIT_BACKOFF_SEC", 300)),

		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		SQLiteDSN: getEnv("SQLITE_DSN", "file:./robot_crypt.db?_pragma=busy_timeout(5000)"),

		BinanceAPIKey:    getEnv("BINANCE_API_KEY", ""),
		BinanceSecretKey: getEnv("BINANCE_SECRET_KEY", ""),
		BinanceTestnet:   getEnvBool("BINANCE_TESTNET", false),

		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID: int64(getEnvInt("TELEGRAM_CHAT_ID", 0)),

		ContextScorer:     strings.ToLower(getEnv("CONTEXT_SCORER", ScorerNone)),
		ContextWeight:     getEnvFloat("CONTEXT_WEIGHT", 0.3),
		CryptoPanicAPIKey: getEnv("CRYPTOPANIC_API_KEY", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),

		RiskProfileFile:  getEnv("RISK_PROFILE_FILE", ""),
		Risk:             riskFromEnv(defaultRisk(strategy)),
		MinOrderNotional: getEnvFloat("MIN_ORDER_NOTIONAL", 5),
	}

	if cfg.RiskProfileFile != "" {
		if err := cfg.applyRiskProfile(cfg.RiskProfileFile); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate 所有越界配置都包装 domain.ErrConfigurationInvalid 返回
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", domain.ErrConfigurationInvalid, fmt.Sprintf(format, args...))
	}

	switch c.Strategy {
	case "scalping", "swing":
	default:
		return invalid("STRATEGY=%q must be scalping or swing", c.Strategy)
	}
	switch c.MarketSource {
	case MarketBinance, MarketSimulator:
	default:
		return invalid("MARKET_SOURCE=%q must be binance or simulator", c.MarketSource)
	}
	switch c.ContextScorer {
	case ScorerNone, ScorerMarket:
	case ScorerLLM:
		if c.OpenAIAPIKey == "" {
			return invalid("CONTEXT_SCORER=llm requires OPENAI_API_KEY")
		}
	default:
		return invalid("CONTEXT_SCORER=%q must be none, market or llm", c.ContextScorer)
	}

	if len(c.Symbols) == 0 {
		return invalid("SYMBOLS is empty")
	}
	if c.InitialCapital <= 0 {
		return invalid("INITIAL_CAPITAL=%v must be positive", c.InitialCapital)
	}
	if c.CheckInterval <= 0 || c.CallTimeout <= 0 {
		return invalid("CHECK_INTERVAL_SEC and CALL_TIMEOUT_SEC must be positive")
	}
	if c.SymbolDelay < 0 {
		return invalid("SYMBOL_DELAY_MS must not be negative")
	}
	if c.Concurrency < 1 {
		return invalid("CONCURRENCY=%d must be at least 1", c.Concurrency)
	}
	if c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase || c.RateLimitBackoff <= 0 {
		return invalid("backoff settings out of range (base=%s max=%s rate_limit=%s)", c.BackoffBase, c.BackoffMax, c.RateLimitBackoff)
	}
	if c.ContextWeight < 0 || c.ContextWeight > 1 {
		return invalid("CONTEXT_WEIGHT=%v must be in [0,1]", c.ContextWeight)
	}
	if c.MinOrderNotional < 0 {
		return invalid("MIN_ORDER_NOTIONAL must not be negative")
	}

	if !c.DryRun {
		if c.BinanceAPIKey == "" || c.BinanceSecretKey == "" {
			return invalid("live trading requires BINANCE_API_KEY and BINANCE_SECRET_KEY")
		}
		if c.MarketSource == MarketSimulator {
			return invalid("live trading cannot use the simulator market source")
		}
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return invalid("TELEGRAM_TOKEN set without TELEGRAM_CHAT_ID")
	}
	return c.Risk.ValidateFor(c.Strategy)
}

// applyRiskProfile YAML 中当前策略的字段覆盖已有参数，未出现的字段保持不变
//
//	swing:
//	  profit_target: 0.06
//	  entry_delay: 45s
func (c *Config) applyRiskProfile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read risk profile: %w", domain.ErrConfigurationInvalid, err)
	}
	var profiles map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &profiles); err != nil {
		return fmt.Errorf("%w: parse risk profile %s: %w", domain.ErrConfigurationInvalid, path, err)
	}
	node, ok := profiles[c.Strategy]
	if !ok {
		log.Printf("[配置] ⚠ %s 中没有 %s 配置段，使用环境变量参数", path, c.Strategy)
		return nil
	}
	if err := node.Decode(&c.Risk); err != nil {
		return fmt.Errorf("%w: decode %s profile: %w", domain.ErrConfigurationInvalid, c.Strategy, err)
	}
	log.Printf("[配置] ✔ 已加载风险参数文件 %s (%s)", path, c.Strategy)
	return nil
}

func defaultRisk(strategy string) domain.RiskParameters {
	if strategy == "swing" {
		return domain.DefaultSwing()
	}
	return domain.DefaultScalping()
}

// riskFromEnv 环境变量覆盖策略默认值
func riskFromEnv(p domain.RiskParameters) domain.RiskParameters {
	p.RiskPerTrade = getEnvFloat("RISK_PER_TRADE", p.RiskPerTrade)
	p.MaxPositionSize = getEnvFloat("MAX_POSITION_SIZE", p.MaxPositionSize)
	p.ProfitTarget = getEnvFloat("PROFIT_TARGET", p.ProfitTarget)
	p.StopLoss = getEnvFloat("STOP_LOSS", p.StopLoss)
	p.MaxHoldHours = getEnvFloat("MAX_HOLD_HOURS", p.MaxHoldHours)
	p.MinVolumeIncrease = getEnvFloat("MIN_VOLUME_INCREASE", p.MinVolumeIncrease)
	p.EntryDelay = seconds(getEnvInt("ENTRY_DELAY_SEC", int(p.EntryDelay/time.Second)))
	p.MaxTradesPerDay = getEnvInt("MAX_TRADES_PER_DAY", p.MaxTradesPerDay)
	p.MaxConsecutiveLosses = getEnvInt("MAX_CONSECUTIVE_LOSSES", p.MaxConsecutiveLosses)
	p.RiskReductionFactor = getEnvFloat("RISK_REDUCTION_FACTOR", p.RiskReductionFactor)
	p.PauseAfterLosses = getEnvInt("PAUSE_AFTER_LOSSES", p.PauseAfterLosses)
	p.MaxEntryPrice = getEnvFloat("MAX_ENTRY_PRICE", p.MaxEntryPrice)
	return p
}

func upper(items []string) []string {
	for i, item := range items {
		items[i] = strings.ToUpper(item)
	}
	return items
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return parsed
		}
		log.Printf("[配置] ⚠ %s=%q 不是数字，使用默认值 %v", key, v, fallback)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		parsed, err := strconv.Atoi(v)
		if err == nil {
			return parsed
		}
		log.Printf("[配置] ⚠ %s=%q 不是整数，使用默认值 %d", key, v, fallback)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvList 逗号分隔，去空格，忽略空项
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
