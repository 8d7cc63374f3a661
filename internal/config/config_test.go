package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"robot_crypt/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "scalping", cfg.Strategy)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, cfg.Symbols)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, MarketBinance, cfg.MarketSource)
	assert.Equal(t, 5*time.Minute, cfg.CheckInterval)
	assert.Equal(t, time.Second, cfg.SymbolDelay)
	assert.Equal(t, domain.DefaultScalping(), cfg.Risk)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STRATEGY", "Swing")
	t.Setenv("SYMBOLS", " doge/usdt, ,SHIB/USDT ")
	t.Setenv("SYMBOL_BLACKLIST", "LUNA/USDT")
	t.Setenv("PROFIT_TARGET", "0.08")
	t.Setenv("ENTRY_DELAY_SEC", "10")
	t.Setenv("MAX_TRADES_PER_DAY", "not-a-number")
	t.Setenv("CONCURRENCY", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "swing", cfg.Strategy)
	assert.Equal(t, []string{"DOGE/USDT", "SHIB/USDT"}, cfg.Symbols)
	assert.Equal(t, []string{"LUNA/USDT"}, cfg.Blacklist)
	assert.Equal(t, 0.08, cfg.Risk.ProfitTarget)
	assert.Equal(t, 10*time.Second, cfg.Risk.EntryDelay)
	// 非法数字回退到策略默认值
	assert.Equal(t, domain.DefaultSwing().MaxTradesPerDay, cfg.Risk.MaxTradesPerDay)
	assert.Equal(t, 4, cfg.Concurrency)
}

func TestLoad_RiskProfileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scalping:
  stop_loss: 0.015
swing:
  profit_target: 0.06
  entry_delay: 45s
  max_entry_price: 0.5
`), 0o600))
	t.Setenv("STRATEGY", "swing")
	t.Setenv("RISK_PROFILE_FILE", path)
	t.Setenv("RISK_PER_TRADE", "0.03")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.06, cfg.Risk.ProfitTarget)
	assert.Equal(t, 45*time.Second, cfg.Risk.EntryDelay)
	assert.Equal(t, 0.5, cfg.Risk.MaxEntryPrice)
	// 文件没有的字段保留环境变量/默认值
	assert.Equal(t, 0.03, cfg.Risk.RiskPerTrade)
	assert.Equal(t, domain.DefaultSwing().StopLoss, cfg.Risk.StopLoss)
}

func TestLoad_RiskProfileErrors(t *testing.T) {
	t.Setenv("RISK_PROFILE_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.ErrorIs(t, err, domain.ErrConfigurationInvalid)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scalping: [1, 2"), 0o600))
	t.Setenv("RISK_PROFILE_FILE", path)
	_, err = Load()
	assert.ErrorIs(t, err, domain.ErrConfigurationInvalid)
}

func TestLoad_InvalidRisk(t *testing.T) {
	t.Setenv("RISK_PER_TRADE", "1.5")
	_, err := Load()
	assert.ErrorIs(t, err, domain.ErrConfigurationInvalid)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown strategy", func(c *Config) { c.Strategy = "grid" }},
		{"unknown market source", func(c *Config) { c.MarketSource = "kraken" }},
		{"unknown scorer", func(c *Config) { c.ContextScorer = "vader" }},
		{"llm without key", func(c *Config) { c.ContextScorer = ScorerLLM; c.OpenAIAPIKey = "" }},
		{"no symbols", func(c *Config) { c.Symbols = nil }},
		{"zero capital", func(c *Config) { c.InitialCapital = 0 }},
		{"zero interval", func(c *Config) { c.CheckInterval = 0 }},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"backoff max below base", func(c *Config) { c.BackoffMax = c.BackoffBase / 2 }},
		{"context weight above one", func(c *Config) { c.ContextWeight = 1.2 }},
		{"live without keys", func(c *Config) { c.DryRun = false; c.BinanceAPIKey = "" }},
		{"live on simulator", func(c *Config) {
			c.DryRun = false
			c.BinanceAPIKey, c.BinanceSecretKey = "k", "s"
			c.MarketSource = MarketSimulator
		}},
		{"telegram without chat", func(c *Config) { c.TelegramToken = "t"; c.TelegramChatID = 0 }},
		{"bad risk", func(c *Config) { c.Risk.StopLoss = 0 }},
		{"swing without volume increase", func(c *Config) {
			c.Strategy = "swing"
			c.Risk = domain.DefaultSwing()
			c.Risk.MinVolumeIncrease = 0
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrConfigurationInvalid)
		})
	}

	cfg := valid()
	cfg.DryRun = false
	cfg.BinanceAPIKey, cfg.BinanceSecretKey = "k", "s"
	assert.NoError(t, cfg.Validate())

	// 超短线不使用成交量条件，0 合法
	cfg = valid()
	cfg.Strategy = "scalping"
	cfg.Risk = domain.DefaultScalping()
	assert.Zero(t, cfg.Risk.MinVolumeIncrease)
	assert.NoError(t, cfg.Validate())
}
