package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// offlineEnv 模拟行情 + 模拟成交 + 临时数据库
func offlineEnv(t *testing.T) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "bot.db") + "?_pragma=busy_timeout(5000)"
	t.Setenv("SQLITE_DSN", dsn)
	t.Setenv("MARKET_SOURCE", "simulator")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("SYMBOLS", "BTC/USDT,DOGE/USDT")
	t.Setenv("SYMBOL_DELAY_MS", "0")
	t.Setenv("INITIAL_CAPITAL", "1000")
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("CONTEXT_SCORER", "none")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunOnceThenStatusAndReset(t *testing.T) {
	offlineEnv(t)
	t.Cleanup(func() { runOnce, runNoHTTP, resetConfirm = false, false, false })

	_, err := execute(t, "run", "--once", "--no-http")
	require.NoError(t, err)

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "快照版本 v2")

	_, err = execute(t, "reset")
	assert.Error(t, err)

	out, err = execute(t, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "所有数据已清空")

	out, err = execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "还没有保存过运行状态")
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	offlineEnv(t)
	t.Setenv("STRATEGY", "grid")
	t.Cleanup(func() { runOnce, runNoHTTP = false, false })

	_, err := execute(t, "run", "--once", "--no-http")
	assert.Error(t, err)
}

func TestSimulatorPrices(t *testing.T) {
	prices := simulatorPrices([]string{"BTC/USDT", "PEPE/USDT"})
	assert.Equal(t, 60000.0, prices["BTC/USDT"])
	assert.Equal(t, 1.0, prices["PEPE/USDT"])
}
