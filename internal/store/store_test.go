package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"robot_crypt/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository("file:" + filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	require.NoError(t, repo.Init(context.Background()))
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func sampleState() State {
	entry := time.Date(2024, 4, 2, 10, 30, 15, 123000000, time.UTC)
	stats := domain.NewRunningStats(1000, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC))
	stats.TradesToday = 3
	stats.ConsecutiveLosses = 1
	stats.TotalTrades = 7
	stats.WinningTrades = 4
	stats.LosingTrades = 3
	stats.BestTradeProfit = 0.031
	stats.WorstTradeLoss = -0.012
	stats.CurrentCapital = 1012.5
	stats.ProfitHistory = []float64{0.02, -0.012, 0.031}

	return State{
		SchemaVersion: SchemaVersion,
		Stats:         stats,
		Positions: map[string]domain.Position{
			"DOGE/USDT": {
				Symbol:      "DOGE/USDT",
				Strategy:    "swing",
				EntryPrice:  0.12,
				Quantity:    800,
				EntryTime:   entry,
				TargetPrice: 0.12624,
				StopPrice:   0.11664,
				OrderID:     "42",
			},
		},
		Pending: map[string]domain.PendingOrder{
			"BTC/USDT": {ClientOrderID: "rc1", Symbol: "BTC/USDT", Side: domain.SideBuy, Quantity: 0.001, Price: 65000, SubmittedAt: entry},
		},
		LastCheck: entry.Add(time.Minute),
		SavedAt:   entry.Add(2 * time.Minute),
	}
}

func TestStateRoundTrip(t *testing.T) {
	want := sampleState()
	data, err := EncodeState(want)
	require.NoError(t, err)

	got, err := DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// localState 协调器用系统时钟写入本地时区时间
func localState() State {
	s := sampleState()
	entry := time.Date(2024, 4, 2, 18, 30, 15, 123456789, time.Local)
	s.Stats.LastTradeReset = time.Date(2024, 4, 2, 0, 0, 0, 0, time.Local)
	pos := s.Positions["DOGE/USDT"]
	pos.EntryTime = entry
	s.Positions["DOGE/USDT"] = pos
	pending := s.Pending["BTC/USDT"]
	pending.SubmittedAt = entry.Add(30 * time.Second)
	s.Pending["BTC/USDT"] = pending
	s.LastCheck = entry.Add(time.Minute)
	s.SavedAt = entry.Add(2 * time.Minute)
	return s
}

func assertSameInstants(t *testing.T, want, got State) {
	t.Helper()
	assert.True(t, want.Stats.LastTradeReset.Equal(got.Stats.LastTradeReset), "last_trade_reset %s != %s", want.Stats.LastTradeReset, got.Stats.LastTradeReset)
	assert.True(t, want.Positions["DOGE/USDT"].EntryTime.Equal(got.Positions["DOGE/USDT"].EntryTime))
	assert.True(t, want.Pending["BTC/USDT"].SubmittedAt.Equal(got.Pending["BTC/USDT"].SubmittedAt))
	assert.True(t, want.LastCheck.Equal(got.LastCheck))
	assert.True(t, want.SavedAt.Equal(got.SavedAt))
	// 本地日历日期不变，日切判断依赖它
	assert.Equal(t, want.Stats.LastTradeReset.Local().YearDay(), got.Stats.LastTradeReset.Local().YearDay())
}

func TestStateRoundTrip_LocalTimes(t *testing.T) {
	want := localState()
	data, err := EncodeState(want)
	require.NoError(t, err)

	got, err := DecodeState(data)
	require.NoError(t, err)
	assertSameInstants(t, want, got)
	assert.Equal(t, want.Stats.CurrentCapital, got.Stats.CurrentCapital)
	assert.Equal(t, want.Positions["DOGE/USDT"].Quantity, got.Positions["DOGE/USDT"].Quantity)

	repo := newTestRepo(t)
	require.NoError(t, repo.SaveSnapshot(context.Background(), want))
	loaded, err := repo.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assertSameInstants(t, want, *loaded)
}

func TestDecodeLegacySnapshot(t *testing.T) {
	legacy := []byte(`{
		"stats": {"trades_today": 2, "consecutive_losses": 1, "current_capital": 990, "initial_capital": 1000, "last_trade_reset": "2024-04-01T00:00:00Z"},
		"open_positions": {"ETH/USDT": {"symbol": "ETH/USDT", "entry_price": 3000, "quantity": 0.01, "entry_time": "2024-04-01T08:00:00Z"}},
		"last_check_time": "2024-04-01T09:00:00Z"
	}`)
	s, err := DecodeState(legacy)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, s.SchemaVersion)
	assert.Equal(t, 2, s.Stats.TradesToday)
	require.Contains(t, s.Positions, "ETH/USDT")
	assert.Equal(t, 3000.0, s.Positions["ETH/USDT"].EntryPrice)
	assert.Equal(t, time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC), s.LastCheck)
	assert.NotNil(t, s.Pending)
	assert.NotNil(t, s.Stats.ProfitHistory)
}

func TestDecodeRejectsFutureVersion(t *testing.T) {
	_, err := DecodeState([]byte(`{"schema_version": 99}`))
	assert.Error(t, err)
}

func TestSnapshotPersistence(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	s, err := repo.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	want := sampleState()
	require.NoError(t, repo.SaveSnapshot(ctx, want))
	want.Stats.TradesToday = 4
	require.NoError(t, repo.SaveSnapshot(ctx, want))

	got, err := repo.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}

func TestTradesAndCycles(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)

	for i, reason := range []string{"target", "stop"} {
		require.NoError(t, repo.InsertTrade(ctx, domain.ClosedTrade{
			ID:         reason,
			Symbol:     "BTC/USDT",
			Strategy:   "scalping",
			EntryPrice: 100,
			ExitPrice:  102.5,
			Quantity:   0.1,
			NetReturn:  0.023,
			PnL:        0.23,
			Reason:     reason,
			EntryTime:  base,
			ExitTime:   base.Add(time.Duration(i+1) * time.Hour),
			HoldFor:    time.Duration(i+1) * time.Hour,
		}))
	}
	trades, err := repo.ListTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "stop", trades[0].Reason)
	assert.Equal(t, 2*time.Hour, trades[0].HoldFor)

	require.NoError(t, repo.InsertCycle(ctx, domain.CycleSummary{
		ID: "c1", Status: domain.CycleStatusPartial, Processed: 3, Errors: 1, Message: "1 symbol failed",
		StartedAt: base, FinishedAt: base.Add(time.Second),
	}))
	cycles, err := repo.ListCycles(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, domain.CycleStatusPartial, cycles[0].Status)
	assert.Equal(t, "1 symbol failed", cycles[0].Message)

	n, err := repo.CountCycles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, repo.SaveSnapshot(ctx, sampleState()))
	require.NoError(t, repo.ResetAllData(ctx))
	trades, err = repo.ListTrades(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
	s, err := repo.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}
