package domain

import "time"

// RunningStats 协调器持有的运行统计，仅在平仓后更新
type RunningStats struct {
	TradesToday       int       `json:"trades_today"`
	LastTradeReset    time.Time `json:"last_trade_reset"` // 上次重置 trades_today 的本地日期
	ConsecutiveLosses int       `json:"consecutive_losses"`
	TotalTrades       int       `json:"total_trades"`
	WinningTrades     int       `json:"winning_trades"`
	LosingTrades      int       `json:"losing_trades"`
	BestTradeProfit   float64   `json:"best_trade_profit"`
	WorstTradeLoss    float64   `json:"worst_trade_loss"`
	CurrentCapital    float64   `json:"current_capital"`
	InitialCapital    float64   `json:"initial_capital"`
	ProfitHistory     []float64 `json:"profit_history"` // 每笔已实现收益率（扣费后，小数）
}

// NewRunningStats 以初始资金创建空统计
func NewRunningStats(capital float64, now time.Time) RunningStats {
	return RunningStats{
		LastTradeReset: now,
		CurrentCapital: capital,
		InitialCapital: capital,
		ProfitHistory:  []float64{},
	}
}
