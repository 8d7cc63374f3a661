package stats

import (
	"fmt"
	"math"
	"strings"

	"robot_crypt/internal/domain"
)

// Report 汇总指标
type Report struct {
	TotalTrades       int     `json:"total_trades"`
	WinningTrades     int     `json:"winning_trades"`
	LosingTrades      int     `json:"losing_trades"`
	WinRate           float64 `json:"win_rate"`
	AvgReturn         float64 `json:"avg_return"`
	BestTrade         float64 `json:"best_trade"`
	WorstTrade        float64 `json:"worst_trade"`
	MaxDrawdown       float64 `json:"max_drawdown"` // 复利净值曲线的最大回撤（小数）
	ConsecutiveLosses int     `json:"consecutive_losses"`
	TradesToday       int     `json:"trades_today"`
	InitialCapital    float64 `json:"initial_capital"`
	CurrentCapital    float64 `json:"current_capital"`
	TotalReturn       float64 `json:"total_return"`
}

func BuildReport(s domain.RunningStats) Report {
	r := Report{
		TotalTrades:       s.TotalTrades,
		WinningTrades:     s.WinningTrades,
		LosingTrades:      s.LosingTrades,
		BestTrade:         s.BestTradeProfit,
		WorstTrade:        s.WorstTradeLoss,
		ConsecutiveLosses: s.ConsecutiveLosses,
		TradesToday:       s.TradesToday,
		InitialCapital:    s.InitialCapital,
		CurrentCapital:    s.CurrentCapital,
	}
	if s.TotalTrades > 0 {
		r.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	}
	if n := len(s.ProfitHistory); n > 0 {
		sum := 0.0
		for _, p := range s.ProfitHistory {
			sum += p
		}
		r.AvgReturn = sum / float64(n)
	}
	r.MaxDrawdown = MaxDrawdown(s.ProfitHistory)
	if s.InitialCapital > 0 {
		r.TotalReturn = (s.CurrentCapital - s.InitialCapital) / s.InitialCapital
	}
	return r
}

// MaxDrawdown 按收益序列复利出净值曲线，返回峰值到谷底的最大跌幅
func MaxDrawdown(returns []float64) float64 {
	equity, peak, maxDD := 1.0, 1.0, 0.0
	for _, r := range returns {
		equity *= 1 + r
		peak = math.Max(peak, equity)
		if peak > 0 {
			maxDD = math.Max(maxDD, (peak-equity)/peak)
		}
	}
	return maxDD
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "交易: %d (胜 %d / 负 %d)  胜率: %.1f%%\n", r.TotalTrades, r.WinningTrades, r.LosingTrades, r.WinRate*100)
	fmt.Fprintf(&b, "平均收益: %.2f%%  最佳: %.2f%%  最差: %.2f%%\n", r.AvgReturn*100, r.BestTrade*100, r.WorstTrade*100)
	fmt.Fprintf(&b, "最大回撤: %.2f%%  连亏: %d  今日交易: %d\n", r.MaxDrawdown*100, r.ConsecutiveLosses, r.TradesToday)
	fmt.Fprintf(&b, "资金: %.2f → %.2f (%.2f%%)", r.InitialCapital, r.CurrentCapital, r.TotalReturn*100)
	return b.String()
}
