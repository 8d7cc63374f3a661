package stats

import (
	"sync"
	"time"

	"robot_crypt/internal/domain"
)

// Tracker 运行统计，所有修改都经过协调器
type Tracker struct {
	mu sync.RWMutex
	s  domain.RunningStats
}

func NewTracker(initial domain.RunningStats) *Tracker {
	if initial.ProfitHistory == nil {
		initial.ProfitHistory = []float64{}
	}
	return &Tracker{s: initial}
}

// Snapshot 返回当前统计的副本
func (t *Tracker) Snapshot() domain.RunningStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := t.s
	out.ProfitHistory = append([]float64(nil), t.s.ProfitHistory...)
	return out
}

// Replace 整体替换（加载快照、重置）
func (t *Tracker) Replace(s domain.RunningStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.ProfitHistory == nil {
		s.ProfitHistory = []float64{}
	}
	t.s = s
}

// RollDay 当前本地日期晚于上次重置日期时清零 trades_today，返回是否发生了重置
func (t *Tracker) RollDay(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !laterDate(now, t.s.LastTradeReset) {
		return false
	}
	t.s.TradesToday = 0
	t.s.LastTradeReset = now
	return true
}

// ReserveEntry 在锁内检查开仓闸门，通过则立即占用一个 trades_today 名额。
// 并发处理多个币对时，检查和计数之间不会被其他开仓插入。返回占用前的统计副本
func (t *Tracker) ReserveEntry(allow func(domain.RunningStats) bool) (domain.RunningStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.s
	st.ProfitHistory = append([]float64(nil), t.s.ProfitHistory...)
	if !allow(st) {
		return st, false
	}
	t.s.TradesToday++
	return st, true
}

// ReleaseEntry 归还未成交的开仓名额
func (t *Tracker) ReleaseEntry() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.s.TradesToday > 0 {
		t.s.TradesToday--
	}
}

// RecordExit 平仓后更新统计。netReturn 为扣费后收益率，pnl 为计价货币盈亏
func (t *Tracker) RecordExit(netReturn, pnl float64) domain.RunningStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.s.TotalTrades++
	if netReturn > 0 {
		t.s.WinningTrades++
		t.s.ConsecutiveLosses = 0
	} else {
		t.s.LosingTrades++
		t.s.ConsecutiveLosses++
	}
	if t.s.TotalTrades == 1 || netReturn > t.s.BestTradeProfit {
		t.s.BestTradeProfit = netReturn
	}
	if t.s.TotalTrades == 1 || netReturn < t.s.WorstTradeLoss {
		t.s.WorstTradeLoss = netReturn
	}
	t.s.ProfitHistory = append(t.s.ProfitHistory, netReturn)
	t.s.CurrentCapital += pnl
	return t.s
}

// laterDate 比较本地日历日期
func laterDate(now, last time.Time) bool {
	if last.IsZero() {
		return true
	}
	ny, nm, nd := now.Local().Date()
	ly, lm, ld := last.Local().Date()
	if ny != ly {
		return ny > ly
	}
	if nm != lm {
		return nm > lm
	}
	return nd > ld
}
