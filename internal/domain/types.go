package domain

import (
	"strings"
	"time"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

type CycleStatus string

const (
	CycleStatusSuccess     CycleStatus = "success"
	CycleStatusPartial     CycleStatus = "partial"      // 部分币对出错
	CycleStatusFailed      CycleStatus = "failed"       // 周期级错误（持久化失败等）
	CycleStatusRateLimited CycleStatus = "rate_limited" // 触发限频，提前结束
	CycleStatusInterrupted CycleStatus = "interrupted"  // 收到关闭信号
)

// Position 一个未平仓的持仓（每个币对最多一个）
type Position struct {
	Symbol     string    `json:"symbol"`      // 如 BTC/USDT
	Strategy   string    `json:"strategy"`    // scalping / swing
	EntryPrice float64   `json:"entry_price"` // 成交均价
	Quantity   float64   `json:"quantity"`    // 成交数量
	EntryTime  time.Time `json:"entry_time"`
	// 仅波段策略在建仓时计算，超短线每轮按支撑/阻力重新判断
	TargetPrice float64 `json:"target_price,omitempty"`
	StopPrice   float64 `json:"stop_price,omitempty"`
	OrderID     string  `json:"order_id,omitempty"` // 交易所订单号，仅展示用
}

// Kline 单根 K 线
type Kline struct {
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	CloseTime time.Time `json:"close_time"`
}

// VolumeStats 成交量统计：回看窗口均值与最新一根
type VolumeStats struct {
	Average float64 `json:"average"`
	Current float64 `json:"current"`
}

// MarketSnapshot 单次决策使用的行情快照，每次决策重新获取，不跨周期缓存
type MarketSnapshot struct {
	Symbol       string    `json:"symbol"`
	CurrentPrice float64   `json:"current_price"`
	Timestamp    time.Time `json:"timestamp"`

	// 超短线
	Support         float64 `json:"support,omitempty"`
	Resistance      float64 `json:"resistance,omitempty"`
	HourlyChangePct float64 `json:"hourly_change_pct,omitempty"` // 百分比，-2.0 表示 -2%

	// 波段
	AvgVolume         float64 `json:"avg_volume,omitempty"`
	CurrentVolume     float64 `json:"current_volume,omitempty"`
	VolumeIncreasePct float64 `json:"volume_increase_pct,omitempty"` // 小数，0.4 表示 +40%
	NewListing        bool    `json:"new_listing,omitempty"`
}

// OrderRequest 下单请求
type OrderRequest struct {
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Type          OrderType `json:"type"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price,omitempty"` // 限价单才需要
}

type OrderStatus string

const (
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusPartial  OrderStatus = "partial_filled"
	OrderStatusOpen     OrderStatus = "submitted"
	OrderStatusRejected OrderStatus = "rejected"
	OrderStatusNotFound OrderStatus = "not_found"
)

// OrderResult 交易所返回的成交结果
type OrderResult struct {
	OrderID       string      `json:"order_id"`
	ClientOrderID string      `json:"client_order_id"`
	Status        OrderStatus `json:"status"`
	FilledQty     float64     `json:"filled_qty"`
	AvgPrice      float64     `json:"avg_price"`
}

// Filled 是否有实际成交
func (r OrderResult) Filled() bool {
	return (r.Status == OrderStatusFilled || r.Status == OrderStatusPartial) && r.FilledQty > 0
}

// Balance 单个资产余额
type Balance struct {
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// PendingOrder 结果未知（超时等）的订单，下一轮先对账再决策
type PendingOrder struct {
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	Reason        string    `json:"reason,omitempty"` // 平仓单的原因，对账成交后写入交易日志
	SubmittedAt   time.Time `json:"submitted_at"`
}

// ClosedTrade 已平仓交易（写入交易日志）
type ClosedTrade struct {
	ID         string        `json:"id"`
	Symbol     string        `json:"symbol"`
	Strategy   string        `json:"strategy"`
	EntryPrice float64       `json:"entry_price"`
	ExitPrice  float64       `json:"exit_price"`
	Quantity   float64       `json:"quantity"`
	NetReturn  float64       `json:"net_return"` // 扣除双边手续费后的收益率（小数）
	PnL        float64       `json:"pnl"`        // 计价货币盈亏（已扣手续费）
	Reason     string        `json:"reason"`
	EntryTime  time.Time     `json:"entry_time"`
	ExitTime   time.Time     `json:"exit_time"`
	HoldFor    time.Duration `json:"hold_for"`
}

// CycleSummary 单轮轮询的汇总
type CycleSummary struct {
	ID         string      `json:"id"`
	Status     CycleStatus `json:"status"`
	Processed  int         `json:"processed"`
	Entered    int         `json:"entered"`
	Exited     int         `json:"exited"`
	Skipped    int         `json:"skipped"`
	Errors     int         `json:"errors"`
	Message    string      `json:"message,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// SplitPair 将 "BTC/USDT" 拆成 base / quote，没有分隔符时按常见计价币后缀推断
func SplitPair(pair string) (base, quote string) {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	if i := strings.Index(pair, "/"); i >= 0 {
		return pair[:i], pair[i+1:]
	}
	for _, q := range []string{"USDT", "USDC", "FDUSD", "BUSD", "TUSD", "EUR", "BTC", "ETH", "BNB"} {
		if strings.HasSuffix(pair, q) && len(pair) > len(q) {
			return strings.TrimSuffix(pair, q), q
		}
	}
	return pair, ""
}

// PairToSymbol 将 "BTC/USDT" 转为 "BTCUSDT"
func PairToSymbol(pair string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(pair)), "/", "")
}

var fiatLikeQuotes = map[string]bool{
	"USDT": true, "USDC": true, "FDUSD": true, "BUSD": true, "TUSD": true, "DAI": true,
	"USD": true, "EUR": true, "GBP": true, "TRY": true, "BRL": true,
}

// IsFiatLikeQuote 计价币是否为法币或稳定币
func IsFiatLikeQuote(quote string) bool {
	return fiatLikeQuotes[strings.ToUpper(quote)]
}
