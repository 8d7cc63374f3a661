package strategy

import (
	"fmt"
	"math"

	"robot_crypt/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	// TakerFee 单边吃单手续费 0.1%
	TakerFee = 0.001
	// RoundTripFee 开平双边手续费，所有阈值比较前先扣除
	RoundTripFee = 2 * TakerFee
)

// NetProfit 扣除双边手续费后的收益率
func NetProfit(entry, current float64) float64 {
	return (current-entry)/entry - RoundTripFee
}

// EffectiveRisk 连亏达到 MaxConsecutiveLosses 后按系数降低单笔风险
func EffectiveRisk(p domain.RiskParameters, consecutiveLosses int) float64 {
	if consecutiveLosses >= p.MaxConsecutiveLosses {
		return p.RiskPerTrade * p.RiskReductionFactor
	}
	return p.RiskPerTrade
}

// CalculatePositionSize 取单笔风险金额与仓位上限中较小者，再换算成数量。
// price 必须为正，否则属于调用方编程错误。
func CalculatePositionSize(capital, price float64, p domain.RiskParameters, consecutiveLosses int) float64 {
	if !(price > 0) {
		panic(fmt.Sprintf("strategy: non-positive price %v passed to position sizing", price))
	}
	if capital <= 0 {
		return 0
	}
	risk := EffectiveRisk(p, consecutiveLosses)
	return math.Min(capital*risk, capital*p.MaxPositionSize) / price
}

// QuantityPrecision 按价格量级决定数量小数位，避免微价币下单被交易所拒绝
func QuantityPrecision(price float64) int32 {
	switch {
	case price >= 1:
		return 6
	case price >= 0.01:
		return 4
	case price >= 1e-6:
		return 2
	default:
		return 0
	}
}

// RoundQuantity 向下截断到对应精度，截断后不会超过原数量
func RoundQuantity(qty, price float64) float64 {
	if qty <= 0 {
		return 0
	}
	return decimal.NewFromFloat(qty).Truncate(QuantityPrecision(price)).InexactFloat64()
}
