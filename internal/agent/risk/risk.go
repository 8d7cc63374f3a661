package risk

import (
	"fmt"
	"log"
	"math"

	"robot_crypt/internal/domain"
)

const (
	// 情绪分对风险的缩放范围
	minContextFactor = 0.5
	maxContextFactor = 1.5
)

// Verdict 开仓闸门的结果
type Verdict struct {
	Approved     bool
	RejectReason string
}

// Guard 开仓前的规则检查。平仓不经过 Guard，无论日内限额如何都执行
type Guard struct {
	minNotional   float64 // 最小下单金额（计价货币）
	contextWeight float64 // 情绪分权重，0 表示不调整
}

func New(minNotional, contextWeight float64) *Guard {
	return &Guard{minNotional: minNotional, contextWeight: contextWeight}
}

// EvaluateEntry 先检查当日交易次数，再检查连亏暂停
func (g *Guard) EvaluateEntry(stats domain.RunningStats, params domain.RiskParameters) Verdict {
	if stats.TradesToday >= params.MaxTradesPerDay {
		return Verdict{RejectReason: fmt.Sprintf("daily trade limit reached (%d/%d)", stats.TradesToday, params.MaxTradesPerDay)}
	}
	if params.PauseAfterLosses > 0 && stats.ConsecutiveLosses >= params.PauseAfterLosses {
		return Verdict{RejectReason: fmt.Sprintf("paused after %d consecutive losses", stats.ConsecutiveLosses)}
	}
	return Verdict{Approved: true}
}

// ContextFactor 把 [-1,1] 的市场情绪分换算成风险倍数
func (g *Guard) ContextFactor(score float64) float64 {
	if g.contextWeight == 0 || math.IsNaN(score) {
		return 1
	}
	score = math.Max(-1, math.Min(1, score))
	return math.Max(minContextFactor, math.Min(maxContextFactor, 1+g.contextWeight*score))
}

// ScaleRisk 按情绪分调整单笔风险，结果仍限制在 (0,1]
func (g *Guard) ScaleRisk(params domain.RiskParameters, score float64) domain.RiskParameters {
	factor := g.ContextFactor(score)
	if factor == 1 {
		return params
	}
	scaled := params
	scaled.RiskPerTrade = math.Min(1, params.RiskPerTrade*factor)
	log.Printf("[风控] 情绪分 %.2f → 单笔风险 %.4f → %.4f", score, params.RiskPerTrade, scaled.RiskPerTrade)
	return scaled
}

// CapQuantity 用可用计价余额限制下单数量，低于最小下单金额返回 0 和原因
func (g *Guard) CapQuantity(qty, price, freeQuote float64) (float64, string) {
	if qty <= 0 || price <= 0 {
		return 0, "computed quantity is zero"
	}
	if cost := qty * price; cost > freeQuote {
		if freeQuote <= 0 {
			return 0, "no free quote balance"
		}
		qty = freeQuote / price
	}
	if g.minNotional > 0 && qty*price < g.minNotional {
		return 0, fmt.Sprintf("order notional %.4f below minimum %.4f", qty*price, g.minNotional)
	}
	return qty, ""
}
