package strategy

import (
	"context"

	"robot_crypt/internal/domain"
	"robot_crypt/internal/market"
)

const (
	ScalpingInterval = "1h"
	ScalpingLookback = 24

	// NearSupportBand 现价距支撑位的最大相对距离
	NearSupportBand = 0.015
	// HourlyDropTrigger 1 小时跌幅触发线（百分比）
	HourlyDropTrigger = -1.5
)

// Scalping 超短线：靠近支撑且小时级下跌时买入，按小幅止盈止损离场
type Scalping struct {
	market market.Provider
}

func NewScalping(provider market.Provider) *Scalping {
	return &Scalping{market: provider}
}

func (s *Scalping) Name() string { return NameScalping }

func (s *Scalping) Decide(ctx context.Context, symbol string, pos *domain.Position, params domain.RiskParameters, clock domain.Clock) (domain.Decision, error) {
	if symbol == "" {
		return domain.NoAction(), errEmptySymbol
	}
	snap, err := s.snapshot(ctx, symbol, pos == nil, clock)
	if err != nil {
		return domain.NoAction(), unavailable(symbol, err)
	}
	return EvaluateScalping(snap, pos, params), nil
}

func (s *Scalping) OnFill(pos domain.Position, _ domain.RiskParameters) domain.Position {
	pos.Strategy = NameScalping
	return pos
}

// snapshot 无持仓时才需要 K 线计算支撑/阻力
func (s *Scalping) snapshot(ctx context.Context, symbol string, withLevels bool, clock domain.Clock) (domain.MarketSnapshot, error) {
	snap := domain.MarketSnapshot{Symbol: symbol, Timestamp: clock.Now()}

	price, err := s.market.Price(ctx, symbol)
	if err != nil {
		return snap, err
	}
	snap.CurrentPrice = price
	if !withLevels {
		return snap, nil
	}

	klines, err := s.market.Candles(ctx, symbol, ScalpingInterval, ScalpingLookback)
	if err != nil {
		return snap, err
	}
	snap.Support, snap.Resistance = market.SupportResistance(klines)
	snap.HourlyChangePct = market.HourlyChangePct(klines, price)
	return snap, nil
}

// EvaluateScalping 纯函数决策，相同输入总是得到相同结果
func EvaluateScalping(snap domain.MarketSnapshot, pos *domain.Position, params domain.RiskParameters) domain.Decision {
	price := snap.CurrentPrice
	if price < MinTradablePrice {
		return domain.NoAction()
	}

	if pos != nil {
		if pos.EntryPrice < MinTradablePrice {
			return domain.NoAction()
		}
		net := NetProfit(pos.EntryPrice, price)
		if net >= params.ProfitTarget {
			return domain.Exit(price, domain.ExitReasonTarget)
		}
		if net <= -params.StopLoss {
			return domain.Exit(price, domain.ExitReasonStop)
		}
		return domain.NoAction()
	}

	if snap.Support <= 0 {
		return domain.NoAction()
	}
	distance := (price - snap.Support) / price
	nearSupport := distance >= 0 && distance <= NearSupportBand
	if nearSupport && snap.HourlyChangePct <= HourlyDropTrigger {
		return domain.Enter(domain.SideBuy, price)
	}
	return domain.NoAction()
}
