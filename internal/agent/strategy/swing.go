package strategy

import (
	"context"
	"log"
	"time"

	"robot_crypt/internal/domain"
	"robot_crypt/internal/market"
)

// SwingVolumeLookback 成交量均值回看的 1h K 线数量
const SwingVolumeLookback = 24

// Swing 波段：低价币放量（或新上线）时入场，止盈/止损/超时离场
type Swing struct {
	market   market.Provider
	listings market.ListingDetector // 可选，为空则不检测新币
}

func NewSwing(provider market.Provider) *Swing {
	s := &Swing{market: provider}
	if ld, ok := provider.(market.ListingDetector); ok {
		s.listings = ld
	}
	return s
}

func (s *Swing) Name() string { return NameSwing }

func (s *Swing) Decide(ctx context.Context, symbol string, pos *domain.Position, params domain.RiskParameters, clock domain.Clock) (domain.Decision, error) {
	if symbol == "" {
		return domain.NoAction(), errEmptySymbol
	}
	now := clock.Now()
	snap := domain.MarketSnapshot{Symbol: symbol, Timestamp: now}

	price, err := s.market.Price(ctx, symbol)
	if err != nil {
		return domain.NoAction(), unavailable(symbol, err)
	}
	snap.CurrentPrice = price

	if pos == nil {
		vol, err := s.market.Volume(ctx, symbol, SwingVolumeLookback)
		if err != nil {
			return domain.NoAction(), unavailable(symbol, err)
		}
		snap.AvgVolume = vol.Average
		snap.CurrentVolume = vol.Current
		if vol.Average > 0 {
			snap.VolumeIncreasePct = (vol.Current - vol.Average) / vol.Average
		}
		if s.listings != nil {
			// 新币信号是补充条件，获取失败按 false 处理
			listed, err := s.listings.IsNewListing(ctx, symbol)
			if err != nil {
				log.Printf("[策略] ⚠ %s 新币检测失败: %v", symbol, err)
			}
			snap.NewListing = listed
		}
	}

	return EvaluateSwing(snap, pos, params, now), nil
}

// OnFill 建仓时按参数计算止盈止损价（已计入双边手续费）
func (s *Swing) OnFill(pos domain.Position, params domain.RiskParameters) domain.Position {
	pos.Strategy = NameSwing
	pos.TargetPrice = pos.EntryPrice * (1 + params.ProfitTarget + RoundTripFee)
	pos.StopPrice = pos.EntryPrice * (1 - params.StopLoss + RoundTripFee)
	return pos
}

// EvaluateSwing 纯函数决策。多个离场条件同时满足时按 止盈 → 止损 → 超时 的顺序
func EvaluateSwing(snap domain.MarketSnapshot, pos *domain.Position, params domain.RiskParameters, now time.Time) domain.Decision {
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
		if params.MaxHoldHours > 0 && now.Sub(pos.EntryTime) >= params.MaxHold() {
			return domain.Exit(price, domain.ExitReasonTime)
		}
		return domain.NoAction()
	}

	if exceedsPriceCeiling(snap.Symbol, price, params.MaxEntryPrice) {
		return domain.NoAction()
	}
	if VolumeIncreased(snap.AvgVolume, snap.CurrentVolume, params.MinVolumeIncrease) || snap.NewListing {
		d := domain.Enter(domain.SideBuy, price)
		d.Delay = params.EntryDelay
		return d
	}
	return domain.NoAction()
}

// VolumeIncreased 当前成交量较均值的增幅是否达到 minIncrease
func VolumeIncreased(avgVolume, currentVolume, minIncrease float64) bool {
	if avgVolume <= 0 {
		return false
	}
	return (currentVolume-avgVolume)/avgVolume >= minIncrease
}

// exceedsPriceCeiling 入场价上限仅在法币/稳定币计价时生效
func exceedsPriceCeiling(symbol string, price, ceiling float64) bool {
	if ceiling <= 0 {
		return false
	}
	_, quote := domain.SplitPair(symbol)
	if !domain.IsFiatLikeQuote(quote) {
		return false
	}
	return price > ceiling
}
