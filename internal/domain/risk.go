package domain

import (
	"fmt"
	"time"
)

// RiskParameters 风控参数，启动时构建并校验一次
type RiskParameters struct {
	RiskPerTrade         float64       `json:"risk_per_trade" yaml:"risk_per_trade"`                 // 单笔风险占资金比例
	MaxPositionSize      float64       `json:"max_position_size" yaml:"max_position_size"`           // 单仓位占资金上限
	ProfitTarget         float64       `json:"profit_target" yaml:"profit_target"`                   // 止盈（扣费后）
	StopLoss             float64       `json:"stop_loss" yaml:"stop_loss"`                           // 止损（扣费后）
	MaxHoldHours         float64       `json:"max_hold_hours" yaml:"max_hold_hours"`                 // 仅波段
	MinVolumeIncrease    float64       `json:"min_volume_increase" yaml:"min_volume_increase"`       // 仅波段
	EntryDelay           time.Duration `json:"entry_delay" yaml:"entry_delay"`                       // 仅波段
	MaxTradesPerDay      int           `json:"max_trades_per_day" yaml:"max_trades_per_day"`
	MaxConsecutiveLosses int           `json:"max_consecutive_losses" yaml:"max_consecutive_losses"` // 达到后按系数降低风险
	RiskReductionFactor  float64       `json:"risk_reduction_factor" yaml:"risk_reduction_factor"`
	PauseAfterLosses     int           `json:"pause_after_losses" yaml:"pause_after_losses"`         // 达到后暂停开新仓，0 表示不暂停
	MaxEntryPrice        float64       `json:"max_entry_price" yaml:"max_entry_price"`               // 波段入场价上限，仅法币类计价生效，0 表示不限
}

// Validate 所有比例必须在 (0,1]，其余计数不能为负
func (p RiskParameters) Validate() error {
	fractions := []struct {
		name  string
		value float64
	}{
		{"risk_per_trade", p.RiskPerTrade},
		{"max_position_size", p.MaxPositionSize},
		{"profit_target", p.ProfitTarget},
		{"stop_loss", p.StopLoss},
		{"risk_reduction_factor", p.RiskReductionFactor},
	}
	for _, f := range fractions {
		if !(f.value > 0 && f.value <= 1) {
			return fmt.Errorf("%w: %s=%v must be in (0,1]", ErrConfigurationInvalid, f.name, f.value)
		}
	}
	// 仅波段使用，超短线为 0；波段的下限由 ValidateFor 检查
	if p.MinVolumeIncrease < 0 || p.MinVolumeIncrease > 1 {
		return fmt.Errorf("%w: min_volume_increase=%v must be in [0,1]", ErrConfigurationInvalid, p.MinVolumeIncrease)
	}
	if p.MaxHoldHours < 0 {
		return fmt.Errorf("%w: max_hold_hours=%v must not be negative", ErrConfigurationInvalid, p.MaxHoldHours)
	}
	if p.EntryDelay < 0 {
		return fmt.Errorf("%w: entry_delay=%s must not be negative", ErrConfigurationInvalid, p.EntryDelay)
	}
	if p.MaxTradesPerDay <= 0 {
		return fmt.Errorf("%w: max_trades_per_day=%d must be positive", ErrConfigurationInvalid, p.MaxTradesPerDay)
	}
	if p.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("%w: max_consecutive_losses=%d must be positive", ErrConfigurationInvalid, p.MaxConsecutiveLosses)
	}
	if p.PauseAfterLosses < 0 {
		return fmt.Errorf("%w: pause_after_losses=%d must not be negative", ErrConfigurationInvalid, p.PauseAfterLosses)
	}
	if p.MaxEntryPrice < 0 {
		return fmt.Errorf("%w: max_entry_price=%v must not be negative", ErrConfigurationInvalid, p.MaxEntryPrice)
	}
	return nil
}

// MaxHold 最长持仓时间
func (p RiskParameters) MaxHold() time.Duration {
	return time.Duration(p.MaxHoldHours * float64(time.Hour))
}

// ValidateFor 在 Validate 之外检查策略专用参数：波段的 min_volume_increase 必须在 (0,1]
func (p RiskParameters) ValidateFor(strategyName string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if strategyName == "swing" && p.MinVolumeIncrease <= 0 {
		return fmt.Errorf("%w: min_volume_increase=%v must be in (0,1] for swing", ErrConfigurationInvalid, p.MinVolumeIncrease)
	}
	return nil
}

// DefaultScalping 超短线默认参数
func DefaultScalping() RiskParameters {
	return RiskParameters{
		RiskPerTrade:         0.01,
		MaxPositionSize:      0.05,
		ProfitTarget:         0.02,
		StopLoss:             0.01,
		MaxTradesPerDay:      10,
		MaxConsecutiveLosses: 3,
		RiskReductionFactor:  0.5,
		PauseAfterLosses:     2,
	}
}

// DefaultSwing 波段默认参数
func DefaultSwing() RiskParameters {
	return RiskParameters{
		RiskPerTrade:         0.02,
		MaxPositionSize:      0.1,
		ProfitTarget:         0.05,
		StopLoss:             0.03,
		MaxHoldHours:         48,
		MinVolumeIncrease:    0.3,
		EntryDelay:           30 * time.Second,
		MaxTradesPerDay:      5,
		MaxConsecutiveLosses: 3,
		RiskReductionFactor:  0.5,
		PauseAfterLosses:     2,
		MaxEntryPrice:        1.0,
	}
}
