package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"robot_crypt/internal/domain"
	"robot_crypt/internal/market"
)

const (
	NameScalping = "scalping"
	NameSwing    = "swing"

	// MinTradablePrice 低于该价格直接不做决策，避免除以接近 0 的数
	MinTradablePrice = 1e-7
)

// Engine 策略决策接口，Decide 只读入参与行情，不持有可变状态
type Engine interface {
	Name() string
	// Decide 行情获取失败时返回 NoAction 和包装了 domain.ErrDataUnavailable 的错误
	Decide(ctx context.Context, symbol string, pos *domain.Position, params domain.RiskParameters, clock domain.Clock) (domain.Decision, error)
	// OnFill 建仓成交后补充持仓字段（如波段的止盈止损价）
	OnFill(pos domain.Position, params domain.RiskParameters) domain.Position
}

// New 按名称创建策略
func New(name string, provider market.Provider) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameScalping:
		return NewScalping(provider), nil
	case NameSwing:
		return NewSwing(provider), nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", domain.ErrConfigurationInvalid, name)
	}
}

var errEmptySymbol = errors.New("empty symbol")

func unavailable(symbol string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrDataUnavailable, symbol, err)
}
