package domain

import (
	"fmt"
	"time"
)

type Action string

const (
	ActionNone  Action = "none"
	ActionEnter Action = "enter"
	ActionExit  Action = "exit"
)

// 平仓原因
const (
	ExitReasonTarget = "target"
	ExitReasonStop   = "stop"
	ExitReasonTime   = "time"
)

// Decision 策略决策：NoAction / Enter{side, price} / Exit{price, reason}
type Decision struct {
	Action Action  `json:"action"`
	Side   Side    `json:"side,omitempty"`
	Price  float64 `json:"price,omitempty"`
	Reason string  `json:"reason,omitempty"`
	// 入场前需要等待的时间（波段策略），调用方等待后重新取价再下单
	Delay time.Duration `json:"delay,omitempty"`
}

func NoAction() Decision {
	return Decision{Action: ActionNone}
}

func Enter(side Side, price float64) Decision {
	return Decision{Action: ActionEnter, Side: side, Price: price}
}

func Exit(price float64, reason string) Decision {
	return Decision{Action: ActionExit, Side: SideSell, Price: price, Reason: reason}
}

func (d Decision) String() string {
	switch d.Action {
	case ActionEnter:
		return fmt.Sprintf("Enter(%s, %.8g)", d.Side, d.Price)
	case ActionExit:
		return fmt.Sprintf("Exit(%.8g, %q)", d.Price, d.Reason)
	default:
		return "NoAction"
	}
}

// Clock 注入的时间源，决策逻辑不直接读系统时钟
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock 固定时间，主要用于测试和回放
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }
