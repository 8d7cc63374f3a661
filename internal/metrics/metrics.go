// Package metrics 暴露 Prometheus 指标，由 http 包挂载到 /metrics。
//
//	robot_cycles_total{status}            每轮轮询结果
//	robot_decisions_total{strategy,action} 策略决策
//	robot_orders_total{side,result}       下单结果（filled|failed|ambiguous|rate_limited）
//	robot_trades_total{result}            平仓结果（win|loss）
//	robot_exit_reasons_total{reason}      平仓原因（target|stop|time）
//	robot_capital                         当前资金
//	robot_open_positions                  持仓数
//	robot_consecutive_losses              连亏次数
//	robot_context_score                   市场情绪分
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robot_cycles_total",
			Help: "Poll cycles by status",
		},
		[]string{"status"},
	)

	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robot_decisions_total",
			Help: "Strategy decisions",
		},
		[]string{"strategy", "action"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robot_orders_total",
			Help: "Orders submitted by side and result",
		},
		[]string{"side", "result"},
	)

	Trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robot_trades_total",
			Help: "Closed trades by result",
		},
		[]string{"result"},
	)

	ExitReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robot_exit_reasons_total",
			Help: "Exits split by reason",
		},
		[]string{"reason"},
	)

	Capital = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "robot_capital",
		Help: "Current capital in quote currency",
	})

	OpenPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "robot_open_positions",
		Help: "Open positions",
	})

	ConsecutiveLosses = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "robot_consecutive_losses",
		Help: "Current losing streak",
	})

	ContextScore = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "robot_context_score",
		Help: "Market context score in [-1,1]",
	})
)

func init() {
	prometheus.MustRegister(Cycles, Decisions, Orders, Trades, ExitReasons)
	prometheus.MustRegister(Capital, OpenPositions, ConsecutiveLosses, ContextScore)
}
