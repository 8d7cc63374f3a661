package risk

import (
	"testing"

	"robot_crypt/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateEntry(t *testing.T) {
	g := New(0, 0)
	p := domain.DefaultScalping()

	v := g.EvaluateEntry(domain.RunningStats{}, p)
	assert.True(t, v.Approved)

	v = g.EvaluateEntry(domain.RunningStats{TradesToday: p.MaxTradesPerDay}, p)
	assert.False(t, v.Approved)
	assert.Contains(t, v.RejectReason, "daily trade limit")

	v = g.EvaluateEntry(domain.RunningStats{ConsecutiveLosses: 2}, p)
	assert.False(t, v.Approved)
	assert.Contains(t, v.RejectReason, "paused")

	// 两个条件同时满足时先报日内限额
	v = g.EvaluateEntry(domain.RunningStats{TradesToday: 99, ConsecutiveLosses: 5}, p)
	assert.Contains(t, v.RejectReason, "daily trade limit")

	p.PauseAfterLosses = 0
	v = g.EvaluateEntry(domain.RunningStats{ConsecutiveLosses: 10}, p)
	assert.True(t, v.Approved)
}

func TestContextFactor(t *testing.T) {
	assert.Equal(t, 1.0, New(0, 0).ContextFactor(0.9))

	g := New(0, 0.5)
	assert.InDelta(t, 1.25, g.ContextFactor(0.5), 1e-12)
	assert.InDelta(t, 0.5, g.ContextFactor(-1), 1e-12)
	assert.InDelta(t, 1.5, g.ContextFactor(3), 1e-12)

	g = New(0, 2)
	assert.InDelta(t, 0.5, g.ContextFactor(-0.9), 1e-12)
}

func TestScaleRisk(t *testing.T) {
	g := New(0, 0.5)
	p := domain.DefaultScalping()

	scaled := g.ScaleRisk(p, 1)
	assert.InDelta(t, p.RiskPerTrade*1.5, scaled.RiskPerTrade, 1e-12)
	assert.Equal(t, p.MaxPositionSize, scaled.MaxPositionSize)

	assert.Equal(t, p, g.ScaleRisk(p, 0))
}

func TestCapQuantity(t *testing.T) {
	g := New(5, 0)

	qty, reason := g.CapQuantity(0.1, 100, 1000)
	assert.Equal(t, 0.1, qty)
	assert.Empty(t, reason)

	qty, _ = g.CapQuantity(1, 100, 50)
	assert.InDelta(t, 0.5, qty, 1e-12)

	qty, reason = g.CapQuantity(0.01, 100, 1000)
	assert.Zero(t, qty)
	assert.Contains(t, reason, "below minimum")

	qty, reason = g.CapQuantity(1, 100, 0)
	assert.Zero(t, qty)
	assert.Equal(t, "no free quote balance", reason)
}
