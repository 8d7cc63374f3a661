package market

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"robot_crypt/internal/domain"
)

const simHistory = 200 // 每个币对预生成的 1h K 线数量

// Simulator 离线行情：带种子的随机游走，同一种子输出完全一致
type Simulator struct {
	mu         sync.Mutex
	rng        *rand.Rand
	volatility float64 // 每次取价的相对波动
	start      time.Time
	series     map[string][]domain.Kline
}

// NewSimulator initial 为各币对初始价格
func NewSimulator(seed int64, start time.Time, initial map[string]float64) *Simulator {
	s := &Simulator{
		rng:        rand.New(rand.NewSource(seed)),
		volatility: 0.004,
		start:      start.Truncate(time.Hour),
		series:     make(map[string][]domain.Kline, len(initial)),
	}
	// map 遍历顺序不固定，排序后生成保证可复现
	for _, pair := range sortedKeys(initial) {
		s.series[pair] = s.generate(initial[pair])
	}
	return s
}

func (s *Simulator) generate(price float64) []domain.Kline {
	klines := make([]domain.Kline, simHistory)
	open := s.start.Add(-time.Duration(simHistory-1) * time.Hour)
	for i := range klines {
		closePrice := price * (1 + s.rng.NormFloat64()*s.volatility*3)
		high := math.Max(price, closePrice) * (1 + s.rng.Float64()*s.volatility)
		low := math.Min(price, closePrice) * (1 - s.rng.Float64()*s.volatility)
		klines[i] = domain.Kline{
			OpenTime:  open,
			Open:      price,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    1000 + s.rng.Float64()*1000,
			CloseTime: open.Add(time.Hour - time.Millisecond),
		}
		price = closePrice
		open = open.Add(time.Hour)
	}
	return klines
}

// Price 每次调用推进一步随机游走，更新最新一根 K 线
func (s *Simulator) Price(ctx context.Context, pair string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	klines, ok := s.series[pair]
	if !ok {
		return 0, fmt.Errorf("simulator: unknown pair %s", pair)
	}
	last := &klines[len(klines)-1]
	next := last.Close * (1 + s.rng.NormFloat64()*s.volatility)
	if next <= 0 {
		next = last.Close
	}
	last.Close = next
	last.High = math.Max(last.High, next)
	last.Low = math.Min(last.Low, next)
	last.Volume += s.rng.Float64() * 50
	return next, nil
}

func (s *Simulator) Candles(ctx context.Context, pair, interval string, limit int) ([]domain.Kline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if interval != "1h" {
		return nil, fmt.Errorf("simulator: unsupported interval %s", interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	klines, ok := s.series[pair]
	if !ok {
		return nil, fmt.Errorf("simulator: unknown pair %s", pair)
	}
	if limit <= 0 || limit > len(klines) {
		limit = len(klines)
	}
	out := make([]domain.Kline, limit)
	copy(out, klines[len(klines)-limit:])
	return out, nil
}

func (s *Simulator) Volume(ctx context.Context, pair string, lookback int) (domain.VolumeStats, error) {
	klines, err := s.Candles(ctx, pair, "1h", lookback+1)
	if err != nil {
		return domain.VolumeStats{}, err
	}
	return VolumeFromKlines(klines), nil
}

// SetPrice 手动设定最新价（回放或测试场景）
func (s *Simulator) SetPrice(pair string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	klines, ok := s.series[pair]
	if !ok {
		s.series[pair] = s.generate(price)
		return
	}
	last := &klines[len(klines)-1]
	last.Close = price
	last.High = math.Max(last.High, price)
	last.Low = math.Min(last.Low, price)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
