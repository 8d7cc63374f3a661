package sentiment

import (
	"context"
	"errors"
	"log"
	"math"
	"strings"

	"robot_crypt/internal/domain"
	"robot_crypt/internal/market"
)

// Scorer 市场情绪分，取值 [-1,1]，0 为中性
type Scorer interface {
	Score(ctx context.Context) (float64, error)
}

// Neutral 恒为 0，不调整风险
type Neutral struct{}

func (Neutral) Score(context.Context) (float64, error) { return 0, nil }

// ContextSource 外部情绪数据源
type ContextSource interface {
	FearGreed(ctx context.Context) (int, string, error)
	News(ctx context.Context, coins []string, limit int) ([]market.NewsItem, error)
	Trending(ctx context.Context) ([]market.TrendingCoin, error)
}

// MarketScorer 恐惧贪婪指数 + 新闻投票 + 热门榜，各分量等权平均
type MarketScorer struct {
	source ContextSource
	coins  []string // 关注的基础币，如 BTC
}

// NewMarketScorer pairs 为交易币对，自动提取基础币
func NewMarketScorer(source ContextSource, pairs []string) *MarketScorer {
	return &MarketScorer{source: source, coins: baseCoins(pairs)}
}

func (s *MarketScorer) Score(ctx context.Context) (float64, error) {
	var parts []float64
	var errs []error

	if idx, label, err := s.source.FearGreed(ctx); err != nil {
		errs = append(errs, err)
	} else {
		v := (float64(idx) - 50) / 50
		log.Printf("[情绪] 恐惧贪婪指数=%d (%s) → %.2f", idx, label, v)
		parts = append(parts, v)
	}

	if news, err := s.source.News(ctx, s.coins, 20); err != nil {
		errs = append(errs, err)
	} else if v, ok := newsScore(news); ok {
		log.Printf("[情绪] 新闻 %d 条 → %.2f", len(news), v)
		parts = append(parts, v)
	}

	if trending, err := s.source.Trending(ctx); err != nil {
		errs = append(errs, err)
	} else if len(s.coins) > 0 {
		v := trendingScore(trending, s.coins)
		log.Printf("[情绪] 热门榜命中 → %.2f", v)
		parts = append(parts, v)
	}

	if len(parts) == 0 {
		if len(errs) == 0 {
			return 0, nil
		}
		return 0, errors.Join(errs...)
	}
	for _, err := range errs {
		log.Printf("[情绪] ⚠ 数据源失败: %v", err)
	}
	sum := 0.0
	for _, p := range parts {
		sum += p
	}
	return clamp(sum/float64(len(parts)), -1, 1), nil
}

// newsScore 正负投票差占总票数的比例，没有投票时不计入
func newsScore(items []market.NewsItem) (float64, bool) {
	pos, neg := 0, 0
	for _, it := range items {
		pos += it.Positive
		neg += it.Negative
	}
	if pos+neg == 0 {
		return 0, false
	}
	return float64(pos-neg) / float64(pos+neg), true
}

// trendingScore 关注币在热门榜上的比例，排名越靠前权重越高
func trendingScore(trending []market.TrendingCoin, coins []string) float64 {
	if len(trending) == 0 || len(coins) == 0 {
		return 0
	}
	ranks := make(map[string]int, len(trending))
	for _, c := range trending {
		ranks[strings.ToUpper(c.Symbol)] = c.Rank
	}
	n := float64(len(trending))
	total := 0.0
	for _, coin := range coins {
		if rank, ok := ranks[coin]; ok {
			total += 1 - float64(rank-1)/n
		}
	}
	return clamp(total/float64(len(coins)), 0, 1)
}

func baseCoins(pairs []string) []string {
	seen := make(map[string]bool, len(pairs))
	coins := make([]string, 0, len(pairs))
	for _, p := range pairs {
		base, _ := domain.SplitPair(p)
		if base == "" || seen[base] {
			continue
		}
		seen[base] = true
		coins = append(coins, base)
	}
	return coins
}

func clamp(v, min, max float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
