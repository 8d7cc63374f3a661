package market

import (
	"context"
	"fmt"
	"strings"
)

// TrendingCoin CoinGecko 热门趋势榜条目
type TrendingCoin struct {
	Symbol string
	Rank   int // 1=最热
}

// Trending 获取 CoinGecko 热门趋势 top 15。完全免费，无需 API key。
func (c *Client) Trending(ctx context.Context) ([]TrendingCoin, error) {
	var result struct {
		Coins []struct {
			Item struct {
				Symbol string `json:"symbol"`
				Score  int    `json:"score"` // 0 = most trending
			} `json:"item"`
		} `json:"coins"`
	}
	if err := c.getJSON(ctx, c.CoinGeckoBaseURL+"/search/trending", &result); err != nil {
		return nil, fmt.Errorf("coingecko trending: %w", err)
	}

	coins := make([]TrendingCoin, 0, len(result.Coins))
	for _, coin := range result.Coins {
		coins = append(coins, TrendingCoin{
			Symbol: strings.ToUpper(coin.Item.Symbol),
			Rank:   coin.Item.Score + 1, // score 0 → rank 1
		})
	}
	return coins, nil
}
