package market

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// NewsItem 表示一条加密货币新闻（来自 CryptoPanic）
type NewsItem struct {
	Title       string
	PublishedAt time.Time
	Source      string
	Positive    int
	Negative    int
	Sentiment   string // positive / negative / neutral
}

// News 从 CryptoPanic 获取指定币种的最新新闻。
// 无 key 时返回 nil, nil；其他错误（额度耗尽、网络异常）返回给调用方决定是否忽略。
func (c *Client) News(ctx context.Context, coins []string, limit int) ([]NewsItem, error) {
	if c.CryptoPanicKey == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	url := fmt.Sprintf(
		"%s/posts/?auth_token=%s&currencies=%s&kind=news&public=true",
		c.CryptoPanicBaseURL, c.CryptoPanicKey, strings.Join(coins, ","),
	)

	var result struct {
		Results []struct {
			Title     string `json:"title"`
			CreatedAt string `json:"created_at"`
			Source    struct {
				Title string `json:"title"`
			} `json:"source"`
			Votes struct {
				Positive  int `json:"positive"`
				Negative  int `json:"negative"`
				Important int `json:"important"`
			} `json:"votes"`
		} `json:"results"`
	}
	if err := c.getJSON(ctx, url, &result); err != nil {
		return nil, fmt.Errorf("cryptopanic: %w", err)
	}

	if len(result.Results) < limit {
		limit = len(result.Results)
	}

	items := make([]NewsItem, 0, limit)
	for _, r := range result.Results[:limit] {
		t, _ := time.Parse(time.RFC3339, r.CreatedAt)

		// 根据投票判断情绪倾向
		sentiment := "neutral"
		if r.Votes.Positive > r.Votes.Negative*2 {
			sentiment = "positive"
		} else if r.Votes.Negative > r.Votes.Positive*2 {
			sentiment = "negative"
		}

		items = append(items, NewsItem{
			Title:       r.Title,
			PublishedAt: t,
			Source:      r.Source.Title,
			Positive:    r.Votes.Positive,
			Negative:    r.Votes.Negative,
			Sentiment:   sentiment,
		})
	}

	log.Printf("[新闻] 获取到 %d 条 %s 相关新闻", len(items), strings.Join(coins, ","))
	return items, nil
}
