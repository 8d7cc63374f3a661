package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	fearGreedBase   = "https://api.alternative.me"
	cryptoPanicBase = "https://cryptopanic.com/api/v1"
	coingeckoBase   = "https://api.coingecko.com/api/v3"
)

// HTTPStatusError 非 200 响应
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Client 情绪/新闻/社区等外部数据源（均为免费公开接口，失败不影响主流程）
type Client struct {
	http           *http.Client
	CryptoPanicKey string // 可选，为空则跳过新闻获取

	FearGreedBaseURL   string
	CryptoPanicBaseURL string
	CoinGeckoBaseURL   string
}

// NewClient creates a context data client.
func NewClient() *Client {
	return &Client{
		http:               &http.Client{Timeout: 10 * time.Second},
		FearGreedBaseURL:   fearGreedBase,
		CryptoPanicBaseURL: cryptoPanicBase,
		CoinGeckoBaseURL:   coingeckoBase,
	}
}

// FearGreed 从 alternative.me 获取恐惧贪婪指数 0-100
func (c *Client) FearGreed(ctx context.Context) (int, string, error) {
	var result struct {
		Data []struct {
			Value               string `json:"value"`
			ValueClassification string `json:"value_classification"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, c.FearGreedBaseURL+"/fng/?limit=1", &result); err != nil {
		return 0, "", err
	}
	if len(result.Data) == 0 {
		return 0, "", fmt.Errorf("fear greed: empty data")
	}
	val, err := strconv.Atoi(result.Data[0].Value)
	if err != nil {
		return 0, "", fmt.Errorf("fear greed value %q: %w", result.Data[0].Value, err)
	}
	return val, result.Data[0].ValueClassification, nil
}

// ---- HTTP helper ----

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
