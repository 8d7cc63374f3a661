package market

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"robot_crypt/internal/domain"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

// 新币判定：日 K 少于该数量视为新上线
const newListingMaxDays = 7

// BinanceProvider 通过 Binance 现货公开接口获取行情（无需 API Key）
type BinanceProvider struct {
	client *binance.Client
}

// NewBinanceProvider 创建 Binance 行情客户端
func NewBinanceProvider(apiKey, secretKey string, testnet bool) *BinanceProvider {
	if testnet {
		binance.UseTestnet = true
	}
	return &BinanceProvider{client: binance.NewClient(apiKey, secretKey)}
}

// WithBaseURL 覆盖接口地址（测试或自建代理）
func (p *BinanceProvider) WithBaseURL(baseURL string) *BinanceProvider {
	p.client.BaseURL = baseURL
	return p
}

func (p *BinanceProvider) Price(ctx context.Context, pair string) (float64, error) {
	symbol := domain.PairToSymbol(pair)
	prices, err := p.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, classify(err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price data for %s", symbol)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", prices[0].Price, err)
	}
	return price, nil
}

func (p *BinanceProvider) Candles(ctx context.Context, pair, interval string, limit int) ([]domain.Kline, error) {
	symbol := domain.PairToSymbol(pair)
	raw, err := p.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, classify(err)
	}

	klines := make([]domain.Kline, 0, len(raw))
	for _, k := range raw {
		klines = append(klines, domain.Kline{
			OpenTime:  time.UnixMilli(k.OpenTime),
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
			CloseTime: time.UnixMilli(k.CloseTime),
		})
	}
	return klines, nil
}

// Volume 基于 1h K 线：前 lookback 根的均值 vs 最新一根
func (p *BinanceProvider) Volume(ctx context.Context, pair string, lookback int) (domain.VolumeStats, error) {
	klines, err := p.Candles(ctx, pair, "1h", lookback+1)
	if err != nil {
		return domain.VolumeStats{}, err
	}
	if len(klines) == 0 {
		return domain.VolumeStats{}, fmt.Errorf("no klines for %s", pair)
	}
	return VolumeFromKlines(klines), nil
}

// IsNewListing 日 K 数量不足 newListingMaxDays 视为新上线
func (p *BinanceProvider) IsNewListing(ctx context.Context, pair string) (bool, error) {
	klines, err := p.Candles(ctx, pair, "1d", newListingMaxDays)
	if err != nil {
		return false, err
	}
	if len(klines) < newListingMaxDays {
		log.Printf("[行情] %s 仅有 %d 根日K，判定为新上线", pair, len(klines))
		return true, nil
	}
	return false, nil
}

// IsRateLimitError 识别 Binance 限频（-1003 请求过多 / -1015 下单过多 / HTTP 429）
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == -1003 || apiErr.Code == -1015
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// classify 限频错误额外包装 domain.ErrRateLimited
func classify(err error) error {
	if IsRateLimitError(err) {
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	}
	return err
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
