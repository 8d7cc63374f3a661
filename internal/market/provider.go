package market

import (
	"context"

	"robot_crypt/internal/domain"
)

// Provider 行情端口：当前价、K 线、成交量。pair 格式 "BTC/USDT"
type Provider interface {
	Price(ctx context.Context, pair string) (float64, error)
	Candles(ctx context.Context, pair, interval string, limit int) ([]domain.Kline, error)
	Volume(ctx context.Context, pair string, lookback int) (domain.VolumeStats, error)
}

// ListingDetector 可选能力：判断币对是否为新上线
type ListingDetector interface {
	IsNewListing(ctx context.Context, pair string) (bool, error)
}
