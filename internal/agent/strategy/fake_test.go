package strategy

import (
	"context"
	"errors"
	"time"

	"robot_crypt/internal/domain"
)

// fakeProvider 固定返回的行情
type fakeProvider struct {
	price   float64
	klines  []domain.Kline
	volume  domain.VolumeStats
	listing bool
	err     error
	calls   int
}

func (f *fakeProvider) Price(ctx context.Context, pair string) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.price, nil
}

func (f *fakeProvider) Candles(ctx context.Context, pair, interval string, limit int) ([]domain.Kline, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.klines, nil
}

func (f *fakeProvider) Volume(ctx context.Context, pair string, lookback int) (domain.VolumeStats, error) {
	f.calls++
	if f.err != nil {
		return domain.VolumeStats{}, f.err
	}
	return f.volume, nil
}

func (f *fakeProvider) IsNewListing(ctx context.Context, pair string) (bool, error) {
	return f.listing, nil
}

var errBoom = errors.New("boom")

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// supportKlines 构造一组最低价为 support、最新一根开盘价为 lastOpen 的 K 线
func supportKlines(support, lastOpen float64) []domain.Kline {
	ks := make([]domain.Kline, 0, 24)
	for i := 0; i < 23; i++ {
		ks = append(ks, domain.Kline{Open: 104, High: 106, Low: 101, Close: 103, Volume: 1000})
	}
	ks[5].Low = support
	ks = append(ks, domain.Kline{Open: lastOpen, High: lastOpen, Low: 99, Close: 100, Volume: 1000})
	return ks
}
