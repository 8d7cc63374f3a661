package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"robot_crypt/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportResistance(t *testing.T) {
	s, r := SupportResistance(nil)
	assert.Zero(t, s)
	assert.Zero(t, r)

	klines := []domain.Kline{
		{Low: 99, High: 103},
		{Low: 97, High: 101},
		{Low: 98, High: 105},
	}
	s, r = SupportResistance(klines)
	assert.Equal(t, 97.0, s)
	assert.Equal(t, 105.0, r)
}

func TestHourlyChangePct(t *testing.T) {
	klines := []domain.Kline{{Open: 90}, {Open: 100}}
	assert.InDelta(t, -2.0, HourlyChangePct(klines, 98), 1e-9)
	assert.Zero(t, HourlyChangePct(nil, 98))
	assert.Zero(t, HourlyChangePct([]domain.Kline{{Open: 0}}, 98))
}

func TestVolumeFromKlines(t *testing.T) {
	assert.Equal(t, domain.VolumeStats{}, VolumeFromKlines(nil))
	assert.Equal(t, domain.VolumeStats{Average: 5, Current: 5}, VolumeFromKlines([]domain.Kline{{Volume: 5}}))

	v := VolumeFromKlines([]domain.Kline{{Volume: 100}, {Volume: 200}, {Volume: 300}})
	assert.Equal(t, 150.0, v.Average)
	assert.Equal(t, 300.0, v.Current)
}

// klineRow Binance /api/v3/klines 的单行格式
func klineRow(open time.Time, o, h, l, c, v string) string {
	return fmt.Sprintf(`[%d,"%s","%s","%s","%s","%s",%d,"0",1,"0","0","0"]`,
		open.UnixMilli(), o, h, l, c, v, open.Add(time.Hour).UnixMilli()-1)
}

func newBinanceServer(t *testing.T, handler http.HandlerFunc) *BinanceProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewBinanceProvider("", "", false).WithBaseURL(srv.URL)
}

func TestBinanceProvider_PriceAndCandles(t *testing.T) {
	open := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newBinanceServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/ticker/price":
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			fmt.Fprint(w, `{"symbol":"BTCUSDT","price":"42000.50"}`)
		case "/api/v3/klines":
			rows := []string{
				klineRow(open, "100", "101", "99", "100.5", "10"),
				klineRow(open.Add(time.Hour), "100.5", "102", "98", "101", "30"),
			}
			fmt.Fprint(w, "["+strings.Join(rows, ",")+"]")
		default:
			http.NotFound(w, r)
		}
	})

	price, err := p.Price(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 42000.50, price)

	klines, err := p.Candles(context.Background(), "BTC/USDT", "1h", 2)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Equal(t, 98.0, klines[1].Low)
	assert.True(t, klines[0].OpenTime.Equal(open))

	vol, err := p.Volume(context.Background(), "BTC/USDT", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.VolumeStats{Average: 10, Current: 30}, vol)

	// 只有 2 根日 K，视为新上线
	listed, err := p.IsNewListing(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.True(t, listed)
}

func TestBinanceProvider_RateLimited(t *testing.T) {
	p := newBinanceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"code":-1003,"msg":"Too many requests"}`)
	})

	_, err := p.Price(context.Background(), "BTC/USDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.True(t, IsRateLimitError(err))
}

func TestIsRateLimitError(t *testing.T) {
	assert.False(t, IsRateLimitError(nil))
	assert.True(t, IsRateLimitError(&HTTPStatusError{StatusCode: http.StatusTooManyRequests}))
	assert.False(t, IsRateLimitError(&HTTPStatusError{StatusCode: http.StatusBadGateway}))
}

func newContextClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient()
	c.FearGreedBaseURL = srv.URL
	c.CryptoPanicBaseURL = srv.URL
	c.CoinGeckoBaseURL = srv.URL
	return c
}

func TestClient_ContextSources(t *testing.T) {
	c := newContextClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fng/":
			fmt.Fprint(w, `{"data":[{"value":"72","value_classification":"Greed"}]}`)
		case "/posts/":
			assert.Equal(t, "BTC,ETH", r.URL.Query().Get("currencies"))
			fmt.Fprint(w, `{"results":[
				{"title":"ETF approved","created_at":"2024-01-10T12:00:00Z","source":{"title":"wire"},"votes":{"positive":9,"negative":1}},
				{"title":"exchange hacked","created_at":"2024-01-10T13:00:00Z","source":{"title":"wire"},"votes":{"positive":0,"negative":4}},
				{"title":"market flat","created_at":"2024-01-10T14:00:00Z","source":{"title":"wire"},"votes":{"positive":1,"negative":1}}
			]}`)
		case "/search/trending":
			fmt.Fprint(w, `{"coins":[{"item":{"symbol":"pepe","score":0}},{"item":{"symbol":"btc","score":1}}]}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	value, label, err := c.FearGreed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 72, value)
	assert.Equal(t, "Greed", label)

	// 没有 key 不请求
	items, err := c.News(ctx, []string{"BTC", "ETH"}, 10)
	require.NoError(t, err)
	assert.Nil(t, items)

	c.CryptoPanicKey = "k"
	items, err = c.News(ctx, []string{"BTC", "ETH"}, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "positive", items[0].Sentiment)
	assert.Equal(t, "negative", items[1].Sentiment)

	coins, err := c.Trending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TrendingCoin{{Symbol: "PEPE", Rank: 1}, {Symbol: "BTC", Rank: 2}}, coins)
}

func TestClient_HTTPError(t *testing.T) {
	c := newContextClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "slow down")
	})
	_, _, err := c.FearGreed(context.Background())
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.True(t, IsRateLimitError(err))
}

func TestSimulator_Deterministic(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	initial := map[string]float64{"BTC/USDT": 100, "ETH/USDT": 10}
	a := NewSimulator(7, start, initial)
	b := NewSimulator(7, start, initial)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		pa, err := a.Price(ctx, "BTC/USDT")
		require.NoError(t, err)
		pb, err := b.Price(ctx, "BTC/USDT")
		require.NoError(t, err)
		assert.Equal(t, pa, pb)
		assert.Greater(t, pa, 0.0)
	}

	klines, err := a.Candles(ctx, "ETH/USDT", "1h", 24)
	require.NoError(t, err)
	assert.Len(t, klines, 24)

	_, err = a.Candles(ctx, "ETH/USDT", "1d", 7)
	assert.Error(t, err)
	_, err = a.Price(ctx, "XRP/USDT")
	assert.Error(t, err)

	a.SetPrice("BTC/USDT", 250)
	klines, err = a.Candles(ctx, "BTC/USDT", "1h", 1)
	require.NoError(t, err)
	assert.Equal(t, 250.0, klines[0].Close)
}
