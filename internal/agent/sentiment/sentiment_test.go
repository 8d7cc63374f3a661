package sentiment

import (
	"context"
	"errors"
	"testing"

	"robot_crypt/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeSource struct {
	fng      int
	fngErr   error
	news     []market.NewsItem
	newsErr  error
	trending []market.TrendingCoin
	trendErr error
}

func (f fakeSource) FearGreed(context.Context) (int, string, error) {
	return f.fng, "Neutral", f.fngErr
}

func (f fakeSource) News(context.Context, []string, int) ([]market.NewsItem, error) {
	return f.news, f.newsErr
}

func (f fakeSource) Trending(context.Context) ([]market.TrendingCoin, error) {
	return f.trending, f.trendErr
}

type fakeModel struct {
	content string
	err     error
}

func (m fakeModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.content}}}, nil
}

func (m fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return m.content, m.err
}

var errDown = errors.New("down")

func TestNeutral(t *testing.T) {
	v, err := Neutral{}.Score(context.Background())
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestMarketScorer(t *testing.T) {
	src := fakeSource{
		fng:      75,
		news:     []market.NewsItem{{Positive: 6, Negative: 2}, {Positive: 0, Negative: 0}},
		trending: []market.TrendingCoin{{Symbol: "BTC", Rank: 1}, {Symbol: "PEPE", Rank: 2}},
	}
	s := NewMarketScorer(src, []string{"BTC/USDT", "ETH/USDT", "BTC/EUR"})
	v, err := s.Score(context.Background())
	require.NoError(t, err)
	// (0.5 + 0.5 + 0.5) / 3
	assert.InDelta(t, 0.5, v, 1e-12)
}

func TestMarketScorerPartialFailure(t *testing.T) {
	src := fakeSource{fng: 10, newsErr: errDown, trendErr: errDown}
	v, err := NewMarketScorer(src, []string{"BTC/USDT"}).Score(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, -0.8, v, 1e-12)

	src = fakeSource{fngErr: errDown, newsErr: errDown, trendErr: errDown}
	v, err = NewMarketScorer(src, []string{"BTC/USDT"}).Score(context.Background())
	assert.ErrorIs(t, err, errDown)
	assert.Zero(t, v)
}

func TestLLMScorer(t *testing.T) {
	src := fakeSource{fng: 50}

	s := NewLLMScorer(fakeModel{content: "分析如下 {\"score\": 0.4, \"reason\": \"偏多\"}"}, src, []string{"BTC/USDT"})
	v, err := s.Score(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.4, v, 1e-12)

	s = NewLLMScorer(fakeModel{content: `{"score": 7}`}, src, nil)
	v, err = s.Score(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestLLMScorerFallsBack(t *testing.T) {
	src := fakeSource{fng: 100}

	v, err := NewLLMScorer(fakeModel{err: errDown}, src, nil).Score(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 1e-12)

	v, err = NewLLMScorer(fakeModel{content: "no json here"}, src, nil).Score(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 1e-12)
}
