package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

const systemPrompt = `你是加密货币市场情绪分析助手。根据给出的恐惧贪婪指数、新闻标题和热门榜，
输出整体市场情绪分 score，取值 -1（极度悲观）到 1（极度乐观）。
只输出 JSON：{"score": <number>, "reason": "<一句话>"}`

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

type llmResponse struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// LLMScorer 把情绪数据交给大模型打分，调用或解析失败时退回 MarketScorer
type LLMScorer struct {
	model    llms.Model
	source   ContextSource
	coins    []string
	fallback Scorer
}

// NewOpenAI 通过 langchaingo 的 OpenAI 兼容接口创建
func NewOpenAI(token, model, baseURL string, source ContextSource, pairs []string) (*LLMScorer, error) {
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(model),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init llm client: %w", err)
	}
	log.Printf("[情绪] 大模型已就绪 模型=%s", model)
	return NewLLMScorer(llm, source, pairs), nil
}

func NewLLMScorer(model llms.Model, source ContextSource, pairs []string) *LLMScorer {
	return &LLMScorer{
		model:    model,
		source:   source,
		coins:    baseCoins(pairs),
		fallback: NewMarketScorer(source, pairs),
	}
}

func (s *LLMScorer) Score(ctx context.Context) (float64, error) {
	prompt := s.buildPrompt(ctx)
	messages := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextContent{Text: systemPrompt}},
		},
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}

	t0 := time.Now()
	resp, err := s.model.GenerateContent(ctx, messages)
	if err != nil {
		log.Printf("[情绪] ✘ 大模型调用失败 (耗时%s): %v → 降级为规则评分", time.Since(t0), err)
		return s.fallback.Score(ctx)
	}
	if len(resp.Choices) == 0 {
		log.Printf("[情绪] ✘ 大模型返回空结果 → 降级为规则评分")
		return s.fallback.Score(ctx)
	}

	parsed, err := parseLLMOutput(resp.Choices[0].Content)
	if err != nil {
		log.Printf("[情绪] ✘ 解析大模型输出失败: %v → 降级为规则评分", err)
		return s.fallback.Score(ctx)
	}
	score := clamp(parsed.Score, -1, 1)
	log.Printf("[情绪] ✔ 大模型评分 %.2f (耗时%s): %s", score, time.Since(t0), parsed.Reason)
	return score, nil
}

// buildPrompt 数据源失败的部分直接省略
func (s *LLMScorer) buildPrompt(ctx context.Context) string {
	var b strings.Builder
	if idx, label, err := s.source.FearGreed(ctx); err == nil {
		fmt.Fprintf(&b, "恐惧贪婪指数: %d (%s)\n", idx, label)
	}
	if news, err := s.source.News(ctx, s.coins, 10); err == nil && len(news) > 0 {
		b.WriteString("最新新闻:\n")
		for _, n := range news {
			fmt.Fprintf(&b, "- [%s] %s (+%d/-%d)\n", n.Sentiment, n.Title, n.Positive, n.Negative)
		}
	}
	if trending, err := s.source.Trending(ctx); err == nil && len(trending) > 0 {
		syms := make([]string, 0, len(trending))
		for _, t := range trending {
			syms = append(syms, t.Symbol)
		}
		fmt.Fprintf(&b, "CoinGecko 热门: %s\n", strings.Join(syms, ", "))
	}
	if len(s.coins) > 0 {
		fmt.Fprintf(&b, "关注币种: %s\n", strings.Join(s.coins, ", "))
	}
	if b.Len() == 0 {
		b.WriteString("暂无外部数据，请给出中性评分。\n")
	}
	return b.String()
}

func parseLLMOutput(raw string) (llmResponse, error) {
	var out llmResponse
	clean := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(clean), &out); err == nil {
		return out, nil
	}

	match := jsonObject.FindString(clean)
	if match == "" {
		return out, fmt.Errorf("大模型响应中未找到JSON对象")
	}
	if err := json.Unmarshal([]byte(match), &out); err != nil {
		return out, fmt.Errorf("解析大模型JSON输出失败: %w", err)
	}
	return out, nil
}
