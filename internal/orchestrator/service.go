package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"robot_crypt/internal/agent/execution"
	"robot_crypt/internal/agent/position"
	"robot_crypt/internal/agent/risk"
	"robot_crypt/internal/agent/sentiment"
	"robot_crypt/internal/agent/strategy"
	"robot_crypt/internal/domain"
	"robot_crypt/internal/market"
	"robot_crypt/internal/metrics"
	"robot_crypt/internal/notify"
	"robot_crypt/internal/stats"
	"robot_crypt/internal/store"

	"github.com/google/uuid"
)

// ErrCycleRunning 上一轮尚未结束（手动触发与定时器重叠）
var ErrCycleRunning = errors.New("cycle already running")

// Deps 协调器依赖的协作者，启动时注入，运行期间不替换
type Deps struct {
	Engine    strategy.Engine
	Market    market.Provider
	Executor  execution.Executor
	Repo      store.Repository
	Positions *position.Store  // 为空则新建
	Stats     *stats.Tracker   // 为空则以 InitialCapital 新建
	Scorer    sentiment.Scorer // 为空则中性
	Guard     *risk.Guard      // 为空则不限最小下单金额
	Notifier  notify.Notifier  // 为空则只写日志
	Clock     domain.Clock     // 为空则使用系统时钟
	Params    domain.RiskParameters
}

type Options struct {
	Symbols        []string
	Blacklist      []string
	QuoteAsset     string
	InitialCapital float64
	SymbolDelay    time.Duration // 顺序处理时币对之间的间隔
	Concurrency    int           // >1 时不同币对并发处理
	CallTimeout    time.Duration // 单次行情/下单调用超时
}

type Service struct {
	engine    strategy.Engine
	market    market.Provider
	executor  execution.Executor
	repo      store.Repository
	positions *position.Store
	stats     *stats.Tracker
	scorer    sentiment.Scorer
	guard     *risk.Guard
	notifier  notify.Notifier
	clock     domain.Clock
	params    domain.RiskParameters
	opts      Options
	blacklist map[string]bool

	cycleMu sync.Mutex

	mu        sync.RWMutex
	lastCheck time.Time
	lastCycle *domain.CycleSummary
}

func New(deps Deps, opts Options) (*Service, error) {
	if err := deps.Params.Validate(); err != nil {
		return nil, err
	}
	if deps.Engine == nil || deps.Market == nil || deps.Executor == nil || deps.Repo == nil {
		return nil, fmt.Errorf("%w: engine, market, executor and repository are required", domain.ErrConfigurationInvalid)
	}
	if len(opts.Symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols configured", domain.ErrConfigurationInvalid)
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 15 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.QuoteAsset == "" {
		opts.QuoteAsset = "USDT"
	}

	s := &Service{
		engine:    deps.Engine,
		market:    deps.Market,
		executor:  deps.Executor,
		repo:      deps.Repo,
		positions: deps.Positions,
		stats:     deps.Stats,
		scorer:    deps.Scorer,
		guard:     deps.Guard,
		notifier:  deps.Notifier,
		clock:     deps.Clock,
		params:    deps.Params,
		opts:      opts,
		blacklist: make(map[string]bool, len(opts.Blacklist)),
	}
	if s.clock == nil {
		s.clock = domain.SystemClock{}
	}
	if s.positions == nil {
		s.positions = position.NewStore()
	}
	if s.stats == nil {
		s.stats = stats.NewTracker(domain.NewRunningStats(opts.InitialCapital, s.clock.Now()))
	}
	if s.scorer == nil {
		s.scorer = sentiment.Neutral{}
	}
	if s.guard == nil {
		s.guard = risk.New(0, 0)
	}
	if s.notifier == nil {
		s.notifier = notify.LogNotifier{}
	}
	symbols := make([]string, 0, len(opts.Symbols))
	for _, sym := range opts.Symbols {
		if sym = normalizeSymbol(sym); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	s.opts.Symbols = symbols
	for _, b := range opts.Blacklist {
		s.blacklist[normalizeSymbol(b)] = true
	}
	return s, nil
}

// Restore 从持久化快照恢复统计、持仓和待对账订单，没有快照时保持初始状态
func (s *Service) Restore(ctx context.Context) error {
	state, err := s.repo.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	if state == nil {
		log.Printf("[存储] 未找到快照，使用初始资金 %.2f 启动", s.stats.Snapshot().CurrentCapital)
		return nil
	}
	s.stats.Replace(state.Stats)
	s.positions.Restore(state.Positions, state.Pending)
	if ledger, ok := s.executor.(execution.LedgerRestorer); ok {
		ledger.RestoreLedger(state.Stats.CurrentCapital, s.positions.All())
	}
	s.mu.Lock()
	s.lastCheck = state.LastCheck
	s.mu.Unlock()
	log.Printf("[存储] ✔ 已恢复快照 v%d: 持仓=%d 待对账=%d 资金=%.2f 上次检查=%s",
		state.SchemaVersion, len(state.Positions), len(state.Pending), state.Stats.CurrentCapital,
		state.LastCheck.Format(time.RFC3339))
	s.refreshGauges()
	return nil
}

// RunCycle 执行一轮：日切 → 情绪分 → 逐个币对决策与执行 → 持久化。
// 单个币对的错误只计数，不中断本轮；限频会提前结束本轮并返回包装了 domain.ErrRateLimited 的错误。
func (s *Service) RunCycle(ctx context.Context) (domain.CycleSummary, error) {
	if !s.cycleMu.TryLock() {
		return domain.CycleSummary{}, ErrCycleRunning
	}
	defer s.cycleMu.Unlock()

	now := s.clock.Now()
	summary := domain.CycleSummary{ID: uuid.NewString(), StartedAt: now}
	tag := summary.ID[:8]
	log.Printf("[周期:%s] ▶ 开始执行 策略=%s 币对=%d", tag, s.engine.Name(), len(s.opts.Symbols))

	if s.stats.RollDay(now) {
		log.Printf("[周期:%s] 📅 日期变更，今日交易次数已清零", tag)
	}

	params := s.params
	score, err := s.contextScore(ctx)
	if err != nil {
		log.Printf("[周期:%s] ⚠ 情绪分获取失败，按中性处理: %v", tag, err)
	} else {
		params = s.guard.ScaleRisk(params, score)
	}

	symbols := make([]string, 0, len(s.opts.Symbols))
	for _, sym := range s.opts.Symbols {
		if s.blacklist[normalizeSymbol(sym)] {
			summary.Skipped++
			continue
		}
		symbols = append(symbols, sym)
	}

	var rateLimited bool
	if s.opts.Concurrency > 1 {
		rateLimited = s.runConcurrent(ctx, tag, symbols, params, &summary)
	} else {
		rateLimited = s.runSequential(ctx, tag, symbols, params, &summary)
	}

	summary.FinishedAt = s.clock.Now()
	s.mu.Lock()
	s.lastCheck = summary.FinishedAt
	s.mu.Unlock()

	switch {
	case ctx.Err() != nil:
		summary.Status = domain.CycleStatusInterrupted
	case rateLimited:
		summary.Status = domain.CycleStatusRateLimited
	case summary.Errors > 0:
		summary.Status = domain.CycleStatusPartial
	default:
		summary.Status = domain.CycleStatusSuccess
	}

	// 持久化不受关闭信号影响
	persistCtx := context.WithoutCancel(ctx)
	var cycleErr error
	if err := s.Persist(persistCtx); err != nil {
		summary.Status = domain.CycleStatusFailed
		summary.Message = err.Error()
		cycleErr = err
	} else if rateLimited {
		summary.Message = "rate limited by exchange"
		cycleErr = fmt.Errorf("%w: cycle %s stopped early", domain.ErrRateLimited, tag)
	}
	if err := s.repo.InsertCycle(persistCtx, summary); err != nil {
		log.Printf("[周期:%s] ⚠ 写入周期记录失败: %v", tag, err)
	}

	s.mu.Lock()
	last := summary
	s.lastCycle = &last
	s.mu.Unlock()

	metrics.Cycles.WithLabelValues(string(summary.Status)).Inc()
	s.refreshGauges()
	log.Printf("[周期:%s] ■ 结束 状态=%s 处理=%d 开仓=%d 平仓=%d 跳过=%d 错误=%d 耗时=%s",
		tag, summary.Status, summary.Processed, summary.Entered, summary.Exited, summary.Skipped, summary.Errors,
		summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	return summary, cycleErr
}

func (s *Service) runSequential(ctx context.Context, tag string, symbols []string, params domain.RiskParameters, summary *domain.CycleSummary) bool {
	for i, sym := range symbols {
		if ctx.Err() != nil {
			log.Printf("[周期:%s] ⏹ 收到停止信号，剩余 %d 个币对本轮不再处理", tag, len(symbols)-i)
			return false
		}
		out := s.processSymbol(ctx, tag, sym, params)
		tally(summary, out)
		if out.rateLimited() {
			log.Printf("[周期:%s] ⚠ %s 触发限频，提前结束本轮", tag, sym)
			return true
		}
		if i < len(symbols)-1 && s.opts.SymbolDelay > 0 {
			if err := sleepCtx(ctx, s.opts.SymbolDelay); err != nil {
				return false
			}
		}
	}
	return false
}

// runConcurrent 不同币对并发处理，同一币对由 position.Store.Lock 串行化
func (s *Service) runConcurrent(ctx context.Context, tag string, symbols []string, params domain.RiskParameters, summary *domain.CycleSummary) bool {
	workCtx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		mu          sync.Mutex
		wg          sync.WaitGroup
		rateLimited bool
	)
	sem := make(chan struct{}, s.opts.Concurrency)
	for _, sym := range symbols {
		select {
		case sem <- struct{}{}:
		case <-workCtx.Done():
		}
		if workCtx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			defer func() { <-sem }()
			out := s.processSymbol(workCtx, tag, sym, params)
			mu.Lock()
			defer mu.Unlock()
			tally(summary, out)
			if out.rateLimited() && !rateLimited {
				rateLimited = true
				log.Printf("[周期:%s] ⚠ %s 触发限频，停止派发剩余币对", tag, sym)
				stop()
			}
		}(sym)
	}
	wg.Wait()
	return rateLimited
}

func (s *Service) contextScore(ctx context.Context) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()
	score, err := s.scorer.Score(callCtx)
	if err != nil {
		return 0, err
	}
	metrics.ContextScore.Set(score)
	return score, nil
}

// Persist 保存当前快照
func (s *Service) Persist(ctx context.Context) error {
	positions, pending := s.positions.Export()
	s.mu.RLock()
	lastCheck := s.lastCheck
	s.mu.RUnlock()

	state := store.State{
		Stats:     s.stats.Snapshot(),
		Positions: positions,
		Pending:   pending,
		LastCheck: lastCheck,
		SavedAt:   s.clock.Now(),
	}
	if err := s.repo.SaveSnapshot(ctx, state); err != nil {
		log.Printf("[存储] ✘ 保存快照失败: %v", err)
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// View 只读状态视图
type View struct {
	Strategy  string                         `json:"strategy"`
	Stats     domain.RunningStats            `json:"stats"`
	Report    stats.Report                   `json:"report"`
	Positions []domain.Position              `json:"positions"`
	Pending   map[string]domain.PendingOrder `json:"pending"`
	LastCheck time.Time                      `json:"last_check"`
	LastCycle *domain.CycleSummary           `json:"last_cycle,omitempty"`
	Params    domain.RiskParameters          `json:"params"`
}

func (s *Service) Snapshot() View {
	st := s.stats.Snapshot()
	_, pending := s.positions.Export()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		Strategy:  s.engine.Name(),
		Stats:     st,
		Report:    stats.BuildReport(st),
		Positions: s.positions.All(),
		Pending:   pending,
		LastCheck: s.lastCheck,
		LastCycle: s.lastCycle,
		Params:    s.params,
	}
}

func (s *Service) ListTrades(ctx context.Context, limit int) ([]domain.ClosedTrade, error) {
	return s.repo.ListTrades(ctx, limit)
}

func (s *Service) ListCycles(ctx context.Context, page, pageSize int) ([]domain.CycleSummary, int, error) {
	cycles, err := s.repo.ListCycles(ctx, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountCycles(ctx)
	if err != nil {
		return nil, 0, err
	}
	return cycles, total, nil
}

func (s *Service) refreshGauges() {
	st := s.stats.Snapshot()
	metrics.Capital.Set(st.CurrentCapital)
	metrics.ConsecutiveLosses.Set(float64(st.ConsecutiveLosses))
	metrics.OpenPositions.Set(float64(s.positions.Len()))
}

func normalizeSymbol(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
