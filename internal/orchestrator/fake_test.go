package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"robot_crypt/internal/domain"
	"robot_crypt/internal/store"
)

var errBoom = errors.New("boom")

// scriptedEngine 按币对返回预设的决策
type scriptedEngine struct {
	mu        sync.Mutex
	decisions map[string]domain.Decision
	errs      map[string]error
	calls     map[string]int
}

func newScriptedEngine() *scriptedEngine {
	return &scriptedEngine{
		decisions: map[string]domain.Decision{},
		errs:      map[string]error{},
		calls:     map[string]int{},
	}
}

func (e *scriptedEngine) set(symbol string, d domain.Decision) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decisions[symbol] = d
}

func (e *scriptedEngine) fail(symbol string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs[symbol] = err
}

func (e *scriptedEngine) callCount(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[symbol]
}

func (e *scriptedEngine) Name() string { return "scripted" }

func (e *scriptedEngine) Decide(_ context.Context, symbol string, _ *domain.Position, _ domain.RiskParameters, _ domain.Clock) (domain.Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[symbol]++
	if err := e.errs[symbol]; err != nil {
		return domain.NoAction(), err
	}
	if d, ok := e.decisions[symbol]; ok {
		return d, nil
	}
	return domain.NoAction(), nil
}

func (e *scriptedEngine) OnFill(pos domain.Position, _ domain.RiskParameters) domain.Position {
	pos.Strategy = "scripted"
	return pos
}

type fakeMarket struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
	calls  int
}

func (m *fakeMarket) Price(_ context.Context, pair string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	return m.prices[pair], nil
}

func (m *fakeMarket) Candles(context.Context, string, string, int) ([]domain.Kline, error) {
	return nil, nil
}

func (m *fakeMarket) Volume(context.Context, string, int) (domain.VolumeStats, error) {
	return domain.VolumeStats{}, nil
}

// fakeExecutor 默认按请求价（卖单按 fillPrice）全部成交
type fakeExecutor struct {
	mu        sync.Mutex
	fillPrice float64
	placeErr  []error // 依次消费，nil 表示正常成交
	status    domain.OrderStatus
	query     domain.OrderResult
	queryErr  error
	balance   float64
	delay     time.Duration // 模拟下单耗时
	orders    []domain.OrderRequest
	queries   int
}

func newFakeExecutor(balance float64) *fakeExecutor {
	return &fakeExecutor{balance: balance, status: domain.OrderStatusFilled}
}

func (x *fakeExecutor) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if x.delay > 0 {
		time.Sleep(x.delay)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.orders = append(x.orders, req)
	if len(x.placeErr) > 0 {
		err := x.placeErr[0]
		x.placeErr = x.placeErr[1:]
		if err != nil {
			return domain.OrderResult{ClientOrderID: req.ClientOrderID}, err
		}
	}
	price := req.Price
	if req.Side == domain.SideSell || price == 0 {
		price = x.fillPrice
	}
	res := domain.OrderResult{
		OrderID:       "ex-1",
		ClientOrderID: req.ClientOrderID,
		Status:        x.status,
		AvgPrice:      price,
	}
	if x.status == domain.OrderStatusFilled {
		res.FilledQty = req.Quantity
	}
	return res, nil
}

func (x *fakeExecutor) QueryOrder(_ context.Context, _ string, clientOrderID string) (domain.OrderResult, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.queries++
	res := x.query
	res.ClientOrderID = clientOrderID
	return res, x.queryErr
}

func (x *fakeExecutor) Balances(context.Context) (map[string]domain.Balance, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return map[string]domain.Balance{"USDT": {Free: x.balance}}, nil
}

func (x *fakeExecutor) orderCount() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.orders)
}

// memRepo 内存版 store.Repository
type memRepo struct {
	mu       sync.Mutex
	state    *store.State
	trades   []domain.ClosedTrade
	cycles   []domain.CycleSummary
	saveErr  error
	saveHits int
}

var _ store.Repository = (*memRepo)(nil)

func (r *memRepo) Init(context.Context) error { return nil }

func (r *memRepo) Close() error { return nil }

func (r *memRepo) SaveSnapshot(_ context.Context, s store.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveHits++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.state = &s
	return nil
}

func (r *memRepo) LoadSnapshot(context.Context) (*store.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, nil
}

func (r *memRepo) InsertTrade(_ context.Context, t domain.ClosedTrade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, t)
	return nil
}

func (r *memRepo) ListTrades(_ context.Context, limit int) ([]domain.ClosedTrade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > 0 && limit < len(r.trades) {
		return append([]domain.ClosedTrade(nil), r.trades[:limit]...), nil
	}
	return append([]domain.ClosedTrade(nil), r.trades...), nil
}

func (r *memRepo) InsertCycle(_ context.Context, c domain.CycleSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, c)
	return nil
}

func (r *memRepo) ListCycles(context.Context, int, int) ([]domain.CycleSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.CycleSummary(nil), r.cycles...), nil
}

func (r *memRepo) CountCycles(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cycles), nil
}

func (r *memRepo) ResetAllData(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state, r.trades, r.cycles = nil, nil, nil
	return nil
}

// recordingNotifier 只计数
type recordingNotifier struct {
	mu     sync.Mutex
	opened int
	closed int
	alerts []string
}

func (n *recordingNotifier) TradeOpened(domain.Position) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.opened++
}

func (n *recordingNotifier) TradeClosed(domain.ClosedTrade, domain.RunningStats) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed++
}

func (n *recordingNotifier) Alert(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, msg)
}

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)
