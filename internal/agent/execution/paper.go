package execution

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"robot_crypt/internal/domain"
	"robot_crypt/internal/market"
)

// paperFee 模拟成交的吃单手续费
const paperFee = 0.001

// PaperExecutor 模拟盘：按行情现价即时成交，本地维护余额
type PaperExecutor struct {
	mu       sync.Mutex
	market   market.Provider
	quote    string
	balances map[string]domain.Balance
	orders   map[string]domain.OrderResult // 按客户端订单号
	seq      int
}

// NewPaper quoteAsset 为计价币，初始余额为 capital
func NewPaper(provider market.Provider, quoteAsset string, capital float64) *PaperExecutor {
	quote := strings.ToUpper(quoteAsset)
	return &PaperExecutor{
		market:   provider,
		quote:    quote,
		balances: map[string]domain.Balance{quote: {Free: capital}},
		orders:   make(map[string]domain.OrderResult),
	}
}

// RestoreLedger 按快照重建余额：计价币为当前资金扣除持仓占用，基础币为各持仓数量
func (e *PaperExecutor) RestoreLedger(capital float64, positions []domain.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.balances = make(map[string]domain.Balance, len(positions)+1)
	free := capital
	for _, p := range positions {
		base, _ := domain.SplitPair(p.Symbol)
		b := e.balances[base]
		b.Free += p.Quantity
		e.balances[base] = b
		free -= p.Quantity * p.EntryPrice * (1 + paperFee)
	}
	if free < 0 {
		free = 0
	}
	e.balances[e.quote] = domain.Balance{Free: free}
	log.Printf("[执行] 模拟盘余额已按快照重建: %s=%.4f 持仓币种=%d", e.quote, free, len(e.balances)-1)
}

func (e *PaperExecutor) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if req.Quantity <= 0 {
		return domain.OrderResult{}, fmt.Errorf("%w: non-positive quantity %v", domain.ErrExecutionFailed, req.Quantity)
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = NewClientOrderID()
	}

	e.mu.Lock()
	if prev, ok := e.orders[req.ClientOrderID]; ok {
		e.mu.Unlock()
		return prev, nil
	}
	e.mu.Unlock()

	price := req.Price
	if req.Type != domain.OrderTypeLimit || price <= 0 {
		p, err := e.market.Price(ctx, req.Symbol)
		if err != nil {
			return domain.OrderResult{ClientOrderID: req.ClientOrderID}, fmt.Errorf("%w: price for %s: %w", domain.ErrExecutionFailed, req.Symbol, err)
		}
		price = p
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	base, quote := domain.SplitPair(req.Symbol)
	cost := req.Quantity * price
	fee := cost * paperFee

	switch req.Side {
	case domain.SideBuy:
		qb := e.balances[quote]
		if qb.Free < cost+fee {
			return domain.OrderResult{ClientOrderID: req.ClientOrderID, Status: domain.OrderStatusRejected},
				fmt.Errorf("%w: insufficient %s balance %.4f < %.4f", domain.ErrExecutionFailed, quote, qb.Free, cost+fee)
		}
		qb.Free -= cost + fee
		e.balances[quote] = qb
		bb := e.balances[base]
		bb.Free += req.Quantity
		e.balances[base] = bb
	case domain.SideSell:
		bb := e.balances[base]
		if bb.Free+1e-12 < req.Quantity {
			return domain.OrderResult{ClientOrderID: req.ClientOrderID, Status: domain.OrderStatusRejected},
				fmt.Errorf("%w: insufficient %s balance %.8f < %.8f", domain.ErrExecutionFailed, base, bb.Free, req.Quantity)
		}
		bb.Free -= req.Quantity
		if bb.Free < 1e-12 {
			delete(e.balances, base)
		} else {
			e.balances[base] = bb
		}
		qb := e.balances[quote]
		qb.Free += cost - fee
		e.balances[quote] = qb
	default:
		return domain.OrderResult{}, fmt.Errorf("%w: unknown side %q", domain.ErrExecutionFailed, req.Side)
	}

	e.seq++
	result := domain.OrderResult{
		OrderID:       fmt.Sprintf("paper-%d", e.seq),
		ClientOrderID: req.ClientOrderID,
		Status:        domain.OrderStatusFilled,
		FilledQty:     req.Quantity,
		AvgPrice:      price,
	}
	e.orders[req.ClientOrderID] = result
	log.Printf("[执行] 模拟%s: %s 数量=%.8f @ %.8f 手续费=%.6f %s",
		sideLabel(req.Side), req.Symbol, req.Quantity, price, fee, quote)
	return result, nil
}

func (e *PaperExecutor) QueryOrder(_ context.Context, _ string, clientOrderID string) (domain.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.orders[clientOrderID]; ok {
		return r, nil
	}
	return domain.OrderResult{ClientOrderID: clientOrderID, Status: domain.OrderStatusNotFound}, nil
}

func (e *PaperExecutor) Balances(_ context.Context) (map[string]domain.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]domain.Balance, len(e.balances))
	for k, v := range e.balances {
		out[k] = v
	}
	return out, nil
}

func sideLabel(s domain.Side) string {
	if s == domain.SideSell {
		return "卖出"
	}
	return "买入"
}
