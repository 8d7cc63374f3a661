package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"robot_crypt/internal/agent/execution"
	"robot_crypt/internal/agent/strategy"
	"robot_crypt/internal/domain"
	"robot_crypt/internal/metrics"

	"github.com/google/uuid"
)

// SymbolState 单个币对的生命周期状态
type SymbolState string

const (
	StateFlat         SymbolState = "flat"
	StateOpen         SymbolState = "open"
	StatePendingEntry SymbolState = "pending_entry" // 买单结果未知，等待对账
	StatePendingExit  SymbolState = "pending_exit"  // 卖单结果未知，等待对账
)

type outcomeKind int

const (
	outcomeNone outcomeKind = iota
	outcomeEntered
	outcomeExited
	outcomeSkipped
	outcomeError
)

type symbolOutcome struct {
	kind outcomeKind
	err  error
}

func (o symbolOutcome) rateLimited() bool {
	return o.err != nil && errors.Is(o.err, domain.ErrRateLimited)
}

func tally(summary *domain.CycleSummary, out symbolOutcome) {
	summary.Processed++
	switch out.kind {
	case outcomeEntered:
		summary.Entered++
	case outcomeExited:
		summary.Exited++
	case outcomeSkipped:
		summary.Skipped++
	case outcomeError:
		summary.Errors++
	}
}

// State 当前币对所处状态
func (s *Service) State(symbol string) SymbolState {
	if o, ok := s.positions.Pending(symbol); ok {
		if o.Side == domain.SideSell {
			return StatePendingExit
		}
		return StatePendingEntry
	}
	if _, ok := s.positions.Get(symbol); ok {
		return StateOpen
	}
	return StateFlat
}

// processSymbol 同一币对在锁内完成 对账/决策/下单，不同币对互不阻塞
func (s *Service) processSymbol(ctx context.Context, tag, symbol string, params domain.RiskParameters) symbolOutcome {
	unlock := s.positions.Lock(symbol)
	defer unlock()

	out := s.step(ctx, tag, symbol, params)
	if out.err != nil {
		if ctx.Err() != nil && errors.Is(out.err, context.Canceled) {
			return symbolOutcome{kind: outcomeSkipped}
		}
		log.Printf("[周期:%s] ✘ %s: %v", tag, symbol, out.err)
	}
	return out
}

func (s *Service) step(ctx context.Context, tag, symbol string, params domain.RiskParameters) symbolOutcome {
	switch s.State(symbol) {
	case StatePendingEntry, StatePendingExit:
		return s.reconcile(ctx, tag, symbol, params)
	}

	var posPtr *domain.Position
	if pos, ok := s.positions.Get(symbol); ok {
		posPtr = &pos
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	decision, err := s.engine.Decide(callCtx, symbol, posPtr, params, s.clock)
	cancel()
	metrics.Decisions.WithLabelValues(s.engine.Name(), string(decision.Action)).Inc()
	if err != nil {
		return symbolOutcome{kind: outcomeError, err: err}
	}

	switch decision.Action {
	case domain.ActionEnter:
		if posPtr != nil {
			return symbolOutcome{kind: outcomeSkipped}
		}
		log.Printf("[周期:%s] [策略] %s → %s", tag, symbol, decision)
		return s.enter(ctx, tag, symbol, decision, params)
	case domain.ActionExit:
		if posPtr == nil {
			return symbolOutcome{kind: outcomeSkipped}
		}
		log.Printf("[周期:%s] [策略] %s → %s", tag, symbol, decision)
		return s.exit(ctx, tag, *posPtr, decision.Reason)
	default:
		return symbolOutcome{kind: outcomeNone}
	}
}

// enter 开仓：风控闸门 → 延迟重新取价 → 计算数量 → 余额检查 → 下单
func (s *Service) enter(ctx context.Context, tag, symbol string, decision domain.Decision, params domain.RiskParameters) symbolOutcome {
	// 闸门检查与占用名额是同一步，并发币对不会一起越过日内限额
	var rejectReason string
	st, ok := s.stats.ReserveEntry(func(cur domain.RunningStats) bool {
		v := s.guard.EvaluateEntry(cur, params)
		rejectReason = v.RejectReason
		return v.Approved
	})
	if !ok {
		log.Printf("[周期:%s] [风控] %s 拒绝开仓: %s", tag, symbol, rejectReason)
		return symbolOutcome{kind: outcomeSkipped}
	}
	reserved := true
	defer func() {
		if reserved {
			s.stats.ReleaseEntry()
		}
	}()

	price := decision.Price
	if decision.Delay > 0 {
		log.Printf("[周期:%s] [策略] %s 等待 %s 后确认价格", tag, symbol, decision.Delay)
		if err := sleepCtx(ctx, decision.Delay); err != nil {
			return symbolOutcome{kind: outcomeSkipped}
		}
		callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		p, err := s.market.Price(callCtx, symbol)
		cancel()
		if err != nil {
			return symbolOutcome{kind: outcomeError, err: fmt.Errorf("%w: recheck %s: %w", domain.ErrDataUnavailable, symbol, err)}
		}
		if p < strategy.MinTradablePrice {
			return symbolOutcome{kind: outcomeSkipped}
		}
		price = p
	}

	qty := strategy.CalculatePositionSize(st.CurrentCapital, price, params, st.ConsecutiveLosses)

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	balances, err := s.executor.Balances(callCtx)
	cancel()
	if err != nil {
		return symbolOutcome{kind: outcomeError, err: fmt.Errorf("balances: %w", err)}
	}
	quote := s.quoteOf(symbol)
	free := balances[quote].Free / (1 + strategy.TakerFee)
	qty, reason := s.guard.CapQuantity(qty, price, free)
	if reason != "" {
		log.Printf("[周期:%s] [风控] %s 跳过开仓: %s", tag, symbol, reason)
		return symbolOutcome{kind: outcomeSkipped}
	}
	qty = strategy.RoundQuantity(qty, price)
	if qty <= 0 {
		log.Printf("[周期:%s] [风控] %s 取整后数量为 0，跳过", tag, symbol)
		return symbolOutcome{kind: outcomeSkipped}
	}

	req := domain.OrderRequest{
		ClientOrderID: execution.NewClientOrderID(),
		Symbol:        symbol,
		Side:          domain.SideBuy,
		Type:          domain.OrderTypeMarket,
		Quantity:      qty,
		Price:         price,
	}
	res, err := s.place(ctx, tag, req, "")
	if _, pending := s.positions.Pending(symbol); pending {
		// 待对账的买单继续占用名额，对账确认未成交时再归还
		reserved = false
	}
	if err != nil {
		return symbolOutcome{kind: outcomeError, err: err}
	}
	if !res.Filled() {
		return symbolOutcome{kind: outcomeSkipped}
	}
	reserved = false
	if err := s.applyEntry(symbol, res, price, params); err != nil {
		return symbolOutcome{kind: outcomeError, err: err}
	}
	return symbolOutcome{kind: outcomeEntered}
}

// exit 平仓不受日内限额约束
func (s *Service) exit(ctx context.Context, tag string, pos domain.Position, reason string) symbolOutcome {
	req := domain.OrderRequest{
		ClientOrderID: execution.NewClientOrderID(),
		Symbol:        pos.Symbol,
		Side:          domain.SideSell,
		Type:          domain.OrderTypeMarket,
		Quantity:      pos.Quantity,
	}
	res, err := s.place(ctx, tag, req, reason)
	if err != nil {
		return symbolOutcome{kind: outcomeError, err: err}
	}
	if !res.Filled() {
		return symbolOutcome{kind: outcomeSkipped}
	}
	s.applyExit(ctx, pos, res, reason)
	return symbolOutcome{kind: outcomeExited}
}

// place 下单不随关闭信号中断；结果未知或仍在挂单时登记为待对账
func (s *Service) place(ctx context.Context, tag string, req domain.OrderRequest, reason string) (domain.OrderResult, error) {
	orderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CallTimeout)
	defer cancel()

	res, err := s.executor.PlaceOrder(orderCtx, req)
	side := string(req.Side)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrExecutionAmbiguous):
		metrics.Orders.WithLabelValues(side, "ambiguous").Inc()
		s.markPending(req, reason)
		log.Printf("[周期:%s] [对账] ⚠ %s %s 结果未知，登记待对账 客户端ID=%s", tag, req.Side, req.Symbol, req.ClientOrderID)
		return res, err
	case errors.Is(err, domain.ErrRateLimited):
		metrics.Orders.WithLabelValues(side, "rate_limited").Inc()
		return res, err
	default:
		metrics.Orders.WithLabelValues(side, "failed").Inc()
		s.notifier.Alert(fmt.Sprintf("%s %s 下单失败: %v", req.Side, req.Symbol, err))
		return res, err
	}

	switch {
	case res.Filled():
		metrics.Orders.WithLabelValues(side, "filled").Inc()
		if res.Status == domain.OrderStatusPartial {
			log.Printf("[周期:%s] [执行] ⚠ %s 部分成交 %.8f/%.8f", tag, req.Symbol, res.FilledQty, req.Quantity)
		}
		return res, nil
	case res.Status == domain.OrderStatusOpen:
		metrics.Orders.WithLabelValues(side, "open").Inc()
		s.markPending(req, reason)
		log.Printf("[周期:%s] [对账] %s 订单已提交未成交，下一轮确认", tag, req.Symbol)
		return res, nil
	default:
		metrics.Orders.WithLabelValues(side, "failed").Inc()
		return res, fmt.Errorf("%w: %s order for %s returned status %q", domain.ErrExecutionFailed, req.Side, req.Symbol, res.Status)
	}
}

func (s *Service) markPending(req domain.OrderRequest, reason string) {
	s.positions.SetPending(domain.PendingOrder{
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		Price:         req.Price,
		Reason:        reason,
		SubmittedAt:   s.clock.Now(),
	})
}

// reconcile 先向交易所确认待对账订单的真实状态，本轮不再做新决策
func (s *Service) reconcile(ctx context.Context, tag, symbol string, params domain.RiskParameters) symbolOutcome {
	pending, _ := s.positions.Pending(symbol)

	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	res, err := s.executor.QueryOrder(callCtx, symbol, pending.ClientOrderID)
	cancel()
	if err != nil {
		return symbolOutcome{kind: outcomeError, err: fmt.Errorf("reconcile %s: %w", pending.ClientOrderID, err)}
	}

	switch {
	case res.Filled():
		s.positions.ClearPending(symbol)
		log.Printf("[周期:%s] [对账] ✔ %s %s 已成交 数量=%.8f 均价=%.8f", tag, symbol, pending.Side, res.FilledQty, res.AvgPrice)
		if pending.Side == domain.SideSell {
			pos, ok := s.positions.Get(symbol)
			if !ok {
				return symbolOutcome{kind: outcomeSkipped}
			}
			reason := pending.Reason
			if reason == "" {
				reason = "reconciled"
			}
			s.applyExit(ctx, pos, res, reason)
			return symbolOutcome{kind: outcomeExited}
		}
		if err := s.applyEntry(symbol, res, pending.Price, params); err != nil {
			return symbolOutcome{kind: outcomeError, err: err}
		}
		return symbolOutcome{kind: outcomeEntered}
	case res.Status == domain.OrderStatusOpen:
		log.Printf("[周期:%s] [对账] %s 订单仍未成交，继续等待", tag, symbol)
		return symbolOutcome{kind: outcomeSkipped}
	default:
		// 交易所没有这笔订单或已拒绝，状态回到下单前
		s.positions.ClearPending(symbol)
		if pending.Side == domain.SideBuy {
			s.stats.ReleaseEntry()
		}
		log.Printf("[周期:%s] [对账] %s 订单 %s 状态=%s，视为未成交", tag, symbol, pending.ClientOrderID, res.Status)
		return symbolOutcome{kind: outcomeSkipped}
	}
}

// applyEntry 登记持仓。trades_today 名额在下单前已占用
func (s *Service) applyEntry(symbol string, res domain.OrderResult, quotedPrice float64, params domain.RiskParameters) error {
	price := res.AvgPrice
	if price <= 0 {
		price = quotedPrice
	}
	pos := s.engine.OnFill(domain.Position{
		Symbol:     symbol,
		Strategy:   s.engine.Name(),
		EntryPrice: price,
		Quantity:   res.FilledQty,
		EntryTime:  s.clock.Now(),
		OrderID:    res.OrderID,
	}, params)
	if err := s.positions.Put(pos); err != nil {
		return err
	}
	metrics.OpenPositions.Set(float64(s.positions.Len()))
	s.notifier.TradeOpened(pos)
	return nil
}

// applyExit 更新统计、写交易日志并通知。部分成交时剩余数量继续持有
func (s *Service) applyExit(ctx context.Context, pos domain.Position, res domain.OrderResult, reason string) {
	now := s.clock.Now()
	exitPrice := res.AvgPrice
	qty := res.FilledQty
	if qty > pos.Quantity {
		qty = pos.Quantity
	}

	net := strategy.NetProfit(pos.EntryPrice, exitPrice)
	pnl := qty*(exitPrice-pos.EntryPrice) - qty*(pos.EntryPrice+exitPrice)*strategy.TakerFee

	s.positions.Remove(pos.Symbol)
	if remaining := strategy.RoundQuantity(pos.Quantity-qty, exitPrice); remaining > 0 {
		rest := pos
		rest.Quantity = remaining
		if err := s.positions.Put(rest); err != nil {
			log.Printf("[持仓] ✘ %s 保留剩余仓位失败: %v", pos.Symbol, err)
		}
	}

	st := s.stats.RecordExit(net, pnl)
	trade := domain.ClosedTrade{
		ID:         uuid.NewString(),
		Symbol:     pos.Symbol,
		Strategy:   pos.Strategy,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   qty,
		NetReturn:  net,
		PnL:        pnl,
		Reason:     reason,
		EntryTime:  pos.EntryTime,
		ExitTime:   now,
		HoldFor:    now.Sub(pos.EntryTime),
	}
	if err := s.repo.InsertTrade(context.WithoutCancel(ctx), trade); err != nil {
		log.Printf("[存储] ⚠ 写入交易记录失败: %v", err)
	}

	result := "loss"
	if net > 0 {
		result = "win"
	}
	metrics.Trades.WithLabelValues(result).Inc()
	metrics.ExitReasons.WithLabelValues(reason).Inc()
	s.refreshGauges()
	log.Printf("[持仓] %s 平仓 原因=%s 收益=%+.2f%% 盈亏=%+.4f 资金=%.2f 连亏=%d",
		pos.Symbol, reason, net*100, pnl, st.CurrentCapital, st.ConsecutiveLosses)
	s.notifier.TradeClosed(trade, st)
}

func (s *Service) quoteOf(symbol string) string {
	if _, quote := domain.SplitPair(symbol); quote != "" {
		return quote
	}
	return s.opts.QuoteAsset
}
