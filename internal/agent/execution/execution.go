package execution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	"robot_crypt/internal/domain"
	"robot_crypt/internal/market"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Binance 错误码：订单不存在
const codeOrderNotFound = -2013

// Executor 下单端口。PlaceOrder 返回的错误包装以下之一：
// domain.ErrExecutionFailed（明确失败）、domain.ErrExecutionAmbiguous（结果未知，需对账）、domain.ErrRateLimited
type Executor interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	// QueryOrder 按客户端订单号查询，用于对账。订单不存在时返回 Status=not_found
	QueryOrder(ctx context.Context, symbol, clientOrderID string) (domain.OrderResult, error)
	Balances(ctx context.Context) (map[string]domain.Balance, error)
}

// LedgerRestorer 本地记账的执行器（模拟盘）实现，恢复快照后据此重建余额
type LedgerRestorer interface {
	RestoreLedger(capital float64, positions []domain.Position)
}

// NewClientOrderID 生成客户端订单号，重复提交时交易所据此去重
func NewClientOrderID() string {
	return "rc" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

// BinanceExecutor 通过 Binance 现货接口下单
type BinanceExecutor struct {
	client *binance.Client
}

func NewBinance(apiKey, secretKey string, testnet bool) *BinanceExecutor {
	if testnet {
		binance.UseTestnet = true
	}
	return &BinanceExecutor{client: binance.NewClient(apiKey, secretKey)}
}

// WithBaseURL 覆盖接口地址（测试用）
func (e *BinanceExecutor) WithBaseURL(baseURL string) *BinanceExecutor {
	e.client.BaseURL = baseURL
	return e
}

func (e *BinanceExecutor) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if req.Quantity <= 0 {
		return domain.OrderResult{}, fmt.Errorf("%w: non-positive quantity %v", domain.ErrExecutionFailed, req.Quantity)
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = NewClientOrderID()
	}
	symbol := domain.PairToSymbol(req.Symbol)

	svc := e.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binanceSide(req.Side)).
		Quantity(formatDecimal(req.Quantity)).
		NewClientOrderID(req.ClientOrderID)
	if req.Type == domain.OrderTypeLimit {
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(formatDecimal(req.Price))
	} else {
		svc = svc.Type(binance.OrderTypeMarket)
	}

	log.Printf("[执行] 发送 Binance 订单: %s %s 数量=%s 客户端ID=%s", req.Side, symbol, formatDecimal(req.Quantity), req.ClientOrderID)
	resp, err := svc.Do(ctx)
	if err != nil {
		log.Printf("[执行] ✘ Binance 下单失败: %v", err)
		return domain.OrderResult{ClientOrderID: req.ClientOrderID}, classifyOrderError(err)
	}

	filled := parseFloat(resp.ExecutedQuantity)
	result := domain.OrderResult{
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Status:        mapBinanceStatus(resp.Status, filled),
		FilledQty:     filled,
	}
	result.AvgPrice = avgPrice(resp.CummulativeQuoteQuantity, result.FilledQty)
	log.Printf("[执行] ✔ Binance 订单完成: ID=%s 状态=%s 成交=%.8f 均价=%.8f",
		result.OrderID, result.Status, result.FilledQty, result.AvgPrice)
	return result, nil
}

func (e *BinanceExecutor) QueryOrder(ctx context.Context, symbol, clientOrderID string) (domain.OrderResult, error) {
	order, err := e.client.NewGetOrderService().
		Symbol(domain.PairToSymbol(symbol)).
		OrigClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeOrderNotFound {
			return domain.OrderResult{ClientOrderID: clientOrderID, Status: domain.OrderStatusNotFound}, nil
		}
		return domain.OrderResult{}, classifyQueryError(err)
	}
	filled := parseFloat(order.ExecutedQuantity)
	return domain.OrderResult{
		OrderID:       strconv.FormatInt(order.OrderID, 10),
		ClientOrderID: order.ClientOrderID,
		Status:        mapBinanceStatus(order.Status, filled),
		FilledQty:     filled,
		AvgPrice:      avgPrice(order.CummulativeQuoteQuantity, filled),
	}, nil
}

func (e *BinanceExecutor) Balances(ctx context.Context) (map[string]domain.Balance, error) {
	account, err := e.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, classifyQueryError(err)
	}
	balances := make(map[string]domain.Balance, len(account.Balances))
	for _, b := range account.Balances {
		free, locked := parseFloat(b.Free), parseFloat(b.Locked)
		if free+locked <= 0 {
			continue
		}
		balances[b.Asset] = domain.Balance{Free: free, Locked: locked}
	}
	log.Printf("[交易所] 同步到 %d 个币种余额", len(balances))
	return balances, nil
}

// mapBinanceStatus 将 Binance 订单状态映射为内部状态。
// 已终止（过期、撤销）但有成交量的订单按部分成交处理，成交部分必须记成持仓
func mapBinanceStatus(s binance.OrderStatusType, filledQty float64) domain.OrderStatus {
	switch s {
	case binance.OrderStatusTypeFilled:
		return domain.OrderStatusFilled
	case binance.OrderStatusTypePartiallyFilled:
		return domain.OrderStatusPartial
	case binance.OrderStatusTypeNew:
		return domain.OrderStatusOpen
	}
	if filledQty > 0 {
		return domain.OrderStatusPartial
	}
	return domain.OrderStatusRejected
}

func binanceSide(s domain.Side) binance.SideType {
	if s == domain.SideSell {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}

// classifyOrderError 交易所明确返回的错误是失败；没有响应（超时、连接中断）的结果未知
func classifyOrderError(err error) error {
	if market.IsRateLimitError(err) {
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", domain.ErrExecutionFailed, err)
	}
	if isTimeout(err) {
		log.Printf("[执行] ⚠ 下单超时，结果未知，下一轮先对账")
	}
	return fmt.Errorf("%w: %w", domain.ErrExecutionAmbiguous, err)
}

func classifyQueryError(err error) error {
	if market.IsRateLimitError(err) {
		return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	}
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func avgPrice(quoteQty string, filled float64) float64 {
	if filled <= 0 {
		return 0
	}
	return parseFloat(quoteQty) / filled
}

func formatDecimal(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
