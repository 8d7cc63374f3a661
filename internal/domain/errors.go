package domain

import "errors"

var (
	// ErrDataUnavailable 行情获取失败或超时，本轮跳过该币对
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrExecutionFailed 下单明确失败，持仓状态不变，下一轮重试
	ErrExecutionFailed = errors.New("order execution failed")
	// ErrExecutionAmbiguous 下单超时等无法确认交易所结果，必须先对账
	ErrExecutionAmbiguous = errors.New("order execution outcome unknown")
	// ErrConfigurationInvalid 配置越界，启动即失败
	ErrConfigurationInvalid = errors.New("configuration invalid")
	// ErrRateLimited 触发交易所限频（HTTP 429）
	ErrRateLimited = errors.New("rate limited")
	// ErrPositionExists 同一币对已有持仓
	ErrPositionExists = errors.New("position already open")
)
