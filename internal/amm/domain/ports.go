package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// 本包对外部模块只通过以下窄接口依赖，由组装层注入适配器，
// 避免池引擎、回合调度与结算之间的模块环
// AMMConfig 做市参数，回合创建时从配置存储即时读取
type AMMConfig struct {
	FeeRate          decimal.Decimal
	MinTradeAmount   decimal.Decimal
	MaxTradeAmount   decimal.Decimal
	MinReserveRatio  decimal.Decimal
	InitialLiquidity decimal.Decimal
}

// ConfigPort 做市参数读取
type ConfigPort interface {
	AMMConfig(ctx context.Context, category string) (*AMMConfig, error)
}

// TradingRound 交易视角的回合信息
type TradingRound struct {
	RoundID  int64
	Category string
	// 是否处于下注窗口（BETTING 且未到封盘时间）
	CanTrade bool
}

// RoundPort 回合状态查询
type RoundPort interface {
	Get(ctx context.Context, roundID int64) (*TradingRound, error)
}

// BalancePort 余额操作，实现方保证乐观锁语义：
// 版本冲突返回可重试错误，余额不足返回领域错误，均不产生部分变更
type BalancePort interface {
	Debit(ctx context.Context, userID string, amount decimal.Decimal) error
	Credit(ctx context.Context, userID string, amount decimal.Decimal) error
}

// PositionView 持仓视图，交易执行结果的一部分
type PositionView struct {
	UserID       string          `json:"user_id"`
	RoundID      int64           `json:"round_id"`
	Side         string          `json:"side"`
	Shares       decimal.Decimal `json:"shares"`
	AvgCost      decimal.Decimal `json:"avg_cost"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	ClosedShares decimal.Decimal `json:"closed_shares"`
	RealizedPnL  decimal.Decimal `json:"realized_pnl"`
	Status       string          `json:"status"`
}

// PositionPort 持仓台账操作，必须与触发交易处于同一事务
type PositionPort interface {
	// AddShares 买入合并持仓（加权平均成本）
	AddShares(ctx context.Context, userID string, roundID int64, side Side, shares, cost decimal.Decimal) (*PositionView, error)
	// CloseShares 卖出平仓，可卖份额不足时返回 ErrInsufficientShares
	CloseShares(ctx context.Context, userID string, roundID int64, side Side, shares, amountOut decimal.Decimal) (*PositionView, error)
	// AvailableShares 当前可卖份额
	AvailableShares(ctx context.Context, userID string, roundID int64, side Side) (decimal.Decimal, error)
}

// Broadcaster 事件广播，尽力而为：失败只记日志，绝不中断核心事务
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any)
}

// ActionRecorder 行为进度上报（任务/成就系统），同样尽力而为
type ActionRecorder interface {
	RecordAction(ctx context.Context, userID, actionType string)
}
