package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrBettingClosed 回合不在下注窗口
var ErrBettingClosed = errors.New("betting window closed")

// ErrConcurrencyConflict 余额版本冲突，可整体重试
var ErrConcurrencyConflict = errors.New("balance was modified concurrently, retry the operation")

// ErrInvalidAmount 金额非法或超出限额
var ErrInvalidAmount = errors.New("invalid bet amount")

// BettingRound 投注视角的回合信息
type BettingRound struct {
	RoundID  int64
	Category string
	// 是否处于下注窗口
	CanBet bool
}

// RoundPort 回合状态查询
type RoundPort interface {
	Get(ctx context.Context, roundID int64) (*BettingRound, error)
}

// OddsSource 即时赔率来源，由做市池价格换算（赔率 = 1 / 对应方向价格）
type OddsSource interface {
	Odds(ctx context.Context, roundID int64, direction Direction) (decimal.Decimal, error)
}

// BetLimits 投注限额
type BetLimits struct {
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
}

// ConfigPort 投注限额读取
type ConfigPort interface {
	BetLimits(ctx context.Context, category string) (*BetLimits, error)
}

// BalancePort 余额操作，实现方保证乐观锁语义
type BalancePort interface {
	Debit(ctx context.Context, userID string, amount decimal.Decimal) error
}

// Broadcaster 事件广播，尽力而为
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any)
}

// ActionRecorder 行为进度上报，尽力而为
type ActionRecorder interface {
	RecordAction(ctx context.Context, userID, actionType string)
}
