package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PoolCreator 为新回合注入做市池
type PoolCreator interface {
	CreatePool(ctx context.Context, roundID int64, initialLiquidity decimal.Decimal) error
}

// Settler 执行回合结算。done 为 false 表示本轮仍有未完成的派奖，
// 回合停留在 SETTLING，下个调度周期重试
type Settler interface {
	SettleRound(ctx context.Context, roundID int64) (done bool, err error)
}

// PriceReader 读取标的当前价格
type PriceReader interface {
	CurrentPrice(ctx context.Context, category string) (decimal.Decimal, error)
}

// Broadcaster 向外广播市场事件，尽力而为
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any)
}
