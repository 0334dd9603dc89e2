// Package adapter 把做市池适配成持仓估值的价格来源
package adapter

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	ammdomain "github.com/wyfcoding/predictionmarket/internal/amm/domain"
)

// PoolPriceProvider 从做市池读取即时价格
type PoolPriceProvider struct {
	pools ammdomain.PoolRepository
}

// NewPoolPriceProvider 创建价格提供者
func NewPoolPriceProvider(pools ammdomain.PoolRepository) *PoolPriceProvider {
	return &PoolPriceProvider{pools: pools}
}

// Prices 回合两个方向的即时价格
func (p *PoolPriceProvider) Prices(ctx context.Context, roundID int64) (decimal.Decimal, decimal.Decimal, error) {
	pool, err := p.pools.GetByRoundID(ctx, roundID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if pool == nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("no liquidity pool for round %d", roundID)
	}
	priceYes, priceNo := pool.Prices()
	return priceYes, priceNo, nil
}
