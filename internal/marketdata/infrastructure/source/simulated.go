// Package source 价格来源实现
package source

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
)

// SimulatedSource 随机游走模拟价格源，用于没有真实行情接入的环境。
// 每次读取在上一价格基础上叠加 ±volatility 以内的随机涨跌
type SimulatedSource struct {
	mu         sync.Mutex
	prices     map[string]decimal.Decimal
	rng        *rand.Rand
	volatility float64
}

// NewSimulatedSource 创建模拟价格源，initial 为各品类起始价
func NewSimulatedSource(initial map[string]decimal.Decimal, seed int64, volatility float64) *SimulatedSource {
	if volatility <= 0 {
		volatility = 0.001
	}
	prices := make(map[string]decimal.Decimal, len(initial))
	for k, v := range initial {
		prices[k] = v
	}
	return &SimulatedSource{
		prices:     prices,
		rng:        rand.New(rand.NewSource(seed)),
		volatility: volatility,
	}
}

// FetchPrice 返回品类当前模拟价格
func (s *SimulatedSource) FetchPrice(ctx context.Context, category string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.prices[category]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown category: %s", category)
	}
	// 涨跌幅均匀分布在 [-volatility, +volatility]
	drift := (s.rng.Float64()*2 - 1) * s.volatility
	next := last.Mul(decimal.NewFromFloat(1 + drift)).Round(10)
	if !next.IsPositive() {
		next = last
	}
	s.prices[category] = next
	return next, nil
}
