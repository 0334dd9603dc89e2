// Package adapter 把回合、做市池、账户与配置模块适配成投注服务的窄端口
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	accountdomain "github.com/wyfcoding/predictionmarket/internal/account/domain"
	ammdomain "github.com/wyfcoding/predictionmarket/internal/amm/domain"
	"github.com/wyfcoding/predictionmarket/internal/bet/domain"
	rounddomain "github.com/wyfcoding/predictionmarket/internal/round/domain"
)

// RoundAdapter 把回合仓储适配成 RoundPort
type RoundAdapter struct {
	rounds rounddomain.RoundRepository
	now    func() time.Time
}

// NewRoundAdapter 创建回合适配器
func NewRoundAdapter(rounds rounddomain.RoundRepository) *RoundAdapter {
	return &RoundAdapter{rounds: rounds, now: time.Now}
}

// Get 查询投注视角的回合信息
func (a *RoundAdapter) Get(ctx context.Context, roundID int64) (*domain.BettingRound, error) {
	round, err := a.rounds.GetByID(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, nil
	}
	return &domain.BettingRound{
		RoundID:  int64(round.ID),
		Category: round.Category,
		CanBet:   round.CanBet(a.now()),
	}, nil
}

// OddsAdapter 从做市池即时价格换算固定赔率：赔率 = 1 / 对应方向价格
type OddsAdapter struct {
	pools ammdomain.PoolRepository
}

// NewOddsAdapter 创建赔率适配器
func NewOddsAdapter(pools ammdomain.PoolRepository) *OddsAdapter {
	return &OddsAdapter{pools: pools}
}

// Odds 读取方向赔率，保留 4 位小数
func (a *OddsAdapter) Odds(ctx context.Context, roundID int64, direction domain.Direction) (decimal.Decimal, error) {
	pool, err := a.pools.GetByRoundID(ctx, roundID)
	if err != nil {
		return decimal.Zero, err
	}
	if pool == nil {
		return decimal.Zero, fmt.Errorf("no liquidity pool for round %d", roundID)
	}
	priceYes, priceNo := pool.Prices()
	price := priceYes
	if direction == domain.DirectionShort {
		price = priceNo
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("degenerate price for round %d", roundID)
	}
	return decimal.NewFromInt(1).Div(price).Round(4), nil
}

// BalanceAdapter 把账户仓储适配成 BalancePort
type BalanceAdapter struct {
	accounts accountdomain.AccountRepository
}

// NewBalanceAdapter 创建余额适配器
func NewBalanceAdapter(accounts accountdomain.AccountRepository) *BalanceAdapter {
	return &BalanceAdapter{accounts: accounts}
}

// Debit 扣款，版本冲突翻译成可重试错误
func (a *BalanceAdapter) Debit(ctx context.Context, userID string, amount decimal.Decimal) error {
	account, err := a.accounts.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	if err := account.Debit(amount); err != nil {
		return err
	}
	if err := a.accounts.Save(ctx, account); err != nil {
		if errors.Is(err, accountdomain.ErrVersionConflict) {
			return domain.ErrConcurrencyConflict
		}
		return err
	}
	return nil
}

// ConfigAdapter 把品类配置存储适配成 ConfigPort
type ConfigAdapter struct {
	configs rounddomain.ConfigStore
}

// NewConfigAdapter 创建配置适配器
func NewConfigAdapter(configs rounddomain.ConfigStore) *ConfigAdapter {
	return &ConfigAdapter{configs: configs}
}

// BetLimits 读取品类投注限额
func (a *ConfigAdapter) BetLimits(ctx context.Context, category string) (*domain.BetLimits, error) {
	cfg, err := a.configs.RoundConfig(ctx, category)
	if err != nil {
		return nil, err
	}
	return &domain.BetLimits{
		MinAmount: cfg.MinTradeAmount,
		MaxAmount: cfg.MaxTradeAmount,
	}, nil
}
