// Package adapter 把账户、持仓、回合、配置等模块适配成做市引擎的窄端口
package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	accountdomain "github.com/wyfcoding/predictionmarket/internal/account/domain"
	"github.com/wyfcoding/predictionmarket/internal/amm/application"
	"github.com/wyfcoding/predictionmarket/internal/amm/domain"
	positiondomain "github.com/wyfcoding/predictionmarket/internal/position/domain"
	rounddomain "github.com/wyfcoding/predictionmarket/internal/round/domain"
)

// BalanceAdapter 把账户仓储适配成 BalancePort。
// 乐观锁冲突统一翻译成可重试错误，由交易服务整体重试
type BalanceAdapter struct {
	accounts accountdomain.AccountRepository
}

// NewBalanceAdapter 创建余额适配器
func NewBalanceAdapter(accounts accountdomain.AccountRepository) *BalanceAdapter {
	return &BalanceAdapter{accounts: accounts}
}

// Debit 扣款
func (a *BalanceAdapter) Debit(ctx context.Context, userID string, amount decimal.Decimal) error {
	account, err := a.accounts.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	if err := account.Debit(amount); err != nil {
		if errors.Is(err, accountdomain.ErrInsufficientBalance) {
			return domain.ErrInsufficientBalance
		}
		return err
	}
	return a.save(ctx, account)
}

// Credit 入账
func (a *BalanceAdapter) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	account, err := a.accounts.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	account.Credit(amount)
	return a.save(ctx, account)
}

func (a *BalanceAdapter) save(ctx context.Context, account *accountdomain.Account) error {
	if err := a.accounts.Save(ctx, account); err != nil {
		if errors.Is(err, accountdomain.ErrVersionConflict) {
			return application.ErrConcurrencyConflict
		}
		return err
	}
	return nil
}

// PositionAdapter 把持仓仓储适配成 PositionPort，必须在触发交易的事务上下文内调用
type PositionAdapter struct {
	positions positiondomain.PositionRepository
}

// NewPositionAdapter 创建持仓适配器
func NewPositionAdapter(positions positiondomain.PositionRepository) *PositionAdapter {
	return &PositionAdapter{positions: positions}
}

// AddShares 买入合并持仓
func (a *PositionAdapter) AddShares(ctx context.Context, userID string, roundID int64, side domain.Side, shares, cost decimal.Decimal) (*domain.PositionView, error) {
	position, err := a.positions.GetForUpdate(ctx, userID, roundID, string(side))
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = positiondomain.NewPosition(userID, roundID, string(side), shares, cost)
		if err := a.positions.Create(ctx, position); err != nil {
			return nil, err
		}
		return toView(position), nil
	}
	if err := position.AddShares(shares, cost); err != nil {
		return nil, err
	}
	if err := a.positions.Update(ctx, position); err != nil {
		return nil, err
	}
	return toView(position), nil
}

// CloseShares 卖出平仓，行锁下按最新持仓校验可卖份额
func (a *PositionAdapter) CloseShares(ctx context.Context, userID string, roundID int64, side domain.Side, shares, amountOut decimal.Decimal) (*domain.PositionView, error) {
	position, err := a.positions.GetForUpdate(ctx, userID, roundID, string(side))
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, domain.ErrInsufficientShares
	}
	if err := position.CloseShares(shares, amountOut); err != nil {
		if errors.Is(err, positiondomain.ErrInsufficientShares) {
			return nil, domain.ErrInsufficientShares
		}
		return nil, err
	}
	if err := a.positions.Update(ctx, position); err != nil {
		return nil, err
	}
	return toView(position), nil
}

// AvailableShares 当前可卖份额
func (a *PositionAdapter) AvailableShares(ctx context.Context, userID string, roundID int64, side domain.Side) (decimal.Decimal, error) {
	position, err := a.positions.Get(ctx, userID, roundID, string(side))
	if err != nil {
		return decimal.Zero, err
	}
	if position == nil || position.Status == positiondomain.StatusSettled {
		return decimal.Zero, nil
	}
	return position.OpenShares(), nil
}

func toView(p *positiondomain.Position) *domain.PositionView {
	return &domain.PositionView{
		UserID:       p.UserID,
		RoundID:      p.RoundID,
		Side:         p.Side,
		Shares:       p.Shares,
		AvgCost:      p.AvgCost,
		TotalCost:    p.TotalCost,
		ClosedShares: p.ClosedShares,
		RealizedPnL:  p.RealizedPnL,
		Status:       string(p.Status),
	}
}

// RoundAdapter 把回合仓储适配成 RoundPort
type RoundAdapter struct {
	rounds rounddomain.RoundRepository
	now    func() time.Time
}

// NewRoundAdapter 创建回合适配器
func NewRoundAdapter(rounds rounddomain.RoundRepository) *RoundAdapter {
	return &RoundAdapter{rounds: rounds, now: time.Now}
}

// Get 查询交易视角的回合信息
func (a *RoundAdapter) Get(ctx context.Context, roundID int64) (*domain.TradingRound, error) {
	round, err := a.rounds.GetByID(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, nil
	}
	return &domain.TradingRound{
		RoundID:  int64(round.ID),
		Category: round.Category,
		CanTrade: round.CanBet(a.now()),
	}, nil
}

// ConfigAdapter 把品类配置存储适配成 ConfigPort
type ConfigAdapter struct {
	configs rounddomain.ConfigStore
}

// NewConfigAdapter 创建配置适配器
func NewConfigAdapter(configs rounddomain.ConfigStore) *ConfigAdapter {
	return &ConfigAdapter{configs: configs}
}

// AMMConfig 读取品类做市参数
func (a *ConfigAdapter) AMMConfig(ctx context.Context, category string) (*domain.AMMConfig, error) {
	cfg, err := a.configs.RoundConfig(ctx, category)
	if err != nil {
		return nil, err
	}
	return &domain.AMMConfig{
		FeeRate:          cfg.FeeRate,
		MinTradeAmount:   cfg.MinTradeAmount,
		MaxTradeAmount:   cfg.MaxTradeAmount,
		MinReserveRatio:  cfg.MinReserveRatio,
		InitialLiquidity: cfg.InitialLiquidity,
	}, nil
}
