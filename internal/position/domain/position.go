// Package domain 持仓台账领域模型
//
// 一个 (用户, 回合, 方向) 三元组对应一条持仓：首次买入创建，
// 后续买入按加权平均成本合并，卖出累计平仓份额与已实现盈亏，
// 结算终态落 SETTLED。持仓只会被持有者的买卖或结算清扫修改，
// 两者不会并发作用于同一条记录
package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrInsufficientShares 可卖份额不足
var ErrInsufficientShares = errors.New("insufficient open shares")

// ErrAlreadySettled 持仓已结算，拒绝重复处理
var ErrAlreadySettled = errors.New("position already settled")

// Status 持仓状态
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusClosed  Status = "CLOSED"
	StatusSettled Status = "SETTLED"
)

// Position 持仓聚合根
type Position struct {
	gorm.Model
	UserID  string `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:idx_user_round_side" json:"user_id"`
	RoundID int64  `gorm:"column:round_id;not null;uniqueIndex:idx_user_round_side;index" json:"round_id"`
	Side    string `gorm:"column:side;type:varchar(8);not null;uniqueIndex:idx_user_round_side" json:"side"`
	// 累计买入份额
	Shares decimal.Decimal `gorm:"column:shares;type:decimal(30,10);not null;default:0" json:"shares"`
	// 加权平均成本
	AvgCost decimal.Decimal `gorm:"column:avg_cost;type:decimal(20,10);not null;default:0" json:"avg_cost"`
	// 累计投入
	TotalCost decimal.Decimal `gorm:"column:total_cost;type:decimal(30,10);not null;default:0" json:"total_cost"`
	// 已平仓份额
	ClosedShares decimal.Decimal `gorm:"column:closed_shares;type:decimal(30,10);not null;default:0" json:"closed_shares"`
	// 已实现盈亏
	RealizedPnL decimal.Decimal `gorm:"column:realized_pnl;type:decimal(30,10);not null;default:0" json:"realized_pnl"`
	// 结算派彩（仅 SETTLED）
	SettlementPayout decimal.Decimal `gorm:"column:settlement_payout;type:decimal(30,10);not null;default:0" json:"settlement_payout"`
	Status           Status          `gorm:"column:status;type:varchar(16);not null;default:'OPEN'" json:"status"`
}

// TableName 表名
func (Position) TableName() string {
	return "positions"
}

// NewPosition 首次买入创建持仓
func NewPosition(userID string, roundID int64, side string, shares, cost decimal.Decimal) *Position {
	return &Position{
		UserID:       userID,
		RoundID:      roundID,
		Side:         side,
		Shares:       shares,
		AvgCost:      cost.Div(shares),
		TotalCost:    cost,
		ClosedShares: decimal.Zero,
		RealizedPnL:  decimal.Zero,
		Status:       StatusOpen,
	}
}

// AddShares 买入合并：newAvgCost = (oldTotalCost + cost) / (oldShares + shares)
func (p *Position) AddShares(shares, cost decimal.Decimal) error {
	if p.Status == StatusSettled {
		return ErrAlreadySettled
	}
	p.Shares = p.Shares.Add(shares)
	p.TotalCost = p.TotalCost.Add(cost)
	p.AvgCost = p.TotalCost.Div(p.Shares)
	// 平仓后再次买入会重新打开
	p.Status = StatusOpen
	return nil
}

// OpenShares 当前未平仓份额
func (p *Position) OpenShares() decimal.Decimal {
	return p.Shares.Sub(p.ClosedShares)
}

// CloseShares 卖出平仓：realizedPnL += amountOut − avgCost*shares，
// 全部平掉后转 CLOSED
func (p *Position) CloseShares(shares, amountOut decimal.Decimal) error {
	if p.Status == StatusSettled {
		return ErrAlreadySettled
	}
	if shares.GreaterThan(p.OpenShares()) {
		return ErrInsufficientShares
	}
	p.ClosedShares = p.ClosedShares.Add(shares)
	p.RealizedPnL = p.RealizedPnL.Add(amountOut.Sub(p.AvgCost.Mul(shares)))
	if p.ClosedShares.GreaterThanOrEqual(p.Shares) {
		p.Status = StatusClosed
	}
	return nil
}

// Settle 结算终态，重复结算直接拒绝（幂等保护）
func (p *Position) Settle(payout decimal.Decimal) error {
	if p.Status == StatusSettled {
		return ErrAlreadySettled
	}
	p.SettlementPayout = payout
	p.RealizedPnL = p.RealizedPnL.Add(payout.Sub(p.AvgCost.Mul(p.OpenShares())))
	p.Status = StatusSettled
	return nil
}

// PositionRepository 持仓仓储接口
type PositionRepository interface {
	Create(ctx context.Context, position *Position) error
	Update(ctx context.Context, position *Position) error
	Get(ctx context.Context, userID string, roundID int64, side string) (*Position, error)
	// GetForUpdate 行锁读取，持有者交易与结算清扫都经由此读取后修改
	GetForUpdate(ctx context.Context, userID string, roundID int64, side string) (*Position, error)
	// ListOpenByRound 回合内所有未结算持仓（结算清扫输入）
	ListOpenByRound(ctx context.Context, roundID int64) ([]*Position, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Position, int64, error)
	ListByUserAndRound(ctx context.Context, userID string, roundID int64) ([]*Position, error)
	WithTx(ctx context.Context, fn func(txCtx context.Context) error) error
}
