// Package domain 固定赔率投注领域模型
//
// 赔率在下注时刻按做市池价格锁定，之后价格怎么走都不影响该注的赔付。
// 结算赔付 = 本金 × 锁定赔率，不叠加连胜倍率
package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrBetNotFound 投注不存在
var ErrBetNotFound = errors.New("bet not found")

// ErrBetAlreadySettled 投注已结算，拒绝重复处理
var ErrBetAlreadySettled = errors.New("bet already settled")

// ErrInvalidDirection 非法投注方向
var ErrInvalidDirection = errors.New("invalid bet direction")

// Direction 投注方向
type Direction string

const (
	DirectionLong  Direction = "LONG"  // 看涨
	DirectionShort Direction = "SHORT" // 看跌
)

// Status 投注状态
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusWon      Status = "WON"
	StatusLost     Status = "LOST"
	StatusRefunded Status = "REFUNDED"
)

// Bet 投注聚合根
type Bet struct {
	gorm.Model
	BetID     string          `gorm:"column:bet_id;type:varchar(32);uniqueIndex;not null" json:"bet_id"`
	UserID    string          `gorm:"column:user_id;type:varchar(64);index;not null" json:"user_id"`
	RoundID   int64           `gorm:"column:round_id;index:idx_round_status;not null" json:"round_id"`
	Category  string          `gorm:"column:category;type:varchar(32);not null" json:"category"`
	Direction Direction       `gorm:"column:direction;type:varchar(8);not null" json:"direction"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(30,10);not null" json:"amount"`
	// 下注时刻锁定的赔率
	Odds   decimal.Decimal `gorm:"column:odds;type:decimal(10,4);not null" json:"odds"`
	Payout decimal.Decimal `gorm:"column:payout;type:decimal(30,10);not null;default:0" json:"payout"`
	Status Status          `gorm:"column:status;type:varchar(16);not null;default:'PENDING';index:idx_round_status" json:"status"`
}

// TableName 表名
func (Bet) TableName() string {
	return "bets"
}

// NewBet 创建投注
func NewBet(betID, userID string, roundID int64, category string, direction Direction, amount, odds decimal.Decimal) *Bet {
	return &Bet{
		BetID:     betID,
		UserID:    userID,
		RoundID:   roundID,
		Category:  category,
		Direction: direction,
		Amount:    amount,
		Odds:      odds,
		Payout:    decimal.Zero,
		Status:    StatusPending,
	}
}

// PotentialPayout 按锁定赔率的应得赔付
func (b *Bet) PotentialPayout() decimal.Decimal {
	return b.Amount.Mul(b.Odds).Round(4)
}

// MarkWon 赢注，赔付按锁定赔率
func (b *Bet) MarkWon() error {
	if b.Status != StatusPending {
		return ErrBetAlreadySettled
	}
	b.Payout = b.PotentialPayout()
	b.Status = StatusWon
	return nil
}

// MarkLost 输注
func (b *Bet) MarkLost() error {
	if b.Status != StatusPending {
		return ErrBetAlreadySettled
	}
	b.Payout = decimal.Zero
	b.Status = StatusLost
	return nil
}

// MarkRefunded 平盘退还本金
func (b *Bet) MarkRefunded() error {
	if b.Status != StatusPending {
		return ErrBetAlreadySettled
	}
	b.Payout = b.Amount
	b.Status = StatusRefunded
	return nil
}

// BetRepository 投注仓储接口
type BetRepository interface {
	Create(ctx context.Context, bet *Bet) error
	Update(ctx context.Context, bet *Bet) error
	GetByBetID(ctx context.Context, betID string) (*Bet, error)
	// GetForUpdate 行锁读取，结算清扫经由此读取后修改
	GetForUpdate(ctx context.Context, betID string) (*Bet, error)
	// ListPendingByRound 回合内所有未结算投注（结算清扫输入）
	ListPendingByRound(ctx context.Context, roundID int64) ([]*Bet, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Bet, int64, error)
	WithTx(ctx context.Context, fn func(txCtx context.Context) error) error
}
