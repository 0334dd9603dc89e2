// Package domain 用户资金账户与连胜状态领域模型
package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrVersionConflict 乐观锁版本冲突，调用方需读取最新状态后重试
var ErrVersionConflict = errors.New("account version conflict: modified by another transaction")

// ErrInsufficientBalance 余额不足
var ErrInsufficientBalance = errors.New("insufficient balance")

// Account 用户资金账户聚合根
// 余额变更必须走乐观锁（version 条件更新），见仓储实现
type Account struct {
	gorm.Model
	UserID  string          `gorm:"column:user_id;type:varchar(64);uniqueIndex;not null" json:"user_id"`
	Balance decimal.Decimal `gorm:"column:balance;type:decimal(30,10);not null;default:0" json:"balance"`
	// 乐观锁版本号
	Version int64 `gorm:"column:version;not null;default:0" json:"version"`
	// 当前连胜次数
	Combo int `gorm:"column:combo;not null;default:0" json:"combo"`
	// 历史最高连胜
	MaxCombo int `gorm:"column:max_combo;not null;default:0" json:"max_combo"`
	// 当前奖励倍率
	Multiplier decimal.Decimal `gorm:"column:multiplier;type:decimal(10,4);not null;default:1" json:"multiplier"`
}

// TableName 表名
func (Account) TableName() string {
	return "accounts"
}

// NewAccount 创建新账户，倍率从基础值开始
func NewAccount(userID string, cfg StreakConfig) *Account {
	return &Account{
		UserID:     userID,
		Balance:    decimal.Zero,
		Multiplier: cfg.BaseMultiplier,
	}
}

// Debit 扣减余额，余额不足时返回错误且不产生任何变更
func (a *Account) Debit(amount decimal.Decimal) error {
	if a.Balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

// Credit 增加余额
func (a *Account) Credit(amount decimal.Decimal) {
	a.Balance = a.Balance.Add(amount)
}

// ApplyOutcome 根据回合结果推进连胜状态
func (a *Account) ApplyOutcome(result Outcome, cfg StreakConfig) {
	a.Combo, a.MaxCombo, a.Multiplier = NextStreak(result, a.Combo, a.MaxCombo, a.Multiplier, cfg)
}

// AccountRepository 账户仓储接口
type AccountRepository interface {
	// GetOrCreate 读取账户，不存在则创建
	GetOrCreate(ctx context.Context, userID string) (*Account, error)
	Get(ctx context.Context, userID string) (*Account, error)
	// Save 带乐观锁保存，版本冲突时返回 ErrVersionConflict
	Save(ctx context.Context, account *Account) error
	WithTx(ctx context.Context, fn func(txCtx context.Context) error) error
}
