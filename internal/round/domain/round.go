// Package domain 预测回合领域模型
//
// 回合状态机只允许前进：BETTING → LOCKED → SETTLING → SETTLED。
// 三个时间戳在创建时由配置快照一次性定死（lockTime = endTime − lockPeriod），
// 之后绝不重算，重启后可以据此重建全部状态
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrInvalidTransition 非法状态迁移
var ErrInvalidTransition = errors.New("invalid round status transition")

// Status 回合状态
type Status int8

const (
	StatusBetting  Status = 1 // 下注中
	StatusLocked   Status = 2 // 已封盘，等待结算
	StatusSettling Status = 3 // 结算中
	StatusSettled  Status = 4 // 已结算，终态
)

func (s Status) String() string {
	switch s {
	case StatusBetting:
		return "BETTING"
	case StatusLocked:
		return "LOCKED"
	case StatusSettling:
		return "SETTLING"
	case StatusSettled:
		return "SETTLED"
	default:
		return "UNKNOWN"
	}
}

// Result 回合结果
type Result string

const (
	ResultLongWin  Result = "LONG_WIN"
	ResultShortWin Result = "SHORT_WIN"
	ResultDraw     Result = "DRAW"
)

// Round 回合聚合根
type Round struct {
	gorm.Model
	RoundNumber int64           `gorm:"column:round_number;not null;uniqueIndex:idx_category_number" json:"round_number"`
	Category    string          `gorm:"column:category;type:varchar(32);not null;uniqueIndex:idx_category_number;index:idx_category_status" json:"category"`
	StartTime   time.Time       `gorm:"column:start_time;not null" json:"start_time"`
	LockTime    time.Time       `gorm:"column:lock_time;not null" json:"lock_time"`
	EndTime     time.Time       `gorm:"column:end_time;index;not null" json:"end_time"`
	OpenPrice   decimal.Decimal `gorm:"column:open_price;type:decimal(30,10);not null" json:"open_price"`
	HighPrice   decimal.Decimal `gorm:"column:high_price;type:decimal(30,10);not null" json:"high_price"`
	LowPrice    decimal.Decimal `gorm:"column:low_price;type:decimal(30,10);not null" json:"low_price"`
	ClosePrice  decimal.Decimal `gorm:"column:close_price;type:decimal(30,10)" json:"close_price"`
	Result      Result          `gorm:"column:result;type:varchar(16)" json:"result"`
	Status      Status          `gorm:"column:status;type:tinyint;not null;default:1;index:idx_category_status" json:"status"`
}

// TableName 表名
func (Round) TableName() string {
	return "rounds"
}

// NewRound 创建回合，时间线由配置快照定死
func NewRound(category string, number int64, start time.Time, duration, lockPeriod time.Duration, openPrice decimal.Decimal) *Round {
	end := start.Add(duration)
	return &Round{
		RoundNumber: number,
		Category:    category,
		StartTime:   start,
		LockTime:    end.Add(-lockPeriod),
		EndTime:     end,
		OpenPrice:   openPrice,
		HighPrice:   openPrice,
		LowPrice:    openPrice,
		Status:      StatusBetting,
	}
}

// Lock 封盘
func (r *Round) Lock() error {
	if r.Status != StatusBetting {
		return ErrInvalidTransition
	}
	r.Status = StatusLocked
	return nil
}

// BeginSettlement 进入结算
func (r *Round) BeginSettlement() error {
	if r.Status != StatusLocked {
		return ErrInvalidTransition
	}
	r.Status = StatusSettling
	return nil
}

// FinishSettlement 结算完成，落结果与收盘价，终态
func (r *Round) FinishSettlement(result Result, closePrice decimal.Decimal) error {
	if r.Status != StatusSettling {
		return ErrInvalidTransition
	}
	r.Result = result
	r.ClosePrice = closePrice
	r.Status = StatusSettled
	return nil
}

// ObservePrice 更新高低水位，仅在回合存续期间生效，返回是否有变化
func (r *Round) ObservePrice(price decimal.Decimal) bool {
	if r.Status != StatusBetting && r.Status != StatusLocked {
		return false
	}
	changed := false
	if price.GreaterThan(r.HighPrice) {
		r.HighPrice = price
		changed = true
	}
	if price.LessThan(r.LowPrice) {
		r.LowPrice = price
		changed = true
	}
	return changed
}

// CanBet 是否处于下注窗口
func (r *Round) CanBet(now time.Time) bool {
	return r.Status == StatusBetting && now.Before(r.LockTime)
}

// Countdown 距下一个状态节点的剩余秒数
func (r *Round) Countdown(now time.Time) int64 {
	var deadline time.Time
	switch r.Status {
	case StatusBetting:
		deadline = r.LockTime
	case StatusLocked:
		deadline = r.EndTime
	default:
		return 0
	}
	remaining := int64(deadline.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RoundRepository 回合仓储接口
type RoundRepository interface {
	Create(ctx context.Context, round *Round) error
	GetByID(ctx context.Context, id int64) (*Round, error)
	// GetActiveByCategory 当前未结束的回合（每品类同时至多一个）
	GetActiveByCategory(ctx context.Context, category string) (*Round, error)
	// SaveTransition 以 fromStatus 为条件持久化状态迁移，未命中说明已被并发处理
	SaveTransition(ctx context.Context, round *Round, fromStatus Status) error
	// UpdateWatermarks 更新高低价水位
	UpdateWatermarks(ctx context.Context, round *Round) error
	// NextRoundNumber 该品类下一个回合序号
	NextRoundNumber(ctx context.Context, category string) (int64, error)
	// History 已结算回合历史，时间倒序
	History(ctx context.Context, category string, limit, offset int) ([]*Round, int64, error)
	WithTx(ctx context.Context, fn func(txCtx context.Context) error) error
}
