package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TradeType 交易类型
type TradeType string

const (
	TradeTypeBuy  TradeType = "BUY"
	TradeTypeSell TradeType = "SELL"
)

// Trade 成交流水，只追加、不可变更，用于审计与行情回放
// 记录成交后的储备快照
type Trade struct {
	gorm.Model
	TradeID  string          `gorm:"column:trade_id;type:varchar(64);uniqueIndex;not null" json:"trade_id"`
	RoundID  int64           `gorm:"column:round_id;index;not null" json:"round_id"`
	UserID   string          `gorm:"column:user_id;type:varchar(64);index;not null" json:"user_id"`
	Side     Side            `gorm:"column:side;type:varchar(8);not null" json:"side"`
	Type     TradeType       `gorm:"column:type;type:varchar(8);not null" json:"type"`
	Amount   decimal.Decimal `gorm:"column:amount;type:decimal(30,10);not null" json:"amount"`
	Shares   decimal.Decimal `gorm:"column:shares;type:decimal(30,10);not null" json:"shares"`
	AvgPrice decimal.Decimal `gorm:"column:avg_price;type:decimal(20,10);not null" json:"avg_price"`
	Fee      decimal.Decimal `gorm:"column:fee;type:decimal(30,10);not null" json:"fee"`
	// 成交后储备快照
	YesReserveAfter decimal.Decimal `gorm:"column:yes_reserve_after;type:decimal(30,10);not null" json:"yes_reserve_after"`
	NoReserveAfter  decimal.Decimal `gorm:"column:no_reserve_after;type:decimal(30,10);not null" json:"no_reserve_after"`
	PriceYesAfter   decimal.Decimal `gorm:"column:price_yes_after;type:decimal(20,10);not null" json:"price_yes_after"`
	PriceNoAfter    decimal.Decimal `gorm:"column:price_no_after;type:decimal(20,10);not null" json:"price_no_after"`
}

// TableName 表名
func (Trade) TableName() string {
	return "amm_trades"
}

// NewTrade 由报价结果生成成交流水
func NewTrade(tradeID string, roundID int64, userID string, tradeType TradeType, q *Quote) *Trade {
	return &Trade{
		TradeID:         tradeID,
		RoundID:         roundID,
		UserID:          userID,
		Side:            q.Side,
		Type:            tradeType,
		Amount:          q.Amount,
		Shares:          q.Shares,
		AvgPrice:        q.AvgPrice,
		Fee:             q.Fee,
		YesReserveAfter: q.NewYesReserve,
		NoReserveAfter:  q.NewNoReserve,
		PriceYesAfter:   q.PriceYesAfter,
		PriceNoAfter:    q.PriceNoAfter,
	}
}

// TradeRepository 成交流水仓储接口，只有创建与查询
type TradeRepository interface {
	Create(ctx context.Context, trade *Trade) error
	ListByRound(ctx context.Context, roundID int64, limit, offset int) ([]*Trade, int64, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Trade, int64, error)
}
