// Package domain 回合结算领域模型
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	rounddomain "github.com/wyfcoding/predictionmarket/internal/round/domain"
)

// Classify 按相对涨跌幅判定回合结果：change = (close-open)/open。
// 涨跌幅绝对值不超过阈值判平，阈值因此与标的价格量级无关，
// 比较用精确十进制，不经过浮点
func Classify(openPrice, closePrice, drawThreshold decimal.Decimal) rounddomain.Result {
	diff := closePrice.Sub(openPrice)
	change := diff
	if openPrice.IsPositive() {
		change = diff.Div(openPrice)
	}
	if change.Abs().LessThanOrEqual(drawThreshold) {
		return rounddomain.ResultDraw
	}
	if change.IsPositive() {
		return rounddomain.ResultLongWin
	}
	return rounddomain.ResultShortWin
}

// Settlement 结算审计记录，每回合一条，在进入结算时与状态迁移同事务创建。
// 结果与收盘价先落在这里，进程重启后据此确定性续跑
type Settlement struct {
	gorm.Model
	RoundID    int64              `gorm:"column:round_id;uniqueIndex;not null" json:"round_id"`
	Category   string             `gorm:"column:category;type:varchar(32);not null" json:"category"`
	Result     rounddomain.Result `gorm:"column:result;type:varchar(16);not null" json:"result"`
	OpenPrice  decimal.Decimal    `gorm:"column:open_price;type:decimal(30,10);not null" json:"open_price"`
	ClosePrice decimal.Decimal    `gorm:"column:close_price;type:decimal(30,10);not null" json:"close_price"`
	// 累计派发总额
	TotalPayout decimal.Decimal `gorm:"column:total_payout;type:decimal(30,10);not null;default:0" json:"total_payout"`
	// 已结算持仓数
	PositionsSettled int `gorm:"column:positions_settled;not null;default:0" json:"positions_settled"`
	// 已结算投注数
	BetsSettled int `gorm:"column:bets_settled;not null;default:0" json:"bets_settled"`
	// 全部派奖完成时间，空表示仍在结算
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at"`
}

// TableName 表名
func (Settlement) TableName() string {
	return "settlements"
}

// SettlementRepository 结算记录仓储接口
type SettlementRepository interface {
	Create(ctx context.Context, settlement *Settlement) error
	GetByRoundID(ctx context.Context, roundID int64) (*Settlement, error)
	Update(ctx context.Context, settlement *Settlement) error
}

// PriceHistory 标的近期价格读取接口，新价在前
type PriceHistory interface {
	RecentPrices(ctx context.Context, category string, n int) ([]decimal.Decimal, error)
}
