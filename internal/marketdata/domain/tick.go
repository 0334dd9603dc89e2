// Package domain 行情采样领域模型
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PriceTick 价格采样点，开收盘价与高低水位都从这里取
type PriceTick struct {
	gorm.Model
	Category   string          `gorm:"column:category;type:varchar(32);not null;index:idx_category_time" json:"category"`
	Price      decimal.Decimal `gorm:"column:price;type:decimal(30,10);not null" json:"price"`
	ObservedAt time.Time       `gorm:"column:observed_at;not null;index:idx_category_time" json:"observed_at"`
}

// TableName 表名
func (PriceTick) TableName() string {
	return "price_ticks"
}

// TickRepository 采样仓储接口
type TickRepository interface {
	Create(ctx context.Context, tick *PriceTick) error
	// Latest 品类最近 n 个采样，新的在前
	Latest(ctx context.Context, category string, n int) ([]*PriceTick, error)
}

// PriceSource 外部价格来源
type PriceSource interface {
	FetchPrice(ctx context.Context, category string) (decimal.Decimal, error)
}

// Broadcaster 事件广播，尽力而为
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any)
}
