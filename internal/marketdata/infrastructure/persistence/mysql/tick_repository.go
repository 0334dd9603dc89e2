package mysql

import (
	"context"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"

	"github.com/wyfcoding/predictionmarket/internal/marketdata/domain"
)

// TickRepository 采样仓储 MySQL 实现
type TickRepository struct {
	db *gorm.DB
}

// NewTickRepository 创建采样仓储
func NewTickRepository(db *gorm.DB) *TickRepository {
	return &TickRepository{db: db}
}

func (r *TickRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

// Create 写入采样
func (r *TickRepository) Create(ctx context.Context, tick *domain.PriceTick) error {
	return r.getDB(ctx).Create(tick).Error
}

// Latest 品类最近 n 个采样，新的在前
func (r *TickRepository) Latest(ctx context.Context, category string, n int) ([]*domain.PriceTick, error) {
	var ticks []*domain.PriceTick
	err := r.getDB(ctx).
		Where("category = ?", category).
		Order("observed_at DESC, id DESC").
		Limit(n).
		Find(&ticks).Error
	if err != nil {
		return nil, err
	}
	return ticks, nil
}
