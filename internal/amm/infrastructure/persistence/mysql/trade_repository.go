package mysql

import (
	"context"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"

	"github.com/wyfcoding/predictionmarket/internal/amm/domain"
)

// tradeRepository 成交流水仓储实现，流水只追加
type tradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository 创建成交流水仓储
func NewTradeRepository(db *gorm.DB) domain.TradeRepository {
	return &tradeRepository{db: db}
}

func (r *tradeRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

func (r *tradeRepository) Create(ctx context.Context, trade *domain.Trade) error {
	return r.getDB(ctx).WithContext(ctx).Create(trade).Error
}

func (r *tradeRepository) ListByRound(ctx context.Context, roundID int64, limit, offset int) ([]*domain.Trade, int64, error) {
	var trades []*domain.Trade
	var total int64

	db := r.getDB(ctx).WithContext(ctx).Model(&domain.Trade{}).Where("round_id = ?", roundID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("id DESC").Limit(limit).Offset(offset).Find(&trades).Error; err != nil {
		return nil, 0, err
	}
	return trades, total, nil
}

func (r *tradeRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Trade, int64, error) {
	var trades []*domain.Trade
	var total int64

	db := r.getDB(ctx).WithContext(ctx).Model(&domain.Trade{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("id DESC").Limit(limit).Offset(offset).Find(&trades).Error; err != nil {
		return nil, 0, err
	}
	return trades, total, nil
}
