package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"

	"github.com/wyfcoding/predictionmarket/internal/settlement/domain"
)

// SettlementRepository 结算记录仓储 MySQL 实现
type SettlementRepository struct {
	db *gorm.DB
}

// NewSettlementRepository 创建结算记录仓储
func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

// Create 创建结算记录
func (r *SettlementRepository) Create(ctx context.Context, settlement *domain.Settlement) error {
	return r.getDB(ctx).Create(settlement).Error
}

// GetByRoundID 按回合查询
func (r *SettlementRepository) GetByRoundID(ctx context.Context, roundID int64) (*domain.Settlement, error) {
	var settlement domain.Settlement
	err := r.getDB(ctx).Where("round_id = ?", roundID).First(&settlement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &settlement, nil
}

// Update 更新结算进度
func (r *SettlementRepository) Update(ctx context.Context, settlement *domain.Settlement) error {
	return r.getDB(ctx).Model(&domain.Settlement{}).
		Where("id = ?", settlement.ID).
		Updates(map[string]any{
			"total_payout":      settlement.TotalPayout,
			"positions_settled": settlement.PositionsSettled,
			"bets_settled":      settlement.BetsSettled,
			"completed_at":      settlement.CompletedAt,
		}).Error
}
