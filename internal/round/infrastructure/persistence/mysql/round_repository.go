package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"

	"github.com/wyfcoding/predictionmarket/internal/round/domain"
)

// RoundRepository 回合仓储 MySQL 实现
type RoundRepository struct {
	db *gorm.DB
}

// NewRoundRepository 创建回合仓储
func NewRoundRepository(db *gorm.DB) *RoundRepository {
	return &RoundRepository{db: db}
}

func (r *RoundRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

// Create 创建回合
func (r *RoundRepository) Create(ctx context.Context, round *domain.Round) error {
	return r.getDB(ctx).Create(round).Error
}

// GetByID 按主键查询
func (r *RoundRepository) GetByID(ctx context.Context, id int64) (*domain.Round, error) {
	var round domain.Round
	if err := r.getDB(ctx).First(&round, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &round, nil
}

// GetActiveByCategory 查询品类下当前未终结的回合
func (r *RoundRepository) GetActiveByCategory(ctx context.Context, category string) (*domain.Round, error) {
	var round domain.Round
	err := r.getDB(ctx).
		Where("category = ? AND status < ?", category, domain.StatusSettled).
		Order("round_number DESC").
		First(&round).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &round, nil
}

// SaveTransition 带前置状态条件的状态迁移，RowsAffected 为 0 表示状态已被并发推进
func (r *RoundRepository) SaveTransition(ctx context.Context, round *domain.Round, fromStatus domain.Status) error {
	result := r.getDB(ctx).Model(&domain.Round{}).
		Where("id = ? AND status = ?", round.ID, fromStatus).
		Updates(map[string]any{
			"status":      round.Status,
			"result":      round.Result,
			"close_price": round.ClosePrice,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// UpdateWatermarks 更新高低价水位
func (r *RoundRepository) UpdateWatermarks(ctx context.Context, round *domain.Round) error {
	return r.getDB(ctx).Model(&domain.Round{}).
		Where("id = ?", round.ID).
		Updates(map[string]any{
			"high_price": round.HighPrice,
			"low_price":  round.LowPrice,
		}).Error
}

// NextRoundNumber 取品类最大序号加一
func (r *RoundRepository) NextRoundNumber(ctx context.Context, category string) (int64, error) {
	var max int64
	err := r.getDB(ctx).Model(&domain.Round{}).
		Where("category = ?", category).
		Select("COALESCE(MAX(round_number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// History 已结算回合历史
func (r *RoundRepository) History(ctx context.Context, category string, limit, offset int) ([]*domain.Round, int64, error) {
	var rounds []*domain.Round
	var total int64

	query := r.getDB(ctx).Model(&domain.Round{}).
		Where("category = ? AND status = ?", category, domain.StatusSettled)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("round_number DESC").Limit(limit).Offset(offset).Find(&rounds).Error; err != nil {
		return nil, 0, err
	}
	return rounds, total, nil
}

// WithTx 在事务中执行
func (r *RoundRepository) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}
