package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/predictionmarket/internal/position/domain"
)

// positionRepository 持仓仓储实现
type positionRepository struct {
	db *gorm.DB
}

// NewPositionRepository 创建持仓仓储
func NewPositionRepository(db *gorm.DB) domain.PositionRepository {
	return &positionRepository{db: db}
}

func (r *positionRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

func (r *positionRepository) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return r.getDB(ctx).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}

func (r *positionRepository) Create(ctx context.Context, position *domain.Position) error {
	return r.getDB(ctx).WithContext(ctx).Create(position).Error
}

func (r *positionRepository) Update(ctx context.Context, position *domain.Position) error {
	return r.getDB(ctx).WithContext(ctx).Model(&domain.Position{}).
		Where("id = ?", position.ID).
		Updates(map[string]any{
			"shares":            position.Shares,
			"avg_cost":          position.AvgCost,
			"total_cost":        position.TotalCost,
			"closed_shares":     position.ClosedShares,
			"realized_pnl":      position.RealizedPnL,
			"settlement_payout": position.SettlementPayout,
			"status":            position.Status,
		}).Error
}

func (r *positionRepository) Get(ctx context.Context, userID string, roundID int64, side string) (*domain.Position, error) {
	return r.get(ctx, userID, roundID, side, false)
}

// GetForUpdate 行锁读取，保证同一持仓上的并发操作串行化
func (r *positionRepository) GetForUpdate(ctx context.Context, userID string, roundID int64, side string) (*domain.Position, error) {
	return r.get(ctx, userID, roundID, side, true)
}

func (r *positionRepository) get(ctx context.Context, userID string, roundID int64, side string, forUpdate bool) (*domain.Position, error) {
	db := r.getDB(ctx).WithContext(ctx)
	if forUpdate {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var position domain.Position
	err := db.Where("user_id = ? AND round_id = ? AND side = ?", userID, roundID, side).First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &position, nil
}

func (r *positionRepository) ListOpenByRound(ctx context.Context, roundID int64) ([]*domain.Position, error) {
	var positions []*domain.Position
	err := r.getDB(ctx).WithContext(ctx).
		Where("round_id = ? AND status = ?", roundID, domain.StatusOpen).
		Find(&positions).Error
	if err != nil {
		return nil, err
	}
	return positions, nil
}

func (r *positionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Position, int64, error) {
	var positions []*domain.Position
	var total int64

	db := r.getDB(ctx).WithContext(ctx).Model(&domain.Position{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("id DESC").Limit(limit).Offset(offset).Find(&positions).Error; err != nil {
		return nil, 0, err
	}
	return positions, total, nil
}

func (r *positionRepository) ListByUserAndRound(ctx context.Context, userID string, roundID int64) ([]*domain.Position, error) {
	var positions []*domain.Position
	err := r.getDB(ctx).WithContext(ctx).
		Where("user_id = ? AND round_id = ?", userID, roundID).
		Find(&positions).Error
	if err != nil {
		return nil, err
	}
	return positions, nil
}
