package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/predictionmarket/internal/amm/domain"
)

// poolRepository 流动性池仓储实现
type poolRepository struct {
	db *gorm.DB
}

// NewPoolRepository 创建流动性池仓储
func NewPoolRepository(db *gorm.DB) domain.PoolRepository {
	return &poolRepository{db: db}
}

func (r *poolRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

// WithTx 在事务中执行 fn，事务句柄通过 context 传递给所有仓储
func (r *poolRepository) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return r.getDB(ctx).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}

func (r *poolRepository) Create(ctx context.Context, pool *domain.Pool) error {
	return r.getDB(ctx).WithContext(ctx).Create(pool).Error
}

func (r *poolRepository) GetByRoundID(ctx context.Context, roundID int64) (*domain.Pool, error) {
	var pool domain.Pool
	if err := r.getDB(ctx).WithContext(ctx).Where("round_id = ?", roundID).First(&pool).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}

// GetByRoundIDForUpdate 行锁读取，串行化同一池上的并发交易
func (r *poolRepository) GetByRoundIDForUpdate(ctx context.Context, roundID int64) (*domain.Pool, error) {
	var pool domain.Pool
	err := r.getDB(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("round_id = ?", roundID).
		First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}

func (r *poolRepository) Update(ctx context.Context, pool *domain.Pool) error {
	return r.getDB(ctx).WithContext(ctx).Model(&domain.Pool{}).
		Where("round_id = ?", pool.RoundID).
		Updates(map[string]any{
			"yes_reserve":  pool.YesReserve,
			"no_reserve":   pool.NoReserve,
			"total_volume": pool.TotalVolume,
			"total_fees":   pool.TotalFees,
			"trade_count":  pool.TradeCount,
		}).Error
}
