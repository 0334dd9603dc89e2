package mysql

import (
	"context"
	"errors"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/predictionmarket/internal/bet/domain"
)

// BetRepository 投注仓储 MySQL 实现
type BetRepository struct {
	db *gorm.DB
}

// NewBetRepository 创建投注仓储
func NewBetRepository(db *gorm.DB) *BetRepository {
	return &BetRepository{db: db}
}

func (r *BetRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

// Create 创建投注
func (r *BetRepository) Create(ctx context.Context, bet *domain.Bet) error {
	return r.getDB(ctx).Create(bet).Error
}

// Update 更新投注
func (r *BetRepository) Update(ctx context.Context, bet *domain.Bet) error {
	return r.getDB(ctx).Model(&domain.Bet{}).
		Where("id = ?", bet.ID).
		Updates(map[string]any{
			"payout": bet.Payout,
			"status": bet.Status,
		}).Error
}

// GetByBetID 按业务 ID 查询
func (r *BetRepository) GetByBetID(ctx context.Context, betID string) (*domain.Bet, error) {
	var bet domain.Bet
	err := r.getDB(ctx).Where("bet_id = ?", betID).First(&bet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bet, nil
}

// GetForUpdate 行锁读取
func (r *BetRepository) GetForUpdate(ctx context.Context, betID string) (*domain.Bet, error) {
	var bet domain.Bet
	err := r.getDB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("bet_id = ?", betID).
		First(&bet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bet, nil
}

// ListPendingByRound 回合内未结算投注
func (r *BetRepository) ListPendingByRound(ctx context.Context, roundID int64) ([]*domain.Bet, error) {
	var bets []*domain.Bet
	err := r.getDB(ctx).
		Where("round_id = ? AND status = ?", roundID, domain.StatusPending).
		Order("id ASC").
		Find(&bets).Error
	if err != nil {
		return nil, err
	}
	return bets, nil
}

// ListByUser 用户投注历史
func (r *BetRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Bet, int64, error) {
	var bets []*domain.Bet
	var total int64

	query := r.getDB(ctx).Model(&domain.Bet{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&bets).Error; err != nil {
		return nil, 0, err
	}
	return bets, total, nil
}

// WithTx 在事务中执行
func (r *BetRepository) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}
