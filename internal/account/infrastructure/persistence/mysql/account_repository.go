package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"

	"github.com/wyfcoding/predictionmarket/internal/account/domain"
)

// accountRepository 账户仓储实现
type accountRepository struct {
	db        *gorm.DB
	streakCfg domain.StreakConfig
}

// NewAccountRepository 创建并返回一个新的 accountRepository 实例。
func NewAccountRepository(db *gorm.DB, streakCfg domain.StreakConfig) domain.AccountRepository {
	return &accountRepository{db: db, streakCfg: streakCfg}
}

func (r *accountRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return r.db
}

// WithTx 在事务中执行 fn，事务句柄通过 context 向下传递
func (r *accountRepository) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return r.getDB(ctx).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(contextx.WithTx(ctx, tx))
	})
}

// GetOrCreate 读取账户，不存在则创建初始账户
func (r *accountRepository) GetOrCreate(ctx context.Context, userID string) (*domain.Account, error) {
	account, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}

	account = domain.NewAccount(userID, r.streakCfg)
	if err := r.getDB(ctx).WithContext(ctx).Create(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

func (r *accountRepository) Get(ctx context.Context, userID string) (*domain.Account, error) {
	var account domain.Account
	if err := r.getDB(ctx).WithContext(ctx).Where("user_id = ?", userID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// Save 保存账户（带乐观锁）
// 更新以读取时的 version 为条件，未命中任何行即说明并发修改，
// 返回 ErrVersionConflict，由调用方重读后重试
func (r *accountRepository) Save(ctx context.Context, account *domain.Account) error {
	db := r.getDB(ctx)

	if account.ID == 0 {
		return db.WithContext(ctx).Create(account).Error
	}

	currentVersion := account.Version
	result := db.WithContext(ctx).Model(&domain.Account{}).
		Where("user_id = ? AND version = ?", account.UserID, currentVersion).
		Updates(map[string]any{
			"balance":    account.Balance,
			"combo":      account.Combo,
			"max_combo":  account.MaxCombo,
			"multiplier": account.Multiplier,
			"version":    currentVersion + 1,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}

	account.Version = currentVersion + 1
	account.UpdatedAt = time.Now()
	return nil
}
