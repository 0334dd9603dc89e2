package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/predictionmarket/internal/account/domain"
	"github.com/wyfcoding/predictionmarket/pkg/utils"
)

// AccountService 账户应用服务
type AccountService struct {
	repo   domain.AccountRepository
	logger *slog.Logger
}

// NewAccountService 创建账户应用服务
func NewAccountService(repo domain.AccountRepository, logger *slog.Logger) *AccountService {
	return &AccountService{repo: repo, logger: logger}
}

// AccountDTO 账户视图
type AccountDTO struct {
	UserID     string `json:"user_id"`
	Balance    string `json:"balance"`
	Combo      int    `json:"combo"`
	MaxCombo   int    `json:"max_combo"`
	Multiplier string `json:"multiplier"`
}

// GetAccount 查询账户，不存在时自动建户
func (s *AccountService) GetAccount(ctx context.Context, userID string) (*AccountDTO, error) {
	account, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return toDTO(account), nil
}

// Deposit 充值积分
// 与其它余额操作一样走乐观锁，冲突时整体重试
func (s *AccountService) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*AccountDTO, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("deposit amount must be positive")
	}

	var account *domain.Account
	err := utils.RetryWithBackoff(3, 10*time.Millisecond, 100*time.Millisecond, func() error {
		return s.repo.WithTx(ctx, func(txCtx context.Context) error {
			var err error
			account, err = s.repo.GetOrCreate(txCtx, userID)
			if err != nil {
				return err
			}
			account.Credit(amount)
			return s.repo.Save(txCtx, account)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deposit: %w", err)
	}

	s.logger.InfoContext(ctx, "deposit applied", "user_id", userID, "amount", amount)
	return toDTO(account), nil
}

func toDTO(a *domain.Account) *AccountDTO {
	return &AccountDTO{
		UserID:     a.UserID,
		Balance:    a.Balance.Round(4).String(),
		Combo:      a.Combo,
		MaxCombo:   a.MaxCombo,
		Multiplier: a.Multiplier.Round(4).String(),
	}
}
