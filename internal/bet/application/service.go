package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"

	"github.com/wyfcoding/predictionmarket/internal/bet/domain"
	"github.com/wyfcoding/predictionmarket/pkg/metrics"
	"github.com/wyfcoding/predictionmarket/pkg/utils"
)

const maxConflictRetries = 3

// BetService 固定赔率投注应用服务
// 下注的原子单元：扣款 + 投注落库在同一事务，赔率在事务内锁定
type BetService struct {
	bets     domain.BetRepository
	rounds   domain.RoundPort
	odds     domain.OddsSource
	balances domain.BalancePort
	config   domain.ConfigPort
	notifier domain.Broadcaster
	actions  domain.ActionRecorder
	idgen    *utils.SnowflakeID
	metrics  *metrics.Metrics
}

// NewBetService 创建投注应用服务
func NewBetService(
	bets domain.BetRepository,
	rounds domain.RoundPort,
	odds domain.OddsSource,
	balances domain.BalancePort,
	config domain.ConfigPort,
	notifier domain.Broadcaster,
	actions domain.ActionRecorder,
	idgen *utils.SnowflakeID,
	m *metrics.Metrics,
) *BetService {
	return &BetService{
		bets:     bets,
		rounds:   rounds,
		odds:     odds,
		balances: balances,
		config:   config,
		notifier: notifier,
		actions:  actions,
		idgen:    idgen,
		metrics:  m,
	}
}

// PlaceBetCommand 下注命令
type PlaceBetCommand struct {
	UserID    string
	RoundID   int64
	Direction domain.Direction
	Amount    decimal.Decimal
}

// BetDTO 投注视图
type BetDTO struct {
	BetID           string          `json:"bet_id"`
	RoundID         int64           `json:"round_id"`
	Category        string          `json:"category"`
	Direction       string          `json:"direction"`
	Amount          decimal.Decimal `json:"amount"`
	Odds            decimal.Decimal `json:"odds"`
	PotentialPayout decimal.Decimal `json:"potential_payout"`
	Payout          decimal.Decimal `json:"payout"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PlaceBet 下注：校验窗口与限额，锁定当前赔率，扣款与落库同事务
func (s *BetService) PlaceBet(ctx context.Context, cmd PlaceBetCommand) (*BetDTO, error) {
	if cmd.Direction != domain.DirectionLong && cmd.Direction != domain.DirectionShort {
		return nil, domain.ErrInvalidDirection
	}
	if !cmd.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	round, err := s.rounds.Get(ctx, cmd.RoundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load round %d: %w", cmd.RoundID, err)
	}
	if round == nil || !round.CanBet {
		return nil, domain.ErrBettingClosed
	}

	limits, err := s.config.BetLimits(ctx, round.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to load bet limits for %s: %w", round.Category, err)
	}
	if cmd.Amount.LessThan(limits.MinAmount) || cmd.Amount.GreaterThan(limits.MaxAmount) {
		return nil, domain.ErrInvalidAmount
	}

	odds, err := s.odds.Odds(ctx, cmd.RoundID, cmd.Direction)
	if err != nil {
		return nil, fmt.Errorf("failed to quote odds: %w", err)
	}

	bet := domain.NewBet(
		fmt.Sprintf("B%d", s.idgen.Generate()),
		cmd.UserID, cmd.RoundID, round.Category, cmd.Direction, cmd.Amount, odds,
	)
	err = s.withConflictRetry(func() error {
		return s.bets.WithTx(ctx, func(txCtx context.Context) error {
			if err := s.balances.Debit(txCtx, cmd.UserID, cmd.Amount); err != nil {
				return err
			}
			return s.bets.Create(txCtx, bet)
		})
	})
	if err != nil {
		return nil, err
	}

	logging.Info(ctx, "bet placed",
		"bet_id", bet.BetID, "user_id", cmd.UserID, "round_id", cmd.RoundID,
		"direction", cmd.Direction, "amount", cmd.Amount, "odds", odds)
	s.afterPlace(ctx, bet)
	return toBetDTO(bet), nil
}

// GetBet 查询单笔投注
func (s *BetService) GetBet(ctx context.Context, betID string) (*BetDTO, error) {
	bet, err := s.bets.GetByBetID(ctx, betID)
	if err != nil {
		return nil, err
	}
	if bet == nil {
		return nil, domain.ErrBetNotFound
	}
	return toBetDTO(bet), nil
}

// ListUserBets 用户投注历史
func (s *BetService) ListUserBets(ctx context.Context, userID string, page, pageSize int) ([]*BetDTO, *utils.Pagination, error) {
	p := utils.NewPagination(page, pageSize, 0)
	bets, total, err := s.bets.ListByUser(ctx, userID, p.Limit(), p.Offset())
	if err != nil {
		return nil, nil, err
	}
	p.Total = total
	out := make([]*BetDTO, 0, len(bets))
	for _, b := range bets {
		out = append(out, toBetDTO(b))
	}
	return out, p, nil
}

func (s *BetService) withConflictRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}
		if s.metrics != nil {
			s.metrics.VersionConflictsTotal.Inc()
		}
		time.Sleep(time.Duration(10*(attempt+1)) * time.Millisecond)
	}
	return err
}

func (s *BetService) afterPlace(ctx context.Context, bet *domain.Bet) {
	s.notifier.Broadcast(ctx, "bet.placed", map[string]any{
		"bet_id":    bet.BetID,
		"user_id":   bet.UserID,
		"round_id":  bet.RoundID,
		"direction": bet.Direction,
		"amount":    bet.Amount,
		"odds":      bet.Odds,
	})
	s.notifier.Broadcast(ctx, "balance.updated", map[string]any{
		"user_id": bet.UserID,
	})
	s.actions.RecordAction(ctx, bet.UserID, "bet_place")

	if s.metrics != nil {
		s.metrics.BetsTotal.WithLabelValues(bet.Category, string(bet.Direction)).Inc()
	}
}

func toBetDTO(bet *domain.Bet) *BetDTO {
	return &BetDTO{
		BetID:           bet.BetID,
		RoundID:         bet.RoundID,
		Category:        bet.Category,
		Direction:       string(bet.Direction),
		Amount:          bet.Amount,
		Odds:            bet.Odds,
		PotentialPayout: bet.PotentialPayout(),
		Payout:          bet.Payout,
		Status:          string(bet.Status),
		CreatedAt:       bet.CreatedAt,
	}
}
