package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	accountdomain "github.com/wyfcoding/predictionmarket/internal/account/domain"
	betdomain "github.com/wyfcoding/predictionmarket/internal/bet/domain"
	positiondomain "github.com/wyfcoding/predictionmarket/internal/position/domain"
	rounddomain "github.com/wyfcoding/predictionmarket/internal/round/domain"
	"github.com/wyfcoding/predictionmarket/internal/settlement/domain"
	"github.com/wyfcoding/predictionmarket/pkg/metrics"
	"github.com/wyfcoding/predictionmarket/pkg/utils"
)

const (
	payoutMaxAttempts   = 3
	payoutRetryInitial  = 10 * time.Millisecond
	payoutRetryMaxDelay = 100 * time.Millisecond

	sideLong  = "YES"
	sideShort = "NO"
)

// SettlementService 回合结算引擎。
// 单次调用尽力推进：封盘回合先判定结果并落审计记录，再逐仓逐注派奖。
// 每笔派奖独立事务，失败只留下该笔未结算，回合停在 SETTLING 等下轮清扫，
// 直到全部派奖成功才迁移到 SETTLED
type SettlementService struct {
	rounds      rounddomain.RoundRepository
	settlements domain.SettlementRepository
	positions   positiondomain.PositionRepository
	bets        betdomain.BetRepository
	accounts    accountdomain.AccountRepository
	configs     rounddomain.ConfigStore
	prices      domain.PriceHistory
	streak      accountdomain.StreakConfig
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewSettlementService 创建结算服务
func NewSettlementService(
	rounds rounddomain.RoundRepository,
	settlements domain.SettlementRepository,
	positions positiondomain.PositionRepository,
	bets betdomain.BetRepository,
	accounts accountdomain.AccountRepository,
	configs rounddomain.ConfigStore,
	prices domain.PriceHistory,
	streak accountdomain.StreakConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		rounds:      rounds,
		settlements: settlements,
		positions:   positions,
		bets:        bets,
		accounts:    accounts,
		configs:     configs,
		prices:      prices,
		streak:      streak,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

// SettleRound 结算回合，可安全重复调用。
// 返回 done=true 表示回合已终结；done=false 表示本轮未完成（缺价格或有派奖失败），
// 调用方应在下个周期重试
func (s *SettlementService) SettleRound(ctx context.Context, roundID int64) (bool, error) {
	round, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return false, err
	}
	if round == nil {
		return false, errors.New("round not found")
	}

	switch round.Status {
	case rounddomain.StatusSettled:
		return true, nil
	case rounddomain.StatusBetting:
		return false, rounddomain.ErrInvalidTransition
	case rounddomain.StatusLocked:
		ok, err := s.beginSettlement(ctx, round)
		if err != nil || !ok {
			return false, err
		}
	}

	return s.runSweep(ctx, round)
}

// beginSettlement 判定结果并进入 SETTLING。
// 需要至少两个价格采样才认为收盘价可信，不足时放弃本次调用
func (s *SettlementService) beginSettlement(ctx context.Context, round *rounddomain.Round) (bool, error) {
	recent, err := s.prices.RecentPrices(ctx, round.Category, 2)
	if err != nil {
		return false, err
	}
	if len(recent) < 2 {
		s.logger.Warn("not enough price samples to settle, deferred",
			"category", round.Category, "round_id", round.ID, "samples", len(recent))
		return false, nil
	}
	closePrice := recent[0]

	cfg, err := s.configs.RoundConfig(ctx, round.Category)
	if err != nil {
		return false, err
	}
	result := domain.Classify(round.OpenPrice, closePrice, cfg.DrawThreshold)

	if err := round.BeginSettlement(); err != nil {
		return false, err
	}
	record := &domain.Settlement{
		RoundID:    int64(round.ID),
		Category:   round.Category,
		Result:     result,
		OpenPrice:  round.OpenPrice,
		ClosePrice: closePrice,
	}
	// 状态迁移与审计记录同事务，二者不可分离
	err = s.rounds.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.rounds.SaveTransition(txCtx, round, rounddomain.StatusLocked); err != nil {
			return err
		}
		return s.settlements.Create(txCtx, record)
	})
	if err != nil {
		round.Status = rounddomain.StatusLocked
		return false, err
	}
	s.logger.Info("round settlement started",
		"category", round.Category, "round_id", round.ID,
		"result", result, "open_price", round.OpenPrice.String(), "close_price", closePrice.String())
	return true, nil
}

// runSweep 派奖清扫，全部成功后终结回合
func (s *SettlementService) runSweep(ctx context.Context, round *rounddomain.Round) (bool, error) {
	record, err := s.settlements.GetByRoundID(ctx, int64(round.ID))
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, errors.New("settlement record missing for settling round")
	}

	started := s.now()
	positionsPending := s.sweepPositions(ctx, round, record)
	betsPending := s.sweepBets(ctx, record)

	if err := s.settlements.Update(ctx, record); err != nil {
		s.logger.Error("failed to persist settlement progress", "round_id", round.ID, "error", err)
	}
	if positionsPending > 0 || betsPending > 0 {
		s.logger.Warn("settlement sweep incomplete, will retry",
			"round_id", round.ID, "positions_pending", positionsPending, "bets_pending", betsPending)
		return false, nil
	}

	if err := round.FinishSettlement(record.Result, record.ClosePrice); err != nil {
		return false, err
	}
	if err := s.rounds.SaveTransition(ctx, round, rounddomain.StatusSettling); err != nil {
		round.Status = rounddomain.StatusSettling
		return false, err
	}
	completed := s.now()
	record.CompletedAt = &completed
	if err := s.settlements.Update(ctx, record); err != nil {
		s.logger.Error("failed to mark settlement completed", "round_id", round.ID, "error", err)
	}

	s.metrics.SettlementDuration.Observe(completed.Sub(started).Seconds())
	s.metrics.RoundsSettled.WithLabelValues(round.Category, string(record.Result)).Inc()
	return true, nil
}

// sweepPositions 逐仓派奖，返回仍未结算的数量
func (s *SettlementService) sweepPositions(ctx context.Context, round *rounddomain.Round, record *domain.Settlement) int {
	open, err := s.positions.ListOpenByRound(ctx, int64(round.ID))
	if err != nil {
		s.logger.Error("failed to list open positions", "round_id", round.ID, "error", err)
		return 1
	}

	pending := 0
	for _, p := range open {
		payout, err := s.settlePosition(ctx, int64(round.ID), p, record.Result)
		if err != nil {
			pending++
			s.metrics.PayoutRetriesTotal.Inc()
			s.logger.Error("position payout failed",
				"round_id", round.ID, "user_id", p.UserID, "side", p.Side, "error", err)
			continue
		}
		record.PositionsSettled++
		record.TotalPayout = record.TotalPayout.Add(payout)
	}
	return pending
}

// settlePosition 单仓派奖：行锁重读、算赔付、记连胜、乐观锁入账，全程一个事务
func (s *SettlementService) settlePosition(ctx context.Context, roundID int64, p *positiondomain.Position, result rounddomain.Result) (decimal.Decimal, error) {
	var payout decimal.Decimal
	err := utils.RetryWithBackoff(payoutMaxAttempts, payoutRetryInitial, payoutRetryMaxDelay, func() error {
		return s.positions.WithTx(ctx, func(txCtx context.Context) error {
			locked, err := s.positions.GetForUpdate(txCtx, p.UserID, roundID, p.Side)
			if err != nil {
				return err
			}
			if locked == nil || locked.Status == positiondomain.StatusSettled {
				payout = decimal.Zero
				return nil
			}

			account, err := s.accounts.GetOrCreate(txCtx, locked.UserID)
			if err != nil {
				return err
			}

			outcome := positionOutcome(locked.Side, result)
			payout = positionPayout(locked, outcome, account.Multiplier)

			if err := locked.Settle(payout); err != nil {
				if errors.Is(err, positiondomain.ErrAlreadySettled) {
					payout = decimal.Zero
					return nil
				}
				return err
			}
			if payout.IsPositive() {
				account.Credit(payout)
			}
			account.ApplyOutcome(outcome, s.streak)
			if err := s.accounts.Save(txCtx, account); err != nil {
				if errors.Is(err, accountdomain.ErrVersionConflict) {
					s.metrics.VersionConflictsTotal.Inc()
				}
				return err
			}
			return s.positions.Update(txCtx, locked)
		})
	})
	if err != nil {
		return decimal.Zero, err
	}
	return payout, nil
}

// positionOutcome 持仓方向对应的胜负
func positionOutcome(side string, result rounddomain.Result) accountdomain.Outcome {
	switch result {
	case rounddomain.ResultDraw:
		return accountdomain.OutcomeDraw
	case rounddomain.ResultLongWin:
		if side == sideLong {
			return accountdomain.OutcomeWin
		}
		return accountdomain.OutcomeLose
	default: // SHORT_WIN
		if side == sideShort {
			return accountdomain.OutcomeWin
		}
		return accountdomain.OutcomeLose
	}
}

// positionPayout 计算持仓赔付。
// 胜方每份额兑付 1 并乘以结算时刻的连胜倍率；平盘按成本退款；负方归零
func positionPayout(p *positiondomain.Position, outcome accountdomain.Outcome, multiplier decimal.Decimal) decimal.Decimal {
	open := p.OpenShares()
	switch outcome {
	case accountdomain.OutcomeWin:
		return open.Mul(multiplier).Round(4)
	case accountdomain.OutcomeDraw:
		return p.AvgCost.Mul(open).Round(4)
	default:
		return decimal.Zero
	}
}

// sweepBets 逐注派奖，返回仍未结算的数量
func (s *SettlementService) sweepBets(ctx context.Context, record *domain.Settlement) int {
	pendingBets, err := s.bets.ListPendingByRound(ctx, record.RoundID)
	if err != nil {
		s.logger.Error("failed to list pending bets", "round_id", record.RoundID, "error", err)
		return 1
	}

	pending := 0
	for _, b := range pendingBets {
		payout, err := s.settleBet(ctx, b, record.Result)
		if err != nil {
			pending++
			s.metrics.PayoutRetriesTotal.Inc()
			s.logger.Error("bet payout failed",
				"round_id", record.RoundID, "bet_id", b.BetID, "user_id", b.UserID, "error", err)
			continue
		}
		record.BetsSettled++
		record.TotalPayout = record.TotalPayout.Add(payout)
	}
	return pending
}

// settleBet 单注派奖，赔付按下注时锁定的赔率，不叠加倍率，连胜照常推进
func (s *SettlementService) settleBet(ctx context.Context, b *betdomain.Bet, result rounddomain.Result) (decimal.Decimal, error) {
	var payout decimal.Decimal
	err := utils.RetryWithBackoff(payoutMaxAttempts, payoutRetryInitial, payoutRetryMaxDelay, func() error {
		return s.bets.WithTx(ctx, func(txCtx context.Context) error {
			locked, err := s.bets.GetForUpdate(txCtx, b.BetID)
			if err != nil {
				return err
			}
			if locked == nil || locked.Status != betdomain.StatusPending {
				payout = decimal.Zero
				return nil
			}

			account, err := s.accounts.GetOrCreate(txCtx, locked.UserID)
			if err != nil {
				return err
			}

			outcome := betOutcome(locked.Direction, result)
			var markErr error
			switch outcome {
			case accountdomain.OutcomeWin:
				markErr = locked.MarkWon()
			case accountdomain.OutcomeDraw:
				markErr = locked.MarkRefunded()
			default:
				markErr = locked.MarkLost()
			}
			if markErr != nil {
				if errors.Is(markErr, betdomain.ErrBetAlreadySettled) {
					payout = decimal.Zero
					return nil
				}
				return markErr
			}

			payout = locked.Payout
			if payout.IsPositive() {
				account.Credit(payout)
			}
			account.ApplyOutcome(outcome, s.streak)
			if err := s.accounts.Save(txCtx, account); err != nil {
				if errors.Is(err, accountdomain.ErrVersionConflict) {
					s.metrics.VersionConflictsTotal.Inc()
				}
				return err
			}
			return s.bets.Update(txCtx, locked)
		})
	})
	if err != nil {
		return decimal.Zero, err
	}
	return payout, nil
}

// betOutcome 投注方向对应的胜负
func betOutcome(direction betdomain.Direction, result rounddomain.Result) accountdomain.Outcome {
	switch result {
	case rounddomain.ResultDraw:
		return accountdomain.OutcomeDraw
	case rounddomain.ResultLongWin:
		if direction == betdomain.DirectionLong {
			return accountdomain.OutcomeWin
		}
		return accountdomain.OutcomeLose
	default:
		if direction == betdomain.DirectionShort {
			return accountdomain.OutcomeWin
		}
		return accountdomain.OutcomeLose
	}
}
