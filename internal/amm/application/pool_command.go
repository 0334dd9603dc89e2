package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"

	"github.com/wyfcoding/predictionmarket/internal/amm/domain"
	"github.com/wyfcoding/predictionmarket/pkg/metrics"
	"github.com/wyfcoding/predictionmarket/pkg/utils"
)

// 乐观锁冲突的整体重试次数上限
const maxConflictRetries = 3

// ErrConcurrencyConflict 余额版本冲突且重试耗尽，调用方可整体重试
var ErrConcurrencyConflict = domain.NewDomainError("CONCURRENCY_CONFLICT", "balance was modified concurrently, retry the operation")

// PoolCommandService 流动性池写侧应用服务
// 交易执行的原子单元：池储备 + 持仓 + 流水 + 余额在同一事务内落库，
// 广播与行为上报在事务提交后尽力而为
type PoolCommandService struct {
	pools     domain.PoolRepository
	trades    domain.TradeRepository
	rounds    domain.RoundPort
	balances  domain.BalancePort
	positions domain.PositionPort
	config    domain.ConfigPort
	notifier  domain.Broadcaster
	actions   domain.ActionRecorder
	idgen     *utils.SnowflakeID
	metrics   *metrics.Metrics
}

// NewPoolCommandService 创建流动性池写侧应用服务
func NewPoolCommandService(
	pools domain.PoolRepository,
	trades domain.TradeRepository,
	rounds domain.RoundPort,
	balances domain.BalancePort,
	positions domain.PositionPort,
	config domain.ConfigPort,
	notifier domain.Broadcaster,
	actions domain.ActionRecorder,
	idgen *utils.SnowflakeID,
	m *metrics.Metrics,
) *PoolCommandService {
	return &PoolCommandService{
		pools:     pools,
		trades:    trades,
		rounds:    rounds,
		balances:  balances,
		positions: positions,
		config:    config,
		notifier:  notifier,
		actions:   actions,
		idgen:     idgen,
		metrics:   m,
	}
}

// CreatePool 为新回合创建流动性池，由回合调度器在建回合事务内调用
func (s *PoolCommandService) CreatePool(ctx context.Context, roundID int64, initialLiquidity decimal.Decimal) error {
	if !initialLiquidity.IsPositive() {
		return domain.ErrInvalidAmount
	}
	pool := domain.NewPool(roundID, initialLiquidity)
	if err := s.pools.Create(ctx, pool); err != nil {
		return fmt.Errorf("failed to create pool for round %d: %w", roundID, err)
	}
	logging.Info(ctx, "liquidity pool created", "round_id", roundID, "initial_liquidity", initialLiquidity)
	return nil
}

// ExecuteBuyCommand 买入命令
type ExecuteBuyCommand struct {
	UserID  string
	RoundID int64
	Side    domain.Side
	Amount  decimal.Decimal
}

// ExecuteSellCommand 卖出命令
type ExecuteSellCommand struct {
	UserID  string
	RoundID int64
	Side    domain.Side
	Shares  decimal.Decimal
}

// TradeResult 交易执行结果
type TradeResult struct {
	TradeID     string               `json:"trade_id"`
	Side        string               `json:"side"`
	Shares      decimal.Decimal      `json:"shares"`
	Amount      decimal.Decimal      `json:"amount"`
	AvgPrice    decimal.Decimal      `json:"avg_price"`
	Fee         decimal.Decimal      `json:"fee"`
	PriceImpact decimal.Decimal      `json:"price_impact"`
	PriceYes    decimal.Decimal      `json:"price_yes"`
	PriceNo     decimal.Decimal      `json:"price_no"`
	Position    *domain.PositionView `json:"position"`
}

// ExecuteBuy 执行买入
// 余额走乐观锁，版本冲突时整体重试（有限次），不会留下部分变更
func (s *PoolCommandService) ExecuteBuy(ctx context.Context, cmd ExecuteBuyCommand) (*TradeResult, error) {
	round, cfg, err := s.tradableRound(ctx, cmd.RoundID)
	if err != nil {
		return nil, err
	}
	if !cmd.Side.Valid() {
		return nil, domain.ErrInvalidSide
	}
	if cmd.Amount.LessThan(cfg.MinTradeAmount) || cmd.Amount.GreaterThan(cfg.MaxTradeAmount) {
		return nil, domain.ErrInvalidAmount
	}

	var result *TradeResult
	err = s.withConflictRetry(func() error {
		return s.pools.WithTx(ctx, func(txCtx context.Context) error {
			pool, err := s.pools.GetByRoundIDForUpdate(txCtx, cmd.RoundID)
			if err != nil {
				return err
			}
			if pool == nil {
				return domain.ErrPoolNotFound
			}

			quote, err := pool.QuoteBuy(cmd.Side, cmd.Amount, cfg.FeeRate)
			if err != nil {
				return err
			}

			// 先扣款：余额不足或版本冲突都会使整个事务回滚
			if err := s.balances.Debit(txCtx, cmd.UserID, cmd.Amount); err != nil {
				return err
			}

			position, err := s.positions.AddShares(txCtx, cmd.UserID, cmd.RoundID, cmd.Side, quote.Shares, cmd.Amount)
			if err != nil {
				return err
			}

			pool.Apply(quote)
			if err := s.pools.Update(txCtx, pool); err != nil {
				return err
			}

			trade := domain.NewTrade(fmt.Sprintf("T%d", s.idgen.Generate()), cmd.RoundID, cmd.UserID, domain.TradeTypeBuy, quote)
			if err := s.trades.Create(txCtx, trade); err != nil {
				return err
			}

			result = newTradeResult(trade, quote, position)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterTrade(ctx, round, result, "amm_buy")
	return result, nil
}

// ExecuteSell 执行卖出
// 同一持仓的并发卖出由持仓行锁串行化，后到者按剩余份额重新校验
func (s *PoolCommandService) ExecuteSell(ctx context.Context, cmd ExecuteSellCommand) (*TradeResult, error) {
	round, cfg, err := s.tradableRound(ctx, cmd.RoundID)
	if err != nil {
		return nil, err
	}
	if !cmd.Side.Valid() {
		return nil, domain.ErrInvalidSide
	}
	if !cmd.Shares.IsPositive() {
		return nil, domain.ErrInvalidShares
	}

	var result *TradeResult
	err = s.withConflictRetry(func() error {
		return s.pools.WithTx(ctx, func(txCtx context.Context) error {
			pool, err := s.pools.GetByRoundIDForUpdate(txCtx, cmd.RoundID)
			if err != nil {
				return err
			}
			if pool == nil {
				return domain.ErrPoolNotFound
			}

			quote, err := pool.QuoteSell(cmd.Side, cmd.Shares, cfg.FeeRate, cfg.MinReserveRatio)
			if err != nil {
				return err
			}

			// 平仓校验在行锁下基于最新持仓进行
			position, err := s.positions.CloseShares(txCtx, cmd.UserID, cmd.RoundID, cmd.Side, cmd.Shares, quote.Amount)
			if err != nil {
				return err
			}

			if err := s.balances.Credit(txCtx, cmd.UserID, quote.Amount); err != nil {
				return err
			}

			pool.Apply(quote)
			if err := s.pools.Update(txCtx, pool); err != nil {
				return err
			}

			trade := domain.NewTrade(fmt.Sprintf("T%d", s.idgen.Generate()), cmd.RoundID, cmd.UserID, domain.TradeTypeSell, quote)
			if err := s.trades.Create(txCtx, trade); err != nil {
				return err
			}

			result = newTradeResult(trade, quote, position)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterTrade(ctx, round, result, "amm_sell")
	return result, nil
}

// tradableRound 校验回合处于下注窗口并读取该品类做市参数
func (s *PoolCommandService) tradableRound(ctx context.Context, roundID int64) (*domain.TradingRound, *domain.AMMConfig, error) {
	round, err := s.rounds.Get(ctx, roundID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load round %d: %w", roundID, err)
	}
	if round == nil || !round.CanTrade {
		return nil, nil, domain.ErrRoundNotOpen
	}
	cfg, err := s.config.AMMConfig(ctx, round.Category)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load amm config for %s: %w", round.Category, err)
	}
	return round, cfg, nil
}

// withConflictRetry 仅对余额版本冲突做有限次整体重试，其余错误直接返回
func (s *PoolCommandService) withConflictRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
		if s.metrics != nil {
			s.metrics.VersionConflictsTotal.Inc()
		}
		time.Sleep(time.Duration(10*(attempt+1)) * time.Millisecond)
	}
	return err
}

// afterTrade 事务提交后的尽力而为副作用
func (s *PoolCommandService) afterTrade(ctx context.Context, round *domain.TradingRound, result *TradeResult, action string) {
	s.notifier.Broadcast(ctx, "price.updated", map[string]any{
		"round_id":  round.RoundID,
		"category":  round.Category,
		"price_yes": result.PriceYes,
		"price_no":  result.PriceNo,
	})
	s.notifier.Broadcast(ctx, "balance.updated", map[string]any{
		"user_id": result.Position.UserID,
	})
	s.actions.RecordAction(ctx, result.Position.UserID, action)

	if s.metrics != nil {
		direction := string(domain.TradeTypeBuy)
		if action == "amm_sell" {
			direction = string(domain.TradeTypeSell)
		}
		s.metrics.TradesTotal.WithLabelValues(round.Category, result.Side, direction).Inc()
		s.metrics.TradeVolume.WithLabelValues(round.Category).Add(result.Amount.InexactFloat64())
	}
}

func newTradeResult(trade *domain.Trade, quote *domain.Quote, position *domain.PositionView) *TradeResult {
	return &TradeResult{
		TradeID:     trade.TradeID,
		Side:        string(quote.Side),
		Shares:      quote.Shares,
		Amount:      quote.Amount,
		AvgPrice:    quote.AvgPrice,
		Fee:         quote.Fee,
		PriceImpact: quote.PriceImpact,
		PriceYes:    quote.PriceYesAfter,
		PriceNo:     quote.PriceNoAfter,
		Position:    position,
	}
}
