package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wyfcoding/predictionmarket/internal/round/domain"
	"github.com/wyfcoding/predictionmarket/pkg/metrics"
)

// Scheduler 回合调度器。
// 每个品类一个巡检协程，按固定间隔比对持久化时间戳推进状态机，
// 不依赖内存定时器，进程重启后第一次巡检即可补齐错过的迁移
type Scheduler struct {
	rounds   domain.RoundRepository
	configs  domain.ConfigStore
	pools    domain.PoolCreator
	settler  domain.Settler
	prices   domain.PriceReader
	notifier domain.Broadcaster
	metrics  *metrics.Metrics
	logger   *slog.Logger

	sweepInterval time.Duration
	closedPoll    time.Duration
	now           func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// marketState 记录品类最近一次广播的开闭市状态，避免重复广播
type marketState struct {
	announced bool
	open      bool
}

// NewScheduler 创建调度器
func NewScheduler(
	rounds domain.RoundRepository,
	configs domain.ConfigStore,
	pools domain.PoolCreator,
	settler domain.Settler,
	prices domain.PriceReader,
	notifier domain.Broadcaster,
	m *metrics.Metrics,
	logger *slog.Logger,
	sweepInterval, closedPoll time.Duration,
) *Scheduler {
	return &Scheduler{
		rounds:        rounds,
		configs:       configs,
		pools:         pools,
		settler:       settler,
		prices:        prices,
		notifier:      notifier,
		metrics:       m,
		logger:        logger,
		sweepInterval: sweepInterval,
		closedPoll:    closedPoll,
		now:           time.Now,
	}
}

// Start 为每个品类启动巡检协程
func (s *Scheduler) Start(ctx context.Context) error {
	categories, err := s.configs.Categories(ctx)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	for _, category := range categories {
		s.wg.Add(1)
		go s.runCategory(runCtx, category)
	}
	s.logger.Info("round scheduler started", "categories", categories)
	return nil
}

// Stop 停止调度并等待协程退出
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("round scheduler stopped")
}

func (s *Scheduler) runCategory(ctx context.Context, category string) {
	defer s.wg.Done()
	state := &marketState{}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			timer.Reset(s.sweep(ctx, category, state))
		}
	}
}

// sweep 单次巡检，返回下次巡检的等待时长
func (s *Scheduler) sweep(ctx context.Context, category string, state *marketState) time.Duration {
	cfg, err := s.configs.RoundConfig(ctx, category)
	if err != nil {
		s.logger.Error("failed to load round config", "category", category, "error", err)
		return s.sweepInterval
	}

	round, err := s.rounds.GetActiveByCategory(ctx, category)
	if err != nil {
		s.logger.Error("failed to query active round", "category", category, "error", err)
		return s.sweepInterval
	}

	now := s.now()
	if round == nil {
		if !cfg.MarketOpen(now) {
			s.announceMarket(ctx, category, false, state)
			return s.closedPoll
		}
		s.announceMarket(ctx, category, true, state)
		s.openRound(ctx, cfg)
		return s.sweepInterval
	}

	if round.Status == domain.StatusBetting && !now.Before(round.LockTime) {
		s.lockRound(ctx, round)
	}

	if now.Before(round.EndTime) {
		return s.sweepInterval
	}

	// 兜底：进程停摆跨过整个回合时，先补上封盘再结算
	if round.Status == domain.StatusBetting {
		s.lockRound(ctx, round)
	}
	if round.Status != domain.StatusLocked && round.Status != domain.StatusSettling {
		return s.sweepInterval
	}

	done, err := s.settler.SettleRound(ctx, int64(round.ID))
	if err != nil {
		s.logger.Error("round settlement failed, will retry",
			"category", category, "round_id", round.ID, "error", err)
		return s.sweepInterval
	}
	if !done {
		return s.sweepInterval
	}

	s.afterSettled(ctx, category, int64(round.ID))

	if !cfg.MarketOpen(s.now()) {
		s.announceMarket(ctx, category, false, state)
		return s.closedPoll
	}
	s.openRound(ctx, cfg)
	return s.sweepInterval
}

// openRound 开启新回合并在同一事务内注入做市池
func (s *Scheduler) openRound(ctx context.Context, cfg *domain.RoundConfig) {
	number, err := s.rounds.NextRoundNumber(ctx, cfg.Category)
	if err != nil {
		s.logger.Error("failed to allocate round number", "category", cfg.Category, "error", err)
		return
	}
	openPrice, err := s.prices.CurrentPrice(ctx, cfg.Category)
	if err != nil {
		// 无可用价格时不开盘，下个周期重试
		s.logger.Warn("no price available, round opening deferred", "category", cfg.Category, "error", err)
		return
	}

	round := domain.NewRound(cfg.Category, number, s.now(), cfg.RoundDuration, cfg.LockPeriod, openPrice)
	err = s.rounds.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.rounds.Create(txCtx, round); err != nil {
			return err
		}
		return s.pools.CreatePool(txCtx, int64(round.ID), cfg.InitialLiquidity)
	})
	if err != nil {
		s.logger.Error("failed to open round", "category", cfg.Category, "round_number", number, "error", err)
		return
	}

	s.metrics.RoundsActive.Inc()
	s.logger.Info("round opened",
		"category", cfg.Category, "round_id", round.ID, "round_number", number,
		"open_price", openPrice.String(), "lock_time", round.LockTime, "end_time", round.EndTime)
	s.broadcast(ctx, "round.opened", map[string]any{
		"round_id":     round.ID,
		"category":     round.Category,
		"round_number": round.RoundNumber,
		"start_time":   round.StartTime,
		"lock_time":    round.LockTime,
		"end_time":     round.EndTime,
		"open_price":   round.OpenPrice,
	})
}

func (s *Scheduler) lockRound(ctx context.Context, round *domain.Round) {
	if err := round.Lock(); err != nil {
		return
	}
	if err := s.rounds.SaveTransition(ctx, round, domain.StatusBetting); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// 已被其他实例推进
			return
		}
		s.logger.Error("failed to lock round", "round_id", round.ID, "error", err)
		round.Status = domain.StatusBetting
		return
	}
	s.logger.Info("round locked", "category", round.Category, "round_id", round.ID)
	s.broadcast(ctx, "round.locked", map[string]any{
		"round_id": round.ID,
		"category": round.Category,
		"end_time": round.EndTime,
	})
}

func (s *Scheduler) afterSettled(ctx context.Context, category string, roundID int64) {
	s.metrics.RoundsActive.Dec()
	settled, err := s.rounds.GetByID(ctx, roundID)
	if err != nil || settled == nil {
		s.logger.Error("failed to reload settled round", "round_id", roundID, "error", err)
		return
	}
	s.logger.Info("round settled",
		"category", category, "round_id", roundID,
		"result", settled.Result, "close_price", settled.ClosePrice.String())
	s.broadcast(ctx, "round.settled", map[string]any{
		"round_id":    settled.ID,
		"category":    settled.Category,
		"result":      settled.Result,
		"open_price":  settled.OpenPrice,
		"close_price": settled.ClosePrice,
	})
}

func (s *Scheduler) announceMarket(ctx context.Context, category string, open bool, state *marketState) {
	if state.announced && state.open == open {
		return
	}
	state.announced = true
	state.open = open
	s.logger.Info("market status changed", "category", category, "open", open)
	s.broadcast(ctx, "market.status", map[string]any{
		"category": category,
		"open":     open,
	})
}

func (s *Scheduler) broadcast(ctx context.Context, event string, payload any) {
	s.notifier.Broadcast(ctx, event, payload)
}
