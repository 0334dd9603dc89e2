package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/predictionmarket/internal/round/domain"
)

const snapshotCacheTTL = 2 * time.Second

// SnapshotCache 回合快照缓存接口
type SnapshotCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// RoundSnapshot 当前回合快照
type RoundSnapshot struct {
	RoundID     int64           `json:"round_id"`
	RoundNumber int64           `json:"round_number"`
	Category    string          `json:"category"`
	Status      string          `json:"status"`
	StartTime   time.Time       `json:"start_time"`
	LockTime    time.Time       `json:"lock_time"`
	EndTime     time.Time       `json:"end_time"`
	OpenPrice   decimal.Decimal `json:"open_price"`
	HighPrice   decimal.Decimal `json:"high_price"`
	LowPrice    decimal.Decimal `json:"low_price"`
	Countdown   int64           `json:"countdown"`
	CanBet      bool            `json:"can_bet"`
}

// RoundHistoryItem 历史回合条目
type RoundHistoryItem struct {
	RoundID     int64           `json:"round_id"`
	RoundNumber int64           `json:"round_number"`
	Category    string          `json:"category"`
	Result      string          `json:"result"`
	OpenPrice   decimal.Decimal `json:"open_price"`
	ClosePrice  decimal.Decimal `json:"close_price"`
	HighPrice   decimal.Decimal `json:"high_price"`
	LowPrice    decimal.Decimal `json:"low_price"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
}

// RoundQueryService 回合查询服务
type RoundQueryService struct {
	rounds domain.RoundRepository
	cache  SnapshotCache
	logger *slog.Logger
	now    func() time.Time
}

// NewRoundQueryService 创建回合查询服务
func NewRoundQueryService(rounds domain.RoundRepository, cache SnapshotCache, logger *slog.Logger) *RoundQueryService {
	return &RoundQueryService{rounds: rounds, cache: cache, logger: logger, now: time.Now}
}

// Current 查询品类当前回合快照，无活动回合时返回 nil。
// 倒计时随时间变化，缓存仅用极短 TTL 抗读放大
func (s *RoundQueryService) Current(ctx context.Context, category string) (*RoundSnapshot, error) {
	key := fmt.Sprintf("round:snapshot:%s", category)
	if s.cache != nil {
		var cached RoundSnapshot
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			cached.Countdown = recountdown(&cached, s.now())
			return &cached, nil
		}
	}

	round, err := s.rounds.GetActiveByCategory(ctx, category)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, nil
	}

	now := s.now()
	snapshot := &RoundSnapshot{
		RoundID:     int64(round.ID),
		RoundNumber: round.RoundNumber,
		Category:    round.Category,
		Status:      round.Status.String(),
		StartTime:   round.StartTime,
		LockTime:    round.LockTime,
		EndTime:     round.EndTime,
		OpenPrice:   round.OpenPrice,
		HighPrice:   round.HighPrice,
		LowPrice:    round.LowPrice,
		Countdown:   round.Countdown(now),
		CanBet:      round.CanBet(now),
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, snapshot, snapshotCacheTTL); err != nil {
			s.logger.Warn("failed to cache round snapshot", "category", category, "error", err)
		}
	}
	return snapshot, nil
}

// recountdown 基于缓存快照的时间戳重算倒计时与下注窗口
func recountdown(snap *RoundSnapshot, now time.Time) int64 {
	snap.CanBet = snap.Status == domain.StatusBetting.String() && now.Before(snap.LockTime)
	var deadline time.Time
	switch snap.Status {
	case domain.StatusBetting.String():
		deadline = snap.LockTime
	case domain.StatusLocked.String():
		deadline = snap.EndTime
	default:
		return 0
	}
	remaining := int64(deadline.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// History 查询已结算回合历史
func (s *RoundQueryService) History(ctx context.Context, category string, page, pageSize int) ([]*RoundHistoryItem, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	rounds, total, err := s.rounds.History(ctx, category, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	items := make([]*RoundHistoryItem, 0, len(rounds))
	for _, r := range rounds {
		items = append(items, &RoundHistoryItem{
			RoundID:     int64(r.ID),
			RoundNumber: r.RoundNumber,
			Category:    r.Category,
			Result:      string(r.Result),
			OpenPrice:   r.OpenPrice,
			ClosePrice:  r.ClosePrice,
			HighPrice:   r.HighPrice,
			LowPrice:    r.LowPrice,
			StartTime:   r.StartTime,
			EndTime:     r.EndTime,
		})
	}
	return items, total, nil
}
