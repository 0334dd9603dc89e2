package application

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/predictionmarket/internal/amm/domain"
)

// PoolQueryService 流动性池读侧应用服务，报价为纯计算，不产生任何变更
type PoolQueryService struct {
	pools  domain.PoolRepository
	trades domain.TradeRepository
	rounds domain.RoundPort
	config domain.ConfigPort
}

// NewPoolQueryService 创建流动性池读侧应用服务
func NewPoolQueryService(
	pools domain.PoolRepository,
	trades domain.TradeRepository,
	rounds domain.RoundPort,
	config domain.ConfigPort,
) *PoolQueryService {
	return &PoolQueryService{pools: pools, trades: trades, rounds: rounds, config: config}
}

// PoolSnapshot 池快照
type PoolSnapshot struct {
	RoundID     int64           `json:"round_id"`
	YesReserve  decimal.Decimal `json:"yes_reserve"`
	NoReserve   decimal.Decimal `json:"no_reserve"`
	PriceYes    decimal.Decimal `json:"price_yes"`
	PriceNo     decimal.Decimal `json:"price_no"`
	TotalVolume decimal.Decimal `json:"total_volume"`
	TotalFees   decimal.Decimal `json:"total_fees"`
	TradeCount  int64           `json:"trade_count"`
}

// QuoteDTO 报价视图
type QuoteDTO struct {
	Side        string          `json:"side"`
	Shares      decimal.Decimal `json:"shares"`
	Amount      decimal.Decimal `json:"amount"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	Fee         decimal.Decimal `json:"fee"`
	PriceImpact decimal.Decimal `json:"price_impact"`
	PriceYes    decimal.Decimal `json:"price_yes_after"`
	PriceNo     decimal.Decimal `json:"price_no_after"`
}

// GetSnapshot 读取池快照
func (s *PoolQueryService) GetSnapshot(ctx context.Context, roundID int64) (*PoolSnapshot, error) {
	pool, err := s.pools.GetByRoundID(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pool for round %d: %w", roundID, err)
	}
	if pool == nil {
		return nil, domain.ErrPoolNotFound
	}
	priceYes, priceNo := pool.Prices()
	return &PoolSnapshot{
		RoundID:     pool.RoundID,
		YesReserve:  pool.YesReserve.Round(domain.SharePrecision),
		NoReserve:   pool.NoReserve.Round(domain.SharePrecision),
		PriceYes:    priceYes,
		PriceNo:     priceNo,
		TotalVolume: pool.TotalVolume.Round(domain.SharePrecision),
		TotalFees:   pool.TotalFees.Round(domain.SharePrecision),
		TradeCount:  pool.TradeCount,
	}, nil
}

// QuoteBuy 买入报价
func (s *PoolQueryService) QuoteBuy(ctx context.Context, roundID int64, side domain.Side, amount decimal.Decimal) (*QuoteDTO, error) {
	pool, cfg, err := s.poolWithConfig(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if amount.LessThan(cfg.MinTradeAmount) || amount.GreaterThan(cfg.MaxTradeAmount) {
		return nil, domain.ErrInvalidAmount
	}
	quote, err := pool.QuoteBuy(side, amount, cfg.FeeRate)
	if err != nil {
		return nil, err
	}
	return toQuoteDTO(quote), nil
}

// QuoteSell 卖出报价
func (s *PoolQueryService) QuoteSell(ctx context.Context, roundID int64, side domain.Side, shares decimal.Decimal) (*QuoteDTO, error) {
	pool, cfg, err := s.poolWithConfig(ctx, roundID)
	if err != nil {
		return nil, err
	}
	quote, err := pool.QuoteSell(side, shares, cfg.FeeRate, cfg.MinReserveRatio)
	if err != nil {
		return nil, err
	}
	return toQuoteDTO(quote), nil
}

// ListTrades 回合成交流水（分页）
func (s *PoolQueryService) ListTrades(ctx context.Context, roundID int64, limit, offset int) ([]*domain.Trade, int64, error) {
	return s.trades.ListByRound(ctx, roundID, limit, offset)
}

func (s *PoolQueryService) poolWithConfig(ctx context.Context, roundID int64) (*domain.Pool, *domain.AMMConfig, error) {
	pool, err := s.pools.GetByRoundID(ctx, roundID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load pool for round %d: %w", roundID, err)
	}
	if pool == nil {
		return nil, nil, domain.ErrPoolNotFound
	}
	round, err := s.rounds.Get(ctx, roundID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load round %d: %w", roundID, err)
	}
	if round == nil {
		return nil, nil, domain.ErrRoundNotOpen
	}
	cfg, err := s.config.AMMConfig(ctx, round.Category)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load amm config: %w", err)
	}
	return pool, cfg, nil
}

func toQuoteDTO(q *domain.Quote) *QuoteDTO {
	return &QuoteDTO{
		Side:        string(q.Side),
		Shares:      q.Shares,
		Amount:      q.Amount,
		AvgPrice:    q.AvgPrice,
		Fee:         q.Fee,
		PriceImpact: q.PriceImpact,
		PriceYes:    q.PriceYesAfter,
		PriceNo:     q.PriceNoAfter,
	}
}
