package application

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/predictionmarket/internal/position/domain"
)

// PriceProvider 当前池价格查询，由做市模块适配
type PriceProvider interface {
	Prices(ctx context.Context, roundID int64) (priceYes, priceNo decimal.Decimal, err error)
}

// PositionQueryService 持仓读侧应用服务
type PositionQueryService struct {
	repo   domain.PositionRepository
	prices PriceProvider
}

// NewPositionQueryService 创建持仓读侧应用服务
func NewPositionQueryService(repo domain.PositionRepository, prices PriceProvider) *PositionQueryService {
	return &PositionQueryService{repo: repo, prices: prices}
}

// PositionDTO 持仓视图，含按当前池价估算的未实现盈亏
type PositionDTO struct {
	RoundID          int64           `json:"round_id"`
	Side             string          `json:"side"`
	Shares           decimal.Decimal `json:"shares"`
	OpenShares       decimal.Decimal `json:"open_shares"`
	AvgCost          decimal.Decimal `json:"avg_cost"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	SettlementPayout decimal.Decimal `json:"settlement_payout"`
	Status           string          `json:"status"`
}

// ListByUser 用户全部持仓（分页）
func (s *PositionQueryService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*PositionDTO, int64, error) {
	positions, total, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list positions: %w", err)
	}

	dtos := make([]*PositionDTO, 0, len(positions))
	for _, p := range positions {
		dtos = append(dtos, s.toDTO(ctx, p))
	}
	return dtos, total, nil
}

// ListByUserAndRound 用户在某回合的持仓
func (s *PositionQueryService) ListByUserAndRound(ctx context.Context, userID string, roundID int64) ([]*PositionDTO, error) {
	positions, err := s.repo.ListByUserAndRound(ctx, userID, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	dtos := make([]*PositionDTO, 0, len(positions))
	for _, p := range positions {
		dtos = append(dtos, s.toDTO(ctx, p))
	}
	return dtos, nil
}

// toDTO 组装视图；价格查询失败时未实现盈亏置零，不阻断列表
func (s *PositionQueryService) toDTO(ctx context.Context, p *domain.Position) *PositionDTO {
	unrealized := decimal.Zero
	if p.Status == domain.StatusOpen {
		priceYes, priceNo, err := s.prices.Prices(ctx, p.RoundID)
		if err == nil {
			price := priceYes
			if p.Side == "NO" {
				price = priceNo
			}
			unrealized = price.Sub(p.AvgCost).Mul(p.OpenShares()).Round(4)
		}
	}

	return &PositionDTO{
		RoundID:          p.RoundID,
		Side:             p.Side,
		Shares:           p.Shares.Round(4),
		OpenShares:       p.OpenShares().Round(4),
		AvgCost:          p.AvgCost.Round(6),
		TotalCost:        p.TotalCost.Round(4),
		RealizedPnL:      p.RealizedPnL.Round(4),
		UnrealizedPnL:    unrealized,
		SettlementPayout: p.SettlementPayout.Round(4),
		Status:           string(p.Status),
	}
}
