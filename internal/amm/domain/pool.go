// Package domain 恒定乘积做市（CPMM）流动性池领域模型
//
// 每个回合对应一个 YES/NO 双边池，满足 yesReserve * noReserve = k。
// 买入 YES 把扣除手续费后的资金注入 NO 侧储备，按 k 反推 YES 侧新储备，
// 差额即成交份额；卖出为逆操作。报价是纯函数，执行才改写储备。
package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Side 结果方向
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Valid 校验方向取值
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// 输出保留位数：份额/金额 4 位，价格 6 位
const (
	SharePrecision = 4
	PricePrecision = 6
)

// Pool 流动性池聚合根，与回合一一对应，随回合创建，永不删除
type Pool struct {
	gorm.Model
	RoundID int64 `gorm:"column:round_id;uniqueIndex;not null" json:"round_id"`
	// YES 侧储备
	YesReserve decimal.Decimal `gorm:"column:yes_reserve;type:decimal(30,10);not null" json:"yes_reserve"`
	// NO 侧储备
	NoReserve decimal.Decimal `gorm:"column:no_reserve;type:decimal(30,10);not null" json:"no_reserve"`
	// 恒定乘积，创建时固化
	KConstant decimal.Decimal `gorm:"column:k_constant;type:decimal(40,10);not null" json:"k_constant"`
	// 初始流动性（单侧）
	InitialLiquidity decimal.Decimal `gorm:"column:initial_liquidity;type:decimal(30,10);not null" json:"initial_liquidity"`
	// 累计成交额
	TotalVolume decimal.Decimal `gorm:"column:total_volume;type:decimal(30,10);not null;default:0" json:"total_volume"`
	// 累计手续费
	TotalFees decimal.Decimal `gorm:"column:total_fees;type:decimal(30,10);not null;default:0" json:"total_fees"`
	// 成交笔数
	TradeCount int64 `gorm:"column:trade_count;not null;default:0" json:"trade_count"`
}

// TableName 表名
func (Pool) TableName() string {
	return "liquidity_pools"
}

// NewPool 以等量双边储备创建流动性池
func NewPool(roundID int64, initialLiquidity decimal.Decimal) *Pool {
	return &Pool{
		RoundID:          roundID,
		YesReserve:       initialLiquidity,
		NoReserve:        initialLiquidity,
		KConstant:        initialLiquidity.Mul(initialLiquidity),
		InitialLiquidity: initialLiquidity,
		TotalVolume:      decimal.Zero,
		TotalFees:        decimal.Zero,
	}
}

// Prices 返回当前 YES/NO 价格，两者之和恒为 1
// priceYes = no/(yes+no)，priceNo = yes/(yes+no)
func (p *Pool) Prices() (yes, no decimal.Decimal) {
	total := p.YesReserve.Add(p.NoReserve)
	if total.IsZero() {
		half := decimal.NewFromFloat(0.5)
		return half, half
	}
	yes = p.NoReserve.Div(total).Round(PricePrecision)
	no = decimal.NewFromInt(1).Sub(yes)
	return yes, no
}

// Quote 一次买入/卖出的报价结果
type Quote struct {
	Side Side
	// 买入：投入金额；卖出：到手金额（已扣手续费）
	Amount decimal.Decimal
	// 买入：获得份额；卖出：卖出份额
	Shares decimal.Decimal
	// 手续费
	Fee decimal.Decimal
	// 平均成交价
	AvgPrice decimal.Decimal
	// 价格冲击（成交方向价格的相对变化）
	PriceImpact decimal.Decimal
	// 成交后储备
	NewYesReserve decimal.Decimal
	NewNoReserve  decimal.Decimal
	// 成交后价格
	PriceYesAfter decimal.Decimal
	PriceNoAfter  decimal.Decimal
}

// QuoteBuy 报价买入，纯函数，不修改池状态
// 手续费先行扣除，余额注入对侧储备，份额按 k 反推
func (p *Pool) QuoteBuy(side Side, amountIn, feeRate decimal.Decimal) (*Quote, error) {
	if !side.Valid() {
		return nil, ErrInvalidSide
	}
	if !amountIn.IsPositive() {
		return nil, ErrInvalidAmount
	}

	fee := amountIn.Mul(feeRate).Round(SharePrecision)
	amountAfterFee := amountIn.Sub(fee)

	priceYesBefore, priceNoBefore := p.Prices()

	var newYes, newNo, shares decimal.Decimal
	if side == SideYes {
		newNo = p.NoReserve.Add(amountAfterFee)
		shares = p.YesReserve.Sub(p.KConstant.Div(newNo)).Round(SharePrecision)
		newYes = p.YesReserve.Sub(shares)
	} else {
		newYes = p.YesReserve.Add(amountAfterFee)
		shares = p.NoReserve.Sub(p.KConstant.Div(newYes)).Round(SharePrecision)
		newNo = p.NoReserve.Sub(shares)
	}

	if !shares.IsPositive() {
		return nil, ErrInvalidAmount
	}

	avgPrice := amountIn.Div(shares).Round(PricePrecision)

	priceYesAfter, priceNoAfter := prices(newYes, newNo)
	impact := priceImpact(side, priceYesBefore, priceNoBefore, priceYesAfter, priceNoAfter)

	return &Quote{
		Side:          side,
		Amount:        amountIn,
		Shares:        shares,
		Fee:           fee,
		AvgPrice:      avgPrice,
		PriceImpact:   impact,
		NewYesReserve: newYes,
		NewNoReserve:  newNo,
		PriceYesAfter: priceYesAfter,
		PriceNoAfter:  priceNoAfter,
	}, nil
}

// QuoteSell 报价卖出，纯函数，不修改池状态
// 份额回流本侧储备，对侧按 k 收缩，差额扣费后即到手金额。
// 任一侧储备将跌破下限（minReserveRatio * initialLiquidity）时拒绝
func (p *Pool) QuoteSell(side Side, sharesIn, feeRate, minReserveRatio decimal.Decimal) (*Quote, error) {
	if !side.Valid() {
		return nil, ErrInvalidSide
	}
	if !sharesIn.IsPositive() {
		return nil, ErrInvalidShares
	}

	var newYes, newNo, gross decimal.Decimal
	if side == SideYes {
		newYes = p.YesReserve.Add(sharesIn)
		gross = p.NoReserve.Sub(p.KConstant.Div(newYes)).Round(SharePrecision)
		newNo = p.NoReserve.Sub(gross)
	} else {
		newNo = p.NoReserve.Add(sharesIn)
		gross = p.YesReserve.Sub(p.KConstant.Div(newNo)).Round(SharePrecision)
		newYes = p.YesReserve.Sub(gross)
	}

	if !gross.IsPositive() {
		return nil, ErrInvalidShares
	}

	floor := p.InitialLiquidity.Mul(minReserveRatio)
	if newYes.LessThan(floor) || newNo.LessThan(floor) {
		return nil, ErrInsufficientLiquidity
	}

	fee := gross.Mul(feeRate).Round(SharePrecision)
	amountOut := gross.Sub(fee)

	priceYesBefore, priceNoBefore := p.Prices()
	priceYesAfter, priceNoAfter := prices(newYes, newNo)
	impact := priceImpact(side, priceYesBefore, priceNoBefore, priceYesAfter, priceNoAfter)

	return &Quote{
		Side:          side,
		Amount:        amountOut,
		Shares:        sharesIn,
		Fee:           fee,
		AvgPrice:      amountOut.Div(sharesIn).Round(PricePrecision),
		PriceImpact:   impact,
		NewYesReserve: newYes,
		NewNoReserve:  newNo,
		PriceYesAfter: priceYesAfter,
		PriceNoAfter:  priceNoAfter,
	}, nil
}

// Apply 将报价结果落到池上，只能在持有池行锁的事务内调用
func (p *Pool) Apply(q *Quote) {
	p.YesReserve = q.NewYesReserve
	p.NoReserve = q.NewNoReserve
	p.TotalVolume = p.TotalVolume.Add(q.Amount)
	p.TotalFees = p.TotalFees.Add(q.Fee)
	p.TradeCount++
}

func prices(yes, no decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	total := yes.Add(no)
	priceYes := no.Div(total).Round(PricePrecision)
	return priceYes, decimal.NewFromInt(1).Sub(priceYes)
}

func priceImpact(side Side, yesBefore, noBefore, yesAfter, noAfter decimal.Decimal) decimal.Decimal {
	var before, after decimal.Decimal
	if side == SideYes {
		before, after = yesBefore, yesAfter
	} else {
		before, after = noBefore, noAfter
	}
	if before.IsZero() {
		return decimal.Zero
	}
	return after.Sub(before).Div(before).Round(PricePrecision)
}

// PoolRepository 流动性池仓储接口
type PoolRepository interface {
	Create(ctx context.Context, pool *Pool) error
	GetByRoundID(ctx context.Context, roundID int64) (*Pool, error)
	// GetByRoundIDForUpdate 行锁读取，用于交易执行事务
	GetByRoundIDForUpdate(ctx context.Context, roundID int64) (*Pool, error)
	Update(ctx context.Context, pool *Pool) error
	WithTx(ctx context.Context, fn func(txCtx context.Context) error) error
}
