package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	feeRate         = decimal.NewFromFloat(0.02)
	minReserveRatio = decimal.NewFromFloat(0.1)
	epsilon         = decimal.NewFromFloat(0.001)
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	return NewPool(1, decimal.NewFromInt(10000))
}

func TestNewPoolSeedsEqualReserves(t *testing.T) {
	pool := newTestPool(t)

	assert.True(t, pool.YesReserve.Equal(decimal.NewFromInt(10000)))
	assert.True(t, pool.NoReserve.Equal(decimal.NewFromInt(10000)))
	assert.True(t, pool.KConstant.Equal(decimal.NewFromInt(100000000)))

	yes, no := pool.Prices()
	assert.True(t, yes.Equal(decimal.NewFromFloat(0.5)))
	assert.True(t, no.Equal(decimal.NewFromFloat(0.5)))
}

func TestQuoteBuyYesScenario(t *testing.T) {
	// initialLiquidity=10000, buy YES 1000 @ 2% fee:
	// fee=20, afterFee=980, newNo=10980, newYes=k/10980≈9107.47, shares≈892.53
	pool := newTestPool(t)

	quote, err := pool.QuoteBuy(SideYes, decimal.NewFromInt(1000), feeRate)
	require.NoError(t, err)

	assert.True(t, quote.Fee.Equal(decimal.NewFromInt(20)))
	assert.True(t, quote.NewNoReserve.Equal(decimal.NewFromInt(10980)))
	assert.True(t, quote.Shares.Sub(decimal.NewFromFloat(892.5319)).Abs().LessThan(epsilon),
		"shares = %s", quote.Shares)
	assert.True(t, quote.NewYesReserve.Sub(decimal.NewFromFloat(9107.47)).Abs().LessThan(decimal.NewFromFloat(0.01)),
		"new yes reserve = %s", quote.NewYesReserve)
	// 平均成交价高于成交前价格（含费、含滑点）
	assert.True(t, quote.AvgPrice.GreaterThan(decimal.NewFromFloat(0.5)))
}

func TestQuoteDoesNotMutatePool(t *testing.T) {
	pool := newTestPool(t)

	_, err := pool.QuoteBuy(SideYes, decimal.NewFromInt(500), feeRate)
	require.NoError(t, err)
	_, err = pool.QuoteSell(SideNo, decimal.NewFromInt(100), feeRate, minReserveRatio)
	require.NoError(t, err)

	assert.True(t, pool.YesReserve.Equal(decimal.NewFromInt(10000)))
	assert.True(t, pool.NoReserve.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, int64(0), pool.TradeCount)
}

func TestInvariantHoldsAcrossTrades(t *testing.T) {
	pool := newTestPool(t)

	amounts := []int64{100, 2500, 37, 999, 1200, 450, 80, 3000}
	sides := []Side{SideYes, SideNo, SideYes, SideYes, SideNo, SideNo, SideYes, SideNo}

	for i, amount := range amounts {
		quote, err := pool.QuoteBuy(sides[i], decimal.NewFromInt(amount), feeRate)
		require.NoError(t, err)
		pool.Apply(quote)

		// yes*no 与 k 的相对偏差在数值容差内
		product := pool.YesReserve.Mul(pool.NoReserve)
		drift := product.Sub(pool.KConstant).Abs().Div(pool.KConstant)
		assert.True(t, drift.LessThan(decimal.NewFromFloat(1e-6)),
			"trade %d: k drift %s", i, drift)

		// 价格之和恒为 1
		yes, no := pool.Prices()
		assert.True(t, yes.Add(no).Equal(decimal.NewFromInt(1)),
			"trade %d: price sum %s", i, yes.Add(no))
	}
}

func TestRoundTripLosesFee(t *testing.T) {
	// 买入后立刻全部卖出，两腿各收一次手续费，拿回的必然少于投入
	pool := newTestPool(t)
	amountIn := decimal.NewFromInt(1000)

	buy, err := pool.QuoteBuy(SideYes, amountIn, feeRate)
	require.NoError(t, err)
	pool.Apply(buy)

	sell, err := pool.QuoteSell(SideYes, buy.Shares, feeRate, minReserveRatio)
	require.NoError(t, err)
	pool.Apply(sell)

	assert.True(t, sell.Amount.LessThan(amountIn),
		"round trip returned %s from %s", sell.Amount, amountIn)
}

func TestQuoteSellReserveFloor(t *testing.T) {
	pool := newTestPool(t)

	// 先建立一个较大的 YES 仓位
	buy, err := pool.QuoteBuy(SideYes, decimal.NewFromInt(5000), feeRate)
	require.NoError(t, err)
	pool.Apply(buy)

	yesBefore, noBefore := pool.YesReserve, pool.NoReserve

	// 卖出远超持有的份额会把 NO 侧储备压穿下限
	_, err = pool.QuoteSell(SideYes, decimal.NewFromInt(150000), feeRate, minReserveRatio)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	// 失败的报价不改变池状态
	assert.True(t, pool.YesReserve.Equal(yesBefore))
	assert.True(t, pool.NoReserve.Equal(noBefore))
}

func TestQuoteBuyRejectsNonPositiveAmount(t *testing.T) {
	pool := newTestPool(t)

	_, err := pool.QuoteBuy(SideYes, decimal.Zero, feeRate)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = pool.QuoteBuy(SideYes, decimal.NewFromInt(-5), feeRate)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestQuoteRejectsInvalidSide(t *testing.T) {
	pool := newTestPool(t)

	_, err := pool.QuoteBuy(Side("MAYBE"), decimal.NewFromInt(100), feeRate)
	assert.ErrorIs(t, err, ErrInvalidSide)
}

func TestBuyMovesPriceTowardsBoughtSide(t *testing.T) {
	pool := newTestPool(t)

	quote, err := pool.QuoteBuy(SideYes, decimal.NewFromInt(2000), feeRate)
	require.NoError(t, err)

	assert.True(t, quote.PriceYesAfter.GreaterThan(decimal.NewFromFloat(0.5)))
	assert.True(t, quote.PriceImpact.IsPositive())
	assert.True(t, quote.PriceYesAfter.Add(quote.PriceNoAfter).Equal(decimal.NewFromInt(1)))
}

func TestApplyAccumulatesVolumeAndFees(t *testing.T) {
	pool := newTestPool(t)

	q1, err := pool.QuoteBuy(SideYes, decimal.NewFromInt(1000), feeRate)
	require.NoError(t, err)
	pool.Apply(q1)

	q2, err := pool.QuoteBuy(SideNo, decimal.NewFromInt(500), feeRate)
	require.NoError(t, err)
	pool.Apply(q2)

	assert.True(t, pool.TotalVolume.Equal(decimal.NewFromInt(1500)))
	assert.True(t, pool.TotalFees.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, int64(2), pool.TradeCount)
}
