package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestNewPositionAvgCost(t *testing.T) {
	p := NewPosition("u1", 1, "YES", d(200), d(100))

	assert.True(t, p.AvgCost.Equal(d(0.5)))
	assert.Equal(t, StatusOpen, p.Status)
}

func TestAddSharesWeightedAverage(t *testing.T) {
	// 200 份 @0.5 与 100 份 @0.8 合并：(100+80)/(200+100) = 0.6
	p := NewPosition("u1", 1, "YES", d(200), d(100))

	err := p.AddShares(d(100), d(80))
	require.NoError(t, err)

	assert.True(t, p.Shares.Equal(d(300)))
	assert.True(t, p.TotalCost.Equal(d(180)))
	assert.True(t, p.AvgCost.Equal(d(0.6)))
}

func TestCloseSharesRealizedPnL(t *testing.T) {
	p := NewPosition("u1", 1, "YES", d(200), d(100))

	// 以 0.7 的均价卖出 100 份：realized = 70 − 0.5*100 = 20
	err := p.CloseShares(d(100), d(70))
	require.NoError(t, err)

	assert.True(t, p.RealizedPnL.Equal(d(20)))
	assert.True(t, p.OpenShares().Equal(d(100)))
	assert.Equal(t, StatusOpen, p.Status)
}

func TestCloseAllSharesMarksClosed(t *testing.T) {
	p := NewPosition("u1", 1, "YES", d(200), d(100))

	err := p.CloseShares(d(200), d(110))
	require.NoError(t, err)

	assert.Equal(t, StatusClosed, p.Status)
	assert.True(t, p.OpenShares().IsZero())
}

func TestCloseSharesInsufficient(t *testing.T) {
	p := NewPosition("u1", 1, "YES", d(200), d(100))
	require.NoError(t, p.CloseShares(d(150), d(90)))

	err := p.CloseShares(d(100), d(60))

	assert.ErrorIs(t, err, ErrInsufficientShares)
	// 失败的平仓不改变任何状态
	assert.True(t, p.ClosedShares.Equal(d(150)))
	assert.True(t, p.RealizedPnL.Equal(d(15)))
}

func TestReopenAfterClose(t *testing.T) {
	p := NewPosition("u1", 1, "YES", d(100), d(50))
	require.NoError(t, p.CloseShares(d(100), d(60)))
	require.Equal(t, StatusClosed, p.Status)

	err := p.AddShares(d(50), d(30))
	require.NoError(t, err)

	assert.Equal(t, StatusOpen, p.Status)
	assert.True(t, p.OpenShares().Equal(d(50)))
}

func TestSettleTerminal(t *testing.T) {
	p := NewPosition("u1", 1, "YES", d(200), d(100))

	err := p.Settle(d(200))
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, p.Status)
	assert.True(t, p.SettlementPayout.Equal(d(200)))
	// realized = 200 − 0.5*200 = 100
	assert.True(t, p.RealizedPnL.Equal(d(100)))

	// 重复结算被拒绝，派彩不变
	err = p.Settle(d(200))
	assert.ErrorIs(t, err, ErrAlreadySettled)
	assert.True(t, p.SettlementPayout.Equal(d(200)))
}

func TestSettledPositionRejectsTrading(t *testing.T) {
	p := NewPosition("u1", 1, "YES", d(100), d(50))
	require.NoError(t, p.Settle(d(100)))

	assert.ErrorIs(t, p.AddShares(d(10), d(5)), ErrAlreadySettled)
	assert.ErrorIs(t, p.CloseShares(d(10), d(6)), ErrAlreadySettled)
}
