package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBet() *Bet {
	return NewBet("B1", "u1", 7, "BTC",
		DirectionLong,
		decimal.RequireFromString("100"),
		decimal.RequireFromString("1.8524"))
}

func TestNewBetLocksOdds(t *testing.T) {
	b := newTestBet()
	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, "1.8524", b.Odds.String())
	// 赔付潜力 = 本金 × 锁定赔率
	assert.Equal(t, "185.24", b.PotentialPayout().String())
}

func TestMarkWonPaysLockedOdds(t *testing.T) {
	b := newTestBet()
	require.NoError(t, b.MarkWon())
	assert.Equal(t, StatusWon, b.Status)
	assert.Equal(t, "185.24", b.Payout.String())
}

func TestMarkLostZeroPayout(t *testing.T) {
	b := newTestBet()
	require.NoError(t, b.MarkLost())
	assert.Equal(t, StatusLost, b.Status)
	assert.True(t, b.Payout.IsZero())
}

func TestMarkRefundedReturnsStake(t *testing.T) {
	b := newTestBet()
	require.NoError(t, b.MarkRefunded())
	assert.Equal(t, StatusRefunded, b.Status)
	assert.Equal(t, "100", b.Payout.String())
}

func TestSettledBetRejectsResettle(t *testing.T) {
	b := newTestBet()
	require.NoError(t, b.MarkWon())

	assert.ErrorIs(t, b.MarkWon(), ErrBetAlreadySettled)
	assert.ErrorIs(t, b.MarkLost(), ErrBetAlreadySettled)
	assert.ErrorIs(t, b.MarkRefunded(), ErrBetAlreadySettled)
	// 赔付不被覆盖
	assert.Equal(t, "185.24", b.Payout.String())
}
