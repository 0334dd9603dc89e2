package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNextStreakWin(t *testing.T) {
	cfg := DefaultStreakConfig()

	combo, maxCombo, multiplier := NextStreak(OutcomeWin, 2, 2, decimal.NewFromFloat(1.2), cfg)

	assert.Equal(t, 3, combo)
	assert.Equal(t, 3, maxCombo)
	assert.True(t, multiplier.Equal(decimal.NewFromFloat(1.3)), "multiplier = %s", multiplier)
}

func TestNextStreakWinCapsAtMaxMultiplier(t *testing.T) {
	cfg := DefaultStreakConfig()

	combo, _, multiplier := NextStreak(OutcomeWin, 25, 25, cfg.MaxMultiplier, cfg)

	assert.Equal(t, 26, combo)
	assert.True(t, multiplier.Equal(cfg.MaxMultiplier))
}

func TestNextStreakLoseResets(t *testing.T) {
	cfg := DefaultStreakConfig()

	combo, maxCombo, multiplier := NextStreak(OutcomeLose, 7, 9, decimal.NewFromFloat(1.7), cfg)

	assert.Equal(t, 0, combo)
	assert.Equal(t, 9, maxCombo, "max combo is a watermark, loss keeps it")
	assert.True(t, multiplier.Equal(cfg.BaseMultiplier))
}

func TestNextStreakDrawUnchanged(t *testing.T) {
	cfg := DefaultStreakConfig()
	current := decimal.NewFromFloat(1.4)

	combo, maxCombo, multiplier := NextStreak(OutcomeDraw, 4, 6, current, cfg)

	assert.Equal(t, 4, combo)
	assert.Equal(t, 6, maxCombo)
	assert.True(t, multiplier.Equal(current))
}

func TestNextStreakMaxComboWatermark(t *testing.T) {
	cfg := DefaultStreakConfig()

	// 低于历史峰值时连胜不会推高 max_combo
	_, maxCombo, _ := NextStreak(OutcomeWin, 1, 10, decimal.NewFromFloat(1.1), cfg)
	assert.Equal(t, 10, maxCombo)
}

func TestAccountDebitInsufficient(t *testing.T) {
	acc := NewAccount("u1", DefaultStreakConfig())
	acc.Balance = decimal.NewFromInt(50)

	err := acc.Debit(decimal.NewFromInt(100))

	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(50)), "failed debit must not change balance")
}

func TestAccountDebitCredit(t *testing.T) {
	acc := NewAccount("u1", DefaultStreakConfig())
	acc.Credit(decimal.NewFromInt(100))

	err := acc.Debit(decimal.NewFromInt(40))

	assert.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.NewFromInt(60)))
}
