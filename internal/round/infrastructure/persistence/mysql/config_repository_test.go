package mysql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/predictionmarket/pkg/config"
)

func TestParseCategory(t *testing.T) {
	rc, err := parseCategory(config.CategoryConfig{
		Name:          "BTC",
		RoundDuration: 300,
		LockPeriod:    30,
		FeeRate:       "0.002",
		DrawThreshold: "0.0001",
	})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, rc.RoundDuration)
	assert.Equal(t, 30*time.Second, rc.LockPeriod)
	assert.Equal(t, "0.002", rc.FeeRate.String())
}

func TestParseCategoryRejectsBadDecimal(t *testing.T) {
	_, err := parseCategory(config.CategoryConfig{
		Name:          "BTC",
		RoundDuration: 300,
		LockPeriod:    30,
		FeeRate:       "not-a-number",
	})
	assert.Error(t, err)
}

// 封盘期不短于回合时长的配置在加载时就被拒绝，而不是开出永不可交易的回合
func TestParseCategoryRejectsLockPeriodNotShorterThanDuration(t *testing.T) {
	_, err := parseCategory(config.CategoryConfig{
		Name:          "BTC",
		RoundDuration: 300,
		LockPeriod:    300,
	})
	assert.Error(t, err)

	_, err = parseCategory(config.CategoryConfig{
		Name:          "BTC",
		RoundDuration: 300,
		LockPeriod:    301,
	})
	assert.Error(t, err)

	_, err = parseCategory(config.CategoryConfig{
		Name:          "BTC",
		RoundDuration: 300,
		LockPeriod:    0,
	})
	assert.Error(t, err)
}
