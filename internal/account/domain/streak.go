package domain

import "github.com/shopspring/decimal"

// Outcome 单次对局结果
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLose Outcome = "LOSE"
	OutcomeDraw Outcome = "DRAW"
)

// StreakConfig 连胜奖励参数
type StreakConfig struct {
	// 基础倍率
	BaseMultiplier decimal.Decimal
	// 每次连胜的倍率增量
	Increment decimal.Decimal
	// 倍率上限
	MaxMultiplier decimal.Decimal
}

// DefaultStreakConfig 默认连胜参数：1.0 起步，每胜 +0.1，封顶 3.0
func DefaultStreakConfig() StreakConfig {
	return StreakConfig{
		BaseMultiplier: decimal.NewFromInt(1),
		Increment:      decimal.NewFromFloat(0.1),
		MaxMultiplier:  decimal.NewFromInt(3),
	}
}

// NextStreak 计算连胜状态迁移，所有改变连胜的路径（AMM 交易、固定赔率下注）
// 都必须经过此函数，避免各处各算一套
//
// WIN:  combo+1，multiplier = min(max, base + combo*increment)
// LOSE: combo 与 multiplier 回到基础值
// DRAW: 不变
func NextStreak(result Outcome, combo, maxCombo int, multiplier decimal.Decimal, cfg StreakConfig) (int, int, decimal.Decimal) {
	switch result {
	case OutcomeWin:
		newCombo := combo + 1
		newMultiplier := cfg.BaseMultiplier.Add(cfg.Increment.Mul(decimal.NewFromInt(int64(newCombo))))
		if newMultiplier.GreaterThan(cfg.MaxMultiplier) {
			newMultiplier = cfg.MaxMultiplier
		}
		newMax := maxCombo
		if newCombo > newMax {
			newMax = newCombo
		}
		return newCombo, newMax, newMultiplier
	case OutcomeLose:
		return 0, maxCombo, cfg.BaseMultiplier
	default:
		return combo, maxCombo, multiplier
	}
}
