package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RoundConfig 单个品类的回合参数快照。
// 调度器在每次开新回合前重新读取，配置变更只影响后续回合
type RoundConfig struct {
	Category         string
	RoundDuration    time.Duration
	LockPeriod       time.Duration
	InitialLiquidity decimal.Decimal
	FeeRate          decimal.Decimal
	MinTradeAmount   decimal.Decimal
	MaxTradeAmount   decimal.Decimal
	MinReserveRatio  decimal.Decimal
	DrawThreshold    decimal.Decimal
	WeekdaysOnly     bool
	OpenHour         int
	CloseHour        int
}

// Validate 校验回合时间参数。
// 封盘期必须为正且小于回合时长，否则开出的回合 lockTime <= startTime，
// 从第一秒起就不接受交易
func (c *RoundConfig) Validate() error {
	if c.RoundDuration <= 0 {
		return fmt.Errorf("category %s: round_duration must be positive, got %s", c.Category, c.RoundDuration)
	}
	if c.LockPeriod <= 0 {
		return fmt.Errorf("category %s: lock_period must be positive, got %s", c.Category, c.LockPeriod)
	}
	if c.LockPeriod >= c.RoundDuration {
		return fmt.Errorf("category %s: lock_period %s must be shorter than round_duration %s",
			c.Category, c.LockPeriod, c.RoundDuration)
	}
	return nil
}

// MarketOpen 判断交易时段，按 UTC 计算
func (c *RoundConfig) MarketOpen(now time.Time) bool {
	now = now.UTC()
	if c.WeekdaysOnly {
		wd := now.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	if c.OpenHour == 0 && c.CloseHour == 0 {
		return true
	}
	h := now.Hour()
	return h >= c.OpenHour && h < c.CloseHour
}

// ConfigStore 品类配置读取接口
type ConfigStore interface {
	RoundConfig(ctx context.Context, category string) (*RoundConfig, error)
	Categories(ctx context.Context) ([]string, error)
}
